package pipeline

import (
	"fmt"

	"github.com/nao1215/harvest/internal/model"
)

// Assignment is the contiguous run of intervals handled by one credential.
type Assignment struct {
	Credential string
	Intervals  []model.Interval
}

// Schedule distributes intervals over credentials in contiguous chunks of
// ceil(M/K) intervals, zipped one-to-one with the credentials in order.
//
// The zip must be exact: when the chunk count differs from the number of
// credentials (for example 5 intervals over 4 credentials gives 3 chunks
// of 2,2,1) Schedule returns an error wrapping model.ErrConfiguration
// instead of leaving a credential idle or dropping work.
func Schedule(intervals []model.Interval, credentials []string) ([]Assignment, error) {
	m, k := len(intervals), len(credentials)
	if k == 0 {
		return nil, fmt.Errorf("%w: no lookup credentials", model.ErrConfiguration)
	}
	if m == 0 {
		return nil, fmt.Errorf("%w: no intervals to schedule", model.ErrConfiguration)
	}

	divisor := ceilDiv(m, k)
	chunks := ceilDiv(m, divisor)
	if chunks != k {
		return nil, fmt.Errorf("%w: %d intervals split into %d chunks of %d, but %d credentials are configured",
			model.ErrConfiguration, m, chunks, divisor, k)
	}

	assignments := make([]Assignment, 0, k)
	for i, cred := range credentials {
		start := i * divisor
		end := min(start+divisor, m)
		assignments = append(assignments, Assignment{
			Credential: cred,
			Intervals:  append([]model.Interval(nil), intervals[start:end]...),
		})
	}
	return assignments, nil
}

// FitCredentials returns the prefix of credentials that Schedule accepts
// for m intervals: the first ceil(m/ceil(m/K)) credentials. Retry rounds
// use it because the residual work rarely divides evenly over every key.
func FitCredentials(m int, credentials []string) []string {
	k := len(credentials)
	if m <= 0 || k == 0 {
		return nil
	}
	n := ceilDiv(m, ceilDiv(m, k))
	return append([]string(nil), credentials[:n]...)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
