package model

import "fmt"

// OutcomeKind classifies the result of a single lookup attempt.
type OutcomeKind int

const (
	// Fetched means the lookup returned a usable payload.
	Fetched OutcomeKind = iota

	// ConnectionLost means the lookup failed with a transient network error.
	// These items are retried by the coordinator.
	ConnectionLost

	// TypeMismatch means the response was malformed. These items are
	// quarantined and never retried.
	TypeMismatch
)

// OutcomeKinds lists every outcome kind in checkpoint order.
var OutcomeKinds = []OutcomeKind{Fetched, ConnectionLost, TypeMismatch}

// String returns the kind name used in checkpoint file names.
func (k OutcomeKind) String() string {
	switch k {
	case Fetched:
		return "fetched"
	case ConnectionLost:
		return "connection_lost"
	case TypeMismatch:
		return "type_mismatch"
	default:
		return "unknown"
	}
}

// ParseOutcomeKind converts a kind name back into an OutcomeKind.
func ParseOutcomeKind(s string) (OutcomeKind, error) {
	for _, k := range OutcomeKinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown outcome kind %q", s)
}

// MarshalText implements encoding.TextMarshaler so kinds serialize by name.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *OutcomeKind) UnmarshalText(text []byte) error {
	parsed, err := ParseOutcomeKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Outcome is the classified result of one lookup.
// Exactly one of Payload (Fetched) or Detail (ConnectionLost, TypeMismatch)
// is meaningful.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Item    LookupKey   `json:"item"`
	Payload string      `json:"payload,omitempty"`
	Detail  string      `json:"detail,omitempty"`
}

// NewFetched returns a Fetched outcome carrying the lookup payload.
func NewFetched(item LookupKey, payload string) Outcome {
	return Outcome{Kind: Fetched, Item: item, Payload: payload}
}

// NewConnectionLost returns a ConnectionLost outcome carrying the failure detail.
func NewConnectionLost(item LookupKey, err error) Outcome {
	return Outcome{Kind: ConnectionLost, Item: item, Detail: errorText(err)}
}

// NewTypeMismatch returns a TypeMismatch outcome carrying the failure detail.
func NewTypeMismatch(item LookupKey, err error) Outcome {
	return Outcome{Kind: TypeMismatch, Item: item, Detail: errorText(err)}
}

// ID returns the identity of the outcome's item.
func (o Outcome) ID() string {
	return o.Item.ID()
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
