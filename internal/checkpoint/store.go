package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/nao1215/harvest/internal/model"
)

// fileNamePattern matches interval checkpoint file names.
var fileNamePattern = regexp.MustCompile(`^(fetched|connection_lost|type_mismatch)-(\d+)-(\d+)\.json$`)

// File identifies one interval checkpoint file.
type File struct {
	Kind     model.OutcomeKind
	Interval model.Interval
	Path     string
}

// FileName returns the interval checkpoint file name for kind and interval.
func FileName(kind model.OutcomeKind, iv model.Interval) string {
	return kind.String() + "-" + iv.String() + ".json"
}

// ParseFileName decodes an interval checkpoint file name.
func ParseFileName(name string) (model.OutcomeKind, model.Interval, error) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, model.Interval{}, fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	kind, err := model.ParseOutcomeKind(m[1])
	if err != nil {
		return 0, model.Interval{}, fmt.Errorf("%w: %w", ErrInvalidFileName, err)
	}
	start, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, model.Interval{}, fmt.Errorf("%w: %w", ErrInvalidFileName, err)
	}
	end, err := strconv.Atoi(m[3])
	if err != nil {
		return 0, model.Interval{}, fmt.Errorf("%w: %w", ErrInvalidFileName, err)
	}
	return kind, model.Interval{Start: start, End: end}, nil
}

// Store is a directory of checkpoint files.
type Store struct {
	dir string
}

// Open returns a store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Write saves outcomes as the checkpoint of kind for one interval.
// An empty list is written as "[]".
func (s *Store) Write(kind model.OutcomeKind, iv model.Interval, outcomes []model.Outcome) (File, error) {
	path := filepath.Join(s.dir, FileName(kind, iv))
	if err := writeJSON(path, outcomes); err != nil {
		return File{}, err
	}
	return File{Kind: kind, Interval: iv, Path: path}, nil
}

// Scan lists the interval checkpoint files in the store ordered by kind and
// interval. Aggregates and unrelated files are ignored.
func (s *Store) Scan() ([]File, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	files := make([]File, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		kind, iv, err := ParseFileName(e.Name())
		if err != nil {
			continue
		}
		files = append(files, File{Kind: kind, Interval: iv, Path: filepath.Join(s.dir, e.Name())})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Kind != files[j].Kind {
			return files[i].Kind < files[j].Kind
		}
		if files[i].Interval.Start != files[j].Interval.Start {
			return files[i].Interval.Start < files[j].Interval.Start
		}
		return files[i].Interval.End < files[j].Interval.End
	})
	return files, nil
}

// Merge reads every file of kind and concatenates their outcomes, keeping
// the first outcome seen for each item id. Files of other kinds are skipped.
// Merging the same file twice yields the same result as merging it once.
func (s *Store) Merge(kind model.OutcomeKind, files []File) ([]model.Outcome, error) {
	merged := make([]model.Outcome, 0)
	seen := make(map[string]bool)
	for _, f := range files {
		if f.Kind != kind {
			continue
		}
		outcomes, err := readJSON(f.Path)
		if err != nil {
			return nil, err
		}
		merged = appendUnique(merged, seen, outcomes)
	}
	return merged, nil
}

// Remove deletes files. Files that no longer exist are ignored.
func (s *Store) Remove(files []File) error {
	var errs []error
	for _, f := range files {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to remove checkpoint files: %w", errors.Join(errs...))
	}
	return nil
}

// AggregatePath returns the path of the merged aggregate of kind.
func (s *Store) AggregatePath(kind model.OutcomeKind) string {
	return filepath.Join(s.dir, kind.String()+".json")
}

// SaveMerged replaces the aggregate of kind with outcomes.
func (s *Store) SaveMerged(kind model.OutcomeKind, outcomes []model.Outcome) error {
	return writeJSON(s.AggregatePath(kind), outcomes)
}

// LoadMerged reads the aggregate of kind. A missing aggregate is empty.
func (s *Store) LoadMerged(kind model.OutcomeKind) ([]model.Outcome, error) {
	outcomes, err := readJSON(s.AggregatePath(kind))
	if errors.Is(err, fs.ErrNotExist) {
		return []model.Outcome{}, nil
	}
	if err != nil {
		return nil, err
	}
	return appendUnique(make([]model.Outcome, 0, len(outcomes)), make(map[string]bool), outcomes), nil
}

// Clear removes every interval file and aggregate from the store.
func (s *Store) Clear() error {
	files, err := s.Scan()
	if err != nil {
		return err
	}
	if err := s.Remove(files); err != nil {
		return err
	}
	for _, kind := range model.OutcomeKinds {
		if err := os.Remove(s.AggregatePath(kind)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove aggregate: %w", err)
		}
	}
	return nil
}

func appendUnique(dst []model.Outcome, seen map[string]bool, outcomes []model.Outcome) []model.Outcome {
	for _, o := range outcomes {
		id := o.ID()
		if seen[id] {
			continue
		}
		seen[id] = true
		dst = append(dst, o)
	}
	return dst
}

// writeJSON writes outcomes to path through a temporary file and a rename.
func writeJSON(path string, outcomes []model.Outcome) error {
	if outcomes == nil {
		outcomes = []model.Outcome{}
	}
	data, err := json.MarshalIndent(outcomes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName) //nolint:errcheck // best effort
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // write error takes precedence
		cleanup()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // sync error takes precedence
		cleanup()
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

func readJSON(path string) ([]model.Outcome, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the store directory
	if err != nil {
		return nil, err
	}
	var outcomes []model.Outcome
	if err := json.Unmarshal(data, &outcomes); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", path, err)
	}
	return outcomes, nil
}
