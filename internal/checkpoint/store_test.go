package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nao1215/harvest/internal/model"
)

func key(n string) model.LookupKey {
	return model.LookupKey{ListingHash: "h" + n, Citation: "citation " + n}
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "refs"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestFileNameRoundTrip(t *testing.T) {
	t.Parallel()

	iv := model.Interval{Start: 100, End: 200}
	name := FileName(model.ConnectionLost, iv)
	if name != "connection_lost-100-200.json" {
		t.Fatalf("FileName() = %q", name)
	}
	kind, got, err := ParseFileName(name)
	if err != nil {
		t.Fatalf("ParseFileName() error = %v", err)
	}
	if kind != model.ConnectionLost || got != iv {
		t.Errorf("ParseFileName() = %v %v", kind, got)
	}

	for _, bad := range []string{"fetched.json", "lost-1-2.json", "fetched-1-2.json.tmp", "fetched-a-2.json"} {
		if _, _, err := ParseFileName(bad); !errors.Is(err, ErrInvalidFileName) {
			t.Errorf("ParseFileName(%q) error = %v, want ErrInvalidFileName", bad, err)
		}
	}
}

func TestStoreWriteAndScan(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	iv := model.Interval{Start: 0, End: 2}
	for _, kind := range model.OutcomeKinds {
		if _, err := s.Write(kind, iv, nil); err != nil {
			t.Fatalf("Write(%v) error = %v", kind, err)
		}
	}
	if _, err := s.Write(model.Fetched, model.Interval{Start: 2, End: 4}, []model.Outcome{model.NewFetched(key("1"), "ok")}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.SaveMerged(model.Fetched, nil); err != nil {
		t.Fatalf("SaveMerged() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	files, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(files) != 4 {
		t.Fatalf("Scan() = %d files, want 4: %+v", len(files), files)
	}
	if files[0].Kind != model.Fetched || files[0].Interval.Start != 0 || files[1].Interval.Start != 2 {
		t.Errorf("Scan() order = %+v", files)
	}

	empty, err := s.Merge(model.TypeMismatch, files)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("empty checkpoint merged to %d outcomes", len(empty))
	}
}

func TestStoreMergeIdempotent(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	outcomes := []model.Outcome{
		model.NewFetched(key("1"), "a"),
		model.NewFetched(key("2"), "b"),
		model.NewFetched(key("1"), "duplicate"),
	}
	f, err := s.Write(model.Fetched, model.Interval{Start: 0, End: 3}, outcomes)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	once, err := s.Merge(model.Fetched, []File{f})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	twice, err := s.Merge(model.Fetched, []File{f, f})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(once) != 2 || len(twice) != len(once) {
		t.Errorf("Merge once = %d, twice = %d, want 2 and 2", len(once), len(twice))
	}
	if once[0].Payload != "a" {
		t.Errorf("first seen outcome not kept: %+v", once[0])
	}
}

func TestStoreRemoveAndAggregates(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	f, err := s.Write(model.ConnectionLost, model.Interval{Start: 0, End: 1}, []model.Outcome{
		model.NewConnectionLost(key("1"), errors.New("reset")),
	})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := s.Remove([]File{f, f}); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	files, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(files) != 0 {
		t.Errorf("Scan() after Remove = %v", files)
	}

	loaded, err := s.LoadMerged(model.Fetched)
	if err != nil {
		t.Fatalf("LoadMerged() missing error = %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("LoadMerged() missing = %v", loaded)
	}

	want := []model.Outcome{model.NewTypeMismatch(key("2"), errors.New("bad body"))}
	if err := s.SaveMerged(model.TypeMismatch, want); err != nil {
		t.Fatalf("SaveMerged() error = %v", err)
	}
	loaded, err = s.LoadMerged(model.TypeMismatch)
	if err != nil {
		t.Fatalf("LoadMerged() error = %v", err)
	}
	if len(loaded) != 1 || loaded[0] != want[0] {
		t.Errorf("LoadMerged() = %+v, want %+v", loaded, want)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := os.Stat(s.AggregatePath(model.TypeMismatch)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("aggregate still present after Clear: %v", err)
	}
}

func TestStoreWriteLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	if _, err := s.Write(model.Fetched, model.Interval{Start: 0, End: 1}, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "fetched-0-1.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory = %v", names)
	}
}
