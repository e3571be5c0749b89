package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gorewood/briefship/internal/output"
)

// ErrNoRecords is returned by Latest when nothing has been deployed yet.
var ErrNoRecords = errors.New("no deploy records found")

// ListStats counts the files List looked at.
type ListStats struct {
	Total       int // .json files found
	Parsed      int
	Skipped     int
	Foreign     int // valid JSON with another schema
	ParseErrors int
}

// Store reads and writes records under a single directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created on the
// first Write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) recordDir(id string) string {
	return filepath.Join(s.dir, filepath.FromSlash(DateDir(id)))
}

func (s *Store) recordPath(id string) string {
	return filepath.Join(s.recordDir(id), id+".json")
}

// checkID rejects anything that cannot name a file inside the store.
func checkID(id string) error {
	if DateDir(id) == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return output.NewUserError("invalid deploy record id: " + id)
	}
	return nil
}

// ignoreFile keeps the store out of git status so a deploy never dirties
// the tree it deploys from.
const ignoreFile = ".gitignore"

func (s *Store) ensureIgnored() error {
	path := filepath.Join(s.dir, ignoreFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte("*\n"), 0o644)
}

// Write stores rec. An existing record with the same ID is a conflict
// unless force is set.
func (s *Store) Write(rec *Record, force bool) error {
	if err := rec.Validate(); err != nil {
		return output.NewUserError(err.Error())
	}
	if err := checkID(rec.ID); err != nil {
		return err
	}

	path := s.recordPath(rec.ID)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return output.NewConflictError("deploy record already exists: " + rec.ID)
		}
	}

	data, err := rec.Marshal()
	if err != nil {
		return output.NewSystemError(err.Error())
	}
	if err := os.MkdirAll(s.recordDir(rec.ID), 0o755); err != nil {
		return output.NewSystemErrorWithCause("creating history directory", err)
	}
	if err := s.ensureIgnored(); err != nil {
		return output.NewSystemErrorWithCause("writing history .gitignore", err)
	}
	if err := atomicWrite(path, data); err != nil {
		return output.NewSystemErrorWithCause("writing deploy record", err)
	}
	return nil
}

// Read returns the record with the given ID.
func (s *Store) Read(id string) (*Record, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	path := s.recordPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, output.NewUserError("deploy record not found: " + id)
		}
		return nil, output.NewSystemErrorWithCause("reading "+path, err)
	}

	rec, err := Unmarshal(data)
	if err != nil {
		if errors.Is(err, ErrNotRecord) {
			return nil, err
		}
		return nil, output.NewUserError(fmt.Sprintf("%s: %v", path, err))
	}
	return rec, nil
}

// Exists reports whether a record file exists for id.
func (s *Store) Exists(id string) bool {
	if checkID(id) != nil {
		return false
	}
	_, err := os.Stat(s.recordPath(id))
	return err == nil
}

// List returns every record, newest first. Unreadable files are skipped.
func (s *Store) List() ([]*Record, error) {
	recs, _, err := s.ListWithStats()
	return recs, err
}

// ListWithStats is List plus counts of what was skipped. A missing
// directory yields no records and no error.
func (s *Store) ListWithStats() ([]*Record, *ListStats, error) {
	stats := &ListStats{}
	var recs []*Record

	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}

		stats.Total++
		rec, readErr := readFile(path)
		if readErr != nil {
			stats.Skipped++
			if errors.Is(readErr, ErrNotRecord) {
				stats.Foreign++
			} else {
				stats.ParseErrors++
			}
			return nil
		}
		recs = append(recs, rec)
		stats.Parsed++
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ListStats{}, nil
		}
		return nil, nil, output.NewSystemErrorWithCause("walking history directory", err)
	}

	SortNewestFirst(recs)
	return recs, stats, nil
}

func readFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// Latest returns the most recently started record.
func (s *Store) Latest() (*Record, error) {
	recs, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNoRecords
	}
	return recs[0], nil
}

// SortNewestFirst orders records by StartedAt descending, then by ID.
func SortNewestFirst(recs []*Record) {
	slices.SortStableFunc(recs, func(a, b *Record) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

// FilterFailed keeps records that did not succeed.
func FilterFailed(recs []*Record) []*Record {
	var out []*Record
	for _, r := range recs {
		if !r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

// FilterBranch keeps records for branch; an empty branch keeps everything.
func FilterBranch(recs []*Record, branch string) []*Record {
	if branch == "" {
		return recs
	}
	var out []*Record
	for _, r := range recs {
		if r.Branch == branch {
			out = append(out, r)
		}
	}
	return out
}

// Limit returns at most n records; n <= 0 means no limit.
func Limit(recs []*Record, n int) []*Record {
	if n > 0 && len(recs) > n {
		return recs[:n]
	}
	return recs
}

// atomicWrite writes data to a temp file beside path and renames it into
// place.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
