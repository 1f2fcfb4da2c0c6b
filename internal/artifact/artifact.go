// Package artifact persists the intermediate outputs of a run so every stage
// can be re-run from the previous stage's files.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/signalfeed/curator/internal/model"
)

// SchemaVersion is the version stamped into every JSON artifact. Readers
// reject anything else.
const SchemaVersion = 1

// CorruptError reports an artifact that exists but cannot be used.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("artifact: corrupt %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// ErrSchemaVersion marks an artifact written by an incompatible version.
// It is always wrapped in a CorruptError.
var ErrSchemaVersion = eris.New("unsupported schema_version")

// Store reads and writes run artifacts under a single directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created on first
// write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the artifact directory.
func (s *Store) Dir() string { return s.dir }

// RawPath returns the path of a source's raw artifact.
func (s *Store) RawPath(source model.Source) string {
	return filepath.Join(s.dir, string(source)+"_raw.json")
}

// CombinedPath returns the path of the aggregated artifact.
func (s *Store) CombinedPath() string {
	return filepath.Join(s.dir, "combined_raw.json")
}

// ClassifiedPath returns the path of the classified artifact.
func (s *Store) ClassifiedPath() string {
	return filepath.Join(s.dir, "filtered.json")
}

// DigestPath returns the path of the rendered digest.
func (s *Store) DigestPath() string {
	return filepath.Join(s.dir, "digest.md")
}

type rawEnvelope struct {
	SchemaVersion int               `json:"schema_version"`
	Source        model.Source      `json:"source"`
	FetchedAt     time.Time         `json:"fetched_at"`
	TotalRecords  int               `json:"total_records"`
	Records       []model.RawRecord `json:"records"`
}

// itemsMetadata summarizes an item set. Derived from item content only, so
// identical items produce identical bytes.
type itemsMetadata struct {
	DateFrom *time.Time     `json:"date_from,omitempty"`
	DateTo   *time.Time     `json:"date_to,omitempty"`
	Total    int            `json:"total"`
	BySource map[string]int `json:"by_source,omitempty"`
	News     int            `json:"news,omitempty"`
	Chatter  int            `json:"chatter,omitempty"`
}

type itemsEnvelope struct {
	SchemaVersion int                   `json:"schema_version"`
	Metadata      itemsMetadata         `json:"metadata"`
	Items         []model.CanonicalItem `json:"items"`
}

func itemsMeta(items []model.CanonicalItem) itemsMetadata {
	meta := itemsMetadata{Total: len(items)}
	for _, it := range items {
		if meta.DateFrom == nil || it.CreatedAt.Before(*meta.DateFrom) {
			t := it.CreatedAt
			meta.DateFrom = &t
		}
		if meta.DateTo == nil || it.CreatedAt.After(*meta.DateTo) {
			t := it.CreatedAt
			meta.DateTo = &t
		}
		if meta.BySource == nil {
			meta.BySource = make(map[string]int)
		}
		meta.BySource[string(it.Source)]++

		switch it.Category {
		case model.CategoryNews:
			meta.News++
		case model.CategoryChatter:
			meta.Chatter++
		}
	}
	return meta
}

// WriteRaw persists a source's raw records.
func (s *Store) WriteRaw(source model.Source, records []model.RawRecord, fetchedAt time.Time) error {
	env := rawEnvelope{
		SchemaVersion: SchemaVersion,
		Source:        source,
		FetchedAt:     fetchedAt.UTC(),
		TotalRecords:  len(records),
		Records:       records,
	}
	return s.writeJSON(s.RawPath(source), env)
}

// ReadRaw loads a source's raw records. A missing file returns (nil, nil);
// raw artifacts are optional per source.
func (s *Store) ReadRaw(source model.Source) ([]model.RawRecord, error) {
	path := s.RawPath(source)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "artifact: read raw")
	}

	var env rawEnvelope
	if err := decodeEnvelope(path, data, &env); err != nil {
		return nil, err
	}
	return env.Records, nil
}

// WriteCombined persists the aggregated item set. The file carries no
// generation timestamp, so identical input produces identical bytes.
func (s *Store) WriteCombined(items []model.CanonicalItem) error {
	return s.writeJSON(s.CombinedPath(), itemsEnvelope{
		SchemaVersion: SchemaVersion,
		Metadata:      itemsMeta(items),
		Items:         items,
	})
}

// ReadCombined loads the aggregated item set. A missing file is an error;
// callers that tolerate absence check with os.IsNotExist via errors.Is.
func (s *Store) ReadCombined() ([]model.CanonicalItem, error) {
	return s.readItems(s.CombinedPath())
}

// WriteClassified persists the classified item set.
func (s *Store) WriteClassified(items []model.CanonicalItem) error {
	return s.writeJSON(s.ClassifiedPath(), itemsEnvelope{
		SchemaVersion: SchemaVersion,
		Metadata:      itemsMeta(items),
		Items:         items,
	})
}

// ReadClassified loads the classified item set.
func (s *Store) ReadClassified() ([]model.CanonicalItem, error) {
	return s.readItems(s.ClassifiedPath())
}

// WriteDigest persists the rendered digest and returns its path.
func (s *Store) WriteDigest(content []byte) (string, error) {
	path := s.DigestPath()
	if err := s.writeAtomic(path, content); err != nil {
		return "", err
	}
	return path, nil
}

// ReadDigest loads the rendered digest bytes.
func (s *Store) ReadDigest() ([]byte, error) {
	data, err := os.ReadFile(s.DigestPath())
	if err != nil {
		return nil, eris.Wrap(err, "artifact: read digest")
	}
	return data, nil
}

func (s *Store) readItems(path string) ([]model.CanonicalItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "artifact: read items")
	}

	var env itemsEnvelope
	if err := decodeEnvelope(path, data, &env); err != nil {
		return nil, err
	}
	return env.Items, nil
}

// decodeEnvelope unmarshals an artifact and checks its schema version.
func decodeEnvelope(path string, data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return &CorruptError{Path: path, Err: err}
	}

	var version int
	switch env := dst.(type) {
	case *rawEnvelope:
		version = env.SchemaVersion
	case *itemsEnvelope:
		version = env.SchemaVersion
	}
	if version != SchemaVersion {
		return &CorruptError{
			Path: path,
			Err:  eris.Wrap(ErrSchemaVersion, fmt.Sprintf("got %d, want %d", version, SchemaVersion)),
		}
	}
	return nil
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "artifact: marshal")
	}
	return s.writeAtomic(path, append(data, '\n'))
}

// writeAtomic writes to a temp file in the same directory and renames it
// over the target, so readers never see a partial artifact.
func (s *Store) writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrap(err, "artifact: create dir")
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "artifact: create temp")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "artifact: write temp")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "artifact: close temp")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "artifact: rename")
	}
	return nil
}
