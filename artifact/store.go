// Package artifact stores binary and text outputs on disk and hands out
// lightweight references to them. Only the formatter ever resolves a
// reference to its encoded form; everything upstream passes the reference
// around as a plain string.
package artifact

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Artifact categories.
const (
	CategoryUpload    = "upload"
	CategoryGenerated = "generated"
	CategoryImage     = "image"
)

var (
	// ErrNotFound is returned when a reference names no stored artifact.
	ErrNotFound = errors.New("artifact: not found")
	// ErrInvalidCategory is returned for a category outside the known set.
	ErrInvalidCategory = errors.New("artifact: invalid category")
)

// Ref is a stable token naming a stored artifact. The name embeds the
// category, a millisecond timestamp, a short uniqueness segment and the
// sanitized original filename, so a Ref alone is enough to locate the file.
type Ref struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// refPattern matches names produced by Save. Used by IsRefName to decide
// whether an arbitrary string in a result mapping is an artifact reference.
var refPattern = regexp.MustCompile(`^(upload|generated|image)_\d{8}_\d{6}_\d{3}_[0-9a-f]{8}_`)

// IsRefName reports whether s looks like a stored-artifact name.
func IsRefName(s string) bool {
	return refPattern.MatchString(s)
}

// Store is a flat directory of uniquely named artifacts. Writes always
// create new files; nothing is ever rewritten in place.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) the artifact directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

var sanitizePattern = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeName(name string) string {
	name = filepath.Base(name)
	name = sanitizePattern.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "artifact"
	}
	if len(name) > 80 {
		name = name[:80]
	}
	return name
}

// Save writes data as a new artifact and returns its reference. The name is
// built from the category, a millisecond timestamp, an eight-character
// uniqueness segment and the sanitized name hint, so concurrent writes in
// the same millisecond cannot collide.
func (s *Store) Save(nameHint string, data []byte, category string) (Ref, error) {
	switch category {
	case CategoryUpload, CategoryGenerated, CategoryImage:
	default:
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}

	now := time.Now()
	stamp := now.Format("20060102_150405") + fmt.Sprintf("_%03d", now.Nanosecond()/1e6)
	unique := uuid.NewString()[:8]
	name := fmt.Sprintf("%s_%s_%s_%s", category, stamp, unique, sanitizeName(nameHint))

	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return Ref{}, fmt.Errorf("artifact: save %s: %w", name, err)
	}
	return Ref{Name: name, Category: category}, nil
}

// SaveText is Save for string content.
func (s *Store) SaveText(nameHint, content, category string) (Ref, error) {
	return s.Save(nameHint, []byte(content), category)
}

// Path returns the on-disk path for a reference. The file may or may not
// exist; use Exists to check.
func (s *Store) Path(ref Ref) string {
	return filepath.Join(s.dir, filepath.Base(ref.Name))
}

// Exists reports whether the referenced artifact is present.
func (s *Store) Exists(ref Ref) bool {
	info, err := os.Stat(s.Path(ref))
	return err == nil && !info.IsDir()
}

// Read returns the artifact's raw bytes.
func (s *Store) Read(ref Ref) ([]byte, error) {
	data, err := os.ReadFile(s.Path(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.Name)
		}
		return nil, fmt.Errorf("artifact: read %s: %w", ref.Name, err)
	}
	return data, nil
}

// RawBase64 returns the artifact's content encoded as standard base64.
func (s *Store) RawBase64(ref Ref) (string, error) {
	data, err := s.Read(ref)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DataURI returns the artifact encoded as a data URI with a MIME type
// derived from the file extension.
func (s *Store) DataURI(ref Ref) (string, error) {
	data, err := s.Read(ref)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeForName(ref.Name), base64.StdEncoding.EncodeToString(data)), nil
}

func mimeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	case ".html", ".htm":
		return "text/html"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// List returns references for every stored artifact, newest first.
func (s *Store) List() ([]Ref, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("artifact: list: %w", err)
	}
	refs := make([]Ref, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !IsRefName(name) {
			continue
		}
		refs = append(refs, Ref{Name: name, Category: strings.SplitN(name, "_", 2)[0]})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name > refs[j].Name })
	return refs, nil
}

// Sweep removes artifacts older than maxAge and returns how many were
// deleted. Retention is a housekeeping concern; a failed removal is
// reported but does not abort the sweep.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("artifact: sweep: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var firstErr error
	for _, e := range entries {
		if e.IsDir() || !IsRefName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

// SaveUploads stores each caller-supplied file and returns a mapping from
// the original filename to its reference. Generated logic locates inputs
// through this mapping and never sees raw upload handles.
func (s *Store) SaveUploads(files map[string][]byte) (map[string]Ref, error) {
	refs := make(map[string]Ref, len(files))
	for name, data := range files {
		ref, err := s.Save(name, data, CategoryUpload)
		if err != nil {
			return nil, err
		}
		refs[name] = ref
	}
	return refs, nil
}
