// Package documents serves the fixed set of school PDFs the assistant cites
// and maps remote file names onto the local copies.
package documents

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned for names that do not resolve to a PDF in the
// store directory.
var ErrNotFound = errors.New("document not found")

// Store is a read-only directory of PDF files.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir.
func New(dir string) *Store { return &Store{Dir: dir} }

// Path returns the on-disk path for name. Only the base name is honored, so
// traversal attempts resolve inside Dir or not at all. Names must end in
// ".pdf" and refer to an existing regular file.
func (s *Store) Path(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if base == "/" || base == "." || !strings.HasSuffix(strings.ToLower(base), ".pdf") {
		return "", ErrNotFound
	}
	p := filepath.Join(s.Dir, base)
	fi, err := os.Stat(p)
	if err != nil || !fi.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return p, nil
}

// List returns the PDF file names in the store, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), ".pdf") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Resolve maps a remote file name to a local PDF. A local file matches when
// either name contains the other, case-insensitively. Without a match the
// remote name is returned unchanged.
func (s *Store) Resolve(remote string) string {
	names, err := s.List()
	if err != nil {
		return remote
	}
	r := strings.ToLower(remote)
	for _, n := range names {
		l := strings.ToLower(n)
		if strings.Contains(l, r) || strings.Contains(r, l) {
			return n
		}
	}
	return remote
}
