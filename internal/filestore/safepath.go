package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/adamscao/shotserver/internal/apperr"
	"github.com/adamscao/shotserver/internal/policy"
)

var errPathEscapes = errors.New("path escapes sandbox")

// resolve maps validated name components to a path strictly inside the
// sandbox root. Every filesystem access in this package goes through it.
func (s *Sandbox) resolve(parts ...string) (string, error) {
	for _, p := range parts {
		if err := policy.ValidateName(p); err != nil {
			return "", err
		}
	}

	joined := filepath.Clean(filepath.Join(append([]string{s.root}, parts...)...))
	if len(parts) > 0 && !isWithin(s.root, joined) {
		return "", apperr.Forbidden("Access denied")
	}

	// Deny traversal through symlinks anywhere below the data root
	if s.hasSymlinkComponent(joined) {
		return "", apperr.Forbidden("Access denied")
	}

	return joined, nil
}

func (s *Sandbox) hasSymlinkComponent(fullPath string) bool {
	base := filepath.Clean(s.store.root)
	rel, err := filepath.Rel(base, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true
	}
	if rel == "." {
		return false
	}

	cur := base
	for _, p := range strings.Split(rel, string(filepath.Separator)) {
		if p == "" || p == "." {
			continue
		}
		cur = filepath.Join(cur, p)
		st, err := lstat(s.store.fs, cur)
		if err != nil {
			// Component doesn't exist (yet): no symlink to traverse
			return false
		}
		if st.Mode()&os.ModeSymlink != 0 {
			return true
		}
	}
	return false
}

// isWithin reports whether candidate lies strictly below root
func isWithin(root, candidate string) bool {
	root = filepath.Clean(root)
	candidate = filepath.Clean(candidate)
	if root == candidate {
		return false
	}
	sep := string(filepath.Separator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(candidate, root)
}

func lstat(fs afero.Fs, name string) (os.FileInfo, error) {
	if l, ok := fs.(afero.Lstater); ok {
		fi, _, err := l.LstatIfPossible(name)
		return fi, err
	}
	return fs.Stat(name)
}
