// Package filestore keeps each user's screenshots in a private sandbox
// directory under the data root. Folder starring is persisted per user in a
// JSON metadata file next to the sandbox.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/adamscao/shotserver/internal/apperr"
)

// AllFolder is the virtual folder aggregating every screenshot of a user
const AllFolder = "all"

// DefaultMaxUploadSize bounds a single screenshot upload
const DefaultMaxUploadSize = 10 << 20

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// Options configures a Store
type Options struct {
	MaxUploadSize int64
	Now           func() time.Time
}

// Store owns the data root and hands out per-user sandboxes
type Store struct {
	fs        afero.Fs
	root      string
	maxUpload int64
	now       func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates a store rooted at root on fs
func New(fsys afero.Fs, root string, opts Options) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := fsys.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Store{
		fs:        fsys,
		root:      filepath.Clean(abs),
		maxUpload: opts.MaxUploadSize,
		now:       opts.Now,
		locks:     make(map[int64]*sync.Mutex),
	}, nil
}

// NewOS creates a store backed by the operating system filesystem
func NewOS(root string, opts Options) (*Store, error) {
	return New(afero.NewOsFs(), root, opts)
}

// MaxUploadSize returns the upload limit in bytes
func (s *Store) MaxUploadSize() int64 {
	return s.maxUpload
}

// For returns the sandbox of one user
func (s *Store) For(userID int64) *Sandbox {
	return &Sandbox{
		store:  s,
		userID: userID,
		root:   filepath.Join(s.root, sandboxDir(userID)),
		meta:   filepath.Join(s.root, sandboxDir(userID)+".meta.json"),
	}
}

func (s *Store) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func sandboxDir(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

// Sandbox is one user's view of the store
type Sandbox struct {
	store  *Store
	userID int64
	root   string
	meta   string
}

type metadata struct {
	StarredFolders []string `json:"starred_folders"`
}

// Provision creates the empty sandbox directory
func (s *Sandbox) Provision() error {
	if err := s.store.fs.MkdirAll(s.root, dirPerm); err != nil {
		return apperr.Internalf("failed to provision sandbox for user %d: %w", s.userID, err)
	}
	return nil
}

func (s *Sandbox) lock() func() {
	l := s.store.userLock(s.userID)
	l.Lock()
	return l.Unlock
}

func (s *Sandbox) imagePath(folder, filename string) string {
	return fmt.Sprintf("/image/%s/%s/%s", sandboxDir(s.userID), folder, filename)
}

// loadStarred reads the starred set; a missing file is an empty set
func (s *Sandbox) loadStarred() (map[string]bool, error) {
	starred := make(map[string]bool)

	data, err := afero.ReadFile(s.store.fs, s.meta)
	if errors.Is(err, fs.ErrNotExist) {
		return starred, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read folder metadata: %w", err)
	}

	var m metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse folder metadata: %w", err)
	}
	for _, name := range m.StarredFolders {
		starred[name] = true
	}
	return starred, nil
}

// saveStarred writes the starred set through a temp file and rename
func (s *Sandbox) saveStarred(starred map[string]bool) error {
	m := metadata{StarredFolders: make([]string, 0, len(starred))}
	for name := range starred {
		m.StarredFolders = append(m.StarredFolders, name)
	}
	sort.Strings(m.StarredFolders)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode folder metadata: %w", err)
	}

	tmp := s.meta + ".tmp"
	if err := afero.WriteFile(s.store.fs, tmp, data, filePerm); err != nil {
		return fmt.Errorf("failed to write folder metadata: %w", err)
	}
	if err := s.store.fs.Rename(tmp, s.meta); err != nil {
		return fmt.Errorf("failed to replace folder metadata: %w", err)
	}
	return nil
}

// isDir reports whether path exists and is a directory
func (s *Sandbox) isDir(path string) (bool, error) {
	fi, err := s.store.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}

func notExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}
