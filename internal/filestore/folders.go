package filestore

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/adamscao/shotserver/internal/apperr"
	"github.com/adamscao/shotserver/internal/models"
	"github.com/adamscao/shotserver/internal/policy"
)

const allDisplayName = "All Screenshots"

// CreateFolder creates an empty folder
func (s *Sandbox) CreateFolder(name string) (*models.Folder, error) {
	if name == AllFolder {
		return nil, apperr.Conflict("Folder %q is reserved", AllFolder)
	}
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	unlock := s.lock()
	defer unlock()

	if err := s.Provision(); err != nil {
		return nil, err
	}

	if err := s.store.fs.Mkdir(path, dirPerm); err != nil {
		if os.IsExist(err) {
			return nil, apperr.Conflict("Folder %q already exists", name)
		}
		return nil, apperr.Internalf("failed to create folder %s: %w", name, err)
	}

	fi, err := s.store.fs.Stat(path)
	if err != nil {
		return nil, apperr.Internalf("failed to stat folder %s: %w", name, err)
	}

	return &models.Folder{
		Name:        name,
		DisplayName: name,
		Path:        "/folder/" + name,
		Created:     fi.ModTime(),
		Modified:    fi.ModTime(),
		Screenshots: []models.Screenshot{},
	}, nil
}

// ListFolders returns the virtual "all" folder followed by every real
// folder, starred ones first
func (s *Sandbox) ListFolders() ([]models.Folder, error) {
	starred, err := s.loadStarred()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	names, err := s.realFolders()
	if err != nil {
		return nil, err
	}

	all := models.Folder{
		Name:        AllFolder,
		DisplayName: allDisplayName,
		Path:        "/folder/" + AllFolder,
		IsPermanent: true,
		IsStarred:   true,
		Screenshots: []models.Screenshot{},
	}

	folders := make([]models.Folder, 0, len(names))
	for _, name := range names {
		f, err := s.loadFolder(name)
		if err != nil {
			return nil, err
		}
		f.IsStarred = starred[name]
		all.Screenshots = append(all.Screenshots, f.Screenshots...)
		if f.Created.Before(all.Created) || all.Created.IsZero() {
			all.Created = f.Created
		}
		if f.Modified.After(all.Modified) {
			all.Modified = f.Modified
		}
		folders = append(folders, *f)
	}
	sortScreenshots(all.Screenshots)

	sort.SliceStable(folders, func(i, j int) bool {
		if folders[i].IsStarred != folders[j].IsStarred {
			return folders[i].IsStarred
		}
		return folders[i].Name < folders[j].Name
	})

	return append([]models.Folder{all}, folders...), nil
}

// Folder returns one folder with its screenshots; "all" is accepted
func (s *Sandbox) Folder(name string) (*models.Folder, error) {
	if name == AllFolder {
		folders, err := s.ListFolders()
		if err != nil {
			return nil, err
		}
		return &folders[0], nil
	}

	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	ok, err := s.isDir(path)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, apperr.NotFound("Folder %q not found", name)
	}

	starred, err := s.loadStarred()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	f, err := s.loadFolder(name)
	if err != nil {
		return nil, err
	}
	f.IsStarred = starred[name]
	return f, nil
}

// Star adds a folder to the starred set
func (s *Sandbox) Star(name string) error {
	if name == AllFolder {
		return apperr.Conflict("Folder %q is always starred", AllFolder)
	}
	return s.setStarred(name, true)
}

// Unstar removes a folder from the starred set
func (s *Sandbox) Unstar(name string) error {
	if name == AllFolder {
		return apperr.Forbidden("Folder %q cannot be unstarred", AllFolder)
	}
	return s.setStarred(name, false)
}

func (s *Sandbox) setStarred(name string, star bool) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}

	unlock := s.lock()
	defer unlock()

	ok, err := s.isDir(path)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.NotFound("Folder %q not found", name)
	}

	starred, err := s.loadStarred()
	if err != nil {
		return apperr.Internal(err)
	}
	if starred[name] == star {
		if star {
			return apperr.Conflict("Folder %q is already starred", name)
		}
		return apperr.Conflict("Folder %q is not starred", name)
	}

	if star {
		starred[name] = true
	} else {
		delete(starred, name)
	}
	if err := s.saveStarred(starred); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// DeleteFolder removes a folder and everything in it
func (s *Sandbox) DeleteFolder(name string) error {
	if name == AllFolder {
		return apperr.Forbidden("Folder %q cannot be deleted", AllFolder)
	}
	path, err := s.resolve(name)
	if err != nil {
		return err
	}

	unlock := s.lock()
	defer unlock()

	ok, err := s.isDir(path)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.NotFound("Folder %q not found", name)
	}

	if err := s.removeAll(path); err != nil {
		return apperr.Internalf("failed to delete folder %s: %w", name, err)
	}

	starred, err := s.loadStarred()
	if err != nil {
		return apperr.Internal(err)
	}
	if starred[name] {
		delete(starred, name)
		if err := s.saveStarred(starred); err != nil {
			return apperr.Internal(err)
		}
	}
	return nil
}

// removeAll deletes path, resetting permissions and retrying once on failure
func (s *Sandbox) removeAll(path string) error {
	fsys := s.store.fs
	if err := fsys.RemoveAll(path); err == nil {
		return nil
	}

	_ = fsys.Chmod(path, dirPerm)
	_ = afero.Walk(fsys, path, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if info.IsDir() {
			_ = fsys.Chmod(p, dirPerm)
		} else {
			_ = fsys.Chmod(p, filePerm)
		}
		return nil
	})

	return fsys.RemoveAll(path)
}

// realFolders lists folder names in lexical order, skipping anything that
// could not have been created through this package
func (s *Sandbox) realFolders() ([]string, error) {
	infos, err := afero.ReadDir(s.store.fs, s.root)
	if notExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internalf("failed to read sandbox: %w", err)
	}

	var names []string
	for _, fi := range infos {
		if !fi.IsDir() || fi.Name() == AllFolder || policy.ValidateName(fi.Name()) != nil {
			continue
		}
		names = append(names, fi.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *Sandbox) loadFolder(name string) (*models.Folder, error) {
	path := filepath.Join(s.root, name)

	fi, err := s.store.fs.Stat(path)
	if err != nil {
		return nil, apperr.Internalf("failed to stat folder %s: %w", name, err)
	}

	shots, err := s.screenshots(name)
	if err != nil {
		return nil, err
	}

	return &models.Folder{
		Name:        name,
		DisplayName: name,
		Path:        "/folder/" + name,
		Created:     fi.ModTime(),
		Modified:    fi.ModTime(),
		Screenshots: shots,
	}, nil
}

func (s *Sandbox) screenshots(folder string) ([]models.Screenshot, error) {
	infos, err := afero.ReadDir(s.store.fs, filepath.Join(s.root, folder))
	if err != nil {
		return nil, apperr.Internalf("failed to read folder %s: %w", folder, err)
	}

	shots := []models.Screenshot{}
	for _, fi := range infos {
		if !fi.Mode().IsRegular() || policy.ValidateName(fi.Name()) != nil {
			continue
		}
		shots = append(shots, models.Screenshot{
			Name:     fi.Name(),
			Folder:   folder,
			Path:     s.imagePath(folder, fi.Name()),
			Created:  fi.ModTime(),
			Modified: fi.ModTime(),
			Size:     fi.Size(),
		})
	}
	sortScreenshots(shots)
	return shots, nil
}

// sortScreenshots orders newest first
func sortScreenshots(shots []models.Screenshot) {
	sort.SliceStable(shots, func(i, j int) bool {
		if !shots[i].Created.Equal(shots[j].Created) {
			return shots[i].Created.After(shots[j].Created)
		}
		if shots[i].Folder != shots[j].Folder {
			return shots[i].Folder < shots[j].Folder
		}
		return shots[i].Name < shots[j].Name
	})
}
