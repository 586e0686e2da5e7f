package filestore

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/adamscao/shotserver/internal/apperr"
	"github.com/adamscao/shotserver/internal/models"
)

// Transfer operations for MoveOrCopy
const (
	OpMove = "move"
	OpCopy = "copy"
)

const maxCollisionSuffix = 10000

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DefaultFolder is the date-stamped folder uploads go to when none is given
func (s *Store) DefaultFolder() string {
	return s.now().Format("2006-01-02")
}

// Store writes an uploaded screenshot under a timestamp-based filename. An
// empty folder selects today's date folder, which is created when missing.
func (s *Sandbox) Store(folder string, r io.Reader) (*models.StoredFile, error) {
	if folder == "" {
		folder = s.store.DefaultFolder()
	}
	if folder == AllFolder {
		return nil, apperr.Forbidden("Cannot upload into folder %q", AllFolder)
	}
	dir, err := s.resolve(folder)
	if err != nil {
		return nil, err
	}

	limit := s.store.maxUpload
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, apperr.Validation("Failed to read upload: %v", err)
	}
	if int64(len(data)) > limit {
		return nil, apperr.Validation("File too large (max %d bytes)", limit)
	}
	if len(data) == 0 {
		return nil, apperr.Validation("Empty file")
	}

	ext, ok := imageExtensions[http.DetectContentType(data)]
	if !ok {
		return nil, apperr.Validation("Unsupported file type: only PNG, JPEG, GIF and WebP images are accepted")
	}

	unlock := s.lock()
	defer unlock()

	if err := s.store.fs.MkdirAll(dir, dirPerm); err != nil {
		return nil, apperr.Internalf("failed to create folder %s: %w", folder, err)
	}

	now := s.store.now()
	base := fmt.Sprintf("screenshot_%s_%06d%s", now.Format("20060102_150405"), now.Nanosecond()/1000, ext)
	name, err := s.uniqueName(dir, base)
	if err != nil {
		return nil, err
	}
	target, err := s.resolve(folder, name)
	if err != nil {
		return nil, err
	}

	if err := s.writeNew(target, bytes.NewReader(data), filePerm); err != nil {
		return nil, apperr.Internalf("failed to store screenshot: %w", err)
	}

	return &models.StoredFile{
		Path:     s.imagePath(folder, name),
		Folder:   folder,
		Filename: name,
	}, nil
}

// MoveOrCopy transfers a screenshot into another folder. A source of "all"
// is resolved to the single real folder holding filename. Name collisions at
// the target get a _1, _2, ... suffix.
func (s *Sandbox) MoveOrCopy(source, target, filename, op string) (*models.Screenshot, error) {
	if op != OpMove && op != OpCopy {
		return nil, apperr.Validation("Invalid operation %q: expected move or copy", op)
	}
	if target == AllFolder {
		return nil, apperr.Forbidden("Cannot move or copy into folder %q", AllFolder)
	}
	targetDir, err := s.resolve(target)
	if err != nil {
		return nil, err
	}
	if source != AllFolder {
		if _, err := s.resolve(source, filename); err != nil {
			return nil, err
		}
	} else if _, err := s.resolve(filename); err != nil {
		return nil, err
	}

	unlock := s.lock()
	defer unlock()

	ok, err := s.isDir(targetDir)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, apperr.NotFound("Target folder %q not found", target)
	}

	source, srcPath, err := s.locateIn(source, filename)
	if err != nil {
		return nil, err
	}
	if op == OpMove && source == target {
		return nil, apperr.Validation("Source and target folder are the same")
	}

	name, err := s.uniqueName(targetDir, filename)
	if err != nil {
		return nil, err
	}
	dstPath, err := s.resolve(target, name)
	if err != nil {
		return nil, err
	}

	if op == OpMove {
		err = s.store.fs.Rename(srcPath, dstPath)
	} else {
		err = s.copyFile(srcPath, dstPath)
	}
	if err != nil {
		return nil, apperr.Internalf("failed to %s %s/%s: %w", op, source, filename, err)
	}

	fi, err := s.store.fs.Stat(dstPath)
	if err != nil {
		return nil, apperr.Internalf("failed to stat %s: %w", dstPath, err)
	}

	return &models.Screenshot{
		Name:     name,
		Folder:   target,
		Path:     s.imagePath(target, name),
		Created:  fi.ModTime(),
		Modified: fi.ModTime(),
		Size:     fi.Size(),
	}, nil
}

// DeleteScreenshot removes one screenshot and returns the real folder it
// was removed from
func (s *Sandbox) DeleteScreenshot(folder, filename string) (string, error) {
	unlock := s.lock()
	defer unlock()

	folder, path, err := s.locateIn(folder, filename)
	if err != nil {
		return "", err
	}

	if err := s.store.fs.Remove(path); err != nil {
		// Reset permissions once and retry
		_ = s.store.fs.Chmod(filepath.Dir(path), dirPerm)
		_ = s.store.fs.Chmod(path, filePerm)
		if err := s.store.fs.Remove(path); err != nil {
			return "", apperr.Internalf("failed to delete %s/%s: %w", folder, filename, err)
		}
	}
	return folder, nil
}

// Open opens a screenshot for reading
func (s *Sandbox) Open(folder, filename string) (afero.File, os.FileInfo, error) {
	_, path, err := s.locateIn(folder, filename)
	if err != nil {
		return nil, nil, err
	}

	f, err := s.store.fs.Open(path)
	if err != nil {
		if notExist(err) {
			return nil, nil, apperr.NotFound("Screenshot not found")
		}
		return nil, nil, apperr.Internalf("failed to open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, apperr.Internalf("failed to stat %s: %w", path, err)
	}
	return f, fi, nil
}

// Usage returns the bytes and number of screenshots in the sandbox
func (s *Sandbox) Usage() (int64, int, error) {
	var size int64
	var count int

	if ok, err := s.isDir(s.root); err != nil || !ok {
		return 0, 0, err
	}

	err := afero.Walk(s.store.fs, s.root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			size += info.Size()
			count++
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compute usage for user %d: %w", s.userID, err)
	}
	return size, count, nil
}

// locateIn resolves (folder, filename) to an existing regular file. For the
// virtual "all" folder every real folder is scanned in lexical order and the
// filename must be present in exactly one of them.
func (s *Sandbox) locateIn(folder, filename string) (string, string, error) {
	if folder != AllFolder {
		path, err := s.resolve(folder, filename)
		if err != nil {
			return "", "", err
		}
		if !s.isRegular(path) {
			return "", "", apperr.NotFound("Screenshot %q not found in folder %q", filename, folder)
		}
		return folder, path, nil
	}

	if _, err := s.resolve(filename); err != nil {
		return "", "", err
	}
	names, err := s.realFolders()
	if err != nil {
		return "", "", err
	}

	var found []string
	for _, name := range names {
		path, err := s.resolve(name, filename)
		if err != nil {
			return "", "", err
		}
		if s.isRegular(path) {
			found = append(found, name)
		}
	}

	switch len(found) {
	case 0:
		return "", "", apperr.NotFound("Screenshot %q not found", filename)
	case 1:
		return found[0], filepath.Join(s.root, found[0], filename), nil
	default:
		return "", "", apperr.Conflict("Screenshot %q exists in several folders (%s); pass the real folder",
			filename, strings.Join(found, ", "))
	}
}

func (s *Sandbox) isRegular(path string) bool {
	fi, err := lstat(s.store.fs, path)
	return err == nil && fi.Mode().IsRegular()
}

// uniqueName returns filename, or the first free name with a numeric suffix
func (s *Sandbox) uniqueName(dir, filename string) (string, error) {
	if _, err := lstat(s.store.fs, filepath.Join(dir, filename)); notExist(err) {
		return filename, nil
	}

	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	for i := 1; i < maxCollisionSuffix; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := lstat(s.store.fs, filepath.Join(dir, candidate)); notExist(err) {
			return candidate, nil
		}
	}
	return "", apperr.Conflict("No free name for %q", filename)
}

// copyFile duplicates src preserving mode and modification time
func (s *Sandbox) copyFile(src, dst string) error {
	in, err := s.store.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	if err := s.writeNew(dst, in, fi.Mode().Perm()); err != nil {
		return err
	}
	return s.store.fs.Chtimes(dst, fi.ModTime(), fi.ModTime())
}

// writeNew creates dst exclusively and fills it from r
func (s *Sandbox) writeNew(dst string, r io.Reader, perm os.FileMode) error {
	out, err := s.store.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		_ = s.store.fs.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = s.store.fs.Remove(dst)
		return err
	}
	return nil
}
