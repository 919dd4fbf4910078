package store

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// New builds a disk-backed Store rooted at basePath. The directory is
// created if it doesn't already exist.
func New(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("store: base path required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, &StorageError{Op: "resolve base path", Err: err}
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, &StorageError{Op: "create base path", Err: err}
	}
	return &fsStore{basePath: abs}, nil
}

// fsStore lays artifacts out at <basePath>/<path>, mirroring the request
// path directly onto the filesystem.
type fsStore struct {
	basePath string
}

func (s *fsStore) Find(path string) (*Result, error) {
	filePath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, ErrNotFound
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, ErrNotFound
	}

	return &Result{
		Entry: Entry{
			Path:      path,
			FilePath:  filePath,
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		},
		Reader: f,
	}, nil
}

func (s *fsStore) Publish(path string, tempFilePath string, lastModified time.Time) (*Entry, error) {
	filePath, err := s.resolve(path)
	if err != nil {
		os.Remove(tempFilePath)
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		os.Remove(tempFilePath)
		return nil, &StorageError{Op: "create parent directory", Err: err}
	}

	if err := publishInto(tempFilePath, filePath); err != nil {
		os.Remove(tempFilePath)
		return nil, &StorageError{Op: "publish", Err: err}
	}

	return s.finishPublish(path, filePath, lastModified)
}

func (s *fsStore) PublishBytes(path string, data []byte, lastModified time.Time) (*Entry, error) {
	filePath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, &StorageError{Op: "create parent directory", Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".artifact-*")
	if err != nil {
		return nil, &StorageError{Op: "create temp file", Err: err}
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, &StorageError{Op: "write temp file", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, &StorageError{Op: "close temp file", Err: err}
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		return nil, &StorageError{Op: "rename temp file", Err: err}
	}

	return s.finishPublish(path, filePath, lastModified)
}

func (s *fsStore) Remove(path string) error {
	filePath, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StorageError{Op: "remove", Err: err}
	}
	return nil
}

func (s *fsStore) finishPublish(path, filePath string, lastModified time.Time) (*Entry, error) {
	modTime := lastModified.Round(time.Second)
	if modTime.IsZero() {
		modTime = time.Now().UTC().Round(time.Second)
	}
	if err := os.Chtimes(filePath, modTime, modTime); err != nil {
		return nil, &StorageError{Op: "set mtime", Err: err}
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, &StorageError{Op: "stat published file", Err: err}
	}

	return &Entry{
		Path:      path,
		FilePath:  filePath,
		SizeBytes: info.Size(),
		ModTime:   modTime,
	}, nil
}

// resolve maps a canonical path onto an absolute file path under
// basePath, rejecting anything that would escape it (defense in depth on
// top of store.Clean, which the caller is expected to have already run).
func (s *fsStore) resolve(path string) (string, error) {
	clean, err := Clean(path)
	if err != nil {
		return "", err
	}
	if clean == "" {
		return "", ErrInvalidPath
	}

	filePath := filepath.Join(s.basePath, filepath.FromSlash(clean))
	if !isWithin(s.basePath, filePath) {
		return "", ErrInvalidPath
	}
	return filePath, nil
}

func isWithin(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.' &&
		(len(rel) == 2 || rel[2] == filepath.Separator)
}

// publishInto moves src to dst. It tries a same-filesystem rename first
// (the common case when the Race Coordinator and Store share a disk) and
// falls back to copy-then-remove across filesystem boundaries, since the
// Upstream Fetch writes its temp files in the OS temp directory rather
// than inside the store.
func publishInto(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if !isCrossDevice(err) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".artifact-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return err
	}
	os.Remove(src)
	return nil
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return isCrossDeviceErrno(linkErr.Err)
	}
	return false
}

// isCrossDeviceErrno reports whether err is the platform's cross-device
// link error (EXDEV on Unix). Compared by string since the syscall
// package's exact error type differs across GOOS.
func isCrossDeviceErrno(err error) bool {
	if runtime.GOOS == "windows" {
		return false
	}
	return err != nil && err.Error() == "invalid cross-device link"
}
