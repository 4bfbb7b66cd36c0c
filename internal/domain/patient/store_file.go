package patient

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
)

var _ Backend = (*FileStore)(nil)

// FileStore keeps the collection in a single JSON file. Save truncates and
// rewrites the file; a crash mid-write can leave it corrupt.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Name() string {
	return "file"
}

func (s *FileStore) Load(_ context.Context) (*Collection, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &StorageError{Op: "load", Err: errors.Join(ErrStoreMissing, err)}
		}
		return nil, &StorageError{Op: "load", Err: err}
	}

	c := NewCollection()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, &StorageError{Op: "parse", Err: err}
	}
	c.Derive()
	return c, nil
}

func (s *FileStore) Save(_ context.Context, c *Collection) error {
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return &StorageError{Op: "encode", Err: err}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}

func (s *FileStore) Init(ctx context.Context) (bool, error) {
	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, &StorageError{Op: "init", Err: err}
	}
	if err := s.Save(ctx, NewCollection()); err != nil {
		return false, err
	}
	return true, nil
}

// Ping reports whether the backing file exists and is a regular file.
func (s *FileStore) Ping(_ context.Context) error {
	info, err := os.Stat(s.path)
	if err != nil {
		return &StorageError{Op: "ping", Err: err}
	}
	if !info.Mode().IsRegular() {
		return &StorageError{Op: "ping", Err: errors.New(s.path + " is not a regular file")}
	}
	return nil
}
