package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/swexcamp/adventd/internal/idgen"
)

// FileStore is the file-per-record Store backend: one directory per entity
// type, one <id>.json file per record. The directory is created lazily on
// first write. Writes go through a temp file and rename so a record is never
// observable half-written.
type FileStore[T any] struct {
	dir   string
	newID func() string
}

func NewFileStore[T any](dir string) *FileStore[T] {
	return &FileStore[T]{dir: dir, newID: idgen.New}
}

func (s *FileStore[T]) Create(ctx context.Context, value T) (string, error) {
	id := s.newID()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", ioError("create "+s.dir, err)
	}
	path := s.path(id)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("create %s: %w", path, ErrDuplicateID)
	} else if !os.IsNotExist(err) {
		return "", ioError("stat "+path, err)
	}
	if err := s.write(path, value); err != nil {
		return "", err
	}
	return id, nil
}

func (s *FileStore[T]) Read(ctx context.Context, id string) (T, error) {
	var zero T
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return zero, fmt.Errorf("read %s: %w", id, ErrUnknownID)
		}
		return zero, ioError("read "+id, err)
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, serializationError("decode "+id, err)
	}
	return value, nil
}

func (s *FileStore[T]) ReadAll(ctx context.Context) ([]Record[T], error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ioError("list "+s.dir, err)
	}

	var out []Record[T]
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		value, err := s.Read(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, Record[T]{ID: id, Value: value})
	}
	return out, nil
}

func (s *FileStore[T]) Update(ctx context.Context, id string, value T) error {
	path := s.path(id)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("update %s: %w", id, ErrUnknownID)
		}
		return ioError("stat "+path, err)
	}
	return s.write(path, value)
}

func (s *FileStore[T]) Delete(ctx context.Context, id string) error {
	err := os.Remove(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", id, ErrUnknownID)
		}
		return ioError("delete "+id, err)
	}
	return nil
}

func (s *FileStore[T]) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore[T]) write(path string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return serializationError("encode "+path, err)
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return ioError("write "+path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return ioError("write "+path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return ioError("write "+path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return ioError("write "+path, err)
	}
	return nil
}
