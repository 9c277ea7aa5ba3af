package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// LocalStore keeps blobs on disk under root. The router serves root at
// publicPath.
type LocalStore struct {
	root       string
	publicPath string
}

func NewLocalStore(root, publicPath string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	if publicPath == "" {
		publicPath = "/uploads"
	}
	return &LocalStore{root: root, publicPath: publicPath}, nil
}

func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) PublicPath() string {
	return s.publicPath
}

func (s *LocalStore) filePath(key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error) {
	p, err := s.filePath(key)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Object{}, fmt.Errorf("creating blob dir: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("creating blob: %w", err)
	}
	tmp := f.Name()

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(tmp)
		return Object{}, fmt.Errorf("writing blob: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return Object{}, fmt.Errorf("writing blob: %w", err)
	}

	return Object{
		Key:         key,
		URL:         s.URL(key),
		Size:        n,
		ContentType: contentType,
	}, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	p, err := s.filePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *LocalStore) URL(key string) string {
	return path.Join(s.publicPath, key)
}
