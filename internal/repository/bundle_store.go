package repository

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	domrepo "EnviroPulse/internal/domain/repository"
	"EnviroPulse/pkg/objectstore"
)

// BundleFileName is the artifact name of a metric's bundle.
func BundleFileName(metric string) string {
	return metric + "_bundle.json"
}

// FileBundleStore reads bundles from a local directory.
type FileBundleStore struct {
	dir string
}

var _ domrepo.BundleStore = (*FileBundleStore)(nil)

func NewFileBundleStore(dir string) *FileBundleStore {
	return &FileBundleStore{dir: dir}
}

func (s *FileBundleStore) Locate(metric string) string {
	return filepath.Join(s.dir, BundleFileName(metric))
}

func (s *FileBundleStore) Read(_ context.Context, p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return data, nil
}

// objectGetter is the part of objectstore.Client the store uses.
type objectGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// ObjectBundleStore reads bundles from an S3-compatible bucket. Paths are
// object keys under prefix.
type ObjectBundleStore struct {
	client objectGetter
	prefix string
}

var _ domrepo.BundleStore = (*ObjectBundleStore)(nil)

func NewObjectBundleStore(client *objectstore.Client, prefix string) *ObjectBundleStore {
	return &ObjectBundleStore{client: client, prefix: prefix}
}

func (s *ObjectBundleStore) Locate(metric string) string {
	return path.Join(s.prefix, BundleFileName(metric))
}

func (s *ObjectBundleStore) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, filepath.ToSlash(key))
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return data, nil
}
