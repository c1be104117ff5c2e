// Package blob stores binary objects produced by the workflow: captured
// signature images and the final declaration artifact.
//
// The workflow engine only depends on the Store interface; the filesystem
// implementation below is the default. Object keys are
// "<envelopeID>/<filename>" and the returned reference is the key, which the
// HTTP layer serves under /files/.
package blob

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/google/uuid"
)

// Store persists opaque objects and returns a stable reference for each.
type Store interface {
	// Put writes data under the envelope's namespace and returns the object reference.
	Put(ctx context.Context, envelopeID uuid.UUID, filename string, data []byte) (string, error)

	// Get reads an object by the reference returned from Put.
	Get(ctx context.Context, ref string) ([]byte, error)
}

// FSStore stores objects under a base directory on the local filesystem.
// File access is scoped to the base directory via os.Root so a crafted
// reference cannot escape it.
type FSStore struct {
	baseDir string
}

func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", baseDir, err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

func (s *FSStore) Put(_ context.Context, envelopeID uuid.UUID, filename string, data []byte) (string, error) {
	if filename == "" || filename != path.Base(filename) {
		return "", fmt.Errorf("invalid object filename: %q", filename)
	}

	root, err := os.OpenRoot(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to open root directory %s: %w", s.baseDir, err)
	}
	defer root.Close()

	if err := root.Mkdir(envelopeID.String(), 0750); err != nil && !os.IsExist(err) {
		return "", fmt.Errorf("failed to create envelope directory: %w", err)
	}

	ref := path.Join(envelopeID.String(), filename)
	if err := root.WriteFile(ref, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}

	return ref, nil
}

func (s *FSStore) Get(_ context.Context, ref string) ([]byte, error) {
	root, err := os.OpenRoot(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open root directory %s: %w", s.baseDir, err)
	}
	defer root.Close()

	data, err := root.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", ref, err)
	}
	return data, nil
}

// BaseDir returns the directory the store writes under, for the HTTP file server.
func (s *FSStore) BaseDir() string {
	return s.baseDir
}
