package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileStore keeps content-addressed uploads below Root and exposes them at
// PublicPrefix.
type FileStore struct {
	Root         string
	PublicPrefix string
}

// StoredFile describes a file written by FileStore.
type StoredFile struct {
	Path    string
	URL     string
	Created bool
}

// NewFileStore returns a store rooted at root.
func NewFileStore(root, publicPrefix string) *FileStore {
	return &FileStore{Root: root, PublicPrefix: strings.TrimRight(publicPrefix, "/")}
}

// SaveJPEG writes data as dir/<sha256>.jpg. Identical content maps to the
// same file, which is then left untouched.
func (s *FileStore) SaveJPEG(dir string, data []byte) (*StoredFile, error) {
	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:]) + ".jpg"
	abs := filepath.Join(s.Root, dir, name)
	out := &StoredFile{Path: abs, URL: path.Join(s.PublicPrefix, dir, name)}

	if _, err := os.Stat(abs); err == nil {
		return out, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if err := writeBytesToFile(abs, data); err != nil {
		return nil, err
	}
	out.Created = true
	return out, nil
}

// Remove deletes a file created by SaveJPEG.
func (s *FileStore) Remove(f *StoredFile) {
	if f != nil && f.Created {
		_ = os.Remove(f.Path)
	}
}

func writeBytesToFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
