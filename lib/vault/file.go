// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStorage persists values in a single JSON object file mapping key
// to value. The parent directory is created with mode 0700 and the file
// is written with mode 0600, since it holds access tokens.
type FileStorage struct {
	path string
}

// NewFileStorage creates a FileStorage backed by the given file path.
// The file is created on first Store; a missing file means every key
// is absent.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path returns the backing file path.
func (f *FileStorage) Path() string {
	return f.path
}

// Get returns the value for key from the backing file.
func (f *FileStorage) Get(key string) (string, bool, error) {
	values, err := f.read()
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

// Store writes the value for key, rewriting the whole file. The write
// is complete when Store returns.
func (f *FileStorage) Store(key, value string) error {
	values, err := f.read()
	if err != nil {
		return err
	}
	values[key] = value

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: marshaling %s: %w", f.path, err)
	}
	data = append(data, '\n')

	directory := filepath.Dir(f.path)
	if err := os.MkdirAll(directory, 0700); err != nil {
		return fmt.Errorf("vault: creating directory %s: %w", directory, err)
	}
	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("vault: writing %s: %w", f.path, err)
	}
	return nil
}

// read loads the key/value map from disk. A missing file yields an
// empty map, not an error.
func (f *FileStorage) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("vault: reading %s: %w", f.path, err)
	}

	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("vault: parsing %s: %w", f.path, err)
	}
	return values, nil
}
