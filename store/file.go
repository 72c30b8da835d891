// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const recordExt = ".json"

// FileStore keeps one JSON file per nickname in a directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a store in dir, creating the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("no store directory given")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %v", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(nickname string) string {
	return filepath.Join(f.dir, nickname+recordExt)
}

// StoreHelperData writes the record to a temporary file and renames it into place, so a
// concurrent fetch sees either the old or the new record.
func (f *FileStore) StoreHelperData(ctx context.Context, nickname string, payload []byte, meta Metadata) error {
	if err := ValidateNickname(nickname); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(Record{Nickname: nickname, Payload: payload, Metadata: meta}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize record: %v", err)
	}

	tmp, err := os.CreateTemp(f.dir, "."+nickname+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary record file: %v", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write record: %v", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync record: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close record file: %v", err)
	}

	if err := os.Rename(tmp.Name(), f.path(nickname)); err != nil {
		return fmt.Errorf("failed to store record: %v", err)
	}
	return nil
}

// FetchHelperData reads the record stored under nickname.
func (f *FileStore) FetchHelperData(ctx context.Context, nickname string) (*Record, error) {
	if err := ValidateNickname(nickname); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path(nickname))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: nickname %q", ErrNotFound, nickname)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %v", err)
	}

	r := &Record{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to parse record for %q: %v", nickname, err)
	}
	if r.Nickname != nickname {
		return nil, fmt.Errorf("record file for %q holds nickname %q", nickname, r.Nickname)
	}
	return r, nil
}
