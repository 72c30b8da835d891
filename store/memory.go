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
	"fmt"
	"sync"
)

// MemoryStore keeps records in memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// StoreHelperData stores a copy of payload under nickname.
func (m *MemoryStore) StoreHelperData(ctx context.Context, nickname string, payload []byte, meta Metadata) error {
	if err := ValidateNickname(nickname); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[nickname] = Record{
		Nickname: nickname,
		Payload:  append([]byte(nil), payload...),
		Metadata: meta,
	}
	return nil
}

// FetchHelperData returns a copy of the record stored under nickname.
func (m *MemoryStore) FetchHelperData(ctx context.Context, nickname string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[nickname]
	if !ok {
		return nil, fmt.Errorf("%w: nickname %q", ErrNotFound, nickname)
	}
	r.Payload = append([]byte(nil), r.Payload...)
	return &r, nil
}
