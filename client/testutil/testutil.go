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

// Package testutil contains utilities for unit tests.
package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/biomask/biomask/biometric"
	"github.com/biomask/biomask/fuzzy"
	"github.com/biomask/biomask/store"
)

var (
	// AliceImage is a test image enrolled for TestNickname.
	AliceImage = []byte("alice-frontal.png")
	// AliceNoisyImage is a later capture of the same face.
	AliceNoisyImage = []byte("alice-noisy.png")
	// AliceFarImage is a capture of the same face too noisy to recover the key from.
	AliceFarImage = []byte("alice-far.png")
	// MalloryImage is an image of a different face.
	MalloryImage = []byte("mallory.png")
	// NoFaceImage is an image without a face.
	NoFaceImage = []byte("landscape.png")

	// TestNickname is the nickname test enrollments are stored under.
	TestNickname = "alice"
	// TestPassphrase seals helper data in tests.
	TestPassphrase = "test passphrase"
)

// Embedding returns a deterministic pseudo-random embedding of length dim.
func Embedding(dim int, seed int64) fuzzy.EmbeddingVector {
	r := rand.New(rand.NewSource(seed))
	e := make(fuzzy.EmbeddingVector, dim)
	for i := range e {
		e[i] = r.NormFloat64() * 0.1
	}
	return e
}

// FlipBits returns a copy of e in which the coordinates at idx change sign, so their bits
// flip under a zero threshold.
func FlipBits(e fuzzy.EmbeddingVector, idx ...int) fuzzy.EmbeddingVector {
	out := append(fuzzy.EmbeddingVector(nil), e...)
	for _, i := range idx {
		if out[i] == 0 {
			out[i] = 1
		} else {
			out[i] = -out[i]
		}
	}
	return out
}

// FaceExtractor returns a static extractor holding embeddings of dimension dim for the
// test images. AliceNoisyImage differs from AliceImage in three bits and AliceFarImage in
// twelve bytes.
func FaceExtractor(dim int) *biometric.StaticExtractor {
	alice := Embedding(dim, 1)
	s := biometric.NewStaticExtractor()
	s.Add(AliceImage, alice)
	s.Add(AliceNoisyImage, FlipBits(alice, 3, 50, 101))
	far := make([]int, 0, 12)
	for b := 0; b < 12 && b*8 < dim; b++ {
		far = append(far, b*8)
	}
	s.Add(AliceFarImage, FlipBits(alice, far...))
	s.Add(MalloryImage, Embedding(dim, 2))
	return s
}

// FakeExtractor is a fake embedding extractor.
type FakeExtractor struct {
	ExtractEmbeddingFunc func(context.Context, []byte) (fuzzy.EmbeddingVector, error)
}

// ExtractEmbedding calls ExtractEmbeddingFunc, or reports that image has no face.
func (f *FakeExtractor) ExtractEmbedding(ctx context.Context, image []byte) (fuzzy.EmbeddingVector, error) {
	if f.ExtractEmbeddingFunc != nil {
		return f.ExtractEmbeddingFunc(ctx, image)
	}
	return nil, fmt.Errorf("%w: fake extractor has no embeddings", biometric.ErrNoFace)
}

// FakeStore is an in-memory helper data store whose operations can be overridden.
type FakeStore struct {
	*store.MemoryStore

	StoreHelperDataFunc func(context.Context, string, []byte, store.Metadata) error
	FetchHelperDataFunc func(context.Context, string) (*store.Record, error)

	mu     sync.Mutex
	stores int
}

// NewFakeStore returns an empty fake store.
func NewFakeStore() *FakeStore {
	return &FakeStore{MemoryStore: store.NewMemoryStore()}
}

// StoreHelperData calls StoreHelperDataFunc if set, otherwise stores in memory.
func (f *FakeStore) StoreHelperData(ctx context.Context, nickname string, payload []byte, meta store.Metadata) error {
	f.mu.Lock()
	f.stores++
	f.mu.Unlock()

	if f.StoreHelperDataFunc != nil {
		return f.StoreHelperDataFunc(ctx, nickname, payload, meta)
	}
	return f.MemoryStore.StoreHelperData(ctx, nickname, payload, meta)
}

// FetchHelperData calls FetchHelperDataFunc if set, otherwise reads from memory.
func (f *FakeStore) FetchHelperData(ctx context.Context, nickname string) (*store.Record, error) {
	if f.FetchHelperDataFunc != nil {
		return f.FetchHelperDataFunc(ctx, nickname)
	}
	return f.MemoryStore.FetchHelperData(ctx, nickname)
}

// Stores returns how many times StoreHelperData was called.
func (f *FakeStore) Stores() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stores
}
