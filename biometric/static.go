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

package biometric

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/biomask/biomask/fuzzy"
	"sigs.k8s.io/yaml"
)

// StaticExtractor looks embeddings up by the SHA-256 digest of the image bytes. Images
// not in the table have no face.
type StaticExtractor struct {
	mu         sync.RWMutex
	embeddings map[string]fuzzy.EmbeddingVector
}

// NewStaticExtractor returns an empty table.
func NewStaticExtractor() *StaticExtractor {
	return &StaticExtractor{embeddings: make(map[string]fuzzy.EmbeddingVector)}
}

// Add maps image to embedding.
func (s *StaticExtractor) Add(image []byte, embedding fuzzy.EmbeddingVector) {
	s.AddDigest(ImageDigest(image), embedding)
}

// AddDigest maps the image with the given hex SHA-256 digest to embedding.
func (s *StaticExtractor) AddDigest(digest string, embedding fuzzy.EmbeddingVector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[strings.ToLower(digest)] = append(fuzzy.EmbeddingVector(nil), embedding...)
}

// Len returns the number of images in the table.
func (s *StaticExtractor) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.embeddings)
}

// ExtractEmbedding returns a copy of the embedding registered for image.
func (s *StaticExtractor) ExtractEmbedding(_ context.Context, image []byte) (fuzzy.EmbeddingVector, error) {
	digest := ImageDigest(image)

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.embeddings[digest]
	if !ok {
		return nil, fmt.Errorf("%w: image %v is not in the table", ErrNoFace, digest)
	}
	return append(fuzzy.EmbeddingVector(nil), e...), nil
}

// staticEntry identifies an image either by digest or by a file whose digest is computed.
type staticEntry struct {
	SHA256    string    `json:"sha256,omitempty"`
	File      string    `json:"file,omitempty"`
	Embedding []float64 `json:"embedding"`
}

type staticTable struct {
	Embeddings []staticEntry `json:"embeddings"`
}

// ParseStaticTable reads a YAML table of embeddings. Relative file entries are resolved
// against baseDir.
func ParseStaticTable(yamlBytes []byte, baseDir string) (*StaticExtractor, error) {
	var table staticTable
	if err := yaml.UnmarshalStrict(yamlBytes, &table); err != nil {
		return nil, fmt.Errorf("failed to parse embedding table: %v", err)
	}

	s := NewStaticExtractor()
	for i, entry := range table.Embeddings {
		if len(entry.Embedding) == 0 {
			return nil, fmt.Errorf("embedding table entry %d has no embedding", i)
		}
		switch {
		case entry.SHA256 != "" && entry.File != "":
			return nil, fmt.Errorf("embedding table entry %d sets both sha256 and file", i)
		case entry.SHA256 != "":
			if len(entry.SHA256) != 64 {
				return nil, fmt.Errorf("embedding table entry %d has malformed digest %q", i, entry.SHA256)
			}
			s.AddDigest(entry.SHA256, entry.Embedding)
		case entry.File != "":
			path := entry.File
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			image, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read image for embedding table entry %d: %v", i, err)
			}
			s.Add(image, entry.Embedding)
		default:
			return nil, fmt.Errorf("embedding table entry %d has neither sha256 nor file", i)
		}
	}
	return s, nil
}

// LoadStaticExtractor reads the YAML table at path.
func LoadStaticExtractor(path string) (*StaticExtractor, error) {
	yamlBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding table: %v", err)
	}
	return ParseStaticTable(yamlBytes, filepath.Dir(path))
}
