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

// Package biometric turns face images into embeddings, either by calling an embedding
// service over gRPC or from a static table.
package biometric

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/biomask/biomask/fuzzy"
)

// ErrNoFace is returned when an image carries no usable face.
var ErrNoFace = errors.New("no face found in image")

// Extractor produces an embedding for a face image.
type Extractor interface {
	ExtractEmbedding(ctx context.Context, image []byte) (fuzzy.EmbeddingVector, error)
}

// ImageDigest returns the hex SHA-256 digest identifying an image.
func ImageDigest(image []byte) string {
	sha := sha256.Sum256(image)
	return hex.EncodeToString(sha[:])
}
