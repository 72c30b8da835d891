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

	"github.com/biomask/biomask/fuzzy"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// GRPCExtractor calls a remote embedding service.
type GRPCExtractor struct {
	conn grpc.ClientConnInterface
	dim  int
}

// NewGRPCExtractor returns an extractor using conn. Embeddings whose length differs from
// dim are rejected; a dim of zero disables the check.
func NewGRPCExtractor(conn grpc.ClientConnInterface, dim int) *GRPCExtractor {
	return &GRPCExtractor{conn: conn, dim: dim}
}

// Dial connects to the embedding service at addr without transport security. The caller
// closes the returned connection.
func Dial(addr string, dim int) (*GRPCExtractor, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to embedding service at %v: %v", addr, err)
	}
	return NewGRPCExtractor(conn, dim), conn, nil
}

// ExtractEmbedding sends image to the service. A NotFound status is returned as ErrNoFace.
func (g *GRPCExtractor) ExtractEmbedding(ctx context.Context, image []byte) (fuzzy.EmbeddingVector, error) {
	req := &ExtractRequest{Image: image}
	resp := &ExtractResponse{}
	if err := g.conn.Invoke(ctx, extractEmbeddingMethod, req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %v", ErrNoFace, status.Convert(err).Message())
		}
		return nil, fmt.Errorf("failed to extract embedding: %w", err)
	}

	if g.dim > 0 && len(resp.Embedding) != g.dim {
		return nil, fmt.Errorf("%w: service returned %d values, want %d", fuzzy.ErrDimensionMismatch, len(resp.Embedding), g.dim)
	}
	return resp.Embedding, nil
}
