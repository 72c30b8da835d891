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
	"errors"

	glog "github.com/golang/glog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	serviceName            = "biomask.embedding.v1.EmbeddingService"
	extractEmbeddingMethod = "/" + serviceName + "/ExtractEmbedding"
)

// ExtractRequest carries an encoded face image.
type ExtractRequest struct {
	Image []byte `json:"image"`
}

// ExtractResponse carries the embedding of the face in the request image.
type ExtractResponse struct {
	Embedding []float64 `json:"embedding"`
}

// EmbeddingServiceServer is the server API of the embedding service.
type EmbeddingServiceServer interface {
	ExtractEmbedding(context.Context, *ExtractRequest) (*ExtractResponse, error)
}

func extractEmbeddingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ExtractRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EmbeddingServiceServer).ExtractEmbedding(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: extractEmbeddingMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EmbeddingServiceServer).ExtractEmbedding(ctx, req.(*ExtractRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var embeddingServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EmbeddingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ExtractEmbedding",
			Handler:    extractEmbeddingHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterEmbeddingServiceServer registers srv with s.
func RegisterEmbeddingServiceServer(s grpc.ServiceRegistrar, srv EmbeddingServiceServer) {
	s.RegisterService(&embeddingServiceDesc, srv)
}

// Service serves embeddings from an Extractor.
type Service struct {
	extractor Extractor
}

// NewService returns a Service backed by extractor.
func NewService(extractor Extractor) *Service {
	return &Service{extractor: extractor}
}

// ExtractEmbedding returns NotFound when the image has no face.
func (s *Service) ExtractEmbedding(ctx context.Context, req *ExtractRequest) (*ExtractResponse, error) {
	if len(req.Image) == 0 {
		return nil, status.Error(codes.InvalidArgument, "request has no image")
	}

	embedding, err := s.extractor.ExtractEmbedding(ctx, req.Image)
	switch {
	case errors.Is(err, ErrNoFace):
		glog.Infof("No face in image %v", ImageDigest(req.Image))
		return nil, status.Error(codes.NotFound, err.Error())
	case err != nil:
		glog.Warningf("Embedding extraction failed for image %v: %v", ImageDigest(req.Image), err)
		return nil, status.Errorf(codes.Internal, "embedding extraction failed: %v", err)
	}

	return &ExtractResponse{Embedding: embedding}, nil
}
