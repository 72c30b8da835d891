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

// Reference embedding server binary, serving embeddings from a static table.
package main

import (
	"fmt"
	"net"

	"flag"
	"github.com/biomask/biomask/biometric"
	"github.com/biomask/biomask/constants"
	glog "github.com/golang/glog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

var (
	port  = flag.Int("port", constants.EmbeddingPort, "service port")
	table = flag.String("table", "", "Path to a YAML table of image digests and embeddings")
)

func main() {
	flag.Parse()

	if *table == "" {
		glog.Exitf("No embedding table given, use --table")
	}
	extractor, err := biometric.LoadStaticExtractor(*table)
	if err != nil {
		glog.Fatalf("failed to load embedding table: %v", err)
	}

	// Listen for connections on *port.
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		glog.Fatalf("failed to listen: %v", err)
		return
	}

	grpcServer := grpc.NewServer()

	reflection.Register(grpcServer)

	biometric.RegisterEmbeddingServiceServer(grpcServer, biometric.NewService(extractor))
	glog.Infof("Starting embedding server with %d images on port %v.", extractor.Len(), *port)
	if err := grpcServer.Serve(lis); err != nil {
		glog.Fatalf("server stopped: %v", err)
	}
}
