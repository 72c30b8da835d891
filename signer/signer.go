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

// Package signer attaches authenticity proofs to helper data submissions.
package signer

// FakeSignature is the signature returned by FakeSigner.
const FakeSignature = "fake_hash"

// Signer produces detached signatures over strings.
type Signer interface {
	// SignString returns a hex-encoded signature over message.
	SignString(message string) (string, error)
	// SignImage signs the concatenation of an uploaded object's content hash, its
	// uploader identity and the upload timestamp.
	SignImage(contentHash, uploadedBy, timestamp string) (string, error)
}

// FakeSigner returns FakeSignature for every message.
type FakeSigner struct{}

// SignString returns FakeSignature.
func (FakeSigner) SignString(string) (string, error) {
	return FakeSignature, nil
}

// SignImage returns FakeSignature.
func (FakeSigner) SignImage(string, string, string) (string, error) {
	return FakeSignature, nil
}

// imageMessage is the string signed for an uploaded image.
func imageMessage(contentHash, uploadedBy, timestamp string) string {
	return contentHash + uploadedBy + timestamp
}
