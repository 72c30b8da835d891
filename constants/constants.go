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

// Package constants contains parameters shared between enrollment, recovery and the binaries.
//
// Changing any of the fuzzy extractor or KDF defaults invalidates helper data produced
// with the previous values.
package constants

// EmbeddingDim is the length of the face embedding vectors handed to the binarizer.
const EmbeddingDim = 128

// BitThreshold is the value an embedding coordinate must exceed to binarize to a 1 bit.
const BitThreshold = 0.0

// ParitySymbols is the number of Reed-Solomon parity symbols appended at enrollment.
const ParitySymbols = 16

// Scrypt work factors used to derive the helper data sealing key from a passphrase.
const (
	ScryptN = 1 << 14
	ScryptR = 8
	ScryptP = 1
)

// KeyBytes is the size of the AEAD key derived from a passphrase.
const KeyBytes = 32

// SaltBytes is the size of the random KDF salt stored with sealed helper data.
const SaltBytes = 16

// NonceBytes is the size of the AES-GCM nonce stored with sealed helper data.
const NonceBytes = 12

// DefaultConfigName is the name of the configuration file looked up in the user config directory.
const DefaultConfigName = "biomask.yaml"

// EmbeddingPort is the default port of the reference embedding service.
const EmbeddingPort = 9756

// PassphraseEnv is the default environment variable holding the helper data passphrase.
const PassphraseEnv = "BIOMASK_PASSPHRASE"

// MaxConcurrentSamples bounds how many recovery samples are processed at once.
const MaxConcurrentSamples = 4

// MetricsNamespace prefixes the client's Prometheus metrics.
const MetricsNamespace = "biomask"
