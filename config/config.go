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

// Package config holds the immutable parameters shared by enrollment and recovery, and the
// YAML configuration file that carries them.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/biomask/biomask/constants"
	"sigs.k8s.io/yaml"
)

// maxCodewordBytes is the longest Reed-Solomon codeword over GF(2^8).
const maxCodewordBytes = 255

// Fuzzy configures the binarizer and the error-correcting code.
type Fuzzy struct {
	EmbeddingDim  int     `json:"embeddingDim,omitempty"`
	BitThreshold  float64 `json:"bitThreshold,omitempty"`
	ParitySymbols int     `json:"paritySymbols,omitempty"`
}

// DataBytes returns the number of bytes a binarized embedding packs into.
func (f Fuzzy) DataBytes() int {
	return (f.EmbeddingDim + 7) / 8
}

// CorrectableSymbols returns how many symbol errors the code can correct.
func (f Fuzzy) CorrectableSymbols() int {
	return f.ParitySymbols / 2
}

// Validate checks that a codeword built from these parameters fits in GF(2^8).
func (f Fuzzy) Validate() error {
	if f.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", f.EmbeddingDim)
	}
	if f.ParitySymbols <= 0 {
		return fmt.Errorf("parity symbol count must be positive, got %d", f.ParitySymbols)
	}
	if n := f.DataBytes() + f.ParitySymbols; n > maxCodewordBytes {
		return fmt.Errorf("codeword of %d data bytes and %d parity symbols exceeds %d bytes", f.DataBytes(), f.ParitySymbols, maxCodewordBytes)
	}
	if math.IsNaN(f.BitThreshold) || math.IsInf(f.BitThreshold, 0) {
		return fmt.Errorf("bit threshold must be finite, got %v", f.BitThreshold)
	}
	return nil
}

// KDF holds the scrypt work factors for passphrase key derivation.
type KDF struct {
	N int `json:"n,omitempty"`
	R int `json:"r,omitempty"`
	P int `json:"p,omitempty"`
}

// Validate checks the work factors against the limits scrypt enforces.
func (k KDF) Validate() error {
	if k.N <= 1 || k.N&(k.N-1) != 0 {
		return fmt.Errorf("scrypt N must be a power of two greater than 1, got %d", k.N)
	}
	if k.R <= 0 || k.P <= 0 {
		return fmt.Errorf("scrypt r and p must be positive, got r=%d p=%d", k.R, k.P)
	}
	if uint64(k.R)*uint64(k.P) >= 1<<30 {
		return fmt.Errorf("scrypt r*p must be below 2^30, got %d", k.R*k.P)
	}
	return nil
}

// Client configures the enrollment and recovery client and its collaborators.
type Client struct {
	// Directory of the file-backed helper data store.
	StoreDir string `json:"storeDir,omitempty"`
	// Address of the embedding extraction service.
	EmbeddingAddr string `json:"embeddingAddr,omitempty"`
	// Path to a YAML table of static embeddings, used instead of EmbeddingAddr when set.
	StaticEmbeddings string `json:"staticEmbeddings,omitempty"`
	// PKCS#1 PEM private key used to sign helper data submissions.
	PrivateKeyFile string `json:"privateKeyFile,omitempty"`
	// PKIX PEM public key registered for the device.
	PublicKeyFile string `json:"publicKeyFile,omitempty"`
	// Verify record signatures against PublicKeyFile before recovery.
	VerifyRecords bool `json:"verifyRecords,omitempty"`
	// Seal helper data with a passphrase before it is stored.
	SealHelperData bool `json:"sealHelperData,omitempty"`
	// Environment variable holding the passphrase.
	PassphraseEnv string `json:"passphraseEnv,omitempty"`
}

// Config is the full configuration. It must not be modified after enrollment has
// produced helper data with it.
type Config struct {
	Fuzzy  Fuzzy  `json:"fuzzy"`
	KDF    KDF    `json:"kdf"`
	Client Client `json:"client"`
}

// Default returns the configuration used when no config file is given.
func Default() Config {
	return Config{
		Fuzzy: Fuzzy{
			EmbeddingDim:  constants.EmbeddingDim,
			BitThreshold:  constants.BitThreshold,
			ParitySymbols: constants.ParitySymbols,
		},
		KDF: KDF{
			N: constants.ScryptN,
			R: constants.ScryptR,
			P: constants.ScryptP,
		},
		Client: Client{
			PassphraseEnv: constants.PassphraseEnv,
		},
	}
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Fuzzy.EmbeddingDim == 0 {
		c.Fuzzy.EmbeddingDim = d.Fuzzy.EmbeddingDim
	}
	if c.Fuzzy.ParitySymbols == 0 {
		c.Fuzzy.ParitySymbols = d.Fuzzy.ParitySymbols
	}
	if c.KDF.N == 0 {
		c.KDF.N = d.KDF.N
	}
	if c.KDF.R == 0 {
		c.KDF.R = d.KDF.R
	}
	if c.KDF.P == 0 {
		c.KDF.P = d.KDF.P
	}
	if c.Client.PassphraseEnv == "" {
		c.Client.PassphraseEnv = d.Client.PassphraseEnv
	}
}

// Validate checks every section of the configuration.
func (c Config) Validate() error {
	if err := c.Fuzzy.Validate(); err != nil {
		return fmt.Errorf("invalid fuzzy config: %v", err)
	}
	if err := c.KDF.Validate(); err != nil {
		return fmt.Errorf("invalid kdf config: %v", err)
	}
	if c.Client.VerifyRecords && c.Client.PublicKeyFile == "" {
		return fmt.Errorf("invalid client config: verifyRecords requires publicKeyFile")
	}
	return nil
}

// Parse reads a YAML configuration. Unset fields take their default values and unknown
// fields are rejected.
func Parse(yamlBytes []byte) (Config, error) {
	jsonBytes, err := yaml.YAMLToJSON(yamlBytes)
	if err != nil {
		return Config{}, fmt.Errorf("failed to convert config YAML to JSON: %v", err)
	}

	var cfg Config
	if len(bytes.TrimSpace(jsonBytes)) > 0 && !bytes.Equal(bytes.TrimSpace(jsonBytes), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(jsonBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("failed to unmarshal config: %v", err)
		}
	}
	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (Config, error) {
	yamlBytes, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(yamlBytes)
}
