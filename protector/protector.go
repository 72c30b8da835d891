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

// Package protector seals helper data under a passphrase so that it can be kept by an
// untrusted store.
//
// The key is derived with scrypt from the passphrase and a random salt. The serialized
// helper data is then sealed with AES-GCM. Salt, nonce and ciphertext are kept together
// in an EncryptedHelperData record.
package protector

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/biomask/biomask/config"
	"github.com/biomask/biomask/constants"
	"github.com/biomask/biomask/fuzzy"
	"github.com/google/tink/go/subtle/random"
	"golang.org/x/crypto/scrypt"
)

// ErrDecryption is returned by every failure to open sealed helper data, whether the
// passphrase is wrong or any field has been tampered with.
var ErrDecryption = errors.New("failed to decrypt helper data")

// EncryptedHelperData is a passphrase-sealed helper data record. Byte fields are base64
// encoded in JSON.
type EncryptedHelperData struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Marshal returns the JSON form of the record.
func (e *EncryptedHelperData) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEncryptedHelperData parses the JSON form of a sealed record. Field sizes are
// checked by Open.
func ParseEncryptedHelperData(data []byte) (*EncryptedHelperData, error) {
	e := &EncryptedHelperData{}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("failed to parse sealed helper data: %v", err)
	}
	if e.Salt == nil || e.Nonce == nil || e.Ciphertext == nil {
		return nil, fmt.Errorf("sealed helper data is missing salt, nonce or ciphertext")
	}
	return e, nil
}

// Protector seals and opens helper data. It holds only the immutable KDF parameters and
// is safe for concurrent use.
type Protector struct {
	kdf config.KDF
}

// New returns a Protector deriving keys with the given scrypt work factors.
func New(kdf config.KDF) (*Protector, error) {
	if err := kdf.Validate(); err != nil {
		return nil, err
	}
	return &Protector{kdf: kdf}, nil
}

func (p *Protector) deriveKey(passphrase string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), salt, p.kdf.N, p.kdf.R, p.kdf.P, constants.KeyBytes)
}

// SealBytes seals an arbitrary payload under passphrase with a fresh salt and nonce.
func (p *Protector) SealBytes(passphrase string, plaintext []byte) (*EncryptedHelperData, error) {
	salt := random.GetRandomBytes(constants.SaltBytes)

	key, err := p.deriveKey(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %v", err)
	}

	nonce, ciphertext, err := aeadSeal(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to seal helper data: %v", err)
	}

	return &EncryptedHelperData{Salt: salt, Nonce: nonce, Ciphertext: ciphertext}, nil
}

// OpenBytes verifies and decrypts a payload sealed with SealBytes.
func (p *Protector) OpenBytes(passphrase string, sealed *EncryptedHelperData) ([]byte, error) {
	if sealed == nil {
		return nil, fmt.Errorf("%w: no sealed data", ErrDecryption)
	}
	if len(sealed.Salt) != constants.SaltBytes {
		return nil, fmt.Errorf("%w: salt has length %d, expected %d", ErrDecryption, len(sealed.Salt), constants.SaltBytes)
	}
	if len(sealed.Nonce) != constants.NonceBytes {
		return nil, fmt.Errorf("%w: nonce has length %d, expected %d", ErrDecryption, len(sealed.Nonce), constants.NonceBytes)
	}

	key, err := p.deriveKey(passphrase, sealed.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to derive key: %v", ErrDecryption, err)
	}

	plaintext, err := aeadOpen(key, sealed.Nonce, sealed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return plaintext, nil
}

// Seal serializes helper and seals it under passphrase.
func (p *Protector) Seal(passphrase string, helper fuzzy.HelperData) (*EncryptedHelperData, error) {
	plaintext, err := helper.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize helper data: %v", err)
	}
	return p.SealBytes(passphrase, plaintext)
}

// Open recovers the helper data sealed by Seal.
func (p *Protector) Open(passphrase string, sealed *EncryptedHelperData) (fuzzy.HelperData, error) {
	plaintext, err := p.OpenBytes(passphrase, sealed)
	if err != nil {
		return fuzzy.HelperData{}, err
	}

	helper, err := fuzzy.ParseHelperData(plaintext)
	if err != nil {
		return fuzzy.HelperData{}, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return helper, nil
}
