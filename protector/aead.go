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

// AES-GCM sealing with a detached nonce.

package protector

import (
	"fmt"

	"github.com/biomask/biomask/constants"
	"github.com/google/tink/go/aead/subtle"
)

// aeadSeal encrypts plaintext under key with a fresh random nonce and returns the nonce and
// the ciphertext with its authentication tag appended.
func aeadSeal(key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	cipher, err := subtle.NewAESGCM(key)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create new cipher: %v", err)
	}

	// Tink prefixes the output with the IV it generated.
	out, err := cipher.Encrypt(plaintext, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to encrypt: %v", err)
	}
	if len(out) < constants.NonceBytes {
		return nil, nil, fmt.Errorf("cipher output has length %d, shorter than the nonce", len(out))
	}

	return out[:constants.NonceBytes], out[constants.NonceBytes:], nil
}

// aeadOpen verifies and decrypts ciphertext produced by aeadSeal.
func aeadOpen(key, nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != constants.NonceBytes {
		return nil, fmt.Errorf("nonce has length %d, expected %d", len(nonce), constants.NonceBytes)
	}

	cipher, err := subtle.NewAESGCM(key)
	if err != nil {
		return nil, fmt.Errorf("unable to create new cipher: %v", err)
	}

	in := make([]byte, 0, len(nonce)+len(ciphertext))
	in = append(in, nonce...)
	in = append(in, ciphertext...)

	plaintext, err := cipher.Decrypt(in, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt: %v", err)
	}
	return plaintext, nil
}
