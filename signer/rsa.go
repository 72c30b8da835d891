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

// Utility functions for RSA-PSS signatures and key files.

package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
)

const (
	pemTypePublicKey    = "PUBLIC KEY"
	pemTypeRSAPrivate   = "RSA PRIVATE KEY"
	pemTypePKCS8Private = "PRIVATE KEY"
)

// RSASigner signs messages with RSA-PSS over SHA-256, using a salt as long as the digest.
type RSASigner struct {
	key *rsa.PrivateKey
}

// NewRSASigner returns a signer for key.
func NewRSASigner(key *rsa.PrivateKey) *RSASigner {
	return &RSASigner{key: key}
}

// LoadRSASigner reads a PEM-encoded RSA private key from path.
func LoadRSASigner(path string) (*RSASigner, error) {
	key, err := LoadPrivateKey(path)
	if err != nil {
		return nil, err
	}
	return NewRSASigner(key), nil
}

// Public returns the verification key.
func (s *RSASigner) Public() *rsa.PublicKey {
	return &s.key.PublicKey
}

// SignString returns the hex-encoded RSA-PSS signature of the UTF-8 bytes of message.
func (s *RSASigner) SignString(message string) (string, error) {
	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %v", err)
	}
	return hex.EncodeToString(sig), nil
}

// SignImage signs contentHash, uploadedBy and timestamp concatenated in that order.
func (s *RSASigner) SignImage(contentHash, uploadedBy, timestamp string) (string, error) {
	return s.SignString(imageMessage(contentHash, uploadedBy, timestamp))
}

// VerifyString checks a hex-encoded signature produced by RSASigner.SignString.
func VerifyString(pub *rsa.PublicKey, message, signature string) error {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %v", err)
	}
	digest := sha256.Sum256([]byte(message))
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, nil); err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	return nil
}

// ParsePublicKey decodes a PKIX PEM-encoded RSA public key.
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != pemTypePublicKey {
		return nil, fmt.Errorf("failed to decode PEM block containing public key")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key from PEM: %v", err)
	}
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key has type %T, expected RSA", pub)
	}
	return key, nil
}

// LoadPublicKey reads a PKIX PEM-encoded RSA public key from path.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open public key file: %w", err)
	}
	return ParsePublicKey(keyBytes)
}

// ParsePrivateKey decodes a PKCS #1 or PKCS #8 PEM-encoded RSA private key.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block containing private key")
	}

	switch block.Type {
	case pemTypeRSAPrivate:
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS1 private key from PEM: %v", err)
		}
		return key, nil
	case pemTypePKCS8Private:
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS8 private key from PEM: %v", err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key has type %T, expected RSA", parsed)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// LoadPrivateKey reads a PEM-encoded RSA private key from path.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open private key file: %w", err)
	}
	return ParsePrivateKey(keyBytes)
}

// PublicKeyHash returns the hex SHA-256 digest of the PEM text of a public key. Device
// records are keyed by this value.
func PublicKeyHash(pemText []byte) string {
	sha := sha256.Sum256(pemText)
	return hex.EncodeToString(sha[:])
}

// Fingerprint returns the base64 SHA-256 digest of the DER-encoded public key.
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	sha := sha256.Sum256(der)
	return base64.StdEncoding.EncodeToString(sha[:]), nil
}

// GenerateKeyPair returns a new RSA key of the given size.
func GenerateKeyPair(bits int) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %v", err)
	}
	return key, nil
}

// EncodePEM returns the PKCS #1 PEM encoding of key and the PKIX PEM encoding of its
// public half.
func EncodePEM(key *rsa.PrivateKey) (privPEM, pubPEM []byte, err error) {
	privPEM = pem.EncodeToMemory(&pem.Block{Type: pemTypeRSAPrivate, Bytes: x509.MarshalPKCS1PrivateKey(key)})

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: pemTypePublicKey, Bytes: der})
	return privPEM, pubPEM, nil
}

// WritePEMFiles writes key to privPath (mode 0600) and its public half to pubPath.
func WritePEMFiles(key *rsa.PrivateKey, privPath, pubPath string) error {
	privPEM, pubPEM, err := EncodePEM(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(privPath, privPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %v", err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0644); err != nil {
		return fmt.Errorf("failed to write public key: %v", err)
	}
	return nil
}
