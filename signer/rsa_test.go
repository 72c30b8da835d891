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

package signer

import (
	"crypto/rsa"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := GenerateKeyPair(2048)
		if err != nil {
			t.Fatalf("GenerateKeyPair() returned error: %v", err)
		}
		testKey = key
	})
	if testKey == nil {
		t.Fatal("no test key available")
	}
	return testKey
}

func TestSignAndVerifyString(t *testing.T) {
	key := newTestKey(t)
	s := NewRSASigner(key)
	message := `{"rs_symbols":16,"helper_data":[1,2,3]}`

	sig, err := s.SignString(message)
	if err != nil {
		t.Fatalf("SignString() returned error: %v", err)
	}
	if raw, err := hex.DecodeString(sig); err != nil || len(raw) != 256 {
		t.Errorf("SignString() = %q, want 256 hex-encoded bytes", sig)
	}

	if err := VerifyString(s.Public(), message, sig); err != nil {
		t.Errorf("VerifyString() returned error: %v", err)
	}

	// PSS signatures are randomized; both must verify.
	sig2, err := s.SignString(message)
	if err != nil {
		t.Fatalf("SignString() returned error: %v", err)
	}
	if sig == sig2 {
		t.Errorf("SignString() returned identical signatures for two calls")
	}
	if err := VerifyString(s.Public(), message, sig2); err != nil {
		t.Errorf("VerifyString() returned error: %v", err)
	}
}

func TestVerifyStringRejects(t *testing.T) {
	key := newTestKey(t)
	s := NewRSASigner(key)
	message := "helper data"
	sig, err := s.SignString(message)
	if err != nil {
		t.Fatalf("SignString() returned error: %v", err)
	}
	other, err := GenerateKeyPair(1024)
	if err != nil {
		t.Fatalf("GenerateKeyPair() returned error: %v", err)
	}
	tampered := []byte(sig)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}

	for _, tc := range []struct {
		name      string
		pub       *rsa.PublicKey
		message   string
		signature string
	}{
		{name: "different message", pub: s.Public(), message: message + ".", signature: sig},
		{name: "tampered signature", pub: s.Public(), message: message, signature: string(tampered)},
		{name: "not hex", pub: s.Public(), message: message, signature: "zz"},
		{name: "fake signature", pub: s.Public(), message: message, signature: FakeSignature},
		{name: "wrong key", pub: &other.PublicKey, message: message, signature: sig},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if err := VerifyString(tc.pub, tc.message, tc.signature); err == nil {
				t.Error("VerifyString() returned nil error")
			}
		})
	}
}

func TestSignImage(t *testing.T) {
	s := NewRSASigner(newTestKey(t))

	sig, err := s.SignImage("QmHash", "uploader", "1700000000")
	if err != nil {
		t.Fatalf("SignImage() returned error: %v", err)
	}
	if err := VerifyString(s.Public(), "QmHashuploader1700000000", sig); err != nil {
		t.Errorf("VerifyString() of the concatenated fields returned error: %v", err)
	}
}

func TestFakeSigner(t *testing.T) {
	var s Signer = FakeSigner{}

	got, err := s.SignString("anything")
	if err != nil || got != FakeSignature {
		t.Errorf("SignString() = (%q, %v), want (%q, nil)", got, err, FakeSignature)
	}
	got, err = s.SignImage("a", "b", "c")
	if err != nil || got != FakeSignature {
		t.Errorf("SignImage() = (%q, %v), want (%q, nil)", got, err, FakeSignature)
	}
}

func TestPEMFiles(t *testing.T) {
	key := newTestKey(t)
	dir := t.TempDir()
	privPath := filepath.Join(dir, "private_key.pem")
	pubPath := filepath.Join(dir, "public_key.pem")

	if err := WritePEMFiles(key, privPath, pubPath); err != nil {
		t.Fatalf("WritePEMFiles() returned error: %v", err)
	}

	info, err := os.Stat(privPath)
	if err != nil {
		t.Fatalf("os.Stat() returned error: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("private key file has mode %v, want 0600", perm)
	}

	s, err := LoadRSASigner(privPath)
	if err != nil {
		t.Fatalf("LoadRSASigner() returned error: %v", err)
	}
	if !s.Public().Equal(&key.PublicKey) {
		t.Errorf("LoadRSASigner() loaded a different key")
	}

	pub, err := LoadPublicKey(pubPath)
	if err != nil {
		t.Fatalf("LoadPublicKey() returned error: %v", err)
	}
	if !pub.Equal(&key.PublicKey) {
		t.Errorf("LoadPublicKey() loaded a different key")
	}

	pubPEM, err := os.ReadFile(pubPath)
	if err != nil {
		t.Fatalf("os.ReadFile() returned error: %v", err)
	}
	if !strings.HasPrefix(string(pubPEM), "-----BEGIN PUBLIC KEY-----") {
		t.Errorf("public key file starts with %q, want a PKIX PEM block", strings.SplitN(string(pubPEM), "\n", 2)[0])
	}
}

func TestParseKeyErrors(t *testing.T) {
	key := newTestKey(t)
	privPEM, pubPEM, err := EncodePEM(key)
	if err != nil {
		t.Fatalf("EncodePEM() returned error: %v", err)
	}

	if _, err := ParsePublicKey(privPEM); err == nil {
		t.Error("ParsePublicKey() of a private key returned nil error")
	}
	if _, err := ParsePrivateKey(pubPEM); err == nil {
		t.Error("ParsePrivateKey() of a public key returned nil error")
	}
	if _, err := ParsePublicKey([]byte("not pem")); err == nil {
		t.Error("ParsePublicKey() of garbage returned nil error")
	}
	if _, err := LoadPublicKey(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Error("LoadPublicKey() of a missing file returned nil error")
	}
}

func TestPublicKeyHash(t *testing.T) {
	// SHA-256 of "abc".
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := PublicKeyHash([]byte("abc")); got != want {
		t.Errorf("PublicKeyHash() = %s, want %s", got, want)
	}
}

func TestFingerprint(t *testing.T) {
	key := newTestKey(t)
	_, pubPEM, err := EncodePEM(key)
	if err != nil {
		t.Fatalf("EncodePEM() returned error: %v", err)
	}
	pub, err := ParsePublicKey(pubPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey() returned error: %v", err)
	}

	want, err := Fingerprint(&key.PublicKey)
	if err != nil {
		t.Fatalf("Fingerprint() returned error: %v", err)
	}
	got, err := Fingerprint(pub)
	if err != nil {
		t.Fatalf("Fingerprint() returned error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Fingerprint() returned unexpected diff (-want +got):\n%s", diff)
	}
	if len(got) != 44 {
		t.Errorf("Fingerprint() = %q, want 44 base64 characters", got)
	}
}
