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

// Package client enrolls users and recovers their keys from face images, storing only
// public helper data.
package client

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/biomask/biomask/biometric"
	"github.com/biomask/biomask/config"
	"github.com/biomask/biomask/constants"
	"github.com/biomask/biomask/fuzzy"
	"github.com/biomask/biomask/protector"
	"github.com/biomask/biomask/signer"
	"github.com/biomask/biomask/store"
	glog "github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// ErrInvalidSignature is returned when a stored record fails signature verification.
var ErrInvalidSignature = errors.New("helper data signature is invalid")

// errSampleRecovered stops the remaining samples once one has recovered the key.
var errSampleRecovered = errors.New("sample recovered the key")

// EnrollResult describes a completed enrollment.
type EnrollResult struct {
	Secret       fuzzy.Secret
	Helper       fuzzy.HelperData
	EnrollmentID string
	Signature    string
	Sealed       bool
}

// BiomaskClient enrolls face images and recovers keys from them.
type BiomaskClient struct {
	cfg           config.Config
	generator     *fuzzy.Generator
	reconstructor *fuzzy.Reconstructor
	protector     *protector.Protector
	metrics       *metrics
	now           func() time.Time

	// Collaborators. Initialized via initializeCollaborators.
	initOnce  sync.Once
	initErr   error
	extractor biometric.Extractor
	store     store.HelperStore
	signer    signer.Signer
	pubKeyPEM []byte
	verifyKey *rsa.PublicKey
	conn      *grpc.ClientConn

	passphrase    string
	passphraseSet bool

	// Fakes for testing purposes.
	fakeExtractor biometric.Extractor
	fakeStore     store.HelperStore
	fakeSigner    signer.Signer
}

// NewBiomaskClient returns a client for cfg. Metrics are registered with reg unless it is nil.
func NewBiomaskClient(cfg config.Config, reg prometheus.Registerer) (*BiomaskClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	generator, err := fuzzy.NewGenerator(cfg.Fuzzy)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %v", err)
	}
	reconstructor, err := fuzzy.NewReconstructor(cfg.Fuzzy)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconstructor: %v", err)
	}
	p, err := protector.New(cfg.KDF)
	if err != nil {
		return nil, fmt.Errorf("failed to create protector: %v", err)
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %v", err)
	}

	return &BiomaskClient{
		cfg:           cfg,
		generator:     generator,
		reconstructor: reconstructor,
		protector:     p,
		metrics:       m,
		now:           time.Now,
	}, nil
}

// setFakeExtractor allows a fake embedding extractor to be configured for testing purposes.
func (c *BiomaskClient) setFakeExtractor(fake biometric.Extractor) {
	c.fakeExtractor = fake
}

// setFakeStore allows a fake helper data store to be configured for testing purposes.
func (c *BiomaskClient) setFakeStore(fake store.HelperStore) {
	c.fakeStore = fake
}

// setFakeSigner allows a fake signer to be configured for testing purposes.
func (c *BiomaskClient) setFakeSigner(fake signer.Signer) {
	c.fakeSigner = fake
}

// SetPassphrase sets the passphrase sealing helper data, overriding the configured
// environment variable.
func (c *BiomaskClient) SetPassphrase(passphrase string) {
	c.passphrase = passphrase
	c.passphraseSet = true
}

func (c *BiomaskClient) sealingPassphrase() (string, error) {
	if c.passphraseSet {
		return c.passphrase, nil
	}
	p, ok := os.LookupEnv(c.cfg.Client.PassphraseEnv)
	if !ok {
		return "", fmt.Errorf("no passphrase set in environment variable %v", c.cfg.Client.PassphraseEnv)
	}
	return p, nil
}

// initializeCollaborators sets up the extractor, store and signer from configuration,
// unless fakes were configured. It runs once.
func (c *BiomaskClient) initializeCollaborators() error {
	c.initOnce.Do(func() {
		c.initErr = c.initialize()
	})
	return c.initErr
}

func (c *BiomaskClient) initialize() error {
	cc := c.cfg.Client

	if cc.PublicKeyFile != "" {
		pemText, err := os.ReadFile(cc.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("failed to read public key file: %v", err)
		}
		key, err := signer.ParsePublicKey(pemText)
		if err != nil {
			return err
		}
		c.pubKeyPEM = pemText
		c.verifyKey = key
	}

	switch {
	case c.fakeSigner != nil:
		c.signer = c.fakeSigner
	case cc.PrivateKeyFile != "":
		s, err := signer.LoadRSASigner(cc.PrivateKeyFile)
		if err != nil {
			return err
		}
		c.signer = s
	default:
		glog.Warningf("No private key configured, helper data will carry a fake signature")
		c.signer = signer.FakeSigner{}
	}

	switch {
	case c.fakeStore != nil:
		c.store = c.fakeStore
	case cc.StoreDir != "":
		s, err := store.NewFileStore(cc.StoreDir)
		if err != nil {
			return err
		}
		c.store = s
	default:
		return fmt.Errorf("no helper data store configured")
	}

	switch {
	case c.fakeExtractor != nil:
		c.extractor = c.fakeExtractor
	case cc.StaticEmbeddings != "":
		s, err := biometric.LoadStaticExtractor(cc.StaticEmbeddings)
		if err != nil {
			return err
		}
		c.extractor = s
	case cc.EmbeddingAddr != "":
		e, conn, err := biometric.Dial(cc.EmbeddingAddr, c.cfg.Fuzzy.EmbeddingDim)
		if err != nil {
			return err
		}
		c.extractor = e
		c.conn = conn
	default:
		return fmt.Errorf("no embedding extractor configured")
	}

	return nil
}

// Close releases the connection to the embedding service, if any.
func (c *BiomaskClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// GenerateKey derives a key from image and stores the helper data needed to recover it
// under nickname.
func (c *BiomaskClient) GenerateKey(ctx context.Context, image []byte, nickname string) (result *EnrollResult, err error) {
	defer func() {
		c.metrics.enrollments.WithLabelValues(resultLabel(err)).Inc()
	}()

	if err := store.ValidateNickname(nickname); err != nil {
		return nil, err
	}
	if err := c.initializeCollaborators(); err != nil {
		return nil, err
	}

	embedding, err := c.extractor.ExtractEmbedding(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("failed to extract embedding: %w", err)
	}

	secret, helper, err := c.generator.Generate(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	payload, err := helper.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize helper data: %v", err)
	}

	sealed := c.cfg.Client.SealHelperData
	if sealed {
		passphrase, err := c.sealingPassphrase()
		if err != nil {
			return nil, err
		}
		enc, err := c.protector.Seal(passphrase, helper)
		if err != nil {
			return nil, err
		}
		if payload, err = enc.Marshal(); err != nil {
			return nil, fmt.Errorf("failed to serialize sealed helper data: %v", err)
		}
	}

	signature, err := c.signer.SignString(string(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to sign helper data: %v", err)
	}

	meta := store.Metadata{
		Signature:    signature,
		EnrollmentID: uuid.NewString(),
		Sealed:       sealed,
		CreatedAt:    c.now().UTC(),
	}
	if c.pubKeyPEM != nil {
		meta.PubKeyHash = signer.PublicKeyHash(c.pubKeyPEM)
	}

	if err := c.store.StoreHelperData(ctx, nickname, payload, meta); err != nil {
		return nil, fmt.Errorf("failed to store helper data: %w", err)
	}
	glog.Infof("Enrolled %v with enrollment ID %v (sealed: %v)", nickname, meta.EnrollmentID, sealed)

	return &EnrollResult{
		Secret:       secret,
		Helper:       helper,
		EnrollmentID: meta.EnrollmentID,
		Signature:    signature,
		Sealed:       sealed,
	}, nil
}

// fetchHelperData reads, verifies and if needed unseals the helper data for nickname.
func (c *BiomaskClient) fetchHelperData(ctx context.Context, nickname string) (fuzzy.HelperData, error) {
	record, err := c.store.FetchHelperData(ctx, nickname)
	if err != nil {
		return fuzzy.HelperData{}, fmt.Errorf("failed to fetch helper data: %w", err)
	}

	if c.cfg.Client.VerifyRecords {
		if want := signer.PublicKeyHash(c.pubKeyPEM); record.Metadata.PubKeyHash != want {
			return fuzzy.HelperData{}, fmt.Errorf("%w: record was enrolled with public key %q, expected %q", ErrInvalidSignature, record.Metadata.PubKeyHash, want)
		}
		if err := signer.VerifyString(c.verifyKey, string(record.Payload), record.Metadata.Signature); err != nil {
			return fuzzy.HelperData{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	}

	if !record.Metadata.Sealed {
		helper, err := fuzzy.ParseHelperData(record.Payload)
		if err != nil {
			return fuzzy.HelperData{}, fmt.Errorf("%w: %v", fuzzy.ErrRecovery, err)
		}
		return helper, nil
	}

	enc, err := protector.ParseEncryptedHelperData(record.Payload)
	if err != nil {
		return fuzzy.HelperData{}, fmt.Errorf("%w: %v", protector.ErrDecryption, err)
	}
	passphrase, err := c.sealingPassphrase()
	if err != nil {
		return fuzzy.HelperData{}, err
	}
	return c.protector.Open(passphrase, enc)
}

// recoverSample reconstructs the key from a single image.
func (c *BiomaskClient) recoverSample(ctx context.Context, image []byte, helper fuzzy.HelperData) (fuzzy.Secret, error) {
	embedding, err := c.extractor.ExtractEmbedding(ctx, image)
	if err != nil {
		return fuzzy.Secret{}, fmt.Errorf("failed to extract embedding: %w", err)
	}
	return c.reconstructor.Reconstruct(embedding, helper)
}

// RestoreKey recovers the key enrolled under nickname from one or more images. Samples
// are tried concurrently and the first one that recovers the key wins. If none does, the
// error of the earliest sample is returned.
func (c *BiomaskClient) RestoreKey(ctx context.Context, images [][]byte, nickname string) (secret fuzzy.Secret, err error) {
	defer func() {
		c.metrics.recoveries.WithLabelValues(resultLabel(err)).Inc()
	}()

	if len(images) == 0 {
		return fuzzy.Secret{}, fmt.Errorf("no images given")
	}
	if err := c.initializeCollaborators(); err != nil {
		return fuzzy.Secret{}, err
	}

	helper, err := c.fetchHelperData(ctx, nickname)
	if err != nil {
		return fuzzy.Secret{}, err
	}

	var (
		mu    sync.Mutex
		found bool
		errs  = make([]error, len(images))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.MaxConcurrentSamples)
	for i, image := range images {
		g.Go(func() error {
			if gctx.Err() != nil {
				errs[i] = gctx.Err()
				return nil
			}
			s, err := c.recoverSample(gctx, image, helper)
			if err != nil {
				glog.Warningf("Sample %d did not recover the key for %v: %v", i, nickname, err)
				errs[i] = err
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if !found {
				found = true
				secret = s
			}
			return errSampleRecovered
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, errSampleRecovered) {
		return fuzzy.Secret{}, err
	}

	if found {
		glog.Infof("Recovered the key for %v", nickname)
		return secret, nil
	}
	if err := ctx.Err(); err != nil {
		return fuzzy.Secret{}, err
	}
	return fuzzy.Secret{}, fmt.Errorf("no sample recovered the key for %v: %w", nickname, errs[0])
}
