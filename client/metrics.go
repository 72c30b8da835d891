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

package client

import (
	"errors"

	"github.com/biomask/biomask/biometric"
	"github.com/biomask/biomask/constants"
	"github.com/biomask/biomask/fuzzy"
	"github.com/biomask/biomask/protector"
	"github.com/biomask/biomask/store"
	"github.com/prometheus/client_golang/prometheus"
)

// Values of the result label.
const (
	resultSuccess           = "success"
	resultNoFace            = "no_face"
	resultDimensionMismatch = "dimension_mismatch"
	resultRecoveryFailure   = "recovery_failure"
	resultDecryptionFailure = "decryption_failure"
	resultInvalidSignature  = "invalid_signature"
	resultNotFound          = "not_found"
	resultError             = "error"
)

type metrics struct {
	enrollments *prometheus.CounterVec
	recoveries  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "enrollments_total",
			Help:      "Number of enrollments by result.",
		}, []string{"result"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "recoveries_total",
			Help:      "Number of key recoveries by result.",
		}, []string{"result"}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.enrollments, err = register(reg, m.enrollments); err != nil {
		return nil, err
	}
	if m.recoveries, err = register(reg, m.recoveries); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing a collector already registered under the same name.
func register(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

// resultLabel classifies err for the result label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultSuccess
	case errors.Is(err, biometric.ErrNoFace):
		return resultNoFace
	case errors.Is(err, fuzzy.ErrDimensionMismatch):
		return resultDimensionMismatch
	case errors.Is(err, fuzzy.ErrRecovery):
		return resultRecoveryFailure
	case errors.Is(err, protector.ErrDecryption):
		return resultDecryptionFailure
	case errors.Is(err, ErrInvalidSignature):
		return resultInvalidSignature
	case errors.Is(err, store.ErrNotFound):
		return resultNotFound
	default:
		return resultError
	}
}
