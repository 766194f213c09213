// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hpke wraps github.com/cloudflare/circl/hpke into the two
// one-shot seal/open domains the protocol needs: the report-share path
// (client -> aggregator) and the output-share path (aggregator ->
// collector). Associated data for both domains lives in package wire;
// this package only owns key material, the HPKE info string, and the
// config-id bookkeeping.
package hpke

import (
	"crypto/rand"
	"errors"
	"fmt"

	circlhpke "github.com/cloudflare/circl/hpke"
	"github.com/cloudflare/circl/kem"

	"ppmleader/internal/leader/params"
	"ppmleader/internal/leader/wire"
)

// suite is fixed for the whole deployment: X25519 KEM, HKDF-SHA256, AES-128-GCM.
// A config id change (key rotation) never changes the suite, only the keys.
var suite = circlhpke.NewSuite(circlhpke.KEM_X25519_HKDF_SHA256, circlhpke.KDF_HKDF_SHA256, circlhpke.AEAD_AES128GCM)

// ErrConfigMismatch is returned when a report names a config id that is not
// the one currently advertised; it surfaces to a client as outdatedConfig.
var ErrConfigMismatch = errors.New("hpke: encrypted share references an unknown config id")

// Config is one aggregator's (or the collector's) HPKE key material.
// Private is nil for a peer's config held only to seal toward it.
type Config struct {
	ID      uint8
	Public  kem.PublicKey
	Private kem.PrivateKey
}

// GenerateConfig creates a fresh keypair under the fixed suite's KEM,
// labelled with the given config id. Used at startup and whenever an
// operator rotates the Leader's advertised config.
func GenerateConfig(id uint8) (*Config, error) {
	pub, priv, err := suite.KEM.Scheme().GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("hpke: generate keypair: %w", err)
	}
	return &Config{ID: id, Public: pub, Private: priv}, nil
}

// ParsePublicConfig builds a peer Config (no private key) from a
// marshaled public key, for a remote party's advertised HPKE config —
// the Collector's, or (from the standalone collector client's side) an
// aggregator's.
func ParsePublicConfig(id uint8, publicKeyBytes []byte) (*Config, error) {
	pub, err := suite.KEM.Scheme().UnmarshalBinaryPublicKey(publicKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("hpke: unmarshal public key: %w", err)
	}
	return &Config{ID: id, Public: pub}, nil
}

// ParsePrivateConfig builds a Config carrying both halves of a keypair
// from their marshaled forms — used by the standalone collector, which
// holds its own private key to open output shares sealed to it.
func ParsePrivateConfig(id uint8, publicKeyBytes, privateKeyBytes []byte) (*Config, error) {
	pub, err := suite.KEM.Scheme().UnmarshalBinaryPublicKey(publicKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("hpke: unmarshal public key: %w", err)
	}
	priv, err := suite.KEM.Scheme().UnmarshalBinaryPrivateKey(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("hpke: unmarshal private key: %w", err)
	}
	return &Config{ID: id, Public: pub, Private: priv}, nil
}

// Summary strips the private key for advertisement over /hpke_config.
func (c *Config) Summary() params.HpkeConfigSummary {
	pub, _ := c.Public.MarshalBinary()
	return params.HpkeConfigSummary{
		ID:        c.ID,
		PublicKey: pub,
		KEM:       uint16(circlhpke.KEM_X25519_HKDF_SHA256),
		KDF:       uint16(circlhpke.KDF_HKDF_SHA256),
		AEAD:      uint16(circlhpke.AEAD_AES128GCM),
	}
}

// domain names the HPKE info-string context each seal/open operation
// binds to, keeping the report path and the output-share path from ever
// being confused for one another even if associated data collided.
type domain string

const (
	domainReport      domain = "ppm-report-share"
	domainOutputShare domain = "ppm-output-share"
)

func info(taskID wire.TaskID, d domain, role params.Role) []byte {
	b := []byte(d)
	b = append(b, taskID[:]...)
	b = append(b, byte(role))
	return b
}

// Contexts holds one Leader instance's own HPKE config (for opening report
// shares addressed to it) and the Collector's public config (for sealing
// output shares). It is constructed once at startup and never mutated.
type Contexts struct {
	taskID    wire.TaskID
	own       *Config
	collector *Config
}

// New builds a Contexts for a single task. own must carry a private key;
// collector need only carry a public key.
func New(taskID wire.TaskID, own, collector *Config) *Contexts {
	return &Contexts{taskID: taskID, own: own, collector: collector}
}

// ConfigID returns the config id this Leader currently advertises.
func (c *Contexts) ConfigID() uint8 { return c.own.ID }

// Advertise returns the value served at GET /hpke_config.
func (c *Contexts) Advertise() params.HpkeConfigSummary { return c.own.Summary() }

// OpenReportShare opens the Leader's encrypted input share from a report,
// binding the open to the report's (time, nonce) associated data (§4.4
// report path). A config id mismatch is reported distinctly from a
// decryption failure so the caller can map it to outdatedConfig.
func (c *Contexts) OpenReportShare(share wire.EncryptedInputShare, ts wire.Timestamp) ([]byte, error) {
	if share.ConfigID != c.own.ID {
		return nil, ErrConfigMismatch
	}
	return open(c.own, c.taskID, domainReport, params.RoleLeader, share.Enc, share.Payload, ts.AssociatedData())
}

// SealOutputShare seals an encoded VDAF output share to the Collector,
// binding to the batch interval's associated data (§4.4 output-share path).
func (c *Contexts) SealOutputShare(plaintext []byte, interval wire.Interval) (wire.EncryptedOutputShare, error) {
	enc, ct, err := seal(c.collector, c.taskID, domainOutputShare, params.RoleLeader, plaintext, interval.AssociatedData())
	if err != nil {
		return wire.EncryptedOutputShare{}, err
	}
	return wire.EncryptedOutputShare{CollectorHpkeConfigID: c.collector.ID, Enc: enc, Payload: ct}, nil
}

// SealReportShare seals a plaintext input share addressed to role under
// recipientConfig. It exists for tests that stand in for a real client.
func SealReportShare(recipientConfig *Config, taskID wire.TaskID, role params.Role, plaintext []byte, ts wire.Timestamp) (wire.EncryptedInputShare, error) {
	enc, ct, err := seal(recipientConfig, taskID, domainReport, role, plaintext, ts.AssociatedData())
	if err != nil {
		return wire.EncryptedInputShare{}, err
	}
	return wire.EncryptedInputShare{ConfigID: recipientConfig.ID, Enc: enc, Payload: ct}, nil
}

// SealOutputShareAs seals a plaintext output share to collectorConfig on
// behalf of role. It exists for test fixtures and the Helper's own output
// share handler, which (like SealOutputShare) needs to seal toward the
// Collector without going through a Leader's Contexts.
func SealOutputShareAs(collectorConfig *Config, taskID wire.TaskID, role params.Role, plaintext []byte, interval wire.Interval) (wire.EncryptedOutputShare, error) {
	enc, ct, err := seal(collectorConfig, taskID, domainOutputShare, role, plaintext, interval.AssociatedData())
	if err != nil {
		return wire.EncryptedOutputShare{}, err
	}
	return wire.EncryptedOutputShare{CollectorHpkeConfigID: collectorConfig.ID, Enc: enc, Payload: ct}, nil
}

// OpenOutputShare opens a sealed output share under the collector's own
// config, used by the standalone collector client (cmd/collector).
func OpenOutputShare(collectorConfig *Config, taskID wire.TaskID, role params.Role, share wire.EncryptedOutputShare, interval wire.Interval) ([]byte, error) {
	if share.CollectorHpkeConfigID != collectorConfig.ID {
		return nil, ErrConfigMismatch
	}
	return open(collectorConfig, taskID, domainOutputShare, role, share.Enc, share.Payload, interval.AssociatedData())
}

func seal(recipient *Config, taskID wire.TaskID, d domain, role params.Role, plaintext, aad []byte) (enc, ciphertext []byte, err error) {
	sender, err := suite.NewSender(recipient.Public, info(taskID, d, role))
	if err != nil {
		return nil, nil, fmt.Errorf("hpke: new sender: %w", err)
	}
	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke: sender setup: %w", err)
	}
	ct, err := sealer.Seal(plaintext, aad)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke: seal: %w", err)
	}
	return enc, ct, nil
}

func open(own *Config, taskID wire.TaskID, d domain, role params.Role, enc, ciphertext, aad []byte) ([]byte, error) {
	receiver, err := suite.NewReceiver(own.Private, info(taskID, d, role))
	if err != nil {
		return nil, fmt.Errorf("hpke: new receiver: %w", err)
	}
	opener, err := receiver.Setup(enc)
	if err != nil {
		return nil, fmt.Errorf("hpke: receiver setup: %w", err)
	}
	pt, err := opener.Open(ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("hpke: open: %w", err)
	}
	return pt, nil
}
