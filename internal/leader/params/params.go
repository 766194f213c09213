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

// Package params holds the Leader's immutable per-task configuration and
// the timestamp-bucketing arithmetic that is derived from it. Nothing in
// this package mutates after construction: it is parsed once from flags
// at startup and passed down as a read-only value from then on.
package params

import (
	"fmt"

	"ppmleader/internal/leader/wire"
)

// Role identifies which of the two aggregators a value belongs to.
type Role int

const (
	RoleLeader Role = 0
	RoleHelper Role = 1
)

// Index returns the role's index into a two-element, role-indexed slice.
func (r Role) Index() int { return int(r) }

func (r Role) String() string {
	if r == RoleLeader {
		return "leader"
	}
	return "helper"
}

// HpkeConfigSummary is the non-secret portion of an HPKE config, as
// advertised over /hpke_config and referenced by EncryptedInputShare.config_id.
type HpkeConfigSummary struct {
	ID        uint8
	PublicKey []byte
	KEM       uint16
	KDF       uint16
	AEAD      uint16
}

// Parameters is the Leader's immutable per-task configuration (§4.1).
type Parameters struct {
	TaskID wire.TaskID

	// AggregatorURLs is indexed by Role: [0]=leader base URL, [1]=helper base URL.
	AggregatorURLs [2]string

	CollectorConfig HpkeConfigSummary

	MinBatchDuration wire.Time
	MinBatchSize     uint64
	MaxBatchLifetime uint64
}

// New validates and constructs a Parameters value.
func New(
	taskID wire.TaskID,
	leaderURL, helperURL string,
	collectorConfig HpkeConfigSummary,
	minBatchDuration wire.Time,
	minBatchSize uint64,
	maxBatchLifetime uint64,
) (*Parameters, error) {
	if minBatchDuration == 0 {
		return nil, fmt.Errorf("params: min_batch_duration must be > 0")
	}
	return &Parameters{
		TaskID:           taskID,
		AggregatorURLs:   [2]string{leaderURL, helperURL},
		CollectorConfig:  collectorConfig,
		MinBatchDuration: minBatchDuration,
		MinBatchSize:     minBatchSize,
		MaxBatchLifetime: maxBatchLifetime,
	}, nil
}

func (p *Parameters) endpoint(role Role, path string) string {
	return p.AggregatorURLs[role.Index()] + path
}

// AggregateEndpoint is the Helper's batched verify-start endpoint.
func (p *Parameters) AggregateEndpoint() string { return p.endpoint(RoleHelper, "/aggregate") }

// OutputShareEndpoint is the Helper's per-collect output-share endpoint.
func (p *Parameters) OutputShareEndpoint() string { return p.endpoint(RoleHelper, "/output_share") }

// UploadEndpoint is this Leader's own report-intake endpoint.
func (p *Parameters) UploadEndpoint() string { return p.endpoint(RoleLeader, "/upload") }

// CollectEndpoint is this Leader's own collect endpoint.
func (p *Parameters) CollectEndpoint() string { return p.endpoint(RoleLeader, "/collect") }

// HpkeConfigEndpoint is this Leader's own config-advertisement endpoint.
func (p *Parameters) HpkeConfigEndpoint() string { return p.endpoint(RoleLeader, "/hpke_config") }

// ValidateBatchInterval implements §4.1: an interval is valid for a collect
// request iff its start and duration are both positive multiples of
// min_batch_duration and its duration is at least one bucket wide.
func (p *Parameters) ValidateBatchInterval(i wire.Interval) bool {
	d := p.MinBatchDuration
	if d == 0 {
		return false
	}
	if i.Start == 0 || i.Duration == 0 {
		return false
	}
	if i.Start%d != 0 || i.Duration%d != 0 {
		return false
	}
	return i.Duration >= d
}

// Bucket maps a report timestamp to the start of the aligned batch interval
// containing it (§4.2): bucket(t) = t - (t mod min_batch_duration).
func (p *Parameters) Bucket(t wire.Time) wire.Time {
	return t - (t % p.MinBatchDuration)
}

// BucketsIn enumerates, in order, the bucket keys covered by a validated
// Interval: {start, start+d, ..., start+(n-1)*d} where d=min_batch_duration
// and n=duration/d.
func (p *Parameters) BucketsIn(i wire.Interval) []wire.Time {
	d := p.MinBatchDuration
	n := uint64(i.Duration) / uint64(d)
	buckets := make([]wire.Time, 0, n)
	for k := uint64(0); k < n; k++ {
		buckets = append(buckets, i.Start+wire.Time(k)*d)
	}
	return buckets
}
