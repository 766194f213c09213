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

package core

import (
	"errors"

	"ppmleader/internal/leader/vdaf"
	"ppmleader/internal/leader/wire"
)

// ErrPrivacyBudgetExceeded is returned by Charge when a bucket has already
// been drawn max_batch_lifetime times.
var ErrPrivacyBudgetExceeded = errors.New("core: privacy budget exceeded")

// Accumulator is one bucket's running state (§3): a mergeable aggregate
// share, a verified-contribution count, and a privacy-budget counter.
// Accumulated is the running total; PrivacyBudget is the bounded count of
// times it has been disclosed via Charge.
type Accumulator struct {
	Accumulated   vdaf.AggregateShare
	Contributions uint64
	PrivacyBudget uint64
}

// AccumulatorStore maps an aligned bucket start to its Accumulator (§4.6).
// It is not safe for concurrent use on its own; the caller serializes
// access with the single per-request lock described in §5.
type AccumulatorStore struct {
	maxBatchLifetime uint64
	buckets          map[wire.Time]*Accumulator
}

// NewAccumulatorStore returns an empty store bounded by maxBatchLifetime.
func NewAccumulatorStore(maxBatchLifetime uint64) *AccumulatorStore {
	return &AccumulatorStore{maxBatchLifetime: maxBatchLifetime, buckets: make(map[wire.Time]*Accumulator)}
}

// Fold merges share into bucket's accumulated share, creating the bucket
// on first contribution (§4.6 fold).
func (s *AccumulatorStore) Fold(bucket wire.Time, share vdaf.OutputShare) {
	acc, ok := s.buckets[bucket]
	if !ok {
		s.buckets[bucket] = &Accumulator{
			Accumulated:   vdaf.AggregateShare{Sum: share.Value},
			Contributions: 1,
			PrivacyBudget: 0,
		}
		return
	}
	acc.Accumulated = acc.Accumulated.Merge(vdaf.AggregateShare{Sum: share.Value})
	acc.Contributions++
}

// Charge returns a snapshot of bucket's accumulated share and contribution
// count, and increments its privacy budget. It fails with
// ErrPrivacyBudgetExceeded iff the bucket's budget already equals
// max_batch_lifetime (§4.6 charge) — the increment is not performed in
// that case.
func (s *AccumulatorStore) Charge(bucket wire.Time) (vdaf.AggregateShare, uint64, error) {
	acc, ok := s.buckets[bucket]
	if !ok {
		return vdaf.AggregateShare{}, 0, nil
	}
	if acc.PrivacyBudget >= s.maxBatchLifetime {
		return vdaf.AggregateShare{}, 0, ErrPrivacyBudgetExceeded
	}
	acc.PrivacyBudget++
	return acc.Accumulated, acc.Contributions, nil
}

// Get returns bucket's Accumulator and whether it has ever received a
// contribution ("no contributions yet" is non-fatal to callers; §4.6 get).
func (s *AccumulatorStore) Get(bucket wire.Time) (Accumulator, bool) {
	acc, ok := s.buckets[bucket]
	if !ok {
		return Accumulator{}, false
	}
	return *acc, true
}

// Snapshot returns every populated bucket, for the optional periodic
// debug dump.
func (s *AccumulatorStore) Snapshot() map[wire.Time]Accumulator {
	out := make(map[wire.Time]Accumulator, len(s.buckets))
	for k, v := range s.buckets {
		out[k] = *v
	}
	return out
}
