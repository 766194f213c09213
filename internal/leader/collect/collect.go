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

// Package collect implements CollectHandler (§4.9): validate the batch
// interval, fetch the Helper's matching output share, fold the Leader's
// own buckets, charge privacy budget, and seal the result to the Collector.
package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ppmleader/internal/leader/core"
	"ppmleader/internal/leader/problem"
	"ppmleader/internal/leader/telemetry"
	"ppmleader/internal/leader/vdaf"
	"ppmleader/internal/leader/wire"
)

// Handle runs the six-step algorithm of §4.9. The caller must already
// hold l's lock.
func Handle(ctx context.Context, l *core.Leader, req wire.CollectRequest) (wire.CollectResponse, *problem.Error) {
	if !l.Params.ValidateBatchInterval(req.BatchInterval) {
		telemetry.CollectsTotal.WithLabelValues(string(problem.InvalidBatchInterval)).Inc()
		return wire.CollectResponse{}, problem.New(problem.InvalidBatchInterval, fmt.Sprintf("batch interval %s is not aligned to min_batch_duration", req.BatchInterval))
	}

	helperShare, err := l.Helper.OutputShare(ctx, wire.OutputShareRequest{
		TaskID:        req.TaskID,
		BatchInterval: req.BatchInterval,
		HelperState:   l.HelperState,
	})
	if err != nil {
		telemetry.CollectsTotal.WithLabelValues(string(problem.HelperError)).Inc()
		var pe *problem.Error
		if errors.As(err, &pe) {
			return wire.CollectResponse{}, pe
		}
		return wire.CollectResponse{}, problem.Wrap(problem.HelperError, err)
	}

	var merged vdaf.AggregateShare
	var total uint64
	for _, bucket := range l.Params.BucketsIn(req.BatchInterval) {
		share, contributions, err := l.Store.Charge(bucket)
		if err != nil {
			telemetry.PrivacyBudgetExceededTotal.Inc()
			telemetry.CollectsTotal.WithLabelValues(string(problem.PrivacyBudgetExceeded)).Inc()
			return wire.CollectResponse{}, problem.New(problem.PrivacyBudgetExceeded, fmt.Sprintf("bucket %d has reached its privacy budget", bucket))
		}
		if contributions == 0 {
			l.Logger.Printf("collect: bucket %d has no contributions yet, skipping", bucket)
			continue
		}
		merged = merged.Merge(share)
		total += contributions
	}

	// The budget increments performed above are not rolled back here, a
	// deliberate, flagged choice: it keeps an attacker from free-probing
	// bucket contents via repeated under-sized queries. Rolling back would
	// let an attacker retry the same interval indefinitely at no cost.
	if total < l.Params.MinBatchSize {
		telemetry.CollectsTotal.WithLabelValues(string(problem.InsufficientBatchSize)).Inc()
		return wire.CollectResponse{}, problem.New(problem.InsufficientBatchSize, fmt.Sprintf("aggregate has %d contributions, need at least %d", total, l.Params.MinBatchSize))
	}

	outputShare := wire.OutputShare{Sum: merged.Encode(), Contributions: total}
	plaintext, err := json.Marshal(outputShare)
	if err != nil {
		telemetry.CollectsTotal.WithLabelValues(string(problem.UnknownError)).Inc()
		return wire.CollectResponse{}, problem.Wrap(problem.UnknownError, fmt.Errorf("encode output share: %w", err))
	}

	leaderSealed, err := l.Hpke.SealOutputShare(plaintext, req.BatchInterval)
	if err != nil {
		telemetry.CollectsTotal.WithLabelValues(string(problem.UnknownError)).Inc()
		return wire.CollectResponse{}, problem.Wrap(problem.UnknownError, fmt.Errorf("seal leader output share: %w", err))
	}

	telemetry.CollectsTotal.WithLabelValues("ok").Inc()
	return wire.CollectResponse{EncryptedOutputShares: [2]wire.EncryptedOutputShare{leaderSealed, helperShare}}, nil
}
