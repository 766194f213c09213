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

package aggregate

import (
	"context"
	"fmt"

	"ppmleader/internal/leader/core"
	"ppmleader/internal/leader/telemetry"
	"ppmleader/internal/leader/vdaf"
	"ppmleader/internal/leader/wire"
)

// ErrOrderingViolation is returned when the Helper's sub_responses are not
// aligned with the drained leader_inputs (§4.8 step 3: the Helper must
// verify sub-requests in strictly increasing (time, nonce) order). The
// caller must treat this as fatal to the round: the accumulator store is
// left exactly as it was before the fold step.
var ErrOrderingViolation = fmt.Errorf("aggregate: helper sub_responses do not match leader_inputs ordering")

// Run drains l.Queue, exchanges a VerifyStartRequest with the Helper, and
// folds every successfully verified report into l.Store (§4.8). The
// caller must already hold l's lock. An empty Queue (nothing to drain) is
// a no-op, not an error.
//
// A Helper failure does NOT restore the drained entries to the queue:
// once reports leave the Leader's hands, re-sending them is treated as
// riskier than losing the round. This is a deliberate, flagged choice,
// not an oversight — an operator wanting different behavior should add
// an explicit retry knob rather than assume one.
func Run(ctx context.Context, l *core.Leader) error {
	entries := l.Queue.Drain()
	if len(entries) == 0 {
		return nil
	}

	req := wire.VerifyStartRequest{
		TaskID:      l.Params.TaskID,
		HelperState: l.HelperState,
		SubRequests: make([]wire.VerifyStartSubRequest, len(entries)),
	}
	for i, e := range entries {
		req.SubRequests[i] = wire.VerifyStartSubRequest{
			Timestamp:     e.Timestamp,
			Extensions:    e.Extensions,
			VerifyMessage: e.PrepareMessage,
			HelperShare:   e.HelperShare,
		}
	}

	resp, err := l.Helper.VerifyStart(ctx, req)
	if err != nil {
		telemetry.AggregateRoundsTotal.WithLabelValues("helper_error").Inc()
		l.Logger.Printf("aggregate round: helper rejected verify-start for %d reports: %v", len(entries), err)
		return err
	}
	l.HelperState = resp.HelperState

	if len(resp.SubResponses) != len(entries) {
		telemetry.AggregateRoundsTotal.WithLabelValues("protocol_error").Inc()
		l.Logger.Printf("aggregate round: helper returned %d sub_responses for %d sub_requests", len(resp.SubResponses), len(entries))
		return ErrOrderingViolation
	}
	for i, sr := range resp.SubResponses {
		if sr.Timestamp != entries[i].Timestamp {
			telemetry.AggregateRoundsTotal.WithLabelValues("protocol_error").Inc()
			l.Logger.Printf("aggregate round: ordering violation at index %d: want %s, got %s", i, entries[i].Timestamp, sr.Timestamp)
			return ErrOrderingViolation
		}
	}

	for i, e := range entries {
		helperMsg := resp.SubResponses[i].VerificationMessage
		combined, err := vdaf.PreparePreprocess(helperMsg, e.PrepareMessage)
		if err != nil {
			telemetry.ProofFailuresTotal.Inc()
			l.Logger.Printf("aggregate round: malformed verification message for %s: %v", e.Timestamp, err)
			continue
		}
		output, err := vdaf.PrepareFinish(e.PrepareState, combined)
		if err != nil {
			telemetry.ProofFailuresTotal.Inc()
			l.Logger.Printf("aggregate round: invalid proof for %s: %v", e.Timestamp, err)
			continue
		}
		bucket := l.Params.Bucket(e.Timestamp.Time)
		l.Store.Fold(bucket, output)
	}

	telemetry.AggregateRoundsTotal.WithLabelValues("ok").Inc()
	telemetry.AggregateRoundReports.Observe(float64(len(entries)))
	return nil
}
