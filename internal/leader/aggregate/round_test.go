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
	"io"
	"log"
	"testing"

	"ppmleader/internal/leader/core"
	"ppmleader/internal/leader/params"
	"ppmleader/internal/leader/vdaf"
	"ppmleader/internal/leader/wire"
)

// fakeHelper implements core.HelperClient entirely in-memory, standing in
// for the real Helper so round behavior can be tested without a network.
type fakeHelper struct {
	verifyResp  wire.VerifyResponse
	verifyErr   error
	outputShare wire.EncryptedOutputShare
	outputErr   error
}

func (f *fakeHelper) VerifyStart(ctx context.Context, req wire.VerifyStartRequest) (wire.VerifyResponse, error) {
	return f.verifyResp, f.verifyErr
}

func (f *fakeHelper) OutputShare(ctx context.Context, req wire.OutputShareRequest) (wire.EncryptedOutputShare, error) {
	return f.outputShare, f.outputErr
}

// entryAt builds a PendingEntry whose leader/helper check-share split
// sums within vdaf.MaxMeasurement, so its proof finishes successfully
// when paired with helperCheckMsg.
func entryAt(t *testing.T, time wire.Time, nonce uint64, value, leaderCheck, helperCheckMsg uint64) (core.PendingEntry, []byte) {
	t.Helper()
	share := append(vdaf.NewField64(value).Bytes(), vdaf.NewField64(leaderCheck).Bytes()...)
	state, err := vdaf.PrepareInit(params.RoleLeader, nil, []byte("ad"), share)
	if err != nil {
		t.Fatalf("prepare_init: %v", err)
	}
	state, msg := vdaf.PrepareStart(state)
	entry := core.PendingEntry{
		Timestamp:      wire.Timestamp{Time: time, Nonce: nonce},
		PrepareState:   state,
		PrepareMessage: msg,
	}
	return entry, vdaf.NewField64(helperCheckMsg).Bytes()
}

func newTestLeader(t *testing.T, helper core.HelperClient) *core.Leader {
	t.Helper()
	p, err := params.New(wire.TaskID{1}, "http://leader.example", "http://helper.example", params.HpkeConfigSummary{}, 100, 2, 1)
	if err != nil {
		t.Fatalf("params.New: %v", err)
	}
	return &core.Leader{
		Params: p,
		Queue:  core.NewPendingQueue(),
		Store:  core.NewAccumulatorStore(p.MaxBatchLifetime),
		Helper: helper,
		Logger: log.New(io.Discard, "", 0),
	}
}

func TestRun_HappyPath(t *testing.T) {
	leader := newTestLeader(t, nil)
	e1, helperMsg1 := entryAt(t, 1050, 0, 10, 5, 3)
	e2, helperMsg2 := entryAt(t, 1099, 0, 20, 1, 1)
	leader.Queue.Enqueue(e1)
	leader.Queue.Enqueue(e2)

	leader.Helper = &fakeHelper{
		verifyResp: wire.VerifyResponse{
			HelperState: []byte("next-state"),
			SubResponses: []wire.VerifySubResponse{
				{Timestamp: wire.Timestamp{Time: 1050, Nonce: 0}, VerificationMessage: helperMsg1},
				{Timestamp: wire.Timestamp{Time: 1099, Nonce: 0}, VerificationMessage: helperMsg2},
			},
		},
	}

	if err := Run(context.Background(), leader); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if leader.Queue.Len() != 0 {
		t.Errorf("queue should be drained, has %d entries", leader.Queue.Len())
	}
	if string(leader.HelperState) != "next-state" {
		t.Errorf("HelperState = %q, want %q", leader.HelperState, "next-state")
	}
	acc, ok := leader.Store.Get(1000)
	if !ok {
		t.Fatal("bucket 1000 should have a contribution")
	}
	if acc.Contributions != 2 {
		t.Errorf("Contributions = %d, want 2", acc.Contributions)
	}
	if uint64(acc.Accumulated.Sum) != 30 {
		t.Errorf("Accumulated.Sum = %d, want 30", uint64(acc.Accumulated.Sum))
	}
}

func TestRun_InvalidProofIsDroppedNotFatal(t *testing.T) {
	leader := newTestLeader(t, nil)
	e1, helperMsg1 := entryAt(t, 1010, 0, 10, 5, 3)
	// e2's helper check share pushes the combined total past MaxMeasurement.
	e2, _ := entryAt(t, 1020, 0, 20, 1, 1)
	badHelperMsg2 := vdaf.NewField64(vdaf.MaxMeasurement).Bytes()
	e3, helperMsg3 := entryAt(t, 1030, 0, 30, 2, 2)

	leader.Queue.Enqueue(e1)
	leader.Queue.Enqueue(e2)
	leader.Queue.Enqueue(e3)

	leader.Helper = &fakeHelper{
		verifyResp: wire.VerifyResponse{
			SubResponses: []wire.VerifySubResponse{
				{Timestamp: wire.Timestamp{Time: 1010, Nonce: 0}, VerificationMessage: helperMsg1},
				{Timestamp: wire.Timestamp{Time: 1020, Nonce: 0}, VerificationMessage: badHelperMsg2},
				{Timestamp: wire.Timestamp{Time: 1030, Nonce: 0}, VerificationMessage: helperMsg3},
			},
		},
	}

	if err := Run(context.Background(), leader); err != nil {
		t.Fatalf("Run: %v", err)
	}
	acc, ok := leader.Store.Get(1000)
	if !ok {
		t.Fatal("bucket 1000 should have contributions")
	}
	if acc.Contributions != 2 {
		t.Errorf("Contributions = %d, want 2 (middle report dropped)", acc.Contributions)
	}
}

func TestRun_OrderingViolationAbortsWithoutFolding(t *testing.T) {
	leader := newTestLeader(t, nil)
	e1, helperMsg1 := entryAt(t, 1010, 0, 10, 5, 3)
	e2, helperMsg2 := entryAt(t, 1020, 0, 20, 1, 1)
	leader.Queue.Enqueue(e1)
	leader.Queue.Enqueue(e2)

	// Sub-responses arrive permuted relative to the sorted leader_inputs.
	leader.Helper = &fakeHelper{
		verifyResp: wire.VerifyResponse{
			SubResponses: []wire.VerifySubResponse{
				{Timestamp: wire.Timestamp{Time: 1020, Nonce: 0}, VerificationMessage: helperMsg2},
				{Timestamp: wire.Timestamp{Time: 1010, Nonce: 0}, VerificationMessage: helperMsg1},
			},
		},
	}

	err := Run(context.Background(), leader)
	if err != ErrOrderingViolation {
		t.Fatalf("Run = %v, want ErrOrderingViolation", err)
	}
	if _, ok := leader.Store.Get(1000); ok {
		t.Error("store should be unchanged after an ordering violation")
	}
}

func TestRun_EmptyQueueIsNoOp(t *testing.T) {
	leader := newTestLeader(t, &fakeHelper{})
	if err := Run(context.Background(), leader); err != nil {
		t.Fatalf("Run on empty queue: %v", err)
	}
}

func TestRun_HelperFailureDoesNotRestoreQueue(t *testing.T) {
	leader := newTestLeader(t, nil)
	e1, _ := entryAt(t, 1010, 0, 10, 5, 3)
	leader.Queue.Enqueue(e1)
	leader.Helper = &fakeHelper{verifyErr: errExampleHelperFailure}

	err := Run(context.Background(), leader)
	if err == nil {
		t.Fatal("Run should propagate the helper failure")
	}
	if leader.Queue.Len() != 0 {
		t.Errorf("queue should stay drained after a helper failure (§9 open question), has %d entries", leader.Queue.Len())
	}
}

var errExampleHelperFailure = &testError{"helper unreachable"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
