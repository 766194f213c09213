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

package vdaf

import (
	"testing"

	"ppmleader/internal/leader/params"
)

// share builds the 16-byte wire encoding of an InputShare for one party.
func share(value, check uint64) []byte {
	return append(NewField64(value).Bytes(), NewField64(check).Bytes()...)
}

func TestPrepareRoundTrip_HonestClient(t *testing.T) {
	// An honest client splits measurement=42 as value shares 30+12 and,
	// independently, check shares 30+12 (the same split, by construction).
	leaderShare := share(30, 30)
	helperShare := share(12, 12)

	leaderState, err := PrepareInit(params.RoleLeader, nil, []byte("ad"), leaderShare)
	if err != nil {
		t.Fatalf("leader prepare_init: %v", err)
	}
	helperState, err := PrepareInit(params.RoleHelper, nil, []byte("ad"), helperShare)
	if err != nil {
		t.Fatalf("helper prepare_init: %v", err)
	}

	leaderState, leaderMsg := PrepareStart(leaderState)
	helperState, helperMsg := PrepareStart(helperState)

	combined, err := PreparePreprocess(helperMsg, leaderMsg)
	if err != nil {
		t.Fatalf("prepare_preprocess (leader side): %v", err)
	}
	combinedHelperSide, err := PreparePreprocess(leaderMsg, helperMsg)
	if err != nil {
		t.Fatalf("prepare_preprocess (helper side): %v", err)
	}
	if string(combined) != string(combinedHelperSide) {
		t.Fatalf("prepare_preprocess is not order-independent")
	}

	leaderOut, err := PrepareFinish(leaderState, combined)
	if err != nil {
		t.Fatalf("leader prepare_finish: %v", err)
	}
	helperOut, err := PrepareFinish(helperState, combinedHelperSide)
	if err != nil {
		t.Fatalf("helper prepare_finish: %v", err)
	}

	agg := Aggregate(nil, []OutputShare{leaderOut, helperOut})
	if uint64(agg.Sum) != 42 {
		t.Errorf("aggregated sum = %d, want 42", uint64(agg.Sum))
	}
}

func TestPrepareFinish_OutOfRangeIsInvalidProof(t *testing.T) {
	leaderShare := share(30, uint64(MaxMeasurement))
	state, err := PrepareInit(params.RoleLeader, nil, []byte("ad"), leaderShare)
	if err != nil {
		t.Fatalf("prepare_init: %v", err)
	}
	state, _ = PrepareStart(state)

	// A combined check share that overflows MaxMeasurement models a
	// malicious or buggy peer: this must be a non-fatal "invalid proof",
	// never a panic or a silently accepted report.
	over := NewField64(MaxMeasurement + 1).Bytes()
	_, err = PrepareFinish(state, over)
	if err != ErrInvalidProof {
		t.Errorf("PrepareFinish with out-of-range check = %v, want ErrInvalidProof", err)
	}
}

func TestPreparePreprocess_MalformedMessage(t *testing.T) {
	_, err := PreparePreprocess([]byte("short"), NewField64(1).Bytes())
	if err != ErrMalformedMessage {
		t.Errorf("PreparePreprocess with malformed message = %v, want ErrMalformedMessage", err)
	}
}

func TestDecodeInputShare_WrongLength(t *testing.T) {
	_, err := DecodeInputShare([]byte{1, 2, 3})
	if err != ErrMalformedInputShare {
		t.Errorf("DecodeInputShare(3 bytes) = %v, want ErrMalformedInputShare", err)
	}
}

func TestAggregateShare_MergeIsCommutativeAndAssociative(t *testing.T) {
	a := AggregateShare{Sum: NewField64(10)}
	b := AggregateShare{Sum: NewField64(20)}
	c := AggregateShare{Sum: NewField64(30)}

	leftFirst := a.Merge(b).Merge(c)
	rightFirst := a.Merge(b.Merge(c))
	swapped := b.Merge(a).Merge(c)

	if leftFirst != rightFirst || leftFirst != swapped {
		t.Errorf("merge is not commutative/associative: %+v, %+v, %+v", leftFirst, rightFirst, swapped)
	}
	if uint64(leftFirst.Sum) != 60 {
		t.Errorf("merged sum = %d, want 60", uint64(leftFirst.Sum))
	}
}

func TestFieldEncodeDecodeRoundTrip(t *testing.T) {
	f := NewField64(123456789)
	decoded, err := FieldFromBytes(f.Bytes())
	if err != nil {
		t.Fatalf("FieldFromBytes: %v", err)
	}
	if decoded != f {
		t.Errorf("round trip = %d, want %d", decoded, f)
	}
}
