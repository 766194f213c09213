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

// Package vdaf is a thin, dependency-free adapter over a prio-style
// validity-proof state machine, bound to one scalar-sum variant. No
// concrete Go library implements this protocol, so this package
// hand-rolls the four-step preparation protocol and the mergeable
// aggregate share described by the adapter's contract. It is deliberately
// the one package in this tree that leans on nothing but the standard
// library.
//
// The arithmetic lives in a 61-bit Mersenne field, large enough that a
// 32-bit measurement and its additive shares never wrap.
package vdaf

import (
	"encoding/binary"
	"errors"

	"ppmleader/internal/leader/params"
)

// fieldPrime is 2^61 - 1, a Mersenne prime comfortably larger than any
// 32-bit measurement this adapter ever shares.
const fieldPrime uint64 = (1 << 61) - 1

// MaxMeasurement bounds an individual client contribution. It stands in
// for the range proof a real Prio3Sum64 circuit would enforce: the
// combined check share produced at prepare_finish must fall inside
// [0, MaxMeasurement] or the report is treated as an invalid proof.
const MaxMeasurement uint64 = 1<<32 - 1

var (
	ErrMalformedInputShare = errors.New("vdaf: malformed input share")
	ErrMalformedMessage    = errors.New("vdaf: malformed verification message")
	ErrInvalidProof        = errors.New("vdaf: invalid proof")
)

// Field64 is an element of the adapter's field, always reduced mod fieldPrime.
type Field64 uint64

// NewField64 reduces an arbitrary uint64 into the field.
func NewField64(v uint64) Field64 { return Field64(v % fieldPrime) }

// Add returns a+b mod fieldPrime.
func (a Field64) Add(b Field64) Field64 {
	return Field64((uint64(a) + uint64(b)) % fieldPrime)
}

// Bytes encodes the field element as 8 big-endian bytes.
func (a Field64) Bytes() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(a))
	return buf
}

// FieldFromBytes decodes an 8-byte big-endian field element.
func FieldFromBytes(b []byte) (Field64, error) {
	if len(b) != 8 {
		return 0, ErrMalformedMessage
	}
	return NewField64(binary.BigEndian.Uint64(b)), nil
}

// InputShare is one aggregator's additive share of a client's measurement,
// paired with a redundant checksum share. An honest client splits the same
// measurement value into both the value share and the check share; the two
// aggregators' check shares summing back to the declared measurement is
// this adapter's substitute for a real Prio3 validity circuit.
type InputShare struct {
	ValueShare Field64
	CheckShare Field64
}

// DecodeInputShare parses the 16-byte wire encoding of an InputShare:
// value_share (8B) || check_share (8B), both big-endian.
func DecodeInputShare(b []byte) (InputShare, error) {
	if len(b) != 16 {
		return InputShare{}, ErrMalformedInputShare
	}
	value, err := FieldFromBytes(b[0:8])
	if err != nil {
		return InputShare{}, ErrMalformedInputShare
	}
	check, err := FieldFromBytes(b[8:16])
	if err != nil {
		return InputShare{}, ErrMalformedInputShare
	}
	return InputShare{ValueShare: value, CheckShare: check}, nil
}

// PrepareState carries an in-flight preparation's role and shares between
// the adapter's four steps. The zero value is never valid; obtain one from
// PrepareInit.
type PrepareState struct {
	role       params.Role
	valueShare Field64
	checkShare Field64
	started    bool
}

// OutputShare is a party's contribution to an AggregateShare once its
// proof has finished successfully.
type OutputShare struct {
	Value Field64
}

// AggregateShare is the commutative, associative fold of OutputShares over
// a batch. Merge and aggregation order never affect the result (§8
// property 6).
type AggregateShare struct {
	Sum Field64
}

// Encode renders the aggregate share for CollectHandler's OutputShare.sum.
func (s AggregateShare) Encode() []byte { return s.Sum.Bytes() }

// DecodeAggregateShare parses the 8-byte wire encoding of an AggregateShare.
func DecodeAggregateShare(b []byte) (AggregateShare, error) {
	v, err := FieldFromBytes(b)
	if err != nil {
		return AggregateShare{}, err
	}
	return AggregateShare{Sum: v}, nil
}

// Merge folds other into s and returns the result. Merge is commutative and
// associative because field addition is.
func (s AggregateShare) Merge(other AggregateShare) AggregateShare {
	return AggregateShare{Sum: s.Sum.Add(other.Sum)}
}

// PrepareInit decodes a report's raw input-share bytes for one role. The
// aggregation parameter and associated data are accepted for interface
// symmetry with a real VDAF (where they seed joint randomness); this
// scalar-sum variant does not otherwise consume them.
func PrepareInit(role params.Role, aggParam []byte, associatedData []byte, inputShareBytes []byte) (PrepareState, error) {
	share, err := DecodeInputShare(inputShareBytes)
	if err != nil {
		return PrepareState{}, err
	}
	return PrepareState{role: role, valueShare: share.ValueShare, checkShare: share.CheckShare}, nil
}

// PrepareStart produces this party's first verifier message: its check
// share, to be exchanged with the peer and recombined in PreparePreprocess.
func PrepareStart(state PrepareState) (PrepareState, []byte) {
	state.started = true
	return state, state.checkShare.Bytes()
}

// PreparePreprocess combines the peer's and this party's verifier messages
// into the single combined message passed to PrepareFinish. Order does not
// matter: combination is field addition.
func PreparePreprocess(peerMsg, localMsg []byte) ([]byte, error) {
	peer, err := FieldFromBytes(peerMsg)
	if err != nil {
		return nil, err
	}
	local, err := FieldFromBytes(localMsg)
	if err != nil {
		return nil, err
	}
	return peer.Add(local).Bytes(), nil
}

// PrepareFinish validates the combined verifier message against the range
// an honest client's measurement must fall in, and on success yields this
// party's output share. A malformed or out-of-range combined message is a
// non-fatal "invalid proof" outcome: the caller discards the single report
// and continues (§4.8 step 4).
func PrepareFinish(state PrepareState, combinedMsg []byte) (OutputShare, error) {
	if !state.started {
		return OutputShare{}, errors.New("vdaf: prepare_finish called before prepare_start")
	}
	combined, err := FieldFromBytes(combinedMsg)
	if err != nil {
		return OutputShare{}, ErrMalformedMessage
	}
	if uint64(combined) > MaxMeasurement {
		return OutputShare{}, ErrInvalidProof
	}
	return OutputShare{Value: state.valueShare}, nil
}

// Aggregate folds a batch of output shares into a single AggregateShare.
// The aggregation parameter is accepted for interface symmetry; this
// variant does not branch on it.
func Aggregate(aggParam []byte, shares []OutputShare) AggregateShare {
	var total AggregateShare
	for _, s := range shares {
		total = total.Merge(AggregateShare{Sum: s.Value})
	}
	return total
}
