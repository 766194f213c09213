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

// Package wire defines the JSON message schemas exchanged between the
// Leader, the Helper and the Collector. Field names here are
// contractual: they appear verbatim on the wire.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// TaskID identifies a measurement task.
type TaskID [32]byte

// String renders a TaskID as lowercase hex, used in problem documents.
func (t TaskID) String() string {
	return fmt.Sprintf("%x", [32]byte(t))
}

// Time is whole seconds since the Unix epoch.
type Time uint64

// Timestamp uniquely identifies a report within a task.
type Timestamp struct {
	Time  Time   `json:"time"`
	Nonce uint64 `json:"nonce"`
}

// String renders a Timestamp for logs.
func (t Timestamp) String() string {
	return fmt.Sprintf("time=%d nonce=%d", t.Time, t.Nonce)
}

// Less orders Timestamps by time ascending, nonce ascending as a tiebreak.
// This is the ordering the pending queue maintains and the Helper verifies.
func (t Timestamp) Less(other Timestamp) bool {
	if t.Time != other.Time {
		return t.Time < other.Time
	}
	return t.Nonce < other.Nonce
}

// AssociatedData returns the HPKE associated data bound to this report's
// input shares: time || nonce, big-endian, 16 bytes total. Per an explicit
// protocol invariant (see original design notes), extensions are excluded
// from this even though a future revision is expected to fold them in.
func (t Timestamp) AssociatedData() []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(t.Time))
	binary.BigEndian.PutUint64(buf[8:16], t.Nonce)
	return buf
}

// Interval is a half-open range [Start, Start+Duration).
type Interval struct {
	Start    Time `json:"start"`
	Duration Time `json:"duration"`
}

// String renders an Interval for logs and problem documents.
func (i Interval) String() string {
	return fmt.Sprintf("[%d, %d)", i.Start, uint64(i.Start)+uint64(i.Duration))
}

// AssociatedData returns the HPKE associated data for output-share sealing:
// batch_interval.start || batch_interval.duration, big-endian.
func (i Interval) AssociatedData() []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(i.Start))
	binary.BigEndian.PutUint64(buf[8:16], uint64(i.Duration))
	return buf
}

// ReportExtensionType enumerates the §3 extension kinds. It is a number
// internally but serializes as the string naming the variant, matching
// the wire contract clients and the Helper actually send.
type ReportExtensionType uint16

const (
	ExtensionAuthenticationInformation ReportExtensionType = 1
	ExtensionMaximumExtensionType      ReportExtensionType = 65535
)

func (t ReportExtensionType) name() (string, bool) {
	switch t {
	case ExtensionAuthenticationInformation:
		return "AuthenticationInformation", true
	case ExtensionMaximumExtensionType:
		return "MaximumExtensionType", true
	default:
		return "", false
	}
}

// MarshalJSON renders the extension type as its variant name, e.g.
// "AuthenticationInformation", not its numeric value.
func (t ReportExtensionType) MarshalJSON() ([]byte, error) {
	name, ok := t.name()
	if !ok {
		return nil, fmt.Errorf("wire: unknown extension type %d", uint16(t))
	}
	return json.Marshal(name)
}

// UnmarshalJSON accepts the variant name as sent by a client or the Helper.
func (t *ReportExtensionType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("wire: extension_type must be a string: %w", err)
	}
	switch name {
	case "AuthenticationInformation":
		*t = ExtensionAuthenticationInformation
	case "MaximumExtensionType":
		*t = ExtensionMaximumExtensionType
	default:
		return fmt.Errorf("wire: unrecognized extension_type %q", name)
	}
	return nil
}

// ReportExtension tunnels opaque, aggregator-specific data alongside a report.
type ReportExtension struct {
	ExtensionType ReportExtensionType `json:"extension_type"`
	ExtensionData []byte              `json:"extension_data"`
}

// EncryptedInputShare is one aggregator's encrypted share of a report's
// measurement, indexed by role (0=Leader, 1=Helper) in Report.
type EncryptedInputShare struct {
	ConfigID uint8  `json:"config_id"`
	Enc      []byte `json:"enc"`
	// Payload is understood to be ciphertext || tag.
	Payload []byte `json:"payload"`
}

// Report is a single client submission.
type Report struct {
	TaskID               TaskID                `json:"task_id"`
	Time                 Time                  `json:"time"`
	Nonce                uint64                `json:"nonce"`
	Extensions           []ReportExtension     `json:"extensions"`
	EncryptedInputShares []EncryptedInputShare `json:"encrypted_input_shares"`
}

// Timestamp returns the (time, nonce) pair that identifies this report.
func (r Report) Timestamp() Timestamp {
	return Timestamp{Time: r.Time, Nonce: r.Nonce}
}

// EncryptedOutputShare is an aggregator's sealed share of a collect result.
type EncryptedOutputShare struct {
	CollectorHpkeConfigID uint8  `json:"collector_hpke_config_id"`
	Enc                   []byte `json:"enc"`
	Payload               []byte `json:"payload"`
}

// OutputShare is the plaintext an aggregator seals to the Collector.
type OutputShare struct {
	Sum           []byte `json:"sum"`
	Contributions uint64 `json:"contributions"`
}

// CollectRequest asks the Leader for an aggregate over a batch interval.
type CollectRequest struct {
	TaskID           TaskID   `json:"task_id"`
	BatchInterval    Interval `json:"batch_interval"`
	AggregationParam []byte   `json:"aggregation_param,omitempty"`
}

// CollectResponse carries both aggregators' sealed output shares, leader first.
type CollectResponse struct {
	EncryptedOutputShares [2]EncryptedOutputShare `json:"encrypted_output_shares"`
}

// OutputShareRequest is what the Leader forwards to the Helper's /output_share.
type OutputShareRequest struct {
	TaskID        TaskID   `json:"task_id"`
	BatchInterval Interval `json:"batch_interval"`
	HelperState   []byte   `json:"helper_state"`
}

// VerifyStartSubRequest is one report's worth of verify-start material sent
// to the Helper as part of a VerifyStartRequest.
type VerifyStartSubRequest struct {
	Timestamp     Timestamp           `json:"timestamp"`
	Extensions    []ReportExtension   `json:"extensions"`
	VerifyMessage []byte              `json:"verify_message"`
	HelperShare   EncryptedInputShare `json:"helper_share"`
}

// VerifyStartRequest is the Leader's batched request to the Helper's /aggregate.
type VerifyStartRequest struct {
	TaskID           TaskID                  `json:"task_id"`
	AggregationParam []byte                  `json:"aggregation_parameter,omitempty"`
	HelperState      []byte                  `json:"helper_state"`
	SubRequests      []VerifyStartSubRequest `json:"sub_requests"`
}

// VerifySubResponse is the Helper's per-report verification message.
type VerifySubResponse struct {
	Timestamp           Timestamp `json:"timestamp"`
	VerificationMessage []byte    `json:"verification_message"`
}

// VerifyResponse is the Helper's reply to a VerifyStartRequest.
type VerifyResponse struct {
	HelperState  []byte              `json:"helper_state"`
	SubResponses []VerifySubResponse `json:"sub_responses"`
}
