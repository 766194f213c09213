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

// Package upload implements UploadHandler (§4.7): validate, decrypt, and
// prepare a report's Leader share, enqueue it, and trigger an aggregate
// round once enough reports have piled up.
package upload

import (
	"context"
	"errors"
	"fmt"

	"ppmleader/internal/leader/aggregate"
	"ppmleader/internal/leader/core"
	"ppmleader/internal/leader/hpke"
	"ppmleader/internal/leader/params"
	"ppmleader/internal/leader/problem"
	"ppmleader/internal/leader/telemetry"
	"ppmleader/internal/leader/vdaf"
	"ppmleader/internal/leader/wire"
)

// Handle runs the seven-step algorithm of §4.7. The caller must already
// hold l's lock. Errors from the aggregate round this upload triggers are
// logged here and never returned: the report has already been accepted
// by the time the round runs.
func Handle(ctx context.Context, l *core.Leader, report wire.Report) *problem.Error {
	if report.TaskID != l.Params.TaskID {
		telemetry.ReportsRejected.WithLabelValues(string(problem.UnrecognizedTask)).Inc()
		return problem.New(problem.UnrecognizedTask, "report references an unknown task")
	}
	if len(report.EncryptedInputShares) != 2 {
		telemetry.ReportsRejected.WithLabelValues(string(problem.UnrecognizedMessage)).Inc()
		return problem.New(problem.UnrecognizedMessage, "encrypted_input_shares must have exactly two entries")
	}

	leaderShare := report.EncryptedInputShares[params.RoleLeader.Index()]
	helperShare := report.EncryptedInputShares[params.RoleHelper.Index()]
	timestamp := report.Timestamp()

	plaintext, err := l.Hpke.OpenReportShare(leaderShare, timestamp)
	if err != nil {
		if errors.Is(err, hpke.ErrConfigMismatch) {
			telemetry.ReportsRejected.WithLabelValues(string(problem.OutdatedConfig)).Inc()
			return problem.New(problem.OutdatedConfig, "leader share references a stale hpke config id")
		}
		telemetry.ReportsRejected.WithLabelValues(string(problem.UnrecognizedMessage)).Inc()
		return problem.Wrap(problem.UnrecognizedMessage, fmt.Errorf("open leader input share: %w", err))
	}

	state, err := vdaf.PrepareInit(params.RoleLeader, nil, timestamp.AssociatedData(), plaintext)
	if err != nil {
		telemetry.ReportsRejected.WithLabelValues(string(problem.UnrecognizedMessage)).Inc()
		return problem.Wrap(problem.UnrecognizedMessage, fmt.Errorf("decode vdaf input share: %w", err))
	}
	state, prepareMessage := vdaf.PrepareStart(state)

	l.Queue.Enqueue(core.PendingEntry{
		Timestamp:      timestamp,
		PrepareState:   state,
		PrepareMessage: prepareMessage,
		HelperShare:    helperShare,
		Extensions:     report.Extensions,
	})
	telemetry.ReportsUploaded.Inc()
	telemetry.PendingQueueDepth.Set(float64(l.Queue.Len()))

	if l.Queue.Len() >= l.UploadTrigger {
		if err := aggregate.Run(ctx, l); err != nil {
			l.Logger.Printf("upload: aggregate round triggered at threshold failed: %v", err)
		}
		telemetry.PendingQueueDepth.Set(float64(l.Queue.Len()))
	}

	return nil
}
