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
	"context"
	"log"
	"sync"

	"ppmleader/internal/leader/hpke"
	"ppmleader/internal/leader/params"
	"ppmleader/internal/leader/wire"
)

// HelperClient is the Leader's view of the Helper's two endpoints (§6).
// aggregate.Client is the concrete implementation; this interface lives
// here, not in package aggregate, so that Leader never has to import the
// packages that operate on it.
type HelperClient interface {
	VerifyStart(ctx context.Context, req wire.VerifyStartRequest) (wire.VerifyResponse, error)
	OutputShare(ctx context.Context, req wire.OutputShareRequest) (wire.EncryptedOutputShare, error)
}

// Leader is the single coordinator object that owns every piece of
// mutable state described in §5: the pending queue, the accumulator
// store, and the opaque Helper state blob. All of it sits behind one
// lock, acquired by the HTTP layer for the duration of a request,
// mirroring the Arc<Mutex<Leader>> the source wraps this same state in.
type Leader struct {
	mu sync.Mutex

	Params        *params.Parameters
	Hpke          *hpke.Contexts
	Queue         *PendingQueue
	Store         *AccumulatorStore
	Helper        HelperClient
	Logger        *log.Logger
	UploadTrigger int

	// HelperState is the opaque blob the Helper asks the Leader to retain
	// and echo on the next round and on collect (§3).
	HelperState []byte
}

// NewLeader constructs a Leader for a single task. uploadTrigger is the
// queue-length threshold that fires an aggregate round from UploadHandler
// (default 10 per §4.7).
func NewLeader(p *params.Parameters, h *hpke.Contexts, helper HelperClient, logger *log.Logger, uploadTrigger int) *Leader {
	return &Leader{
		Params:        p,
		Hpke:          h,
		Queue:         NewPendingQueue(),
		Store:         NewAccumulatorStore(p.MaxBatchLifetime),
		Helper:        helper,
		Logger:        logger,
		UploadTrigger: uploadTrigger,
	}
}

// Lock acquires the Leader's single request-serializing lock (§5). Callers
// hold it for the entire handler, including any suspension points.
func (l *Leader) Lock() { l.mu.Lock() }

// Unlock releases the lock acquired by Lock.
func (l *Leader) Unlock() { l.mu.Unlock() }
