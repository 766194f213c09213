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

// Package main is the entry point for the PPM Leader aggregator. It wires
// flag-parsed TaskParameters into a core.Leader, starts the HTTP server,
// and manages graceful shutdown the same way the rate limiter demo does —
// minus a background worker, since persistence across restarts is out of
// scope for this task's design.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ppmleader/internal/leader/aggregate"
	"ppmleader/internal/leader/api"
	"ppmleader/internal/leader/core"
	"ppmleader/internal/leader/hpke"
	"ppmleader/internal/leader/params"
	"ppmleader/internal/leader/wire"
)

func main() {
	taskIDHex := flag.String("task_id", "", "hex-encoded 32-byte task id (required)")
	leaderURL := flag.String("leader_url", "http://localhost:8080", "this Leader's own base URL, advertised to clients")
	helperURL := flag.String("helper_url", "", "the Helper aggregator's base URL (required)")
	minBatchDuration := flag.Uint64("min_batch_duration", 3600, "bucket width in seconds; every AccumulatorStore key is a multiple of this")
	minBatchSize := flag.Uint64("min_batch_size", 100, "minimum verified contributions a collect request must cover")
	maxBatchLifetime := flag.Uint64("max_batch_lifetime", 1, "maximum number of collects a single bucket may be drawn for")
	uploadTrigger := flag.Int("upload_trigger", 10, "pending queue length that triggers an aggregate round")
	hpkeConfigID := flag.Uint("hpke_config_id", 1, "config id this Leader advertises at /hpke_config")
	collectorConfigID := flag.Uint("collector_hpke_config_id", 1, "config id the Collector advertises")
	collectorPublicKeyHex := flag.String("collector_public_key", "", "hex-encoded Collector HPKE public key (required)")
	httpAddr := flag.String("http_addr", ":8080", "HTTP listen address")
	helperTimeout := flag.Duration("helper_timeout", 10*time.Second, "timeout for outbound requests to the Helper")
	dumpAccumulators := flag.Bool("dump_accumulators", false, "log a bucket/contributions/budget snapshot every 30 seconds")
	flag.Parse()

	if *helperURL == "" {
		log.Fatalf("flag -helper_url is required")
	}
	if *collectorPublicKeyHex == "" {
		log.Fatalf("flag -collector_public_key is required")
	}

	taskIDBytes, err := hex.DecodeString(*taskIDHex)
	if err != nil || len(taskIDBytes) != 32 {
		log.Fatalf("flag -task_id must be 64 hex characters (32 bytes): %v", err)
	}
	var taskID wire.TaskID
	copy(taskID[:], taskIDBytes)

	collectorPubBytes, err := hex.DecodeString(*collectorPublicKeyHex)
	if err != nil {
		log.Fatalf("flag -collector_public_key is not valid hex: %v", err)
	}

	ownConfig, err := hpke.GenerateConfig(uint8(*hpkeConfigID))
	if err != nil {
		log.Fatalf("generating leader hpke config: %v", err)
	}
	collectorConfig, err := hpke.ParsePublicConfig(uint8(*collectorConfigID), collectorPubBytes)
	if err != nil {
		log.Fatalf("parsing collector hpke config: %v", err)
	}

	taskParams, err := params.New(
		taskID,
		*leaderURL,
		*helperURL,
		collectorConfig.Summary(),
		wire.Time(*minBatchDuration),
		*minBatchSize,
		*maxBatchLifetime,
	)
	if err != nil {
		log.Fatalf("invalid task parameters: %v", err)
	}

	hpkeContexts := hpke.New(taskID, ownConfig, collectorConfig)
	helperClient := aggregate.NewClient(taskParams, *helperTimeout)
	logger := log.New(os.Stderr, "leader: ", log.LstdFlags)

	leader := core.NewLeader(taskParams, hpkeContexts, helperClient, logger, *uploadTrigger)

	if *dumpAccumulators {
		go dumpAccumulatorsPeriodically(leader)
	}

	server := api.NewServer(leader)
	httpServer := server.NewHTTPServer(*httpAddr)

	go func() {
		logger.Printf("listening on %s for task %s", *httpAddr, taskID)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("could not listen on %s: %v", *httpAddr, err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("server shutdown failed: %v", err)
	}
	logger.Printf("stopped")
}

// dumpAccumulatorsPeriodically logs a snapshot of every bucket's
// contribution/budget state on a fixed interval, a debug aid enabled by
// the -dump_accumulators flag.
func dumpAccumulatorsPeriodically(leader *core.Leader) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		leader.Lock()
		snapshot := leader.Store.Snapshot()
		leader.Unlock()
		for bucket, acc := range snapshot {
			fmt.Fprintf(os.Stderr, "leader: bucket=%d contributions=%d privacy_budget=%d\n", bucket, acc.Contributions, acc.PrivacyBudget)
		}
	}
}
