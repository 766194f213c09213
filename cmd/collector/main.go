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

// Package main is the standalone Collector client: a thin consumer of the
// same wire formats the Leader speaks. It posts a CollectRequest, opens
// both aggregators' sealed output shares, and merges them into a final
// sum.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"ppmleader/internal/leader/hpke"
	"ppmleader/internal/leader/params"
	"ppmleader/internal/leader/vdaf"
	"ppmleader/internal/leader/wire"
)

// userAgent mirrors the source's COLLECTOR_USER_AGENT convention.
const userAgent = "ppm-leader/1.0/collector"

func main() {
	taskIDHex := flag.String("task_id", "", "hex-encoded 32-byte task id (required)")
	leaderURL := flag.String("leader_url", "http://localhost:8080", "the Leader's base URL")
	batchStart := flag.Uint64("batch_start", 0, "batch interval start, seconds since epoch (required)")
	batchDuration := flag.Uint64("batch_duration", 3600, "batch interval duration, seconds")
	configID := flag.Uint("collector_hpke_config_id", 1, "this collector's own advertised config id")
	publicKeyHex := flag.String("collector_public_key", "", "hex-encoded collector HPKE public key (required)")
	privateKeyHex := flag.String("collector_private_key", "", "hex-encoded collector HPKE private key (required)")
	flag.Parse()

	taskIDBytes, err := hex.DecodeString(*taskIDHex)
	if err != nil || len(taskIDBytes) != 32 {
		log.Fatalf("flag -task_id must be 64 hex characters (32 bytes): %v", err)
	}
	var taskID wire.TaskID
	copy(taskID[:], taskIDBytes)

	pubBytes, err := hex.DecodeString(*publicKeyHex)
	if err != nil {
		log.Fatalf("flag -collector_public_key is not valid hex: %v", err)
	}
	privBytes, err := hex.DecodeString(*privateKeyHex)
	if err != nil {
		log.Fatalf("flag -collector_private_key is not valid hex: %v", err)
	}
	collectorConfig, err := hpke.ParsePrivateConfig(uint8(*configID), pubBytes, privBytes)
	if err != nil {
		log.Fatalf("parsing collector hpke config: %v", err)
	}

	interval := wire.Interval{Start: wire.Time(*batchStart), Duration: wire.Time(*batchDuration)}

	sum, contributions, err := collect(*leaderURL, taskID, interval, collectorConfig)
	if err != nil {
		log.Fatalf("collect failed: %v", err)
	}
	fmt.Printf("sum=%d contributions=%d\n", sum, contributions)
}

func collect(leaderURL string, taskID wire.TaskID, interval wire.Interval, collectorConfig *hpke.Config) (uint64, uint64, error) {
	req := wire.CollectRequest{TaskID: taskID, BatchInterval: interval}
	encoded, err := json.Marshal(req)
	if err != nil {
		return 0, 0, fmt.Errorf("encode collect request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, leaderURL+"/collect", bytes.NewReader(encoded))
	if err != nil {
		return 0, 0, fmt.Errorf("build collect request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	client := &http.Client{Timeout: 30 * time.Second}
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return 0, 0, fmt.Errorf("collect request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("read collect response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return 0, 0, fmt.Errorf("leader returned status %d: %s", httpResp.StatusCode, string(body))
	}

	var resp wire.CollectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, 0, fmt.Errorf("decode collect response: %w", err)
	}

	leaderPlaintext, err := hpke.OpenOutputShare(collectorConfig, taskID, params.RoleLeader, resp.EncryptedOutputShares[params.RoleLeader.Index()], interval)
	if err != nil {
		return 0, 0, fmt.Errorf("open leader output share: %w", err)
	}
	helperPlaintext, err := hpke.OpenOutputShare(collectorConfig, taskID, params.RoleHelper, resp.EncryptedOutputShares[params.RoleHelper.Index()], interval)
	if err != nil {
		return 0, 0, fmt.Errorf("open helper output share: %w", err)
	}

	var leaderShare, helperShare wire.OutputShare
	if err := json.Unmarshal(leaderPlaintext, &leaderShare); err != nil {
		return 0, 0, fmt.Errorf("decode leader output share: %w", err)
	}
	if err := json.Unmarshal(helperPlaintext, &helperShare); err != nil {
		return 0, 0, fmt.Errorf("decode helper output share: %w", err)
	}

	if leaderShare.Contributions != helperShare.Contributions {
		return 0, 0, fmt.Errorf("contribution counts do not match: leader %d helper %d", leaderShare.Contributions, helperShare.Contributions)
	}

	leaderAgg, err := vdaf.DecodeAggregateShare(leaderShare.Sum)
	if err != nil {
		return 0, 0, fmt.Errorf("decode leader aggregate share: %w", err)
	}
	helperAgg, err := vdaf.DecodeAggregateShare(helperShare.Sum)
	if err != nil {
		return 0, 0, fmt.Errorf("decode helper aggregate share: %w", err)
	}

	merged := leaderAgg.Merge(helperAgg)
	return uint64(merged.Sum), leaderShare.Contributions, nil
}
