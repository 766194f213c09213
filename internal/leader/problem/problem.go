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

// Package problem centralizes the RFC 7807 problem-document taxonomy
// (§7): the mapping from an internal failure kind to a wire type URN and
// an HTTP status, and the JSON document an endpoint writes back.
package problem

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ppmleader/internal/leader/wire"
)

// Kind is one of the PPM protocol's problem-document kinds.
type Kind string

const (
	UnrecognizedMessage   Kind = "unrecognizedMessage"
	UnrecognizedTask      Kind = "unrecognizedTask"
	OutdatedConfig        Kind = "outdatedConfig"
	InvalidBatchInterval  Kind = "invalidBatchInterval"
	InsufficientBatchSize Kind = "insufficientBatchSize"
	PrivacyBudgetExceeded Kind = "privacyBudgetExceeded"
	HelperError           Kind = "helperError"
	UnknownError          Kind = "unknownError"
)

// TypeURL renders the type URN that appears on the wire.
func (k Kind) TypeURL() string { return fmt.Sprintf("url:ietf:params:ppm:error:%s", k) }

// Status returns the HTTP status code this kind maps to.
func (k Kind) Status() int {
	switch k {
	case HelperError, UnknownError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Error is a problem-classified failure. It implements the error
// interface so call sites can use it with errors.As/errors.Is like any
// other Go error, and carries enough to render a full problem document.
type Error struct {
	Kind   Kind
	Detail string
	// Cause, if set, is included in error-string formatting but never
	// serialized to the wire: it may carry details not meant for a client.
	Cause error
}

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Detail: cause.Error(), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Document is the RFC 7807 JSON body written to clients.
type Document struct {
	Type     string `json:"type"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance"`
	TaskID   string `json:"taskid,omitempty"`
}

// Write serializes err as an application/problem+json response, annotated
// with the task id (all zeros when the caller passes the zero TaskID) and
// the endpoint name (§6: "instance").
func Write(w http.ResponseWriter, err *Error, taskID wire.TaskID, endpoint string) {
	doc := Document{
		Type:     err.Kind.TypeURL(),
		Status:   err.Kind.Status(),
		Detail:   err.Detail,
		Instance: endpoint,
		TaskID:   taskID.String(),
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(doc.Status)
	_ = json.NewEncoder(w).Encode(doc)
}

// Decode parses a problem document from a Helper response body, used when
// AggregateRound or CollectHandler needs to wrap a Helper failure as
// helperError (§4.8 step 1, §4.9 step 2).
func Decode(body []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
