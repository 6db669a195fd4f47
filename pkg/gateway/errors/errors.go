// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors defines the gateway's own normalized error catalog,
// scoped down from tiflow's pkg/errors convention to what the control
// plane needs.
package errors

import "github.com/pingcap/errors"

// Normalized gateway errors. Callers compare with Equal, not type
// assertion, per the teacher's convention.
var (
	ErrDecodeFrame      = errors.Normalize("failed to decode frame", errors.RFCCodeText("GW:ErrDecodeFrame"))
	ErrEncodeFrame      = errors.Normalize("failed to encode frame", errors.RFCCodeText("GW:ErrEncodeFrame"))
	ErrUnknownFrameType = errors.Normalize("unknown frame type: %s", errors.RFCCodeText("GW:ErrUnknownFrameType"))
	ErrHandshakeTimeout = errors.Normalize("handshake timed out before a connect request arrived", errors.RFCCodeText("GW:ErrHandshakeTimeout"))
	ErrHandshakeInvalid = errors.Normalize("invalid handshake: %s", errors.RFCCodeText("GW:ErrHandshakeInvalid"))
	ErrProtocolMismatch = errors.Normalize("protocol mismatch: server=%d, client=[%d,%d]", errors.RFCCodeText("GW:ErrProtocolMismatch"))
	ErrPeerNotFound     = errors.Normalize("peer not found: %s", errors.RFCCodeText("GW:ErrPeerNotFound"))
	ErrDuplicateConnID  = errors.Normalize("conn_id already registered: %s", errors.RFCCodeText("GW:ErrDuplicateConnID"))
	ErrQueueSaturated   = errors.Normalize("peer outbound queue saturated: %s", errors.RFCCodeText("GW:ErrQueueSaturated"))
	ErrHandlerPanicked  = errors.Normalize("method handler panicked: %v", errors.RFCCodeText("GW:ErrHandlerPanicked"))
)
