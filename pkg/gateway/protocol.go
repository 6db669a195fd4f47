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

// Package gateway implements the control-plane gateway: a WebSocket
// server that multiplexes request/response calls and server-initiated
// events between operators and nodes.
package gateway

import (
	"encoding/json"

	cerror "github.com/moltis-run/moltisgw/pkg/gateway/errors"
)

// Protocol version and timing constants advertised by this gateway.
const (
	// ProtocolVersion is the single version this gateway advertises.
	ProtocolVersion uint64 = 1

	// TickIntervalMS is the period, in milliseconds, between broadcast
	// "tick" events.
	TickIntervalMS = 15_000

	// HandshakeTimeoutMS bounds how long a freshly-opened connection may
	// take to complete the connect handshake before being dropped.
	HandshakeTimeoutMS = 10_000

	// DedupeTTLMS is the time-to-live for idempotency cache entries.
	DedupeTTLMS = 5 * 60 * 1000

	// DedupeMaxEntries bounds the idempotency cache's entry count.
	DedupeMaxEntries = 4096

	// DefaultOutboxSize is the recommended bound for a peer's outbound
	// queue (see §5/§9 of the spec: unbounded queues are a known
	// footgun, bounded+disconnect-on-full is the production setting).
	DefaultOutboxSize = 1024
)

// Error code tokens. These are the only codes the core emits; handler
// errors may carry their own application-specific codes.
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeTimeout        = "TIMEOUT"
)

// Scope names, a closed set. Admin implies all the others.
const (
	ScopeAdmin             = "admin"
	ScopeOperatorRead      = "operator.read"
	ScopeOperatorWrite     = "operator.write"
	ScopeOperatorApprovals = "operator.approvals"
	ScopeOperatorPairing   = "operator.pairing"
)

// Role names.
const (
	RoleOperator = "operator"
	RoleNode     = "node"
)

// ErrorShape is the wire shape of an error, carried in a failed Response
// frame and as the payload returned by a handler that wants to signal a
// request-scoped failure.
type ErrorShape struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface so an ErrorShape can be returned
// directly from a handler.
func (e *ErrorShape) Error() string {
	return e.Code + ": " + e.Message
}

// NewErrorShape builds an ErrorShape.
func NewErrorShape(code, message string) *ErrorShape {
	return &ErrorShape{Code: code, Message: message}
}

// ── Frame shapes ─────────────────────────────────────────────────────────

// FrameType discriminates the four wire frame shapes.
type FrameType string

const (
	FrameRequest      FrameType = "request"
	FrameResponse     FrameType = "response"
	FrameEvent        FrameType = "event"
	FrameNotification FrameType = "notification"
)

// RequestFrame is a client-initiated call. ID is client-chosen and must be
// unique per connection for the lifetime of the in-flight call.
type RequestFrame struct {
	Type   FrameType       `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame is the gateway's reply to a RequestFrame.
type ResponseFrame struct {
	Type   FrameType   `json:"type"`
	ID     string      `json:"id"`
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorShape `json:"error,omitempty"`
}

// OKResponse builds a successful ResponseFrame.
func OKResponse(id string, result interface{}) *ResponseFrame {
	return &ResponseFrame{Type: FrameResponse, ID: id, OK: true, Result: result}
}

// ErrResponse builds a failed ResponseFrame.
func ErrResponse(id string, err *ErrorShape) *ResponseFrame {
	return &ResponseFrame{Type: FrameResponse, ID: id, OK: false, Error: err}
}

// EventFrame is a server-initiated, sequenced push.
type EventFrame struct {
	Type FrameType   `json:"type"`
	Name string      `json:"name"`
	Data interface{} `json:"data"`
	Seq  uint64      `json:"seq"`
}

// NewEventFrame builds an EventFrame with the given sequence number.
func NewEventFrame(name string, data interface{}, seq uint64) *EventFrame {
	return &EventFrame{Type: FrameEvent, Name: name, Data: data, Seq: seq}
}

// NotificationFrame is a fire-and-forget client→server message. Not
// required for the core; the decoder recognizes it but the message loop
// ignores it.
type NotificationFrame struct {
	Type   FrameType       `json:"type"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Frame is the decoded, tagged result of Decode. Exactly one of the
// pointer fields is non-nil.
type Frame struct {
	Request      *RequestFrame
	Response     *ResponseFrame
	Event        *EventFrame
	Notification *NotificationFrame
}

type frameEnvelope struct {
	Type FrameType `json:"type"`
}

// Encode serializes a frame value (one of *RequestFrame, *ResponseFrame,
// *EventFrame, *NotificationFrame) to its JSON wire form.
func Encode(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", cerror.ErrEncodeFrame.Wrap(err)
	}
	return string(b), nil
}

// Decode parses a raw text frame into its tagged Frame variant. Unknown
// discriminants fail with ErrUnknownFrameType. Unknown fields in known
// shapes are silently ignored (forward-compatible), which is the default
// behavior of encoding/json.
func Decode(raw string) (*Frame, error) {
	var env frameEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, cerror.ErrDecodeFrame.Wrap(err)
	}

	switch env.Type {
	case FrameRequest:
		var r RequestFrame
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, cerror.ErrDecodeFrame.Wrap(err)
		}
		return &Frame{Request: &r}, nil
	case FrameResponse:
		var r ResponseFrame
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, cerror.ErrDecodeFrame.Wrap(err)
		}
		return &Frame{Response: &r}, nil
	case FrameEvent:
		var r EventFrame
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, cerror.ErrDecodeFrame.Wrap(err)
		}
		return &Frame{Event: &r}, nil
	case FrameNotification:
		var r NotificationFrame
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, cerror.ErrDecodeFrame.Wrap(err)
		}
		return &Frame{Notification: &r}, nil
	default:
		return nil, cerror.ErrUnknownFrameType.GenWithStackByArgs(string(env.Type))
	}
}

// ── Handshake types ──────────────────────────────────────────────────────

// ClientInfo identifies the connecting peer process.
type ClientInfo struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// ConnectParams is the params payload of the first request, whose method
// must be "connect".
type ConnectParams struct {
	Client      ClientInfo `json:"client"`
	Role        string     `json:"role,omitempty"`
	Scopes      []string   `json:"scopes,omitempty"`
	MinProtocol uint64     `json:"min_protocol"`
	MaxProtocol uint64     `json:"max_protocol"`
}

// EffectiveRole returns Role, defaulting to "operator" when unset.
func (c *ConnectParams) EffectiveRole() string {
	if c.Role == "" {
		return RoleOperator
	}
	return c.Role
}

// Overlaps reports whether the client's advertised protocol range
// overlaps the server's single advertised version.
func (c *ConnectParams) Overlaps(serverVersion uint64) bool {
	return c.MinProtocol <= serverVersion && serverVersion <= c.MaxProtocol
}

// ServerInfo describes this gateway instance in HelloOk.
type ServerInfo struct {
	Version string  `json:"version"`
	Host    string  `json:"host"`
	ConnID  string  `json:"conn_id"`
	Commit  *string `json:"commit"`
}

// Features enumerates what the client may call and subscribe to.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// Policy is an opaque default-policy object returned at handshake. The
// core ships an empty default; collaborators may populate it.
type Policy map[string]interface{}

// DefaultPolicy returns the gateway's default policy object.
func DefaultPolicy() Policy { return Policy{} }

// HelloOk is the result payload of a successful connect handshake.
type HelloOk struct {
	Type          string      `json:"type"`
	Protocol      uint64      `json:"protocol"`
	Server        ServerInfo  `json:"server"`
	Features      Features    `json:"features"`
	Snapshot      interface{} `json:"snapshot"`
	Policy        Policy      `json:"policy"`
	CanvasHostURL *string     `json:"canvas_host_url"`
	Auth          interface{} `json:"auth"`
}

// AdvertisedEvents lists every event name the gateway core and its
// collaborators may emit. Used to populate Features.Events at handshake.
var AdvertisedEvents = []string{
	"tick",
	"shutdown",
	"agent",
	"chat",
	"presence",
	"health",
	"exec.approval.requested",
	"exec.approval.resolved",
	"device.pair.requested",
	"device.pair.resolved",
	"node.pair.requested",
	"node.pair.resolved",
	"node.invoke.request",
	"error",
}
