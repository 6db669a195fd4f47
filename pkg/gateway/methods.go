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

package gateway

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// MethodContext carries everything a handler needs: the request, the
// caller's identity, and a handle to the shared gateway state. Handlers
// may block (MethodContext carries no cancellation signal) but must not
// assume exclusive access to any peer.
type MethodContext struct {
	RequestID    string
	Method       string
	Params       json.RawMessage
	ClientConnID string
	ClientRole   string
	ClientScopes []string
	State        *State
}

// HandlerFunc is a method handler: it receives a MethodContext and
// returns either a JSON-marshalable result or an ErrorShape.
type HandlerFunc func(ctx MethodContext) (interface{}, *ErrorShape)

// MethodRegistry is the method registry & dispatcher (component E): a
// name-indexed collection of handlers, dispatched after authorization.
type MethodRegistry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewMethodRegistry builds a MethodRegistry pre-populated with the
// default handler roster (see registerDefaults).
func NewMethodRegistry() *MethodRegistry {
	r := &MethodRegistry{handlers: make(map[string]HandlerFunc)}
	r.registerDefaults()
	return r
}

// Register installs or replaces the handler for name.
func (r *MethodRegistry) Register(name string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// MethodNames returns every registered method name in sorted order, for
// the features.methods advertisement at handshake.
func (r *MethodRegistry) MethodNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch is the sole entry point (component E): it authorizes the
// call, looks up the handler, and invokes it, converting every outcome
// into a ResponseFrame. A handler that panics is recovered and reported
// as INTERNAL_ERROR rather than crashing the connection's read loop.
func (r *MethodRegistry) Dispatch(ctx MethodContext) (resp *ResponseFrame) {
	if err := Authorize(ctx.Method, ctx.ClientRole, ctx.ClientScopes); err != nil {
		log.Warn("method auth denied",
			zap.String("method", ctx.Method),
			zap.String("conn_id", ctx.ClientConnID),
			zap.String("code", err.Code))
		return ErrResponse(ctx.RequestID, err)
	}

	r.mu.RLock()
	handler, ok := r.handlers[ctx.Method]
	r.mu.RUnlock()
	if !ok {
		log.Warn("unknown method", zap.String("method", ctx.Method), zap.String("conn_id", ctx.ClientConnID))
		return ErrResponse(ctx.RequestID, NewErrorShape(ErrCodeInvalidRequest, "unknown method: "+ctx.Method))
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Warn("method handler panicked",
				zap.String("method", ctx.Method),
				zap.String("conn_id", ctx.ClientConnID),
				zap.Any("recover", rec))
			resp = ErrResponse(ctx.RequestID, NewErrorShape(ErrCodeInternal, "internal error"))
		}
	}()

	log.Debug("dispatching method", zap.String("method", ctx.Method), zap.String("request_id", ctx.RequestID))
	result, handlerErr := handler(ctx)
	if handlerErr != nil {
		log.Warn("method error",
			zap.String("method", ctx.Method),
			zap.String("request_id", ctx.RequestID),
			zap.String("code", handlerErr.Code),
			zap.String("message", handlerErr.Message))
		return ErrResponse(ctx.RequestID, handlerErr)
	}
	log.Debug("method ok", zap.String("method", ctx.Method), zap.String("request_id", ctx.RequestID))
	return OKResponse(ctx.RequestID, result)
}

// registerDefaults installs health/status (the only two handlers with
// real logic) plus the full stub roster so every advertised method is
// present in features.methods at handshake, per spec.md §4.5: "the
// presence of the method name in the registry is the contract that
// matters for handshake feature negotiation."
func (r *MethodRegistry) registerDefaults() {
	r.Register("health", func(ctx MethodContext) (interface{}, *ErrorShape) {
		return map[string]interface{}{
			"status":      "ok",
			"version":     ctx.State.Version,
			"connections": ctx.State.ClientCount(),
		}, nil
	})

	r.Register("status", func(ctx MethodContext) (interface{}, *ErrorShape) {
		return map[string]interface{}{
			"version":     ctx.State.Version,
			"hostname":    ctx.State.Hostname,
			"connections": ctx.State.ClientCount(),
		}, nil
	})

	stub := func(ctx MethodContext) (interface{}, *ErrorShape) {
		return map[string]interface{}{"stub": true}, nil
	}

	for _, name := range stubMethods {
		r.Register(name, stub)
	}
}

// stubMethods is the roster of methods advertised but not yet backed by
// real logic in the core — external collaborators (agent runner, cron,
// sessions, channels, ...) supply the real handlers. Copied verbatim
// from the distilled implementation's register_defaults so that
// features.methods matches what production dashboards already expect.
var stubMethods = []string{
	"channels.status",
	"channels.logout",
	"agent",
	"agent.wait",
	"agent.identity.get",
	"send",
	"wake",
	"sessions.list",
	"sessions.preview",
	"sessions.resolve",
	"sessions.patch",
	"sessions.reset",
	"sessions.delete",
	"sessions.compact",
	"config.get",
	"config.set",
	"config.apply",
	"config.patch",
	"config.schema",
	"cron.list",
	"cron.status",
	"cron.add",
	"cron.update",
	"cron.remove",
	"cron.run",
	"cron.runs",
	"models.list",
	"agents.list",
	"skills.status",
	"skills.bins",
	"skills.install",
	"skills.update",
	"node.list",
	"node.describe",
	"node.invoke",
	"node.invoke.result",
	"node.event",
	"node.pair.request",
	"node.pair.list",
	"node.pair.approve",
	"node.pair.reject",
	"node.pair.verify",
	"node.rename",
	"device.pair.list",
	"device.pair.approve",
	"device.pair.reject",
	"device.token.rotate",
	"device.token.revoke",
	"exec.approvals.get",
	"exec.approvals.set",
	"exec.approvals.node.get",
	"exec.approvals.node.set",
	"exec.approval.request",
	"exec.approval.resolve",
	"logs.tail",
	"chat.history",
	"chat.send",
	"chat.abort",
	"chat.inject",
	"talk.mode",
	"tts.status",
	"tts.providers",
	"tts.enable",
	"tts.disable",
	"tts.convert",
	"tts.setProvider",
	"voicewake.get",
	"voicewake.set",
	"browser.request",
	"usage.status",
	"usage.cost",
	"update.run",
	"system-presence",
	"system-event",
	"last-heartbeat",
	"set-heartbeats",
	"wizard.start",
	"wizard.next",
	"wizard.cancel",
	"wizard.status",
	"web.login.start",
	"web.login.wait",
}
