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
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// connState names the five states of the per-peer lifecycle state
// machine (component F): Opening -> Handshaking -> Registered ->
// Closing -> Closed.
type connState int

const (
	connOpening connState = iota
	connHandshaking
	connRegistered
	connClosing
	connClosed
)

// ConnConfig parameterizes per-connection behavior.
type ConnConfig struct {
	HandshakeTimeout time.Duration
	OutboxSize       int
	// InboundRateLimit bounds the rate of request frames a single peer
	// may submit, protecting the dispatcher from a flooding peer.
	// Modeled on MessageServerConfig.SendRateLimitPerStream.
	InboundRateLimit rate.Limit
	InboundBurst     int
}

// DefaultConnConfig returns the recommended production settings.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		HandshakeTimeout: HandshakeTimeoutMS * time.Millisecond,
		OutboxSize:       DefaultOutboxSize,
		InboundRateLimit: 50,
		InboundBurst:     100,
	}
}

// HandleConnection drives a single WebSocket connection through its full
// lifecycle: handshake, message loop, cleanup. It blocks until the
// connection is torn down.
func HandleConnection(ws *websocket.Conn, state *State, methods *MethodRegistry, cfg ConnConfig) {
	connID := uuid.NewString()
	log.Info("ws: new connection", zap.String("conn_id", connID))

	// This deferred call always closes Conn at teardown. dropPeer and
	// CloseAllPeers may close the same *websocket.Conn earlier, which is
	// safe to do more than once (it returns an error, not a panic), so
	// this is still the authoritative teardown regardless of who
	// triggers it.
	defer ws.Close()

	outbox := make(chan string, cfg.OutboxSize)
	writeDone := make(chan struct{})
	go writeLoop(ws, outbox, connID, writeDone)

	params, requestID, ok := handshake(ws, state, methods, connID, cfg, outbox)
	if !ok {
		close(outbox)
		<-writeDone
		return
	}
	_ = requestID

	role := params.EffectiveRole()
	scopes := params.Scopes

	peer := &Peer{
		ConnID:        connID,
		ConnectParams: *params,
		Role:          role,
		Scopes:        scopes,
		ConnectedAt:   time.Now(),
		Conn:          ws,
		Outbox:        outbox,
	}
	state.Registry.Register(peer)
	connectedPeersGauge.Set(float64(state.Registry.Count()))

	log.Info("ws: handshake complete",
		zap.String("conn_id", connID),
		zap.String("client_id", params.Client.ID),
		zap.String("client_version", params.Client.Version),
		zap.String("role", role))

	messageLoop(ws, state, methods, peer, cfg)

	removed := state.Registry.Remove(connID)
	connectedPeersGauge.Set(float64(state.Registry.Count()))
	var duration time.Duration
	if removed != nil {
		duration = time.Since(removed.ConnectedAt)
	}
	log.Info("ws: connection closed",
		zap.String("conn_id", connID),
		zap.Duration("duration", duration))

	// Outbox has exactly one closer: here, always after messageLoop has
	// already returned. dropPeer (see broadcast.go) never closes it.
	close(outbox)
	<-writeDone
}

// writeLoop is the per-peer write task: it pulls serialized frames from
// outbox and writes them to the wire in order, terminating when outbox
// is closed or the underlying connection errors. Single-writer
// discipline here is what guarantees invariant 4 (outbound frame order).
func writeLoop(ws *websocket.Conn, outbox <-chan string, connID string, done chan<- struct{}) {
	defer close(done)
	for msg := range outbox {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			log.Debug("ws: write loop closed", zap.String("conn_id", connID), zap.Error(err))
			return
		}
	}
}

// handshake races the inbound stream against the handshake timeout. On
// success it returns the parsed ConnectParams and sends hello-ok; on
// timeout or protocol violation it returns ok=false without sending a
// response (timeout case) or after sending an error response
// (protocol-mismatch case), and the caller then closes the connection.
func handshake(
	ws *websocket.Conn,
	state *State,
	methods *MethodRegistry,
	connID string,
	cfg ConnConfig,
	outbox chan<- string,
) (*ConnectParams, string, bool) {
	_ = ws.SetReadDeadline(time.Now().Add(cfg.HandshakeTimeout))
	defer ws.SetReadDeadline(time.Time{})

	_, raw, err := ws.ReadMessage()
	if err != nil {
		log.Warn("ws: handshake timeout or read error", zap.String("conn_id", connID), zap.Error(err))
		return nil, "", false
	}

	frame, err := Decode(string(raw))
	if err != nil || frame.Request == nil {
		log.Warn("ws: handshake failed, first message is not a request", zap.String("conn_id", connID))
		return nil, "", false
	}
	req := frame.Request
	if req.Method != "connect" {
		log.Warn("ws: handshake failed, first method is not connect",
			zap.String("conn_id", connID), zap.String("method", req.Method))
		return nil, "", false
	}

	var params ConnectParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			log.Warn("ws: handshake failed, invalid connect params", zap.String("conn_id", connID), zap.Error(err))
			return nil, "", false
		}
	}

	if !params.Overlaps(ProtocolVersion) {
		errResp := ErrResponse(req.ID, NewErrorShape(
			ErrCodeInvalidRequest,
			protocolMismatchMessage(params.MinProtocol, params.MaxProtocol),
		))
		sendFrame(outbox, errResp)
		log.Warn("ws: protocol mismatch",
			zap.String("conn_id", connID),
			zap.Uint64("client_min", params.MinProtocol),
			zap.Uint64("client_max", params.MaxProtocol))
		return nil, "", false
	}

	hello := buildHelloOk(state, methods, connID)
	sendFrame(outbox, OKResponse(req.ID, hello))

	return &params, req.ID, true
}

func protocolMismatchMessage(min, max uint64) string {
	b, _ := json.Marshal(map[string]interface{}{
		"server": ProtocolVersion, "client_min": min, "client_max": max,
	})
	return "protocol mismatch: " + string(b)
}

func buildHelloOk(state *State, methods *MethodRegistry, connID string) *HelloOk {
	return &HelloOk{
		Type:     "hello-ok",
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: state.Version,
			Host:    state.Hostname,
			ConnID:  connID,
			Commit:  nil,
		},
		Features: Features{
			Methods: methods.MethodNames(),
			Events:  AdvertisedEvents,
		},
		Snapshot:      map[string]interface{}{},
		Policy:        DefaultPolicy(),
		CanvasHostURL: nil,
		Auth:          nil,
	}
}

func sendFrame(outbox chan<- string, v interface{}) (sent bool) {
	raw, err := Encode(v)
	if err != nil {
		log.Warn("failed to encode outgoing frame", zap.Error(err))
		return false
	}
	defer func() {
		// outbox is only ever closed by its owning HandleConnection
		// after this goroutine's messageLoop has returned, so a send
		// here should never race a close. Recover anyway, matching
		// Peer.Send, rather than take down the read loop on a panic.
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case outbox <- raw:
		return true
	default:
		log.Warn("outbox full while sending frame")
		return false
	}
}

// messageLoop is the registered-state message loop: for each inbound
// frame, decode failures become an "error" event (not a response, since
// there's no request id); requests dispatch through the method registry;
// responses/events received from the peer are ignored (the gateway
// initiates no calls to peers in the core); close frames exit the loop.
func messageLoop(ws *websocket.Conn, state *State, methods *MethodRegistry, peer *Peer, cfg ConnConfig) {
	limiter := rate.NewLimiter(cfg.InboundRateLimit, cfg.InboundBurst)

	for {
		msgType, raw, err := ws.ReadMessage()
		if err != nil {
			log.Debug("ws: read error", zap.String("conn_id", peer.ConnID), zap.Error(err))
			return
		}
		if msgType == websocket.CloseMessage {
			return
		}
		if msgType != websocket.TextMessage {
			// Binary, ping, pong: ignored. gorilla/websocket answers
			// ping/pong control frames internally.
			continue
		}

		if !limiter.Allow() {
			log.Debug("ws: inbound rate limit exceeded, dropping frame", zap.String("conn_id", peer.ConnID))
			continue
		}

		frame, err := Decode(string(raw))
		if err != nil {
			seq := state.NextSeq()
			errEvent := NewEventFrame("error", map[string]interface{}{"message": "invalid frame"}, seq)
			sendFrame(peer.Outbox, errEvent)
			continue
		}

		switch {
		case frame.Request != nil:
			ctx := MethodContext{
				RequestID:    frame.Request.ID,
				Method:       frame.Request.Method,
				Params:       frame.Request.Params,
				ClientConnID: peer.ConnID,
				ClientRole:   peer.Role,
				ClientScopes: peer.Scopes,
				State:        state,
			}
			start := time.Now()
			resp := methods.Dispatch(ctx)
			dispatchLatency.WithLabelValues(ctx.Method).Observe(time.Since(start).Seconds())
			sendFrame(peer.Outbox, resp)
		default:
			// Response/Event/Notification frames from a peer are
			// ignored in the core; see spec.md §9 on bidirectional
			// invocation being a deliberate extension point.
			log.Debug("ws: ignoring non-request frame", zap.String("conn_id", peer.ConnID))
		}
	}
}
