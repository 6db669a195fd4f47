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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const landingPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>moltisgw gateway</title>
  <style>
    body { font-family: system-ui, sans-serif; background: #0a0a0a; color: #e0e0e0;
           display: flex; align-items: center; justify-content: center; height: 100vh; margin: 0; }
    .container { text-align: center; }
    h1 { font-size: 2rem; font-weight: 300; letter-spacing: 0.05em; }
    p { color: #888; font-size: 0.9rem; }
    code { background: #1a1a1a; padding: 2px 8px; border-radius: 4px; font-size: 0.85rem; }
  </style>
</head>
<body>
  <div class="container">
    <h1>moltisgw</h1>
    <p>Gateway is running. Connect via WebSocket at <code>/ws</code></p>
  </div>
</body>
</html>`

var upgrader = websocket.Upgrader{
	// The gateway is an on-device control plane; tighter origin policy
	// is a deployment concern (spec.md §4.8).
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the HTTP surface (component H): /health, /ws, /, /metrics.
type Server struct {
	state   *State
	methods *MethodRegistry
	connCfg ConnConfig
	engine  *gin.Engine
}

// NewServer builds the HTTP surface bound to state and methods.
func NewServer(state *State, methods *MethodRegistry, connCfg ConnConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	// A permissive cross-origin layer is applied to all routes, matching
	// original_source/crates/gateway/src/server.rs's
	// tower_http::cors::CorsLayer::new().allow_origin(Any)...
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	engine.Use(func(ctx *gin.Context) {
		c.HandlerFunc(ctx.Writer, ctx.Request)
		ctx.Next()
	})

	s := &Server{state: state, methods: methods, connCfg: connCfg, engine: engine}
	s.routes()
	return s
}

// Handler returns the http.Handler to bind a listener to.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ws", s.handleWS)
	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(NewMetricsRegistry(), promhttp.HandlerOpts{})))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"version":     s.state.Version,
		"protocol":    ProtocolVersion,
		"connections": s.state.ClientCount(),
	})
}

func (s *Server) handleRoot(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(landingPage))
}

func (s *Server) handleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("ws: upgrade failed", zap.Error(err))
		return
	}
	HandleConnection(ws, s.state, s.methods, s.connCfg)
}
