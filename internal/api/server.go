/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api exposes the commander control plane over HTTP.
// api 包通过 HTTP 暴露 commander 控制平面。
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/openclaw/commander/internal/config"
	"github.com/openclaw/commander/internal/logger"
	"github.com/openclaw/commander/internal/supervisor"
)

// Server is the control-plane HTTP server.
// Server 是控制平面 HTTP 服务器。
type Server struct {
	engine *gin.Engine
	srv    *http.Server
}

// New builds the server and registers all routes.
// New 构建服务器并注册全部路由。
func New(cfg *config.Config, sup *supervisor.Supervisor) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Telemetry.Enabled {
		r.Use(otelgin.Middleware("commander"))
	}
	r.Use(loggerMiddleware())

	h := NewHandler(sup)
	h.RegisterRoutes(r)

	return &Server{
		engine: r,
		srv: &http.Server{
			Addr:    cfg.APIListenAddr(),
			Handler: r,
		},
	}
}

// Engine exposes the router for tests.
// Engine 暴露路由器以供测试使用。
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start listens in the background and reports fatal listener errors on the
// returned channel.
// Start 在后台监听，并通过返回的通道报告致命的监听错误。
func (s *Server) Start(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		logger.InfoF(ctx, "commander API listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown drains in-flight requests until the context expires.
// Shutdown 在 context 到期前完成处理中的请求。
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// loggerMiddleware logs one line per request with latency and status.
// loggerMiddleware 为每个请求记录一行日志，包含耗时和状态码。
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.L().Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
