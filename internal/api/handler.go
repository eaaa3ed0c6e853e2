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

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openclaw/commander/internal/logger"
	"github.com/openclaw/commander/internal/registry"
	"github.com/openclaw/commander/internal/supervisor"
)

// Handler provides HTTP handlers for fleet lifecycle operations.
// Handler 提供舰队生命周期操作的 HTTP 处理器。
type Handler struct {
	sup *supervisor.Supervisor
}

// NewHandler creates a new Handler instance.
// NewHandler 创建一个新的 Handler 实例。
func NewHandler(sup *supervisor.Supervisor) *Handler {
	return &Handler{sup: sup}
}

// RegisterRoutes wires the control-plane routes onto the engine.
// RegisterRoutes 将控制平面路由挂到引擎上。
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/status", h.GetStatus)

	agentRouter := r.Group("/agents")
	{
		agentRouter.GET("/:id", h.GetAgent)
		agentRouter.POST("/:id/start", h.StartAgent)
		agentRouter.POST("/:id/stop", h.StopAgent)
		agentRouter.POST("/:id/restart", h.RestartAgent)
	}
}

// ==================== Request/Response Types 请求/响应类型 ====================

// AgentResponse represents the response for a single-agent operation.
// AgentResponse 表示单个 agent 操作的响应。
type AgentResponse struct {
	ErrorMsg string              `json:"error_msg"`
	Data     *registry.AgentView `json:"data"`
}

// ==================== Handlers 处理器 ====================

// GetStatus handles GET /status - lists all agents in index order.
// GetStatus 处理 GET /status - 按序号顺序列出所有 agent。
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.sup.StatusAll())
}

// GetAgent handles GET /agents/:id - returns one agent's snapshot.
// GetAgent 处理 GET /agents/:id - 返回单个 agent 的快照。
func (h *Handler) GetAgent(c *gin.Context) {
	id := c.Param("id")
	view, err := h.sup.Status(id)
	if err != nil {
		c.JSON(http.StatusNotFound, AgentResponse{ErrorMsg: err.Error()})
		return
	}
	c.JSON(http.StatusOK, AgentResponse{Data: &view})
}

// StartAgent handles POST /agents/:id/start - enables and launches an agent.
// StartAgent 处理 POST /agents/:id/start - 启用并启动一个 agent。
func (h *Handler) StartAgent(c *gin.Context) {
	h.runCommand(c, "start", h.sup.StartAgent)
}

// StopAgent handles POST /agents/:id/stop - disables and stops an agent.
// StopAgent 处理 POST /agents/:id/stop - 禁用并停止一个 agent。
func (h *Handler) StopAgent(c *gin.Context) {
	h.runCommand(c, "stop", h.sup.StopAgent)
}

// RestartAgent handles POST /agents/:id/restart - replaces an agent's
// process immediately.
// RestartAgent 处理 POST /agents/:id/restart - 立即替换 agent 的进程。
func (h *Handler) RestartAgent(c *gin.Context) {
	h.runCommand(c, "restart", h.sup.RestartAgent)
}

// runCommand executes one lifecycle command and renders the common
// success/not-found/failure responses.
// runCommand 执行一个生命周期命令并渲染通用的成功/未找到/失败响应。
func (h *Handler) runCommand(c *gin.Context, name string, cmd func(ctx context.Context, id string) error) {
	id := c.Param("id")
	logger.InfoF(c.Request.Context(), "received %s command for agent %s", name, id)

	if err := cmd(c.Request.Context(), id); err != nil {
		if errors.Is(err, registry.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, AgentResponse{ErrorMsg: err.Error()})
			return
		}
		// The transition was accepted even though the spawn itself failed:
		// the agent is left Failed with a retry scheduled, and the snapshot
		// below reports that outcome. Unknown id is the only request error.
		// 即使 spawn 本身失败，状态转换也已被接受：agent 进入 Failed 并已
		// 安排重试，下方快照会反映该结果。未知 id 是唯一的请求错误。
		logger.WarnF(c.Request.Context(), "%s command for agent %s: %v", name, id, err)
	}

	view, err := h.sup.Status(id)
	if err != nil {
		c.JSON(http.StatusNotFound, AgentResponse{ErrorMsg: err.Error()})
		return
	}
	c.JSON(http.StatusOK, AgentResponse{Data: &view})
}
