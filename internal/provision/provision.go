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

// Package provision builds the per-agent home directory and gateway
// configuration before the first launch.
// provision 包在首次启动前构建每个 agent 的家目录和网关配置。
//
// Provisioning is one-time: an existing gateway config (holding the agent's
// auth token) is never overwritten, so the token survives restarts.
// 初始化只执行一次：已存在的网关配置（保存 agent 的认证令牌）不会被覆盖，
// 令牌在重启之间保持不变。
package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/openclaw/commander/internal/logger"
)

const (
	configDirName  = ".openclaw"
	configFileName = "openclaw.json"

	gatewayVersion = "2026.2.3"
)

// GatewayAuth is the token-based auth block of the gateway config.
// GatewayAuth 是网关配置中基于令牌的认证部分。
type GatewayAuth struct {
	Mode  string `json:"mode"`
	Token string `json:"token"`
}

// Gateway describes how the agent's gateway listens locally.
// Gateway 描述 agent 的网关如何在本地监听。
type Gateway struct {
	Mode string      `json:"mode"`
	Port int         `json:"port"`
	Bind string      `json:"bind"`
	Auth GatewayAuth `json:"auth"`
}

// PluginEntry toggles a single plugin.
// PluginEntry 控制单个插件的开关。
type PluginEntry struct {
	Enabled bool `json:"enabled"`
}

// PluginLoad lists extension directories to load plugins from.
// PluginLoad 列出加载插件的扩展目录。
type PluginLoad struct {
	Paths []string `json:"paths"`
}

// Plugins groups plugin toggles and load paths.
// Plugins 汇总插件开关和加载路径。
type Plugins struct {
	Entries map[string]PluginEntry `json:"entries,omitempty"`
	Load    *PluginLoad            `json:"load,omitempty"`
}

// Meta records which version last wrote the file.
// Meta 记录最后写入该文件的版本。
type Meta struct {
	LastTouchedVersion string `json:"lastTouchedVersion"`
}

// Session holds conversation scoping defaults.
// Session 保存会话作用域默认值。
type Session struct {
	DMScope string `json:"dmScope"`
}

// GatewayConfig is the JSON document written to the agent home.
// GatewayConfig 是写入 agent 家目录的 JSON 文档。
type GatewayConfig struct {
	Meta     *Meta                      `json:"meta,omitempty"`
	Session  *Session                   `json:"session,omitempty"`
	Plugins  *Plugins                   `json:"plugins,omitempty"`
	Channels map[string]json.RawMessage `json:"channels,omitempty"`
	Gateway  Gateway                    `json:"gateway"`
}

// EnsureAgentHome creates <homeRoot>/<agentID> with a gateway config bound to
// the given port and returns the agent home path. Idempotent: a home that
// already has a config is left untouched.
// EnsureAgentHome 创建 <homeRoot>/<agentID> 并写入绑定到给定端口的网关配置，
// 返回 agent 家目录路径。幂等：已有配置的家目录保持原样。
func EnsureAgentHome(ctx context.Context, homeRoot, agentID string, port int) (string, error) {
	agentHome := filepath.Join(homeRoot, agentID)
	configDir := filepath.Join(agentHome, configDirName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("create agent config dir: %w", err)
	}
	// MkdirAll keeps existing modes; tighten explicitly
	// MkdirAll 不修改已存在目录的权限；此处显式收紧
	if err := os.Chmod(configDir, 0700); err != nil {
		return "", fmt.Errorf("chmod agent config dir: %w", err)
	}

	configPath := filepath.Join(configDir, configFileName)
	if _, err := os.Stat(configPath); err == nil {
		return agentHome, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat agent config: %w", err)
	}

	logger.InfoF(ctx, "provisioning new configuration for agent %s", agentID)

	cfg := newGatewayConfig(agentHome, port)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode agent config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return "", fmt.Errorf("write agent config: %w", err)
	}
	return agentHome, nil
}

// ConfigPath returns where the gateway config of an agent home lives.
// ConfigPath 返回 agent 家目录中网关配置的位置。
func ConfigPath(agentHome string) string {
	return filepath.Join(agentHome, configDirName, configFileName)
}

func newGatewayConfig(agentHome string, port int) GatewayConfig {
	extensions := filepath.Join(filepath.Dir(filepath.Dir(agentHome)), "extensions")

	return GatewayConfig{
		Meta:    &Meta{LastTouchedVersion: gatewayVersion},
		Session: &Session{DMScope: "per-channel-peer"},
		Plugins: &Plugins{
			Entries: map[string]PluginEntry{
				"whatsapp":               {Enabled: true},
				"google-gemini-cli-auth": {Enabled: true},
			},
			Load: &PluginLoad{
				Paths: []string{
					filepath.Join(extensions, "whatsapp"),
					filepath.Join(extensions, "google-gemini-cli-auth"),
				},
			},
		},
		Channels: map[string]json.RawMessage{
			"whatsapp": json.RawMessage(`{"dmPolicy":"open","allowFrom":["*"]}`),
		},
		Gateway: Gateway{
			Mode: "local",
			Port: port,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode:  "token",
				Token: newToken(),
			},
		},
	}
}

// newToken mints a fresh gateway auth token.
// newToken 生成新的网关认证令牌。
func newToken() string {
	return "tk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
