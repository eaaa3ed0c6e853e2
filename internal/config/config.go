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

// Package config provides configuration management for the Commander service.
// config 包提供 Commander 服务的配置管理功能。
//
// Configuration loading priority (highest to lowest):
// 配置加载优先级（从高到低）：
// 1. Command line arguments / 命令行参数
// 2. Environment variables (COMMANDER_*) / 环境变量（COMMANDER_*）
// 3. Configuration file / 配置文件
// 4. Default values / 默认值
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values
// 默认配置值
const (
	DefaultConfigPath      = "/etc/openclaw-commander/config.yaml"
	DefaultFleetID         = "fleet-local"
	DefaultFleetCount      = 1
	DefaultBasePort        = 20000
	DefaultPortStride      = 100
	DefaultHomeRoot        = ".fleets"
	DefaultPollInterval    = 1 * time.Second
	DefaultBackoffBase     = 2 * time.Second
	DefaultBackoffMax      = 30 * time.Second
	DefaultStabilityWindow = 60 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogMaxSize      = 100 // MB
	DefaultLogMaxBackups   = 3
	DefaultLogMaxAge       = 7 // days
)

// Config represents the Commander configuration
// Config 表示 Commander 配置
type Config struct {
	// Fleet describes the set of agents to supervise / Fleet 描述要监管的 agent 集合
	Fleet FleetConfig `mapstructure:"fleet"`

	// Agent describes how each worker process is spawned / Agent 描述每个工作进程的启动方式
	Agent AgentConfig `mapstructure:"agent"`

	// Watchdog tunes crash detection and recovery / Watchdog 调整崩溃检测与恢复
	Watchdog WatchdogConfig `mapstructure:"watchdog"`

	// API configures the control-plane HTTP server / API 配置控制平面 HTTP 服务器
	API APIConfig `mapstructure:"api"`

	// Log configuration / 日志配置
	Log LogConfig `mapstructure:"log"`

	// Telemetry configures OpenTelemetry tracing / Telemetry 配置 OpenTelemetry 追踪
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// FleetConfig identifies the fleet and its network layout
// FleetConfig 标识舰队及其网络布局
type FleetConfig struct {
	// ID is the fleet identifier; agent ids are "{id}-{index}"
	// ID 是舰队标识符；agent id 为 "{id}-{index}"
	ID string `mapstructure:"id"`

	// Count is the number of agents to launch
	// Count 是要启动的 agent 数量
	Count int `mapstructure:"count"`

	// BasePort is the first agent port; the control API binds BasePort-1
	// BasePort 是第一个 agent 端口；控制 API 绑定 BasePort-1
	BasePort int `mapstructure:"base_port"`

	// PortStride is the port distance between consecutive agents
	// PortStride 是相邻 agent 之间的端口间距
	PortStride int `mapstructure:"port_stride"`

	// IPv6Prefix, when set, derives a distinct bind address per agent
	// IPv6Prefix 设置后为每个 agent 派生不同的绑定地址
	IPv6Prefix string `mapstructure:"ipv6_prefix"`

	// HomeRoot is the directory holding per-agent home directories
	// HomeRoot 是存放各 agent 主目录的目录
	HomeRoot string `mapstructure:"home_root"`
}

// AgentConfig describes the worker process each agent slot runs
// AgentConfig 描述每个 agent 槽位运行的工作进程
type AgentConfig struct {
	// Program is the executable to spawn
	// Program 是要启动的可执行文件
	Program string `mapstructure:"program"`

	// Args are the program arguments
	// Args 是程序参数
	Args []string `mapstructure:"args"`

	// Env holds extra environment variables passed to every agent
	// Env 保存传递给每个 agent 的额外环境变量
	Env map[string]string `mapstructure:"env"`
}

// WatchdogConfig tunes the recovery loop
// WatchdogConfig 调整恢复循环
type WatchdogConfig struct {
	// PollInterval is the liveness polling interval
	// PollInterval 是存活性轮询间隔
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// BackoffBase is the delay before the first automatic restart
	// BackoffBase 是首次自动重启前的延迟
	BackoffBase time.Duration `mapstructure:"backoff_base"`

	// BackoffMax caps the delay between automatic restarts
	// BackoffMax 是自动重启之间延迟的上限
	BackoffMax time.Duration `mapstructure:"backoff_max"`

	// StabilityWindow is the continuous uptime after which the restart
	// attempt counter resets to zero
	// StabilityWindow 是连续运行多久后重启计数器归零
	StabilityWindow time.Duration `mapstructure:"stability_window"`
}

// APIConfig configures the control-plane HTTP server
// APIConfig 配置控制平面 HTTP 服务器
type APIConfig struct {
	// Listen is the bind address; empty means ":{base_port-1}"
	// Listen 是绑定地址；为空表示 ":{base_port-1}"
	Listen string `mapstructure:"listen"`
}

// LogConfig contains logging settings
// LogConfig 包含日志设置
type LogConfig struct {
	// Level is the log level (debug, info, warn, error)
	// Level 是日志级别（debug, info, warn, error）
	Level string `mapstructure:"level"`

	// File is the log file path; empty logs to stderr only
	// File 是日志文件路径；为空则只输出到标准错误
	File string `mapstructure:"file"`

	// MaxSize is the maximum size of log file in MB before rotation
	// MaxSize 是日志文件轮转前的最大大小（MB）
	MaxSize int `mapstructure:"max_size"`

	// MaxBackups is the maximum number of old log files to retain
	// MaxBackups 是保留的旧日志文件的最大数量
	MaxBackups int `mapstructure:"max_backups"`

	// MaxAge is the maximum number of days to retain old log files
	// MaxAge 是保留旧日志文件的最大天数
	MaxAge int `mapstructure:"max_age"`
}

// TelemetryConfig contains OpenTelemetry settings
// TelemetryConfig 包含 OpenTelemetry 设置
type TelemetryConfig struct {
	// Enabled indicates whether tracing is enabled
	// Enabled 表示是否启用追踪
	Enabled bool `mapstructure:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint
	// Endpoint 是 OTLP gRPC 采集器端点
	Endpoint string `mapstructure:"endpoint"`
}

// Load loads configuration from file and environment variables
// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values / 设置默认值
	setDefaults(v)

	// Set config file path / 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Check environment variable / 检查环境变量
		envPath := os.Getenv("COMMANDER_CONFIG_PATH")
		if envPath != "" {
			v.SetConfigFile(envPath)
		} else {
			v.SetConfigFile(DefaultConfigPath)
		}
	}

	// Enable environment variable override / 启用环境变量覆盖
	v.SetEnvPrefix("COMMANDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file / 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error if we have defaults
		// 如果有默认值，配置文件未找到不是错误
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Check if file exists / 检查文件是否存在
			if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, use defaults / 文件不存在，使用默认值
		}
	}

	// Unmarshal config / 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// Fleet defaults / 舰队默认值
	v.SetDefault("fleet.id", DefaultFleetID)
	v.SetDefault("fleet.count", DefaultFleetCount)
	v.SetDefault("fleet.base_port", DefaultBasePort)
	v.SetDefault("fleet.port_stride", DefaultPortStride)
	v.SetDefault("fleet.ipv6_prefix", "")
	v.SetDefault("fleet.home_root", DefaultHomeRoot)

	// Agent defaults / agent 默认值
	v.SetDefault("agent.program", "node")
	v.SetDefault("agent.args", []string{"openclaw.mjs", "gateway", "run"})
	v.SetDefault("agent.env", map[string]string{})

	// Watchdog defaults / 看门狗默认值
	v.SetDefault("watchdog.poll_interval", DefaultPollInterval)
	v.SetDefault("watchdog.backoff_base", DefaultBackoffBase)
	v.SetDefault("watchdog.backoff_max", DefaultBackoffMax)
	v.SetDefault("watchdog.stability_window", DefaultStabilityWindow)

	// API defaults / API 默认值
	v.SetDefault("api.listen", "")

	// Log defaults / 日志默认值
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("log.max_age", DefaultLogMaxAge)

	// Telemetry defaults / 遥测默认值
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
}

// Validate validates the configuration
// Validate 验证配置
func (c *Config) Validate() error {
	if c.Fleet.ID == "" {
		return errors.New("fleet.id is required")
	}
	if c.Fleet.Count < 1 {
		return fmt.Errorf("fleet.count must be at least 1, got %d", c.Fleet.Count)
	}
	if c.Fleet.BasePort < 2 || c.Fleet.BasePort > 65535 {
		return fmt.Errorf("fleet.base_port must be in [2, 65535], got %d", c.Fleet.BasePort)
	}
	if c.Fleet.PortStride < 1 {
		return fmt.Errorf("fleet.port_stride must be at least 1, got %d", c.Fleet.PortStride)
	}

	// The highest agent port must still fit in the port range
	// 最高的 agent 端口必须仍在端口范围内
	highest := c.Fleet.BasePort + (c.Fleet.Count-1)*c.Fleet.PortStride
	if highest > 65535 {
		return fmt.Errorf("fleet layout exceeds port range: agent %d would use port %d", c.Fleet.Count-1, highest)
	}

	if c.Agent.Program == "" {
		return errors.New("agent.program is required")
	}

	if c.Watchdog.PollInterval <= 0 {
		return errors.New("watchdog.poll_interval must be positive")
	}
	if c.Watchdog.BackoffBase <= 0 {
		return errors.New("watchdog.backoff_base must be positive")
	}
	if c.Watchdog.BackoffMax < c.Watchdog.BackoffBase {
		return errors.New("watchdog.backoff_max must be >= watchdog.backoff_base")
	}
	if c.Watchdog.StabilityWindow <= 0 {
		return errors.New("watchdog.stability_window must be positive")
	}

	// Validate log level / 验证日志级别
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	return nil
}

// APIListenAddr returns the control-plane bind address, defaulting to the
// port just below the fleet's base port.
// APIListenAddr 返回控制平面绑定地址，默认使用舰队基础端口下方的端口。
func (c *Config) APIListenAddr() string {
	if c.API.Listen != "" {
		return c.API.Listen
	}
	return fmt.Sprintf(":%d", c.Fleet.BasePort-1)
}

// AgentPort returns the network port assigned to the agent at index i.
// AgentPort 返回分配给索引 i 的 agent 的网络端口。
func (c *Config) AgentPort(i int) int {
	return c.Fleet.BasePort + i*c.Fleet.PortStride
}

// AgentID returns the id of the agent at index i.
// AgentID 返回索引 i 的 agent 的 id。
func (c *Config) AgentID(i int) string {
	return fmt.Sprintf("%s-%d", c.Fleet.ID, i)
}
