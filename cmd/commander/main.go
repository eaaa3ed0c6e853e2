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

// Package main is the entry point for the OpenClaw Fleet Commander.
// main 包是 OpenClaw Fleet Commander 的入口点。
//
// Commander is a single-host supervisor that:
// Commander 是单机监管进程，负责：
// - Launches a homogeneous fleet of gateway agents / 启动同构的网关 agent 舰队
// - Revives crashed agents with exponential backoff / 以指数退避复活崩溃的 agent
// - Exposes a lifecycle control plane over HTTP / 通过 HTTP 暴露生命周期控制平面
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openclaw/commander/internal/api"
	"github.com/openclaw/commander/internal/config"
	"github.com/openclaw/commander/internal/launcher"
	"github.com/openclaw/commander/internal/logger"
	"github.com/openclaw/commander/internal/netutil"
	"github.com/openclaw/commander/internal/otel_trace"
	"github.com/openclaw/commander/internal/provision"
	"github.com/openclaw/commander/internal/registry"
	"github.com/openclaw/commander/internal/service"
	"github.com/openclaw/commander/internal/supervisor"
)

// Version information, set at build time
// 版本信息，在构建时设置
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// configFile is the path to the configuration file
// configFile 是配置文件的路径
var configFile string

// rootCmd is the root command for the commander CLI
// rootCmd 是 commander CLI 的根命令
var rootCmd = &cobra.Command{
	Use:   "openclaw-commander",
	Short: "OpenClaw Fleet Commander - local supervisor for gateway agents",
	Long: `OpenClaw Fleet Commander runs a fleet of gateway agents on one host.
OpenClaw Fleet Commander 在单台主机上运行网关 agent 舰队。

It supervises the fleet to:
它监管舰队，用于：
- Launch agents on deterministic ports / 在确定的端口上启动 agent
- Revive crashed agents with exponential backoff / 以指数退避复活崩溃的 agent
- Serve start/stop/restart/status over HTTP / 通过 HTTP 提供启动/停止/重启/状态接口`,
}

// versionCmd shows version information
// versionCmd 显示版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information / 打印版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("OpenClaw Fleet Commander\n")
		fmt.Printf("  Version:    %s\n", Version)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Go Version: %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var startFleetCount int

// startFleetCmd runs the supervisor with the full fleet
// startFleetCmd 以完整舰队运行监管进程
var startFleetCmd = &cobra.Command{
	Use:   "start-fleet",
	Short: "Start the fleet and the control-plane API / 启动舰队和控制平面 API",
	RunE:  runStartFleet,
}

var (
	runAgentID   string
	runAgentIPv6 string
	runAgentPort int
)

// runAgentCmd runs a single agent under supervision, for testing
// runAgentCmd 监管运行单个 agent，用于测试
var runAgentCmd = &cobra.Command{
	Use:   "run-agent",
	Short: "Run a single agent manually (for testing) / 手动运行单个 agent（用于测试）",
	RunE:  runSingleAgent,
}

var installOpts service.InstallOptions

// installCmd installs the commander as a systemd service
// installCmd 将 commander 安装为 systemd 服务
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the commander as a systemd service (requires sudo) / 将 commander 安装为 systemd 服务（需要 sudo）",
	RunE: func(cmd *cobra.Command, args []string) error {
		return service.Install(cmd.Context(), installOpts)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (default: /etc/openclaw-commander/config.yaml)")

	startFleetCmd.Flags().IntVar(&startFleetCount, "count", 0,
		"number of agents to run, overrides config / 运行的 agent 数量，覆盖配置")

	runAgentCmd.Flags().StringVar(&runAgentID, "id", "", "unique agent id / 唯一 agent 标识")
	runAgentCmd.Flags().StringVar(&runAgentIPv6, "ipv6", "", "IPv6 address to bind / 绑定的 IPv6 地址")
	runAgentCmd.Flags().IntVar(&runAgentPort, "port", 20000, "gateway port for this agent / 该 agent 的网关端口")
	_ = runAgentCmd.MarkFlagRequired("id")

	installCmd.Flags().StringVar(&installOpts.FleetID, "fleet-id", "fleet-default",
		"fleet id for this server / 该服务器的舰队标识")
	installCmd.Flags().StringVar(&installOpts.IPv6Prefix, "ipv6-prefix", "",
		"IPv6 prefix for agent addresses (e.g. 2001:db8::) / agent 地址的 IPv6 前缀")
	installCmd.Flags().IntVar(&installOpts.BasePort, "base-port", 20000,
		"base port for the fleet / 舰队的基础端口")
	installCmd.Flags().StringVar(&installOpts.User, "user", "",
		"user to run the service as (defaults to current user) / 服务运行用户（默认当前用户）")

	rootCmd.AddCommand(versionCmd, startFleetCmd, runAgentCmd, installCmd)
}

// runStartFleet is the main entry point of the supervisor
// runStartFleet 是监管进程的主入口点
func runStartFleet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if startFleetCount > 0 {
		cfg.Fleet.Count = startFleetCount
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w / 无效配置：%w", err, err)
	}

	ctx := context.Background()

	otel_trace.Init(cfg)
	defer otel_trace.Shutdown(ctx)

	logger.InfoF(ctx, "starting fleet %s with %d agents", cfg.Fleet.ID, cfg.Fleet.Count)

	reg, err := supervisor.BuildFleet(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build fleet: %w / 构建舰队失败：%w", err, err)
	}

	sup := supervisor.New(cfg, reg, launcher.NewOSLauncher)
	go sup.Run(ctx)
	sup.StartAll(ctx)

	srv := api.New(cfg, sup)
	apiErr := srv.Start(ctx)

	// Wait for a signal or a fatal API error
	// 等待信号或致命的 API 错误
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigChan:
		logger.InfoF(ctx, "received signal %v, shutting down", sig)
	case err := <-apiErr:
		if err != nil {
			logger.ErrorF(ctx, "API server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	sup.Shutdown(shutdownCtx)
	logger.Sync()
	return nil
}

// runSingleAgent supervises one agent slot without the fleet layout
// runSingleAgent 在不使用舰队布局的情况下监管单个 agent 槽位
func runSingleAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if runAgentIPv6 != "" {
		// Sanity check only; the address goes to the agent verbatim
		// 仅做合法性检查；地址原样传给 agent
		if _, err := netutil.AgentIPv6(runAgentIPv6, 0); err != nil {
			return err
		}
	}

	home, err := provision.EnsureAgentHome(ctx, cfg.Fleet.HomeRoot, runAgentID, runAgentPort)
	if err != nil {
		return fmt.Errorf("provision agent %s: %w", runAgentID, err)
	}

	env := map[string]string{
		"HOME":                  home,
		"OPENCLAW_GATEWAY_PORT": fmt.Sprintf("%d", runAgentPort),
	}
	for k, v := range cfg.Agent.Env {
		env[k] = v
	}
	if runAgentIPv6 != "" {
		env["OPENCLAW_BAILEYS_BIND_IP"] = runAgentIPv6
	}

	reg := registry.New()
	reg.Add(&registry.Agent{
		ID:    runAgentID,
		Index: 0,
		Spec: registry.SpawnSpec{
			Program: cfg.Agent.Program,
			Args:    cfg.Agent.Args,
			Env:     env,
			LogFile: filepath.Join(cfg.Fleet.HomeRoot, runAgentID, "agent.log"),
			Port:    runAgentPort,
		},
	})

	sup := supervisor.New(cfg, reg, launcher.NewOSLauncher)
	go sup.Run(ctx)
	if err := sup.StartAgent(ctx, runAgentID); err != nil {
		logger.ErrorF(ctx, "agent %s failed to start: %v", runAgentID, err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	sig := <-sigChan
	logger.InfoF(ctx, "received signal %v, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	sup.Shutdown(shutdownCtx)
	logger.Sync()
	return nil
}

// loadConfig loads and applies the logging setup shared by all commands
// loadConfig 加载配置并应用各命令共享的日志设置
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w / 加载配置失败：%w", err, err)
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w / 初始化日志失败：%w", err, err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
