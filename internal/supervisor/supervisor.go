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

// Package supervisor drives the fleet: it owns one launcher per agent slot,
// executes manual lifecycle commands and runs the crash watchdog.
// supervisor 包驱动舰队：它为每个 agent 槽位持有一个 launcher，
// 执行手动生命周期命令并运行崩溃看门狗。
//
// Every transition of an agent, whether triggered by an operator command or
// by the watchdog, runs under that agent's transition lock via
// Registry.Apply, so commands and crash handling never interleave.
// 无论由运维命令还是看门狗触发，agent 的每次状态转换都经由 Registry.Apply
// 在该 agent 的转换锁下执行，因此命令与崩溃处理不会交错。
package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/openclaw/commander/internal/backoff"
	"github.com/openclaw/commander/internal/config"
	"github.com/openclaw/commander/internal/launcher"
	"github.com/openclaw/commander/internal/logger"
	"github.com/openclaw/commander/internal/netutil"
	"github.com/openclaw/commander/internal/provision"
	"github.com/openclaw/commander/internal/registry"
)

// Supervisor coordinates all agents of one fleet.
// Supervisor 协调一个舰队的全部 agent。
type Supervisor struct {
	reg       *registry.Registry
	launchers map[string]launcher.Launcher

	policy          backoff.Policy
	pollInterval    time.Duration
	stabilityWindow time.Duration

	// now is swappable so the watchdog can be tested with a fake clock
	// now 可替换，便于用假时钟测试看门狗
	now func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a supervisor over an already populated registry, creating one
// launcher per registered agent.
// New 基于已填充的注册表构建 supervisor，为每个已注册 agent 创建一个 launcher。
func New(cfg *config.Config, reg *registry.Registry, f launcher.Factory) *Supervisor {
	launchers := make(map[string]launcher.Launcher)
	for _, id := range reg.IDs() {
		launchers[id] = f()
	}

	policy := backoff.Policy{
		Base: cfg.Watchdog.BackoffBase,
		Max:  cfg.Watchdog.BackoffMax,
	}

	return &Supervisor{
		reg:             reg,
		launchers:       launchers,
		policy:          policy,
		pollInterval:    cfg.Watchdog.PollInterval,
		stabilityWindow: cfg.Watchdog.StabilityWindow,
		now:             time.Now,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// BuildFleet provisions per-agent homes and registers the fleet's agent slots
// into the registry. Slot layout is deterministic: id "{fleet_id}-{index}",
// port base_port + index*port_stride.
// BuildFleet 初始化每个 agent 的家目录并把舰队的 agent 槽位注册到注册表。
// 槽位布局是确定的：id 为 "{fleet_id}-{index}"，端口为
// base_port + index*port_stride。
func BuildFleet(ctx context.Context, cfg *config.Config) (*registry.Registry, error) {
	reg := registry.New()

	for i := 0; i < cfg.Fleet.Count; i++ {
		id := cfg.AgentID(i)
		port := cfg.AgentPort(i)

		home, err := provision.EnsureAgentHome(ctx, cfg.Fleet.HomeRoot, id, port)
		if err != nil {
			return nil, fmt.Errorf("provision agent %s: %w", id, err)
		}

		env := map[string]string{
			"HOME":                  home,
			"OPENCLAW_GATEWAY_PORT": fmt.Sprintf("%d", port),
		}
		for k, v := range cfg.Agent.Env {
			env[k] = v
		}

		// Each agent can get its own egress address from a shared prefix
		// 每个 agent 可以从共享前缀得到自己的出口地址
		if cfg.Fleet.IPv6Prefix != "" {
			addr, err := netutil.AgentIPv6(cfg.Fleet.IPv6Prefix, i)
			if err != nil {
				return nil, fmt.Errorf("derive address for agent %s: %w", id, err)
			}
			env["OPENCLAW_BAILEYS_BIND_IP"] = addr
		}

		reg.Add(&registry.Agent{
			ID:    id,
			Index: i,
			Spec: registry.SpawnSpec{
				Program: cfg.Agent.Program,
				Args:    cfg.Agent.Args,
				Env:     env,
				LogFile: filepath.Join(cfg.Fleet.HomeRoot, id, "agent.log"),
				Port:    port,
			},
		})
	}

	return reg, nil
}

// Run starts the watchdog loop and blocks until Shutdown is called.
// Run 启动看门狗循环并阻塞，直到调用 Shutdown。
func (s *Supervisor) Run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	logger.InfoF(ctx, "watchdog started, poll interval %s", s.pollInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// StartAll launches every agent whose desired state is enabled. Used once at
// fleet boot.
// StartAll 启动所有期望状态为启用的 agent。在舰队启动时调用一次。
func (s *Supervisor) StartAll(ctx context.Context) {
	for _, id := range s.reg.IDs() {
		if err := s.StartAgent(ctx, id); err != nil {
			logger.ErrorF(ctx, "failed to start agent %s: %v", id, err)
		}
	}
}

// Status returns the snapshot of one agent.
// Status 返回单个 agent 的快照。
func (s *Supervisor) Status(id string) (registry.AgentView, error) {
	return s.reg.Snapshot(id)
}

// StatusAll returns snapshots of every agent in index order.
// StatusAll 按序号顺序返回所有 agent 的快照。
func (s *Supervisor) StatusAll() []registry.AgentView {
	return s.reg.ListSnapshots()
}

// Shutdown stops the watchdog, signals every live process group and waits
// for exits until the context expires. Processes still alive at that point
// are abandoned to the OS.
// Shutdown 停止看门狗，向所有存活进程组发送信号，并在 context 到期前等待
// 退出。届时仍存活的进程交由操作系统处理。
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh

	for _, id := range s.reg.IDs() {
		_ = s.reg.Apply(id, func(a *registry.Agent) error {
			a.Desired = registry.DesiredDisabled
			a.NextRestartAt = time.Time{}
			if a.Observed.HasPID() {
				if err := s.launchers[a.ID].Terminate(a.PID, a.Generation); err != nil {
					logger.WarnF(ctx, "failed to signal agent %s (pid %d): %v", a.ID, a.PID, err)
				}
				a.Observed = registry.StateStopping
			} else {
				a.Observed = registry.StateStopped
			}
			return nil
		})
	}

	// Poll until every process is confirmed gone or the deadline hits
	// 轮询直到所有进程确认退出或截止时间到达
	for {
		if s.confirmShutdown(ctx) {
			logger.InfoF(ctx, "all agents stopped")
			return
		}
		select {
		case <-ctx.Done():
			logger.WarnF(ctx, "shutdown deadline reached with agents still running")
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (s *Supervisor) confirmShutdown(ctx context.Context) bool {
	allDown := true
	for _, id := range s.reg.IDs() {
		_ = s.reg.Apply(id, func(a *registry.Agent) error {
			if a.Observed != registry.StateStopping {
				return nil
			}
			if s.launchers[a.ID].PollLiveness(a.PID, a.Generation) == launcher.Alive {
				allDown = false
				return nil
			}
			a.Observed = registry.StateStopped
			a.PID = 0
			return nil
		})
	}
	return allDown
}
