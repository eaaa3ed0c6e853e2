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

package supervisor

import (
	"context"
	"time"

	"github.com/openclaw/commander/internal/launcher"
	"github.com/openclaw/commander/internal/logger"
	"github.com/openclaw/commander/internal/registry"
)

// StartAgent marks the agent enabled and spawns its process unless one is
// already live. Starting an agent that is already running is a no-op.
// StartAgent 将 agent 标记为启用并启动其进程，已有存活进程时除外。
// 启动已在运行的 agent 是空操作。
func (s *Supervisor) StartAgent(ctx context.Context, id string) error {
	return s.reg.Apply(id, func(a *registry.Agent) error {
		a.Desired = registry.DesiredEnabled

		switch a.Observed {
		case registry.StateStarting, registry.StateRunning:
			return nil
		case registry.StateStopping:
			// The old process is on its way out; the watchdog respawns once
			// the exit is confirmed, because desired is now enabled.
			// 旧进程正在退出；由于期望状态已改为启用，看门狗在确认退出后
			// 会重新启动。
			return nil
		}

		a.RestartAttempts = 0
		a.NextRestartAt = time.Time{}
		return s.spawnLocked(ctx, a)
	})
}

// StopAgent marks the agent disabled, cancels any pending automatic restart
// and signals the live process if there is one. Stopping a stopped agent is
// a no-op.
// StopAgent 将 agent 标记为禁用，取消任何待定的自动重启，并向存活进程发送
// 信号（如果有）。停止已停止的 agent 是空操作。
func (s *Supervisor) StopAgent(ctx context.Context, id string) error {
	return s.reg.Apply(id, func(a *registry.Agent) error {
		a.Desired = registry.DesiredDisabled
		a.NextRestartAt = time.Time{}
		a.RestartAttempts = 0

		switch a.Observed {
		case registry.StateStopped, registry.StateStopping:
			return nil
		case registry.StateFailed, registry.StateRestarting:
			a.Observed = registry.StateStopped
			return nil
		}

		logger.InfoF(ctx, "stopping agent %s (pid %d)", a.ID, a.PID)
		if err := s.launchers[a.ID].Terminate(a.PID, a.Generation); err != nil {
			return err
		}
		a.Observed = registry.StateStopping
		return nil
	})
}

// RestartAgent replaces the agent's process immediately, without backoff.
// The old process, if any, is signalled; its late observations are discarded
// by the generation bump of the new spawn.
// RestartAgent 立即替换 agent 的进程，不做退避。旧进程（如有）会收到信号；
// 新进程启动带来的 generation 递增会使旧进程的迟到观察结果被丢弃。
func (s *Supervisor) RestartAgent(ctx context.Context, id string) error {
	return s.reg.Apply(id, func(a *registry.Agent) error {
		a.Desired = registry.DesiredEnabled
		a.RestartAttempts = 0
		a.NextRestartAt = time.Time{}

		if a.Observed.HasPID() {
			if err := s.launchers[a.ID].Terminate(a.PID, a.Generation); err != nil {
				logger.WarnF(ctx, "failed to signal old process of agent %s: %v", a.ID, err)
			}
		}
		return s.spawnLocked(ctx, a)
	})
}

// spawnLocked launches a new process for the agent. Called with the agent's
// transition lock held. On failure the agent lands in Failed with a restart
// scheduled, so the watchdog keeps retrying for enabled agents.
// spawnLocked 为 agent 启动新进程。调用时必须持有该 agent 的转换锁。
// 失败时 agent 进入 Failed 并排定重启，看门狗会对启用的 agent 继续重试。
func (s *Supervisor) spawnLocked(ctx context.Context, a *registry.Agent) error {
	pid, gen, err := s.launchers[a.ID].Spawn(ctx, a.Spec)
	if err != nil {
		a.Observed = registry.StateFailed
		a.PID = 0
		a.LastError = err.Error()
		a.RestartAttempts++
		a.NextRestartAt = s.now().Add(s.policy.Delay(a.RestartAttempts - 1))
		logger.ErrorF(ctx, "failed to spawn agent %s: %v", a.ID, err)
		return err
	}

	a.Observed = registry.StateStarting
	a.PID = pid
	a.Generation = gen
	a.RunningSince = s.now()
	a.LastError = ""
	logger.InfoF(ctx, "spawned agent %s (pid %d, generation %d)", a.ID, pid, gen)
	return nil
}

// handleExitLocked reacts to a confirmed unexpected exit of the current
// process. Called with the agent's transition lock held.
// handleExitLocked 处理当前进程已确认的意外退出。调用时必须持有该 agent
// 的转换锁。
func (s *Supervisor) handleExitLocked(ctx context.Context, a *registry.Agent) {
	pid := a.PID
	a.PID = 0

	if a.Desired == registry.DesiredDisabled {
		// Stop raced with the exit; honor the operator's intent
		// 停止命令与退出竞争；遵循运维意图
		a.Observed = registry.StateStopped
		return
	}

	a.Observed = registry.StateFailed
	a.LastError = "process exited unexpectedly"
	a.RestartAttempts++
	delay := s.policy.Delay(a.RestartAttempts - 1)
	a.NextRestartAt = s.now().Add(delay)
	logger.WarnF(ctx, "agent %s (pid %d) exited unexpectedly, restart %d in %s",
		a.ID, pid, a.RestartAttempts, delay)
}

// pollLocked asks the launcher about the current process, ignoring results
// from superseded generations.
// pollLocked 向 launcher 查询当前进程，忽略来自被取代 generation 的结果。
func (s *Supervisor) pollLocked(a *registry.Agent) launcher.Liveness {
	return s.launchers[a.ID].PollLiveness(a.PID, a.Generation)
}
