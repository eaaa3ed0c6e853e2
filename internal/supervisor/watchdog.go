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

// tick advances every agent one watchdog step: confirm liveness, detect
// crashes, fire elapsed restart timers and confirm requested stops.
// tick 使每个 agent 前进一个看门狗步骤：确认存活、检测崩溃、触发到期的
// 重启定时器并确认已请求的停止。
func (s *Supervisor) tick(ctx context.Context) {
	for _, id := range s.reg.IDs() {
		_ = s.reg.Apply(id, func(a *registry.Agent) error {
			s.stepLocked(ctx, a)
			return nil
		})
	}
}

// stepLocked is one watchdog step for one agent, under its transition lock.
// stepLocked 是单个 agent 在其转换锁下的一个看门狗步骤。
func (s *Supervisor) stepLocked(ctx context.Context, a *registry.Agent) {
	switch a.Observed {
	case registry.StateStarting:
		switch s.pollLocked(a) {
		case launcher.Alive:
			a.Observed = registry.StateRunning
			logger.InfoF(ctx, "agent %s (pid %d) is running", a.ID, a.PID)
		case launcher.ExitedUnexpectedly:
			s.handleExitLocked(ctx, a)
		case launcher.Superseded:
			logger.DebugF(ctx, "discarding stale observation for agent %s (generation %d)",
				a.ID, a.Generation)
		}

	case registry.StateRunning:
		switch s.pollLocked(a) {
		case launcher.Alive:
			// A process that has stayed up long enough earns a clean slate
			// 持续运行足够久的进程重新获得干净的计数
			if a.RestartAttempts > 0 && s.now().Sub(a.RunningSince) >= s.stabilityWindow {
				logger.InfoF(ctx, "agent %s stable for %s, resetting restart count",
					a.ID, s.stabilityWindow)
				a.RestartAttempts = 0
			}
		case launcher.ExitedUnexpectedly:
			s.handleExitLocked(ctx, a)
		}

	case registry.StateStopping:
		switch s.pollLocked(a) {
		case launcher.ExitedUnexpectedly:
			a.PID = 0
			if a.Desired == registry.DesiredEnabled {
				// A start command arrived while the old process was dying
				// 旧进程退出期间收到了启动命令
				_ = s.spawnLocked(ctx, a)
			} else {
				a.Observed = registry.StateStopped
				logger.InfoF(ctx, "agent %s stopped", a.ID)
			}
		}

	case registry.StateFailed:
		// The crash has been visible for one poll; move to the waiting state
		// 崩溃状态已展示一个轮询周期；进入等待状态
		if a.Desired == registry.DesiredEnabled && !a.NextRestartAt.IsZero() {
			a.Observed = registry.StateRestarting
		}

	case registry.StateRestarting:
		if a.Desired != registry.DesiredEnabled {
			a.Observed = registry.StateStopped
			a.NextRestartAt = time.Time{}
			return
		}
		if !a.NextRestartAt.IsZero() && !s.now().Before(a.NextRestartAt) {
			a.NextRestartAt = time.Time{}
			_ = s.spawnLocked(ctx, a)
		}
	}
}
