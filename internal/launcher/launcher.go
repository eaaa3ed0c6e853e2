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

// Package launcher wraps OS process spawn/signal/wait primitives for one
// agent slot.
// launcher 包为单个 agent 槽位封装操作系统的进程启动/信号/等待原语。
//
// A launcher owns at most one live OS process handle at a time. Every spawn
// bumps a generation counter; Terminate and PollLiveness ignore requests
// carrying a stale generation, which is what makes late observations from a
// superseded process safely discardable.
// 一个 launcher 同一时刻至多拥有一个存活的进程句柄。每次启动都会递增
// generation 计数；Terminate 和 PollLiveness 会忽略携带过期 generation 的
// 请求，这正是被取代进程的迟到观察结果可以被安全丢弃的原因。
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"

	"github.com/openclaw/commander/internal/registry"
)

// ErrSpawn indicates the OS refused or failed to create the process.
// Reported up to the state machine, never retried here.
// ErrSpawn 表示操作系统拒绝或未能创建进程。上报给状态机，此处不做重试。
var ErrSpawn = errors.New("failed to spawn process")

// Liveness is the result of a non-blocking process check
// Liveness 是非阻塞进程检查的结果
type Liveness int

const (
	// Alive means the process of the given generation is still running
	// Alive 表示给定 generation 的进程仍在运行
	Alive Liveness = iota

	// ExitedUnexpectedly means the process of the given generation has been
	// reaped without the launcher being asked about it first
	// ExitedUnexpectedly 表示给定 generation 的进程已被回收
	ExitedUnexpectedly

	// Superseded means the generation no longer matches the tracked process;
	// the caller must discard the observation
	// Superseded 表示 generation 与当前跟踪的进程不再匹配；调用者必须丢弃该观察结果
	Superseded
)

// String returns a readable name for logging.
// String 返回用于日志的可读名称。
func (l Liveness) String() string {
	switch l {
	case Alive:
		return "alive"
	case ExitedUnexpectedly:
		return "exited"
	case Superseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Launcher is the process-control surface the state machine drives. The OS
// implementation is osLauncher; tests substitute a fake.
// Launcher 是状态机驱动的进程控制接口。操作系统实现是 osLauncher；
// 测试中可替换为模拟实现。
type Launcher interface {
	// Spawn starts a new process from the spec and returns its pid together
	// with the new generation number.
	// Spawn 根据 spec 启动新进程，返回其 pid 和新的 generation 编号。
	Spawn(ctx context.Context, spec registry.SpawnSpec) (pid int, generation uint64, err error)

	// Terminate sends a graceful termination signal to the process group.
	// Succeeds if the process is already gone; no-op on generation mismatch.
	// Terminate 向进程组发送优雅终止信号。进程已消失时视为成功；
	// generation 不匹配时为空操作。
	Terminate(pid int, generation uint64) error

	// PollLiveness is a non-blocking check of the tracked process.
	// PollLiveness 对被跟踪进程做非阻塞检查。
	PollLiveness(pid int, generation uint64) Liveness
}

// Factory creates one launcher per agent slot.
// Factory 为每个 agent 槽位创建一个 launcher。
type Factory func() Launcher

// osLauncher is the real implementation on top of os/exec.
// osLauncher 是基于 os/exec 的真实实现。
type osLauncher struct {
	mu         sync.Mutex
	generation uint64
	cmd        *exec.Cmd
	pid        int

	// exited records generations whose process has been reaped
	// exited 记录其进程已被回收的 generation
	exited map[uint64]bool
}

// NewOSLauncher creates a launcher backed by real OS processes.
// NewOSLauncher 创建由真实操作系统进程支撑的 launcher。
func NewOSLauncher() Launcher {
	return &osLauncher{exited: make(map[uint64]bool)}
}

// Spawn implements Launcher.
func (l *osLauncher) Spawn(ctx context.Context, spec registry.SpawnSpec) (int, uint64, error) {
	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = buildEnv(spec.Env)

	// Child runs in its own process group so termination signals reach the
	// whole subtree without touching the supervisor.
	// 子进程运行在独立的进程组中，终止信号可以覆盖整棵子树而不波及监管进程。
	setProcGroupAttr(cmd)

	// Capture child output to the agent's log file
	// 将子进程输出捕获到该 agent 的日志文件
	var logFile *os.File
	if spec.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(spec.LogFile), 0755); err != nil {
			return 0, 0, fmt.Errorf("%w: create log dir: %v", ErrSpawn, err)
		}
		f, err := os.OpenFile(spec.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: open log file: %v", ErrSpawn, err)
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return 0, 0, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	l.mu.Lock()
	l.generation++
	gen := l.generation
	l.cmd = cmd
	l.pid = cmd.Process.Pid

	// Results for superseded generations can never be observed again
	// 被取代的 generation 的结果不会再被查询
	for g := range l.exited {
		if g < gen {
			delete(l.exited, g)
		}
	}
	l.mu.Unlock()

	// Reap in the background so the handle is always released exactly once
	// and no zombie survives a restart cycle.
	// 后台回收，保证句柄恰好释放一次，重启循环中不会残留僵尸进程。
	go func() {
		_ = cmd.Wait()
		if logFile != nil {
			logFile.Close()
		}
		l.mu.Lock()
		l.exited[gen] = true
		l.mu.Unlock()
	}()

	return cmd.Process.Pid, gen, nil
}

// Terminate implements Launcher.
func (l *osLauncher) Terminate(pid int, generation uint64) error {
	l.mu.Lock()
	stale := generation != l.generation || pid != l.pid
	gone := l.exited[generation]
	l.mu.Unlock()

	if stale || gone {
		return nil
	}
	return terminateProcessGroup(pid)
}

// PollLiveness implements Launcher.
func (l *osLauncher) PollLiveness(pid int, generation uint64) Liveness {
	l.mu.Lock()
	defer l.mu.Unlock()

	if generation != l.generation || pid != l.pid {
		return Superseded
	}
	if l.exited[generation] {
		return ExitedUnexpectedly
	}
	return Alive
}

// buildEnv merges extra variables over the supervisor environment. Sorted for
// deterministic output in logs and tests.
// buildEnv 将额外变量合并到监管进程环境之上。排序以便日志和测试输出确定。
func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	if len(extra) == 0 {
		return env
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
