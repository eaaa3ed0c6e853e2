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

// Package registry holds the authoritative in-memory table of agent records.
// registry 包保存 agent 记录的权威内存表。
//
// Every state transition goes through Apply, which runs the caller's function
// under that agent's transition lock. Holding the lock for the whole
// read-modify-write is what keeps manual commands, crash handling and restart
// timers from racing on the same agent.
// 每次状态转换都通过 Apply 进行，它在该 agent 的转换锁下运行调用者的函数。
// 在整个“读-改-写”期间持有锁，才能避免手动命令、崩溃处理和重启定时器
// 在同一个 agent 上竞争。
package registry

import (
	"errors"
	"sync"
	"time"
)

// ErrAgentNotFound indicates a command referenced an unknown agent id
// ErrAgentNotFound 表示命令引用了未知的 agent id
var ErrAgentNotFound = errors.New("agent not found")

// DesiredState expresses operator intent for an agent
// DesiredState 表示运维人员对 agent 的意图
type DesiredState string

const (
	// DesiredEnabled means the watchdog should keep the process alive
	// DesiredEnabled 表示看门狗应保持进程存活
	DesiredEnabled DesiredState = "Enabled"

	// DesiredDisabled means a human stopped the agent on purpose
	// DesiredDisabled 表示有人有意停止了该 agent
	DesiredDisabled DesiredState = "Disabled"
)

// ObservedState is the current lifecycle phase of an agent
// ObservedState 是 agent 当前的生命周期阶段
type ObservedState string

const (
	StateStopped    ObservedState = "Stopped"
	StateStarting   ObservedState = "Starting"
	StateRunning    ObservedState = "Running"
	StateStopping   ObservedState = "Stopping"
	StateFailed     ObservedState = "Failed"
	StateRestarting ObservedState = "Restarting"
)

// HasPID reports whether an agent in this state owns an OS process.
// HasPID 报告处于该状态的 agent 是否拥有一个操作系统进程。
func (s ObservedState) HasPID() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// SpawnSpec describes how an agent's worker process is launched.
// Immutable once the agent is registered.
// SpawnSpec 描述 agent 的工作进程如何启动。agent 注册后不可变。
type SpawnSpec struct {
	// Program is the executable path / Program 是可执行文件路径
	Program string

	// Args are the program arguments / Args 是程序参数
	Args []string

	// Env holds extra environment variables (KEY=VALUE merged over the
	// supervisor environment) / Env 保存额外的环境变量（KEY=VALUE，
	// 合并到监管进程的环境之上）
	Env map[string]string

	// Dir is the working directory; empty inherits the supervisor's
	// Dir 是工作目录；为空则继承监管进程的目录
	Dir string

	// LogFile captures the child's stdout/stderr when set
	// LogFile 设置后捕获子进程的标准输出/标准错误
	LogFile string

	// Port is the network port assigned to this agent slot
	// Port 是分配给该 agent 槽位的网络端口
	Port int
}

// Agent is one fleet slot. Created once at fleet start and never removed,
// only transitioned. All mutable fields are guarded by mu (the transition
// lock), acquired via Registry.Apply.
// Agent 是一个舰队槽位。在舰队启动时创建一次，之后从不删除，只做状态转换。
// 所有可变字段由 mu（转换锁）保护，通过 Registry.Apply 获取。
type Agent struct {
	// ID is unique and immutable, "{fleet_id}-{index}"
	// ID 唯一且不可变，形如 "{fleet_id}-{index}"
	ID string

	// Index is the agent's position in the fleet
	// Index 是 agent 在舰队中的位置
	Index int

	// Spec describes how the worker process is spawned
	// Spec 描述工作进程如何启动
	Spec SpawnSpec

	// Desired is the operator intent / Desired 是运维意图
	Desired DesiredState

	// Observed is the current lifecycle phase / Observed 是当前生命周期阶段
	Observed ObservedState

	// PID is the OS process id; zero when no process is owned.
	// Invariant: PID != 0 iff Observed.HasPID().
	// PID 是操作系统进程号；未持有进程时为零。
	// 不变式：PID != 0 当且仅当 Observed.HasPID()。
	PID int

	// Generation increments once per successful spawn; observations carrying
	// an older generation are stale and must be discarded.
	// Generation 在每次成功启动时递增一次；携带旧 generation 的观察结果
	// 已过期，必须丢弃。
	Generation uint64

	// RestartAttempts counts consecutive automatic restarts; resets once the
	// process stays up past the stability window.
	// RestartAttempts 统计连续自动重启次数；进程持续运行超过稳定窗口后归零。
	RestartAttempts int

	// NextRestartAt is the scheduled automatic restart time; zero when no
	// restart is pending.
	// NextRestartAt 是计划的自动重启时间；没有待定重启时为零值。
	NextRestartAt time.Time

	// RunningSince is when the current process entered Running
	// RunningSince 是当前进程进入 Running 的时间
	RunningSince time.Time

	// LastError is the most recent spawn failure, for status diagnostics
	// LastError 是最近一次启动失败信息，用于状态诊断
	LastError string

	// mu is the per-agent transition lock
	// mu 是每个 agent 的转换锁
	mu sync.Mutex
}

// AgentView is an immutable snapshot of one agent for status queries.
// AgentView 是用于状态查询的单个 agent 的不可变快照。
type AgentView struct {
	ID     string        `json:"id"`
	Status ObservedState `json:"status"`

	// PID is null in JSON whenever the agent owns no process
	// 当 agent 未持有进程时，PID 在 JSON 中为 null
	PID *int `json:"pid"`

	Port            int          `json:"port"`
	Desired         DesiredState `json:"desired"`
	Generation      uint64       `json:"generation"`
	RestartAttempts int          `json:"restart_attempts"`
	UptimeSecs      int64        `json:"uptime_secs"`
	LastError       string       `json:"last_error,omitempty"`
}

// viewLocked builds a snapshot; a.mu must be held.
// viewLocked 构建快照；必须持有 a.mu。
func (a *Agent) viewLocked() AgentView {
	v := AgentView{
		ID:              a.ID,
		Status:          a.Observed,
		Port:            a.Spec.Port,
		Desired:         a.Desired,
		Generation:      a.Generation,
		RestartAttempts: a.RestartAttempts,
		LastError:       a.LastError,
	}
	if a.PID != 0 {
		pid := a.PID
		v.PID = &pid
	}
	if a.Observed == StateRunning && !a.RunningSince.IsZero() {
		v.UptimeSecs = int64(time.Since(a.RunningSince).Seconds())
	}
	return v
}

// Registry is the concurrent store of agent records, keyed by id.
// Registry 是按 id 索引的 agent 记录并发存储。
type Registry struct {
	// mu guards the map and order slice, not the agent fields
	// mu 保护 map 和顺序切片，不保护 agent 字段
	mu     sync.RWMutex
	agents map[string]*Agent

	// order holds ids in fleet index order for stable listings
	// order 按舰队索引顺序保存 id，保证列表输出稳定
	order []string
}

// New creates an empty Registry.
// New 创建一个空的 Registry。
func New() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Add registers a new agent record. The record starts Stopped/Enabled unless
// the caller pre-populated those fields.
// Add 注册一个新的 agent 记录。除非调用者预先填充，记录从 Stopped/Enabled 开始。
func (r *Registry) Add(a *Agent) {
	if a.Desired == "" {
		a.Desired = DesiredEnabled
	}
	if a.Observed == "" {
		a.Observed = StateStopped
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[a.ID]; ok {
		return // ids are assigned once at bootstrap / id 在引导时一次性分配
	}
	r.agents[a.ID] = a

	// Keep order sorted by fleet index / 保持按舰队索引排序
	pos := len(r.order)
	for i, id := range r.order {
		if r.agents[id].Index > a.Index {
			pos = i
			break
		}
	}
	r.order = append(r.order, "")
	copy(r.order[pos+1:], r.order[pos:])
	r.order[pos] = a.ID
}

// IDs returns all agent ids in fleet index order.
// IDs 按舰队索引顺序返回所有 agent id。
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Apply runs fn on the agent under its transition lock. Exactly one
// transition per agent is in flight at any time.
// Apply 在 agent 的转换锁下运行 fn。任意时刻每个 agent 至多有一个
// 正在进行的转换。
func (r *Registry) Apply(id string, fn func(*Agent) error) error {
	r.mu.RLock()
	a, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		return ErrAgentNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return fn(a)
}

// Snapshot returns a point-in-time view of one agent.
// Snapshot 返回单个 agent 的即时视图。
func (r *Registry) Snapshot(id string) (AgentView, error) {
	r.mu.RLock()
	a, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		return AgentView{}, ErrAgentNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewLocked(), nil
}

// ListSnapshots returns views of all agents ordered by fleet index. Each
// agent's lock is held only long enough to copy its fields, so a slow
// transition on one agent never delays reads of the others.
// ListSnapshots 按舰队索引顺序返回所有 agent 的视图。每个 agent 的锁只在
// 复制字段期间短暂持有，因此某个 agent 上缓慢的转换不会拖慢其他 agent 的读取。
func (r *Registry) ListSnapshots() []AgentView {
	ids := r.IDs()

	views := make([]AgentView, 0, len(ids))
	for _, id := range ids {
		if v, err := r.Snapshot(id); err == nil {
			views = append(views, v)
		}
	}
	return views
}
