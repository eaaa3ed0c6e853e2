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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/commander/internal/config"
	"github.com/openclaw/commander/internal/launcher"
	"github.com/openclaw/commander/internal/registry"
	"github.com/openclaw/commander/internal/supervisor"
)

// memLauncher fakes process lifecycles so API tests need no real processes.
// memLauncher 模拟进程生命周期，使 API 测试无需真实进程。
type memLauncher struct {
	mu         sync.Mutex
	generation uint64
	pid        int
	alive      map[uint64]bool
	spawnErr   error
}

func newMemLauncher() *memLauncher {
	return &memLauncher{alive: make(map[uint64]bool)}
}

func (m *memLauncher) Spawn(_ context.Context, _ registry.SpawnSpec) (int, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spawnErr != nil {
		return 0, 0, m.spawnErr
	}
	m.generation++
	m.pid = 4000 + int(m.generation)
	m.alive[m.generation] = true
	return m.pid, m.generation, nil
}

// kill simulates the process dying behind the supervisor's back.
// kill 模拟进程在监管器不知情的情况下死亡。
func (m *memLauncher) kill() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alive[m.generation] = false
}

func (m *memLauncher) setSpawnErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spawnErr = err
}

func (m *memLauncher) Terminate(pid int, generation uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if generation == m.generation && pid == m.pid {
		m.alive[generation] = false
	}
	return nil
}

func (m *memLauncher) PollLiveness(pid int, generation uint64) launcher.Liveness {
	m.mu.Lock()
	defer m.mu.Unlock()
	if generation != m.generation || pid != m.pid {
		return launcher.Superseded
	}
	if m.alive[generation] {
		return launcher.Alive
	}
	return launcher.ExitedUnexpectedly
}

func newTestServer(t *testing.T, count int) (*gin.Engine, []*memLauncher, context.CancelFunc) {
	t.Helper()

	cfg := &config.Config{
		Watchdog: config.WatchdogConfig{
			PollInterval:    10 * time.Millisecond,
			BackoffBase:     20 * time.Millisecond,
			BackoffMax:      100 * time.Millisecond,
			StabilityWindow: time.Minute,
		},
	}

	reg := registry.New()
	for i := 0; i < count; i++ {
		reg.Add(&registry.Agent{
			ID:    cfgAgentID(i),
			Index: i,
			Spec:  registry.SpawnSpec{Program: "worker", Port: 20000 + i*100},
		})
	}

	var launchers []*memLauncher
	sup := supervisor.New(cfg, reg, func() launcher.Launcher {
		l := newMemLauncher()
		launchers = append(launchers, l)
		return l
	})

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)
	t.Cleanup(cancel)

	return New(cfg, sup).Engine(), launchers, cancel
}

func cfgAgentID(i int) string {
	return "fleet-api-" + string(rune('0'+i))
}

func doRequest(t *testing.T, engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func agentStatus(t *testing.T, engine *gin.Engine, id string) registry.AgentView {
	t.Helper()
	w := doRequest(t, engine, http.MethodGet, "/agents/"+id)
	require.Equal(t, http.StatusOK, w.Code)
	var resp AgentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data)
	return *resp.Data
}

func TestStatusListsFleetInOrder(t *testing.T) {
	engine, _, _ := newTestServer(t, 3)

	w := doRequest(t, engine, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var views []registry.AgentView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 3)
	assert.Equal(t, "fleet-api-0", views[0].ID)
	assert.Equal(t, "fleet-api-2", views[2].ID)
	for _, v := range views {
		assert.Equal(t, registry.StateStopped, v.Status)
		assert.Nil(t, v.PID)
	}

	// pid must serialize as an explicit null when absent
	// 缺少进程时 pid 必须序列化为显式 null
	assert.Contains(t, w.Body.String(), `"pid":null`)
}

func TestStartStopRoundTrip(t *testing.T) {
	engine, _, _ := newTestServer(t, 1)

	w := doRequest(t, engine, http.MethodPost, "/agents/fleet-api-0/start")
	require.Equal(t, http.StatusOK, w.Code)

	var resp AgentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data)
	assert.Equal(t, registry.DesiredEnabled, resp.Data.Desired)
	require.NotNil(t, resp.Data.PID)

	require.Eventually(t, func() bool {
		return agentStatus(t, engine, "fleet-api-0").Status == registry.StateRunning
	}, 2*time.Second, 10*time.Millisecond)

	w = doRequest(t, engine, http.MethodPost, "/agents/fleet-api-0/stop")
	require.Equal(t, http.StatusOK, w.Code)
	require.Eventually(t, func() bool {
		v := agentStatus(t, engine, "fleet-api-0")
		return v.Status == registry.StateStopped && v.PID == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRestartBumpsGeneration(t *testing.T) {
	engine, _, _ := newTestServer(t, 1)

	doRequest(t, engine, http.MethodPost, "/agents/fleet-api-0/start")
	require.Eventually(t, func() bool {
		return agentStatus(t, engine, "fleet-api-0").Status == registry.StateRunning
	}, 2*time.Second, 10*time.Millisecond)
	gen := agentStatus(t, engine, "fleet-api-0").Generation

	w := doRequest(t, engine, http.MethodPost, "/agents/fleet-api-0/restart")
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		v := agentStatus(t, engine, "fleet-api-0")
		return v.Status == registry.StateRunning && v.Generation == gen+1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownAgentReturns404(t *testing.T) {
	engine, _, _ := newTestServer(t, 1)

	for _, path := range []string{
		"/agents/ghost/start",
		"/agents/ghost/stop",
		"/agents/ghost/restart",
	} {
		w := doRequest(t, engine, http.MethodPost, path)
		assert.Equal(t, http.StatusNotFound, w.Code, path)

		var resp AgentResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.ErrorMsg)
		assert.Nil(t, resp.Data)
	}

	w := doRequest(t, engine, http.MethodGet, "/agents/ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// A crash behind the supervisor's back must surface through the control
// plane as a revival: Failed, then Running again with a fresh pid.
// 进程在监管器不知情时崩溃，必须通过控制平面表现为复活：
// 先 Failed，随后以新 pid 重新 Running。
func TestCrashObservedAndRevivedOverHTTP(t *testing.T) {
	engine, launchers, _ := newTestServer(t, 1)
	require.Len(t, launchers, 1)

	doRequest(t, engine, http.MethodPost, "/agents/fleet-api-0/start")
	require.Eventually(t, func() bool {
		return agentStatus(t, engine, "fleet-api-0").Status == registry.StateRunning
	}, 2*time.Second, 10*time.Millisecond)

	before := agentStatus(t, engine, "fleet-api-0")
	require.NotNil(t, before.PID)

	launchers[0].kill()

	require.Eventually(t, func() bool {
		v := agentStatus(t, engine, "fleet-api-0")
		return v.Status == registry.StateRunning && v.Generation == before.Generation+1
	}, 2*time.Second, 10*time.Millisecond)

	after := agentStatus(t, engine, "fleet-api-0")
	require.NotNil(t, after.PID)
	assert.NotEqual(t, *before.PID, *after.PID)
	assert.Equal(t, 1, after.RestartAttempts)
}

// A start whose spawn fails is still an accepted command: the response is
// 200 with a Failed snapshot and the error recorded, not a server error.
// spawn 失败的 start 命令仍被接受：响应为 200，携带 Failed 快照并记录
// 错误，而不是服务器错误。
func TestStartWithSpawnFailureReturnsFailedSnapshot(t *testing.T) {
	engine, launchers, _ := newTestServer(t, 1)
	require.Len(t, launchers, 1)

	launchers[0].setSpawnErr(errors.New("binary missing"))

	w := doRequest(t, engine, http.MethodPost, "/agents/fleet-api-0/start")
	require.Equal(t, http.StatusOK, w.Code)

	var resp AgentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.ErrorMsg)
	require.NotNil(t, resp.Data)
	assert.Equal(t, registry.StateFailed, resp.Data.Status)
	assert.Equal(t, registry.DesiredEnabled, resp.Data.Desired)
	assert.Nil(t, resp.Data.PID)
	assert.Contains(t, resp.Data.LastError, "binary missing")

	// Once the binary is back the scheduled retry brings the agent up
	// without another command.
	// 二进制恢复后，已安排的重试会在无需再次下发命令的情况下拉起 agent。
	launchers[0].setSpawnErr(nil)
	require.Eventually(t, func() bool {
		return agentStatus(t, engine, "fleet-api-0").Status == registry.StateRunning
	}, 2*time.Second, 10*time.Millisecond)
}
