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

package registry

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(ids ...string) *Registry {
	r := New()
	for i, id := range ids {
		r.Add(&Agent{ID: id, Index: i, Spec: SpawnSpec{Port: 20000 + i*100}})
	}
	return r
}

// TestAddAndOrder verifies listings come back in fleet index order even when
// agents are registered out of order.
// TestAddAndOrder 验证即使乱序注册，列表也按舰队索引顺序返回。
func TestAddAndOrder(t *testing.T) {
	r := New()
	r.Add(&Agent{ID: "fleet-2", Index: 2})
	r.Add(&Agent{ID: "fleet-0", Index: 0})
	r.Add(&Agent{ID: "fleet-1", Index: 1})

	assert.Equal(t, []string{"fleet-0", "fleet-1", "fleet-2"}, r.IDs())

	views := r.ListSnapshots()
	require.Len(t, views, 3)
	assert.Equal(t, "fleet-0", views[0].ID)
	assert.Equal(t, "fleet-1", views[1].ID)
	assert.Equal(t, "fleet-2", views[2].ID)
}

// TestAddDefaults verifies new records start Stopped and Enabled.
// TestAddDefaults 验证新记录初始为 Stopped 并且 Enabled。
func TestAddDefaults(t *testing.T) {
	r := newTestRegistry("fleet-0")

	v, err := r.Snapshot("fleet-0")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, v.Status)
	assert.Equal(t, DesiredEnabled, v.Desired)
	assert.Nil(t, v.PID)
}

// TestApplyUnknownID verifies Apply and Snapshot surface ErrAgentNotFound.
// TestApplyUnknownID 验证 Apply 和 Snapshot 返回 ErrAgentNotFound。
func TestApplyUnknownID(t *testing.T) {
	r := newTestRegistry("fleet-0")

	err := r.Apply("fleet-9", func(a *Agent) error { return nil })
	assert.ErrorIs(t, err, ErrAgentNotFound)

	_, err = r.Snapshot("fleet-9")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

// TestApplyMutation verifies Apply mutates the record atomically.
// TestApplyMutation 验证 Apply 原子地修改记录。
func TestApplyMutation(t *testing.T) {
	r := newTestRegistry("fleet-0")

	err := r.Apply("fleet-0", func(a *Agent) error {
		a.Observed = StateRunning
		a.PID = 4242
		a.Generation++
		return nil
	})
	require.NoError(t, err)

	v, err := r.Snapshot("fleet-0")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, v.Status)
	require.NotNil(t, v.PID)
	assert.Equal(t, 4242, *v.PID)
	assert.Equal(t, uint64(1), v.Generation)
}

// TestPIDInvariantInViews verifies pid is null in JSON exactly when the state
// owns no process.
// TestPIDInvariantInViews 验证 JSON 中 pid 为 null 恰好对应不持有进程的状态。
func TestPIDInvariantInViews(t *testing.T) {
	r := newTestRegistry("fleet-0")

	cases := []struct {
		state   ObservedState
		pid     int
		wantPID bool
	}{
		{StateStopped, 0, false},
		{StateStarting, 100, true},
		{StateRunning, 100, true},
		{StateStopping, 100, true},
		{StateFailed, 0, false},
		{StateRestarting, 0, false},
	}

	for _, c := range cases {
		require.NoError(t, r.Apply("fleet-0", func(a *Agent) error {
			a.Observed = c.state
			a.PID = c.pid
			return nil
		}))

		v, err := r.Snapshot("fleet-0")
		require.NoError(t, err)
		assert.Equal(t, c.wantPID, v.PID != nil, "state %s", c.state)
		assert.Equal(t, c.wantPID, c.state.HasPID(), "HasPID for %s", c.state)

		raw, err := json.Marshal(v)
		require.NoError(t, err)
		if c.wantPID {
			assert.Contains(t, string(raw), `"pid":100`)
		} else {
			assert.Contains(t, string(raw), `"pid":null`)
		}
	}
}

// TestConcurrentApplyAndSnapshot exercises the locking discipline under a
// concurrent mix of transitions and status reads.
// TestConcurrentApplyAndSnapshot 在并发的转换与状态读取混合下测试加锁纪律。
func TestConcurrentApplyAndSnapshot(t *testing.T) {
	r := newTestRegistry("fleet-0", "fleet-1", "fleet-2")

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				for _, id := range r.IDs() {
					_ = r.Apply(id, func(a *Agent) error {
						a.Generation++
						return nil
					})
				}
				_ = r.ListSnapshots()
			}
		}()
	}
	wg.Wait()

	// 8 workers * 200 iterations each bump every agent once
	// 8 个 worker 各迭代 200 次，每次为每个 agent 递增一次
	for _, id := range r.IDs() {
		v, err := r.Snapshot(id)
		require.NoError(t, err)
		assert.Equal(t, uint64(8*200), v.Generation, "agent %s", id)
	}
}
