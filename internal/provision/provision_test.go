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

package provision

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureAgentHome(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".fleets")
	ctx := context.Background()

	home, err := EnsureAgentHome(ctx, root, "fleet-local-0", 20000)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "fleet-local-0"), home)

	data, err := os.ReadFile(ConfigPath(home))
	require.NoError(t, err)

	var cfg GatewayConfig
	require.NoError(t, json.Unmarshal(data, &cfg))
	assert.Equal(t, "local", cfg.Gateway.Mode)
	assert.Equal(t, 20000, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, "token", cfg.Gateway.Auth.Mode)
	assert.Regexp(t, `^tk_[0-9a-f]{32}$`, cfg.Gateway.Auth.Token)
	assert.True(t, cfg.Plugins.Entries["whatsapp"].Enabled)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(home, ".openclaw"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
	}
}

// TestEnsureAgentHomeIdempotent checks that a second call keeps the token.
// TestEnsureAgentHomeIdempotent 检查第二次调用保持令牌不变。
func TestEnsureAgentHomeIdempotent(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".fleets")
	ctx := context.Background()

	home, err := EnsureAgentHome(ctx, root, "fleet-local-3", 20300)
	require.NoError(t, err)
	first, err := os.ReadFile(ConfigPath(home))
	require.NoError(t, err)

	_, err = EnsureAgentHome(ctx, root, "fleet-local-3", 20300)
	require.NoError(t, err)
	second, err := os.ReadFile(ConfigPath(home))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
