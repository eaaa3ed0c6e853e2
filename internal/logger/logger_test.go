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

package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/openclaw/commander/internal/config"
)

// TestInitWritesToFile verifies that Init wires the file core and that the
// context-taking helpers land entries in the configured log file.
// TestInitWritesToFile 验证 Init 正确接入文件输出，且携带 context 的
// 辅助函数能将日志写入配置的文件。
func TestInitWritesToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "commander.log")

	err := Init(config.LogConfig{
		Level:   "debug",
		File:    logFile,
		MaxSize: 10,
	})
	require.NoError(t, err)
	require.NotNil(t, L())

	ctx := context.Background()
	DebugF(ctx, "debug entry %d", 1)
	InfoF(ctx, "info entry %s", "fleet-local-0")
	WarnF(ctx, "warn entry")
	ErrorF(ctx, "error entry: %v", os.ErrNotExist)
	Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "info entry fleet-local-0")
	assert.Contains(t, string(data), "debug entry 1")
	assert.Contains(t, string(data), "warn entry")
}

// TestHelpersCarrySpanContext verifies the helpers accept a context carrying
// a span without panicking even when no trace provider is installed.
// TestHelpersCarrySpanContext 验证辅助函数在未安装 trace provider 时
// 也能接受携带 span 的 context 而不 panic。
func TestHelpersCarrySpanContext(t *testing.T) {
	require.NoError(t, Init(config.LogConfig{Level: "info"}))

	ctx, span := noop.NewTracerProvider().Tracer("commander").Start(context.Background(), "lifecycle")
	defer span.End()

	InfoF(ctx, "agent %s transitioned to %s", "fleet-local-0", "Running")
	ErrorF(ctx, "terminate failed for agent %s", "fleet-local-1")
}

// TestInitRejectsBadLevel verifies unknown levels surface an error.
// TestInitRejectsBadLevel 验证未知日志级别会返回错误。
func TestInitRejectsBadLevel(t *testing.T) {
	err := Init(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
