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

// Package logger provides structured logging for the Commander service.
// logger 包提供 Commander 服务的结构化日志功能。
//
// Logging is backed by zap with lumberjack file rotation. The package keeps a
// process-wide logger so call sites stay short: logger.InfoF(ctx, ...). The
// context carried by every helper feeds otelzap, which attaches log records
// to the active trace span when one is recording.
// 日志基于 zap，并通过 lumberjack 进行文件轮转。包内保存进程级 logger，
// 使调用处保持简洁：logger.InfoF(ctx, ...)。每个辅助函数携带的 context
// 交给 otelzap，在有活跃 span 记录时把日志附加到该 span 上。
package logger

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/openclaw/commander/internal/config"
)

var (
	log   *zap.Logger
	sugar *otelzap.SugaredLogger
	mu    sync.RWMutex
)

func init() {
	// Before Init runs (or in tests) fall back to a development logger
	// 在 Init 运行前（或测试中）回退到开发模式 logger
	l, _ := zap.NewDevelopment()
	replace(l)
}

func replace(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
	sugar = otelzap.New(l, otelzap.WithMinLevel(zapcore.DebugLevel)).Sugar()
}

// Init configures the global logger from the log section of the config.
// Init 根据配置的 log 部分配置全局 logger。
func Init(cfg config.LogConfig) error {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			level,
		),
	}

	// File output with rotation, only when a path is configured
	// 仅在配置了路径时输出到文件并轮转
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(rotator),
			level,
		))
	}

	replace(zap.New(zapcore.NewTee(cores...)))
	return nil
}

// L returns the process-wide zap logger.
// L 返回进程级 zap logger。
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Sync flushes buffered log entries.
// Sync 刷新缓冲的日志条目。
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = log.Sync()
}

// DebugF logs a formatted debug message.
// DebugF 记录格式化的调试日志。
func DebugF(ctx context.Context, format string, args ...any) {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	s.Ctx(ctx).Debugf(format, args...)
}

// InfoF logs a formatted info message.
// InfoF 记录格式化的信息日志。
func InfoF(ctx context.Context, format string, args ...any) {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	s.Ctx(ctx).Infof(format, args...)
}

// WarnF logs a formatted warning message.
// WarnF 记录格式化的警告日志。
func WarnF(ctx context.Context, format string, args ...any) {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	s.Ctx(ctx).Warnf(format, args...)
}

// ErrorF logs a formatted error message.
// ErrorF 记录格式化的错误日志。
func ErrorF(ctx context.Context, format string, args ...any) {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	s.Ctx(ctx).Errorf(format, args...)
}
