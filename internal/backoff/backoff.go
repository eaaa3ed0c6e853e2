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

// Package backoff provides the restart delay policy for the watchdog.
// backoff 包提供看门狗的重启延迟策略。
//
// The policy is a pure function of the attempt count; it keeps no state so the
// delay math can be unit tested without spawning real processes.
// 策略是重试次数的纯函数；不保存任何状态，因此延迟计算可以在不启动真实进程的情况下进行单元测试。
package backoff

import "time"

// Default policy values
// 默认策略值
const (
	// DefaultBase is the default delay before the first automatic restart
	// DefaultBase 是首次自动重启前的默认延迟
	DefaultBase = 2 * time.Second

	// DefaultMax caps the delay between automatic restarts
	// DefaultMax 是自动重启之间延迟的上限
	DefaultMax = 30 * time.Second
)

// Policy computes the delay before an automatic restart attempt.
// Policy 计算自动重启尝试前的延迟。
//
// Manual restart commands bypass the policy entirely; only the watchdog
// consults it when scheduling recovery after an unexpected exit.
// 手动重启命令完全绕过该策略；只有看门狗在意外退出后调度恢复时才会使用它。
type Policy struct {
	// Base is the delay for attempt 0
	// Base 是第 0 次尝试的延迟
	Base time.Duration

	// Max caps the computed delay
	// Max 是计算出的延迟的上限
	Max time.Duration
}

// DefaultPolicy returns a policy with the default base and cap.
// DefaultPolicy 返回使用默认基数和上限的策略。
func DefaultPolicy() Policy {
	return Policy{Base: DefaultBase, Max: DefaultMax}
}

// Delay returns min(Max, Base*2^attempt) for attempt >= 0.
// Delay 对于 attempt >= 0 返回 min(Max, Base*2^attempt)。
// The result is always positive, even for negative or huge attempt counts.
// 即使重试次数为负或极大，结果也始终为正。
func (p Policy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBase
	}
	max := p.Max
	if max < base {
		max = base
	}
	if attempt < 0 {
		attempt = 0
	}

	// Doubling step by step keeps the overflow check trivial: the moment the
	// running delay reaches the cap (or wraps negative) the cap is the answer.
	// 逐步加倍使溢出检查变得简单：一旦累计延迟达到上限（或回绕为负），上限就是答案。
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	return d
}
