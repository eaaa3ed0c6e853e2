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

// Package netutil provides address helpers for fleet egress assignment.
// netutil 包提供用于 fleet 出口地址分配的地址工具。
package netutil

import (
	"fmt"
	"math/big"
	"net/netip"
)

// AgentIPv6 derives the egress address of agent index by adding the index to
// the base address, treating the 128-bit address as an integer.
// AgentIPv6 通过把 128 位地址当作整数并加上序号，推导出序号为 index 的
// agent 的出口地址。
func AgentIPv6(prefix string, index int) (string, error) {
	base, err := netip.ParseAddr(prefix)
	if err != nil {
		return "", fmt.Errorf("invalid IPv6 prefix %q: %w", prefix, err)
	}
	if !base.Is6() || base.Is4In6() {
		return "", fmt.Errorf("invalid IPv6 prefix %q: not an IPv6 address", prefix)
	}
	if index < 0 {
		return "", fmt.Errorf("negative agent index %d", index)
	}

	b := base.As16()
	n := new(big.Int).SetBytes(b[:])
	n.Add(n, big.NewInt(int64(index)))
	if n.BitLen() > 128 {
		return "", fmt.Errorf("IPv6 address overflow for index %d", index)
	}

	var out [16]byte
	n.FillBytes(out[:])
	return netip.AddrFrom16(out).String(), nil
}
