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

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitName(t *testing.T) {
	assert.Equal(t, "openclaw-commander-fleet-a.service", UnitName("fleet-a"))
}

func TestUnitContent(t *testing.T) {
	content := UnitContent(InstallOptions{
		FleetID:  "fleet-a",
		BasePort: 20000,
		User:     "openclaw",
	}, "/srv/openclaw")

	assert.Contains(t, content, "Description=OpenClaw Fleet Commander (fleet-a)")
	assert.Contains(t, content, "User=openclaw")
	assert.Contains(t, content, "WorkingDirectory=/srv/openclaw")
	assert.Contains(t, content, "ExecStart=/usr/local/bin/openclaw-commander start-fleet --count 1")
	assert.Contains(t, content, `Environment="COMMANDER_FLEET_ID=fleet-a"`)
	assert.Contains(t, content, `Environment="COMMANDER_FLEET_BASE_PORT=20000"`)
	assert.Contains(t, content, "Restart=always")
	assert.NotContains(t, content, "COMMANDER_FLEET_IPV6_PREFIX")
}

func TestUnitContentWithIPv6(t *testing.T) {
	content := UnitContent(InstallOptions{
		FleetID:    "fleet-v6",
		BasePort:   20000,
		User:       "openclaw",
		IPv6Prefix: "2001:db8::",
	}, "/srv/openclaw")

	assert.Contains(t, content, `Environment="COMMANDER_FLEET_IPV6_PREFIX=2001:db8::"`)
}
