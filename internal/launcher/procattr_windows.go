//go:build windows

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

package launcher

import (
	"os"
	"os/exec"
)

// setProcGroupAttr is a no-op; Windows has no POSIX process groups
// setProcGroupAttr 为空操作；Windows 没有 POSIX 进程组
func setProcGroupAttr(cmd *exec.Cmd) {}

// terminateProcessGroup kills the single process. Windows offers no graceful
// cross-console signal, so Kill is the closest equivalent of SIGTERM here.
// terminateProcessGroup 终止单个进程。Windows 没有跨控制台的优雅信号，
// Kill 是此处最接近 SIGTERM 的等价手段。
func terminateProcessGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}
