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

// Package service installs the commander as a systemd unit.
// service 包将 commander 安装为 systemd 单元。
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openclaw/commander/internal/logger"
)

const (
	installedBinary = "/usr/local/bin/openclaw-commander"
	systemdDir      = "/etc/systemd/system"
)

// InstallOptions carries the parameters baked into the generated unit.
// InstallOptions 携带写入生成单元的参数。
type InstallOptions struct {
	FleetID    string
	IPv6Prefix string
	BasePort   int

	// User runs the service; empty falls back to $USER, then root
	// User 是服务运行用户；为空时回退到 $USER，再回退到 root
	User string
}

// UnitName returns the systemd unit file name of a fleet.
// UnitName 返回某个舰队的 systemd 单元文件名。
func UnitName(fleetID string) string {
	return fmt.Sprintf("openclaw-commander-%s.service", fleetID)
}

// UnitContent renders the systemd unit for the given install options.
// UnitContent 为给定的安装选项渲染 systemd 单元。
func UnitContent(opts InstallOptions, workDir string) string {
	user := opts.User
	if user == "" {
		user = os.Getenv("USER")
	}
	if user == "" {
		user = "root"
	}

	ipv6Env := ""
	if opts.IPv6Prefix != "" {
		ipv6Env = fmt.Sprintf("Environment=\"COMMANDER_FLEET_IPV6_PREFIX=%s\"\n", opts.IPv6Prefix)
	}

	return fmt.Sprintf(`[Unit]
Description=OpenClaw Fleet Commander (%s)
After=network.target

[Service]
Type=simple
User=%s
WorkingDirectory=%s
ExecStart=%s start-fleet --count 1
Restart=always
RestartSec=5
Environment="COMMANDER_FLEET_ID=%s"
Environment="COMMANDER_FLEET_BASE_PORT=%d"
%sEnvironment="NODE_ENV=production"

[Install]
WantedBy=multi-user.target
`, opts.FleetID, user, workDir, installedBinary, opts.FleetID, opts.BasePort, ipv6Env)
}

// Install copies the running binary to /usr/local/bin and writes the unit
// file. Requires root.
// Install 将当前运行的二进制复制到 /usr/local/bin 并写入单元文件。需要 root。
func Install(ctx context.Context, opts InstallOptions) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate current binary: %w", err)
	}

	workDir, err := findWorkDir()
	if err != nil {
		return err
	}

	logger.InfoF(ctx, "installing commander binary from %s to %s", exe, installedBinary)
	if err := copyFile(exe, installedBinary); err != nil {
		return fmt.Errorf("copy binary to %s (are you running with sudo?): %w", installedBinary, err)
	}

	unitPath := filepath.Join(systemdDir, UnitName(opts.FleetID))
	logger.InfoF(ctx, "writing systemd unit to %s", unitPath)
	if err := os.WriteFile(unitPath, []byte(UnitContent(opts, workDir)), 0644); err != nil {
		return fmt.Errorf("write systemd unit (are you running with sudo?): %w", err)
	}

	fmt.Println("\nTo enable and start the service, run:")
	fmt.Println("  sudo systemctl daemon-reload")
	fmt.Printf("  sudo systemctl enable --now %s\n", UnitName(opts.FleetID))
	fmt.Println("\nTo view logs:")
	fmt.Printf("  journalctl -u %s -f\n", UnitName(opts.FleetID))
	return nil
}

// findWorkDir locates the directory holding the gateway script, checking the
// current directory and its parent.
// findWorkDir 查找包含网关脚本的目录，检查当前目录及其父目录。
func findWorkDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(cwd, "openclaw.mjs")); err == nil {
		return cwd, nil
	}
	parent := filepath.Dir(cwd)
	if _, err := os.Stat(filepath.Join(parent, "openclaw.mjs")); err == nil {
		return parent, nil
	}
	return "", fmt.Errorf("could not locate openclaw.mjs; run install from the project root")
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0755)
}
