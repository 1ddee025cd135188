// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ctl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee-labs/bifrost-engine/internal/lifecycle"
)

func newStartCommand() *cobra.Command {
	var (
		binaryPath string
		configPath string
		listenAddr string
		logPath    string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Spawn bifrostd in the background and wait for it to become healthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if binaryPath == "" {
				exe, err := os.Executable()
				if err != nil {
					return fmt.Errorf("locate bifrostd binary: %w", err)
				}
				binaryPath = filepath.Join(filepath.Dir(exe), "bifrostd")
			}
			if logPath == "" {
				logPath = filepath.Join(os.TempDir(), "bifrostd.log")
			}

			var daemonArgs []string
			if configPath != "" {
				daemonArgs = append(daemonArgs, "--config", configPath)
			}
			if listenAddr != "" {
				daemonArgs = append(daemonArgs, "--listen", listenAddr)
			}

			pid, err := lifecycle.NewSpawner().SpawnDetached(binaryPath, daemonArgs, logPath)
			if err != nil {
				return fmt.Errorf("spawn bifrostd: %w", err)
			}
			cmd.Printf("bifrostd starting (pid %d, log %s)\n", pid, logPath)

			if err := waitHealthy(cmd.Context(), serverURL, timeout); err != nil {
				if !lifecycle.IsProcessRunning(pid) {
					return fmt.Errorf("bifrostd exited before becoming healthy, see %s", logPath)
				}
				return fmt.Errorf("bifrostd did not become healthy within %s: %w", timeout, err)
			}
			cmd.Println("bifrostd is healthy")
			return nil
		},
	}

	cmd.Flags().StringVar(&binaryPath, "bifrostd-path", "", "path to the bifrostd binary (default: alongside bifrostctl)")
	cmd.Flags().StringVar(&configPath, "config", "", "config file to pass to bifrostd")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address to pass to bifrostd")
	cmd.Flags().StringVar(&logPath, "log-file", "", "file to redirect bifrostd's stdout/stderr to")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for bifrostd to report healthy")

	return cmd
}

// waitHealthy polls GET /v1/health until it returns 200 or timeout elapses.
func waitHealthy(ctx context.Context, baseURL string, timeout time.Duration) error {
	check := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, baseURL+"/v1/health", nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health check returned %s", resp.Status)
		}
		return nil
	}

	deadline := time.Now().Add(timeout)
	lastErr := errors.New("timed out")
	for time.Now().Before(deadline) {
		if lastErr = check(); lastErr == nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return lastErr
}
