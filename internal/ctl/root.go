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

// Package ctl builds the bifrostctl Cobra command tree: a thin client
// over the same internal/api surface cmd/bifrostd serves.
package ctl

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee-labs/bifrost-engine/internal/bifrostclient"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersion sets the version information reported by the version command.
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

var (
	serverURL   string
	userID      string
	userEmail   string
	userName    string
	isAdmin     bool
	jsonOutput  bool
	scopeFilter string
)

// NewRootCommand builds the bifrostctl root command and all its subcommands.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bifrostctl",
		Short: "bifrostctl - client for a running bifrostd",
		Long: `bifrostctl talks to a running bifrostd over HTTP to submit workflows,
inspect executions, tail logs, and browse the workflow and data-provider
registry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&serverURL, "server", envOr("BIFROST_SERVER", "http://localhost:8080"), "bifrostd base URL")
	cmd.PersistentFlags().StringVar(&userID, "user-id", os.Getenv("BIFROST_USER_ID"), "caller user ID sent with every request")
	cmd.PersistentFlags().StringVar(&userEmail, "user-email", os.Getenv("BIFROST_USER_EMAIL"), "caller email sent with every request")
	cmd.PersistentFlags().StringVar(&userName, "user-name", os.Getenv("BIFROST_USER_NAME"), "caller display name sent with every request")
	cmd.PersistentFlags().BoolVar(&isAdmin, "admin", false, "send the request as a platform admin")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON instead of a table")
	cmd.PersistentFlags().StringVar(&scopeFilter, "scope", "", "scope to operate in (default: the global scope)")

	cmd.AddCommand(newStartCommand())
	cmd.AddCommand(newSubmitCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newCancelCommand())
	cmd.AddCommand(newLogsCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newWorkflowsCommand())
	cmd.AddCommand(newDataProvidersCommand())
	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(newHelpCommand(cmd))

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func client() *bifrostclient.Client {
	return &bifrostclient.Client{
		BaseURL:         serverURL,
		UserID:          userID,
		Email:           userEmail,
		DisplayName:     userName,
		IsPlatformAdmin: isAdmin,
	}
}
