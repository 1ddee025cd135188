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
	"encoding/json"

	"github.com/spf13/cobra"
)

func newLogsCommand() *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "logs <execution-id>",
		Short: "Print the latest log lines for an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := client().Logs(cmd.Context(), args[0], n)
			if err != nil {
				return err
			}
			if jsonOutput {
				data, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}
			for _, e := range entries {
				cmd.Printf("%s [%s] %s: %s\n", e.Timestamp, e.Level, e.Source, e.Message)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&n, "tail", 200, "number of most recent log lines to fetch")
	return cmd
}
