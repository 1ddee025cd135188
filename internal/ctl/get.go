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

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <execution-id>",
		Short: "Fetch a single execution record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := client().Get(cmd.Context(), args[0], scopeFilter)
			if err != nil {
				return err
			}
			if jsonOutput {
				data, err := json.MarshalIndent(e, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}

			cmd.Printf("execution_id: %s\n", e.ExecutionID)
			cmd.Printf("workflow:     %s\n", e.WorkflowName)
			cmd.Printf("status:       %s\n", e.Status)
			cmd.Printf("started_at:   %s\n", e.StartedAt)
			if e.CompletedAt != "" {
				cmd.Printf("completed_at: %s\n", e.CompletedAt)
			}
			if e.ErrorType != "" {
				cmd.Printf("error:        %s: %s\n", e.ErrorType, e.ErrorMessage)
			} else if e.Result != nil {
				cmd.Printf("result:       %v\n", e.Result)
			}
			return nil
		},
	}
}

func newCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <execution-id>",
		Short: "Request cancellation of a pending or running execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().Cancel(cmd.Context(), args[0], scopeFilter); err != nil {
				return err
			}
			cmd.Println("cancellation requested")
			return nil
		},
	}
}
