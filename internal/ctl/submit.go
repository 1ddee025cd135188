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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee-labs/bifrost-engine/internal/bifrostclient"
)

func newSubmitCommand() *cobra.Command {
	var (
		scriptPath string
		formID     string
		paramsJSON string
	)

	cmd := &cobra.Command{
		Use:   "run [workflow-name]",
		Short: "Submit a workflow or inline script for execution",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := bifrostclient.SubmitRequest{Scope: scopeFilter, FormID: formID}

			switch {
			case len(args) == 1:
				req.WorkflowName = args[0]
			case scriptPath != "":
				data, err := os.ReadFile(scriptPath)
				if err != nil {
					return fmt.Errorf("read script: %w", err)
				}
				req.Code = string(data)
			default:
				return fmt.Errorf("provide a workflow name or --script")
			}

			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &req.Parameters); err != nil {
					return fmt.Errorf("parse --params as JSON: %w", err)
				}
			}

			result, err := client().Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		},
	}

	cmd.Flags().StringVar(&scriptPath, "script", "", "path to an inline script to execute instead of a named workflow")
	cmd.Flags().StringVar(&formID, "form-id", "", "form ID to attach to this execution")
	cmd.Flags().StringVar(&paramsJSON, "params", "", "workflow parameters as a JSON object")

	return cmd
}

func printResult(cmd *cobra.Command, result *bifrostclient.ExecutionResult) error {
	if jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("execution_id: %s\n", result.ExecutionID)
	cmd.Printf("status:       %s\n", result.Status)
	if result.ErrorType != "" {
		cmd.Printf("error:        %s: %s\n", result.ErrorType, result.ErrorMessage)
		return nil
	}
	if result.Result != nil {
		cmd.Printf("result:       %v\n", result.Result)
	}
	if result.Cached {
		cmd.Printf("cached:       true (expires %s)\n", result.CacheExpiresAt.Format("15:04:05"))
	}
	return nil
}
