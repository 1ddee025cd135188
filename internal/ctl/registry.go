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

	"github.com/tombee-labs/bifrost-engine/internal/bifrostclient"
)

func newWorkflowsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "workflows",
		Short: "List registered workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := client().Workflows(cmd.Context())
			if err != nil {
				return err
			}
			return printMetadata(cmd, items)
		},
	}
}

func newDataProvidersCommand() *cobra.Command {
	var (
		invokeName string
		paramsJSON string
	)

	cmd := &cobra.Command{
		Use:   "data-providers",
		Short: "List registered data providers, or invoke one with --invoke",
		RunE: func(cmd *cobra.Command, args []string) error {
			if invokeName == "" {
				items, err := client().DataProviders(cmd.Context())
				if err != nil {
					return err
				}
				return printMetadata(cmd, items)
			}

			var params map[string]any
			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
					return err
				}
			}
			result, err := client().InvokeDataProvider(cmd.Context(), invokeName, params)
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		},
	}

	cmd.Flags().StringVar(&invokeName, "invoke", "", "invoke the named data provider instead of listing")
	cmd.Flags().StringVar(&paramsJSON, "params", "", "data provider parameters as a JSON object")
	return cmd
}

func printMetadata(cmd *cobra.Command, items []bifrostclient.Metadata) error {
	if jsonOutput {
		data, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}
	for _, item := range items {
		cmd.Printf("%s\t%s\t%s\n", item.Kind, item.Name, item.Description)
	}
	return nil
}
