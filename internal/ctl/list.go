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

	"github.com/spf13/cobra"

	"github.com/tombee-labs/bifrost-engine/internal/bifrostclient"
)

func newListCommand() *cobra.Command {
	var (
		user       string
		workflow   string
		formID     string
		allInScope bool
		pageToken  string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions by user, workflow, form, or scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := bifrostclient.ListParams{PageToken: pageToken, Limit: limit}
			c := client()
			ctx := cmd.Context()

			var page *bifrostclient.Page
			var err error
			switch {
			case user != "":
				page, err = c.ListByUser(ctx, user, params)
			case workflow != "":
				page, err = c.ListByWorkflow(ctx, workflow, scopeFilter, params)
			case formID != "":
				page, err = c.ListByForm(ctx, formID, params)
			case allInScope:
				page, err = c.ListByScope(ctx, effectiveScope(scopeFilter), params)
			default:
				return fmt.Errorf("specify one of --user, --workflow, --form, or --all")
			}
			if err != nil {
				return err
			}

			return printPage(cmd, page)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "list executions submitted by this user ID")
	cmd.Flags().StringVar(&workflow, "workflow", "", "list executions of this workflow name")
	cmd.Flags().StringVar(&formID, "form", "", "list executions submitted through this form ID")
	cmd.Flags().BoolVar(&allInScope, "all", false, "list every execution in the scope")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "continuation token from a previous page")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (server default if unset)")

	return cmd
}

func effectiveScope(scope string) string {
	if scope != "" {
		return scope
	}
	return "GLOBAL"
}

func printPage(cmd *cobra.Command, page *bifrostclient.Page) error {
	if jsonOutput {
		data, err := json.MarshalIndent(page, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}
	for _, item := range page.Items {
		cmd.Printf("%s\t%s\t%s\t%s\n", item.ExecutionID, item.WorkflowName, item.Status, item.StartedAt)
	}
	if page.NextToken != "" {
		cmd.Printf("\nnext page: --page-token %s\n", page.NextToken)
	}
	return nil
}
