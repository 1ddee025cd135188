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
	"github.com/spf13/pflag"
)

// commandMetadata is the JSON shape of a single command, for agents and
// scripts that want to discover the CLI surface without parsing --help text.
type commandMetadata struct {
	Name        string         `json:"name"`
	Short       string         `json:"short"`
	Long        string         `json:"long,omitempty"`
	Usage       string         `json:"usage"`
	Flags       []flagMetadata `json:"flags,omitempty"`
	Subcommands []string       `json:"subcommands,omitempty"`
}

type flagMetadata struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

type helpResponse struct {
	Commands    []commandMetadata `json:"commands,omitempty"`
	Command     *commandMetadata  `json:"command,omitempty"`
	GlobalFlags []flagMetadata    `json:"global_flags,omitempty"`
}

func newHelpCommand(rootCmd *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if jsonOutput {
					return writeAllCommandsJSON(cmd, rootCmd)
				}
				return rootCmd.Help()
			}

			targetCmd, _, err := rootCmd.Find(args)
			if err != nil {
				return fmt.Errorf("command %q not found", args[0])
			}
			if jsonOutput {
				return writeCommandJSON(cmd, targetCmd, rootCmd)
			}
			return targetCmd.Help()
		},
	}
	return cmd
}

func writeAllCommandsJSON(cmd *cobra.Command, rootCmd *cobra.Command) error {
	var commands []commandMetadata
	for _, c := range rootCmd.Commands() {
		if c.Hidden {
			continue
		}
		commands = append(commands, extractCommandMetadata(c))
	}
	return encodeHelp(cmd, helpResponse{Commands: commands, GlobalFlags: extractFlags(rootCmd.PersistentFlags())})
}

func writeCommandJSON(cmd *cobra.Command, targetCmd *cobra.Command, rootCmd *cobra.Command) error {
	metadata := extractCommandMetadata(targetCmd)
	return encodeHelp(cmd, helpResponse{Command: &metadata, GlobalFlags: extractFlags(rootCmd.PersistentFlags())})
}

func encodeHelp(cmd *cobra.Command, resp helpResponse) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(resp)
}

func extractCommandMetadata(cmd *cobra.Command) commandMetadata {
	metadata := commandMetadata{
		Name:  cmd.Name(),
		Short: cmd.Short,
		Long:  cmd.Long,
		Usage: cmd.UseLine(),
		Flags: extractFlags(cmd.Flags()),
	}
	for _, sub := range cmd.Commands() {
		if !sub.Hidden {
			metadata.Subcommands = append(metadata.Subcommands, sub.Name())
		}
	}
	return metadata
}

func extractFlags(flagSet *pflag.FlagSet) []flagMetadata {
	var flags []flagMetadata
	flagSet.VisitAll(func(flag *pflag.Flag) {
		if flag.Hidden {
			return
		}
		flags = append(flags, flagMetadata{
			Name:      flag.Name,
			Shorthand: flag.Shorthand,
			Usage:     flag.Usage,
			Default:   flag.DefValue,
		})
	})
	return flags
}
