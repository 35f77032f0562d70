// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd wires the proxy's cobra CLI: a root command plus one
// subcommand per run mode.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhaojp0411/twemproxy/common"
)

var rootCmd = &cobra.Command{
	Use:           "twemproxy-go",
	Short:         "A Redis wire-protocol sharding proxy",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       common.Version,
}

// Execute runs the CLI, printing any error and exiting non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
