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

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhaojp0411/twemproxy/confengine"
	"github.com/zhaojp0411/twemproxy/internal/sigs"
	"github.com/zhaojp0411/twemproxy/logger"
	"github.com/zhaojp0411/twemproxy/server"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Run the proxy, routing client requests to a sharded Redis backend",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(proxyConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		proxyCfg, err := server.LoadConfig(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load proxy config: %v\n", err)
			os.Exit(1)
		}
		logger.SetOptions(proxyCfg.Logger)

		p, err := server.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build proxy: %v\n", err)
			os.Exit(1)
		}
		if err := p.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start proxy: %v\n", err)
			os.Exit(1)
		}

		var reloadTotal int
		for {
			select {
			case <-sigs.Terminate():
				p.Stop()
				return

			case <-sigs.Reload():
				reloadTotal++

				cfg, err := confengine.LoadConfigPath(proxyConfigPath)
				if err != nil {
					fmt.Fprintf(os.Stderr, "failed to load config (count=%d): %v\n", reloadTotal, err)
					continue
				}

				start := time.Now()
				if err := p.Reload(cfg); err != nil {
					logger.Errorf("failed to reload config: %v", err)
				}
				logger.Infof("reload (count=%d) took %s", reloadTotal, time.Since(start))
			}
		}
	},
	Example: "# twemproxy-go proxy --config twemproxy.yaml",
}

var proxyConfigPath string

func init() {
	proxyCmd.Flags().StringVar(&proxyConfigPath, "config", "twemproxy.yaml", "Configuration file path")
	rootCmd.AddCommand(proxyCmd)
}
