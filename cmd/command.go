// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/qiaobaojoe/house-file-courier/pkg/utils"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "House file courier - LAN file drop with chunked uploads",
	Long: `courier serves a small web UI and HTTP API for moving files between
devices on the same network. Large files are uploaded in chunks that are
assembled on the server once every chunk has arrived; connected browsers are
told about new and deleted files over a websocket.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
