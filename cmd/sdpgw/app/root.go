// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires the gateway's cobra commands: serve, which runs the
// SSE/MCP server, and tenants, the administrative CLI for registering
// and managing tenants.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "sdpgw",
	DisableAutoGenTag: true,
	Short:             "Multi-tenant OAuth gateway fronting an ITSM API for MCP agents",
	Long: `sdpgw terminates MCP sessions over SSE, resolves each session to a
tenant, and proxies tool calls to that tenant's ITSM instance using a
bearer token it keeps refreshed on the tenant's behalf. Tenants never
see or handle OAuth credentials directly.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("error displaying help: %v", err)
		}
	},
}

// NewRootCmd builds the sdpgw root command.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a sdpgw config file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTenantsCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("sdpgw version: %s", version)
		},
	}
}

// version is overridden at build time via -ldflags.
var version = "dev"
