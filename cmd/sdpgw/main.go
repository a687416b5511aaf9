// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the gateway binary.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/PTTG-IT/SDP-MCP-sub003/cmd/sdpgw/app"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/logger"
)

func main() {
	logger.Initialize()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("error executing command: %v", err)
		os.Exit(1)
	}
}
