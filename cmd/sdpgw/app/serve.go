// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	sdpconfig "github.com/PTTG-IT/SDP-MCP-sub003/pkg/config"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/logger"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/mcp"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/metrics"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/sse"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tracing"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/upstream"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway's SSE/MCP server",
		Long: `Start listening for MCP client connections over SSE. Sessions are
authenticated by API key (and, if configured, client IP), resolved to a
tenant, and proxied to that tenant's ITSM instance using a bearer token
the gateway keeps refreshed automatically.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	v := sdpconfig.New(viper.GetString("config"))
	cfg, err := sdpconfig.Load(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	if cfg.OTLPEndpoint != "" {
		logger.Warnw("otlp_endpoint is configured but no OTLP exporter is wired into this build; spans are recorded but not exported", "endpoint", cfg.OTLPEndpoint)
	}
	_, shutdownTracing := tracing.Init()
	defer func() { _ = shutdownTracing(context.Background()) }()

	go d.tokens.RunSweeper(ctx, cfg.RefreshSweepInterval, cfg.RefreshLeadTime)

	sessions := sse.NewManager(cfg.SessionIdleTimeout, cfg.SessionIdleTimeout/2)
	defer sessions.Stop()

	registry := mcp.NewRegistry()
	registerTools(registry, upstream.New(d.tokens, d.coord))

	handler := sse.NewHandler(d.tenants, sessions, cfg.SessionRateLimit, mcp.NewDispatcherFactory(registry))

	keys := sse.NewAPIKeyChecker(cfg.APIKeys)
	ips, err := sse.NewIPAllowList(cfg.AllowedIPs)
	if err != nil {
		return fmt.Errorf("failed to build IP allow list: %w", err)
	}

	router := sse.NewRouter(handler, keys, ips)

	srv := &http.Server{Addr: cfg.Address, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("sdpgw listening", "address", cfg.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
		go func() {
			logger.Infow("metrics listening", "address", cfg.MetricsAddress)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("metrics server failed", "error", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(context.Background())
		}
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
}
