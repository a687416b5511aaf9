// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/config"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/crypto"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/ratelimit"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/store"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenant"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/token"
)

// deps is the set of components every subcommand that touches tenant
// state needs: the store, the crypto service sealing credentials at
// rest, the tenant facade, the rate coordinator, and the token manager
// built on top of them.
type deps struct {
	cfg     *config.Config
	store   *store.Store
	crypto  *crypto.Service
	tenants *tenant.Registry
	coord   ratelimit.Coordinator
	tokens  *token.Manager
}

// regionEndpoints is the gateway's static map of tenant region to
// upstream origin, consulted by tenant.Registry when validating that a
// tenant's instance URL matches its declared region. Regions are an
// operational convention, not something the config file currently
// exposes - entries are added here as new ITSM regions come online.
var regionEndpoints = map[string]string{
	"us-east": "https://us-east.sdpondemand.example.com",
	"us-west": "https://us-west.sdpondemand.example.com",
	"eu":      "https://eu.sdpondemand.example.com",
}

func buildDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	s, err := store.Open(ctx, cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	key, err := loadOrCreateEncryptionKey(cfg.EncryptionKeyPath)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to load encryption key: %w", err)
	}
	cs, err := crypto.NewService(key)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to build crypto service: %w", err)
	}

	reg := tenant.New(s, cs, regionEndpoints)

	coord, err := buildCoordinator(cfg, s)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	tokens := token.New(s, cs, reg, coord, token.NewOAuth2Refresher(30*time.Second))

	return &deps{cfg: cfg, store: s, crypto: cs, tenants: reg, coord: coord, tokens: tokens}, nil
}

func (d *deps) Close() {
	_ = d.store.Close()
}

func buildCoordinator(cfg *config.Config, s *store.Store) (ratelimit.Coordinator, error) {
	policy := ratelimit.RefreshPolicy{
		MinInterval: cfg.MinRefreshInterval,
		Window:      cfg.RefreshWindow,
		WindowCap:   cfg.RefreshWindowCap,
	}
	if cfg.Coordination == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return ratelimit.NewRedisCoordinator(client, policy), nil
	}
	return ratelimit.NewStoreCoordinator(s, policy), nil
}

// loadOrCreateEncryptionKey reads a base64-encoded 32-byte master key
// from path, generating and persisting one (mode 0600) on first run.
func loadOrCreateEncryptionKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		return decodeKey(raw)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist generated key: %w", err)
	}
	return key, nil
}

func decodeKey(raw []byte) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("key file is not valid base64: %w", err)
	}
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("key file must decode to %d bytes, got %d", crypto.KeySize, len(key))
	}
	return key, nil
}
