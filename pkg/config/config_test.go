// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()
	v := New("")
	v.SetConfigName("nonexistent-config-name-xyz")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":8443", cfg.Address)
	assert.Equal(t, "store", cfg.Coordination)
	assert.Equal(t, 5*time.Minute, cfg.RefreshSweepInterval)
	assert.Equal(t, 3*time.Minute, cfg.MinRefreshInterval)
	assert.Equal(t, 10*time.Minute, cfg.RefreshWindow)
	assert.Equal(t, 10, cfg.RefreshWindowCap)
}

func TestLoad_EnvOverride(t *testing.T) {
	v := New("")
	v.SetConfigName("nonexistent-config-name-xyz")
	t.Setenv("SDPGW_ADDRESS", ":9999")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Address)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid store coordination",
			cfg: Config{
				Coordination:       "store",
				MinRefreshInterval: time.Second,
				RefreshWindow:      time.Minute,
				RefreshWindowCap:   10,
				RefreshLeadTime:    time.Minute,
				SessionIdleTimeout: time.Minute,
				SessionRateLimit:   60,
			},
		},
		{
			name: "invalid coordination value",
			cfg: Config{
				Coordination:       "carrier-pigeon",
				MinRefreshInterval: time.Second,
				RefreshWindow:      time.Minute,
				RefreshWindowCap:   10,
				RefreshLeadTime:    time.Minute,
			},
			wantErr: "coordination must be",
		},
		{
			name: "redis coordination without address",
			cfg: Config{
				Coordination:       "redis",
				MinRefreshInterval: time.Second,
				RefreshWindow:      time.Minute,
				RefreshWindowCap:   10,
				RefreshLeadTime:    time.Minute,
			},
			wantErr: "redis_addr is required",
		},
		{
			name: "non-positive min refresh interval",
			cfg: Config{
				Coordination:     "store",
				RefreshWindow:    time.Minute,
				RefreshWindowCap: 10,
				RefreshLeadTime:  time.Minute,
			},
			wantErr: "min_refresh_interval must be positive",
		},
		{
			name: "non-positive refresh window",
			cfg: Config{
				Coordination:       "store",
				MinRefreshInterval: time.Second,
				RefreshWindowCap:   10,
				RefreshLeadTime:    time.Minute,
			},
			wantErr: "refresh_window must be positive",
		},
		{
			name: "non-positive refresh window cap",
			cfg: Config{
				Coordination:       "store",
				MinRefreshInterval: time.Second,
				RefreshWindow:      time.Minute,
				RefreshLeadTime:    time.Minute,
			},
			wantErr: "refresh_window_cap must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
