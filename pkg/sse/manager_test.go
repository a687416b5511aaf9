// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sse_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/sse"
)

func newTestSession(t *testing.T, id string) *sse.Session {
	t.Helper()
	sess := sse.NewSession(id, testTenantCtx(), echoDispatcher{}, 600, "10.0.0.1:1")
	go sess.Run(context.Background())
	t.Cleanup(sess.Close)
	return sess
}

func TestManager_AddAndGet(t *testing.T) {
	t.Parallel()
	m := sse.NewManager(time.Hour, time.Minute)
	defer m.Stop()

	sess := newTestSession(t, "foo")
	require.NoError(t, m.Add(sess))

	got, ok := m.Get("foo")
	require.True(t, ok)
	assert.Equal(t, "foo", got.ID())
}

func TestManager_AddDuplicateRejected(t *testing.T) {
	t.Parallel()
	m := sse.NewManager(time.Hour, time.Minute)
	defer m.Stop()

	require.NoError(t, m.Add(newTestSession(t, "dup")))
	err := m.Add(newTestSession(t, "dup"))
	assert.Error(t, err)
}

func TestManager_Delete(t *testing.T) {
	t.Parallel()
	m := sse.NewManager(time.Hour, time.Minute)
	defer m.Stop()

	require.NoError(t, m.Add(newTestSession(t, "del")))
	m.Delete("del")

	_, ok := m.Get("del")
	assert.False(t, ok)
}

func TestManager_CleanupExpiredEvictsIdleSessions(t *testing.T) {
	t.Parallel()
	m := sse.NewManager(20*time.Millisecond, time.Hour)
	defer m.Stop()

	require.NoError(t, m.Add(newTestSession(t, "idle")))
	time.Sleep(40 * time.Millisecond)
	m.CleanupExpired()

	_, ok := m.Get("idle")
	assert.False(t, ok, "session idle past the TTL should be evicted")
}

func TestManager_IPBreakdown(t *testing.T) {
	t.Parallel()
	m := sse.NewManager(time.Hour, time.Minute)
	defer m.Stop()

	require.NoError(t, m.Add(newTestSession(t, "a")))
	require.NoError(t, m.Add(newTestSession(t, "b")))

	breakdown := m.IPBreakdown()
	assert.Equal(t, 2, breakdown["10.0.0.1:1"])
}
