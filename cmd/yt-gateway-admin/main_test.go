package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HenryT2023/YT-AI-Platform-sub000/config"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/testutil"
)

func newCmdCtx(cfg config.AppConfig) (*commandContext, *bytes.Buffer) {
	var out bytes.Buffer
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: cfg,
		Out:    &out,
	}, &out
}

func TestPrintUsage_ListsCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))
	for name := range commands() {
		assert.Contains(t, buf.String(), name)
	}
}

func TestRunCheck(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	mr, _ := testutil.SetupMiniRedis(t)

	cmdCtx, out := newCmdCtx(config.AppConfig{
		Backend: config.BackendConfig{CoreURL: fb.URL(), AIURL: fb.URL()},
		Redis:   config.RedisConfig{URI: mr.Addr()},
	})
	require.NoError(t, runCheck(cmdCtx, nil))
	assert.Contains(t, out.String(), "upstream core")
	assert.Contains(t, out.String(), "upstream ai")
	assert.Contains(t, out.String(), "redis")
	assert.NotContains(t, out.String(), "FAIL")
}

func TestRunCheck_UpstreamDown(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	cmdCtx, out := newCmdCtx(config.AppConfig{Backend: config.BackendConfig{CoreURL: down.URL}})
	err := runCheck(cmdCtx, []string{"--timeout", "2s"})
	require.Error(t, err)
	assert.Contains(t, out.String(), "FAIL")
}

func TestRunPrintConfig_RedactsSecrets(t *testing.T) {
	cmdCtx, out := newCmdCtx(config.AppConfig{
		SecretsEncryptionKey: "top-secret",
		Backend:              config.BackendConfig{CoreURL: "http://core", ServiceKey: "svc-secret"},
	})
	require.NoError(t, runPrintConfig(cmdCtx, nil))
	assert.NotContains(t, out.String(), "top-secret")
	assert.NotContains(t, out.String(), "svc-secret")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "[redacted]", decoded["SecretsEncryptionKey"])
}

func TestRefreshLockCommands(t *testing.T) {
	mr, rdb := testutil.SetupMiniRedis(t)
	ctx := context.Background()
	prefix := "yt-gateway:"
	require.NoError(t, rdb.Set(ctx, prefix+refreshLockSegment+"a", "owner", time.Minute).Err())
	require.NoError(t, rdb.Set(ctx, prefix+refreshLockSegment+"b", "owner", time.Minute).Err())
	require.NoError(t, rdb.Set(ctx, prefix+refreshResultSegment+"a", "sealed", time.Minute).Err())
	require.NoError(t, rdb.Set(ctx, "unrelated", "x", 0).Err())

	cmdCtx, out := newCmdCtx(config.AppConfig{Redis: config.RedisConfig{URI: mr.Addr(), KeyPrefix: prefix}})

	require.NoError(t, runListRefreshLocks(cmdCtx, nil))
	assert.Contains(t, out.String(), "total: 3")

	out.Reset()
	require.NoError(t, runClearRefreshLocks(cmdCtx, []string{"--dry-run"}))
	assert.Contains(t, out.String(), "would delete 2 keys")
	assert.True(t, mr.Exists(prefix+refreshLockSegment+"a"))

	out.Reset()
	require.NoError(t, runClearRefreshLocks(cmdCtx, nil))
	assert.Contains(t, out.String(), "deleted 2 keys")
	assert.False(t, mr.Exists(prefix+refreshLockSegment+"a"))
	assert.True(t, mr.Exists(prefix+refreshResultSegment+"a"))
	assert.True(t, mr.Exists("unrelated"))

	n, err := clearRefreshKeys(ctx, rdb, prefix, clearLocksOptions{Results: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRefreshLockCommands_RequireRedis(t *testing.T) {
	cmdCtx, _ := newCmdCtx(config.AppConfig{})
	assert.ErrorIs(t, runListRefreshLocks(cmdCtx, nil), errRedisNotConfigured)
	assert.ErrorIs(t, runClearRefreshLocks(cmdCtx, nil), errRedisNotConfigured)
}
