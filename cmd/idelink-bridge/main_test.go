package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rexliu/idelink/pkg/config"
	"github.com/rexliu/idelink/pkg/ipc"
)

func encode(t *testing.T, p ipc.Payload) string {
	t.Helper()
	raw, err := ipc.Encode(ipc.NewMessage(p, "test"))
	require.NoError(t, err)
	return string(raw)
}

func TestBridgeRepliesOverStdio(t *testing.T) {
	cfg := config.DefaultProfile("test")
	// An unbound range keeps discovery empty.
	cfg.IPC.BasePort = 1
	cfg.IPC.PortCount = 1
	b := newBridge(cfg, "/w", zerolog.Nop())

	in := "garbage\n" + encode(t, ipc.Ping{}) + encode(t, ipc.OpenFileRequest{FilePath: "/tmp/x.txt", Focus: true})
	var out bytes.Buffer
	err := b.serve(context.Background(), strings.NewReader(in), &out)
	require.Error(t, err)

	reader := ipc.NewLineReader(&out)
	pong, err := reader.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, ipc.KindPong, pong.Kind)

	resp, err := reader.ReadMessage()
	require.NoError(t, err)
	open := resp.Payload.(ipc.OpenFileResponse)
	require.False(t, open.Success)
	require.Contains(t, open.Error, "no matching instance")
}
