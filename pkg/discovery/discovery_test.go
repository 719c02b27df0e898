package discovery

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rexliu/idelink/pkg/ipc"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// listenRange binds n consecutive loopback ports and returns the listeners.
func listenRange(t *testing.T, n int) []net.Listener {
	t.Helper()
	for attempt := 0; attempt < 20; attempt++ {
		base := freePort(t)
		var lns []net.Listener
		for i := 0; i < n; i++ {
			ln, err := net.Listen("tcp", net.JoinHostPort(ipc.DefaultHost, strconv.Itoa(base+i)))
			if err != nil {
				break
			}
			lns = append(lns, ln)
		}
		if len(lns) == n {
			t.Cleanup(func() {
				for _, ln := range lns {
					_ = ln.Close()
				}
			})
			return lns
		}
		for _, ln := range lns {
			_ = ln.Close()
		}
	}
	t.Fatalf("could not bind %d consecutive ports", n)
	return nil
}

// hang accepts connections on every listener and never answers.
func hang(t *testing.T, lns []net.Listener) {
	t.Helper()
	var mu sync.Mutex
	var conns []net.Conn
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	for _, ln := range lns {
		go func(ln net.Listener) {
			for {
				conn, err := ln.Accept()
				if err != nil {
					return
				}
				mu.Lock()
				conns = append(conns, conn)
				mu.Unlock()
			}
		}(ln)
	}
}

func startPeer(t *testing.T, ide, workspace string, pid int) *ipc.Server {
	t.Helper()
	return startPeerAt(t, freePort(t), ide, workspace, pid)
}

func startPeerAt(t *testing.T, base int, ide, workspace string, pid int) *ipc.Server {
	t.Helper()
	srv := ipc.NewServer(ide, zerolog.Nop())
	srv.Register(ipc.KindDiscover, func(context.Context, ipc.Message) ipc.Payload {
		return ipc.DiscoverResponse{
			Port:          srv.Port(),
			IDE:           ide,
			Version:       "1.0.0",
			WorkspacePath: workspace,
			PID:           pid,
		}
	})
	_, err := srv.Start(context.Background(), ipc.DefaultHost, base, 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func testProber() Prober {
	p := NewProber("test")
	p.ConnectTimeout = 200 * time.Millisecond
	p.ReadTimeout = 300 * time.Millisecond
	return p
}

func TestProbeFiltersByWorkspace(t *testing.T) {
	srv := startPeer(t, "vscode", "/a/b", 11)
	p := testProber()
	ctx := context.Background()

	inst, ok := p.Probe(ctx, srv.Port(), Query{Workspace: "/a/b/c"})
	require.True(t, ok)
	require.Equal(t, srv.Port(), inst.Port)
	require.Equal(t, "vscode", inst.IDE)
	require.Equal(t, "/a/b", inst.WorkspacePath)
	require.Equal(t, 11, inst.PID)

	_, ok = p.Probe(ctx, srv.Port(), Query{Workspace: "/z"})
	require.False(t, ok)

	_, ok = p.Probe(ctx, srv.Port(), Query{})
	require.True(t, ok)
}

func TestProbeFiltersByIDEAndPID(t *testing.T) {
	srv := startPeer(t, "visualstudio", "/w", 22)
	p := testProber()
	ctx := context.Background()

	_, ok := p.Probe(ctx, srv.Port(), Query{IDE: "visual*"})
	require.True(t, ok)
	_, ok = p.Probe(ctx, srv.Port(), Query{IDE: "vscode"})
	require.False(t, ok)
	_, ok = p.Probe(ctx, srv.Port(), Query{IDE: "["})
	require.False(t, ok)
	_, ok = p.Probe(ctx, srv.Port(), Query{ExcludePID: 22})
	require.False(t, ok)
}

func TestProbeRejectsWrongReply(t *testing.T) {
	srv := ipc.NewServer("test", zerolog.Nop())
	srv.Register(ipc.KindDiscover, func(context.Context, ipc.Message) ipc.Payload { return ipc.Pong{} })
	_, err := srv.Start(context.Background(), ipc.DefaultHost, freePort(t), 5)
	require.NoError(t, err)
	defer srv.Stop()

	_, ok := testProber().Probe(context.Background(), srv.Port(), Query{})
	require.False(t, ok)
}

func TestDiscoverFindsMatchingPeers(t *testing.T) {
	a := startPeer(t, "vscode", "/a/b", 1)
	b := startPeerAt(t, a.Port()+1, "visualstudio", "/other", 2)
	d := &Discoverer{Prober: testProber(), BasePort: a.Port(), PortCount: b.Port() - a.Port() + 1}

	found, err := d.Discover(context.Background(), Query{Workspace: "/a/b/c"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, a.Port(), found[0].Port)

	none, err := d.Discover(context.Background(), Query{Workspace: "/z"})
	require.NoError(t, err)
	require.Empty(t, none)

	all, err := d.DiscoverAny(context.Background(), Query{Workspace: "/z"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(all), 2)
	for i := 1; i < len(all); i++ {
		require.Less(t, all[i-1].Port, all[i].Port)
	}
}

func TestDiscoverClosedRangeIsFast(t *testing.T) {
	d := &Discoverer{Prober: testProber(), BasePort: freePort(t), PortCount: 100}
	start := time.Now()
	found, err := d.Discover(context.Background(), Query{Workspace: "/nowhere/at/all"})
	require.NoError(t, err)
	require.Empty(t, found)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestDiscoverHungPeersBoundedByReadTimeout(t *testing.T) {
	lns := listenRange(t, 20)
	hang(t, lns)

	d := &Discoverer{
		Prober:    testProber(),
		BasePort:  lns[0].Addr().(*net.TCPAddr).Port,
		PortCount: len(lns),
	}
	start := time.Now()
	found, err := d.Discover(context.Background(), Query{})
	require.NoError(t, err)
	require.Empty(t, found)
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 250*time.Millisecond)
	require.Less(t, elapsed, 1500*time.Millisecond)
}

func TestDiscoverReturnsOnCancellation(t *testing.T) {
	lns := listenRange(t, 5)
	hang(t, lns)

	p := testProber()
	p.ReadTimeout = 5 * time.Second
	d := &Discoverer{Prober: p, BasePort: lns[0].Addr().(*net.TCPAddr).Port, PortCount: len(lns)}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := d.Discover(ctx, Query{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

func TestDiscoverRejectsBadPattern(t *testing.T) {
	d := &Discoverer{Prober: testProber(), BasePort: freePort(t), PortCount: 1}
	_, err := d.Discover(context.Background(), Query{IDE: "["})
	require.Error(t, err)
}
