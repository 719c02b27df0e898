// Package discovery finds live peer listeners by scanning the loopback port range.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"

	"github.com/rexliu/idelink/pkg/core"
	"github.com/rexliu/idelink/pkg/ipc"
	"github.com/rexliu/idelink/pkg/paths"
)

// Query narrows which peers a probe accepts.
type Query struct {
	// Workspace must be path-matched by the peer's workspace when non-empty.
	Workspace string
	// IDE is a glob matched against the peer's ide tag when non-empty.
	IDE string
	// ExcludePID skips the listener owned by this process id when non-zero.
	ExcludePID int
}

type filter struct {
	query Query
	ide   glob.Glob
}

func (q Query) compile() (filter, error) {
	f := filter{query: q}
	if q.IDE == "" {
		return f, nil
	}
	g, err := glob.Compile(q.IDE)
	if err != nil {
		return filter{}, fmt.Errorf("discovery: ide pattern %q: %w", q.IDE, err)
	}
	f.ide = g
	return f, nil
}

func (f filter) accept(resp ipc.DiscoverResponse) bool {
	if f.query.Workspace != "" && !paths.Match(resp.WorkspacePath, f.query.Workspace) {
		return false
	}
	if f.ide != nil && !f.ide.Match(resp.IDE) {
		return false
	}
	if f.query.ExcludePID != 0 && resp.PID == f.query.ExcludePID {
		return false
	}
	return true
}

// Prober performs one bounded DISCOVER exchange against one port.
type Prober struct {
	Host           string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	SourceIDE      string
	Logger         zerolog.Logger
}

// NewProber returns a prober with the default host and timeouts.
func NewProber(sourceIDE string) Prober {
	return Prober{
		Host:           ipc.DefaultHost,
		ConnectTimeout: ipc.DefaultConnectTimeout,
		ReadTimeout:    ipc.DefaultReadTimeout,
		SourceIDE:      sourceIDE,
		Logger:         zerolog.Nop(),
	}
}

// Probe asks the listener on port to describe itself and reports whether it satisfies q. Every
// failure, including an invalid IDE pattern, is reported as no instance.
func (p Prober) Probe(ctx context.Context, port int, q Query) (core.Instance, bool) {
	f, err := q.compile()
	if err != nil {
		p.Logger.Debug().Err(err).Msg("probe skipped")
		return core.Instance{}, false
	}
	return p.probe(ctx, port, f)
}

func (p Prober) probe(ctx context.Context, port int, f filter) (core.Instance, bool) {
	host := p.Host
	if host == "" {
		host = ipc.DefaultHost
	}
	dialer := net.Dialer{Timeout: p.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return core.Instance{}, false
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if p.ReadTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(p.ReadTimeout)); err != nil {
			return core.Instance{}, false
		}
	}
	req := ipc.NewMessage(ipc.DiscoverRequest{WorkspacePath: f.query.Workspace}, p.SourceIDE)
	if err := ipc.WriteMessage(conn, req); err != nil {
		p.Logger.Debug().Err(err).Int("port", port).Msg("probe write failed")
		return core.Instance{}, false
	}
	line, err := ipc.NewLineReader(conn).ReadLine()
	if err != nil {
		p.Logger.Debug().Err(err).Int("port", port).Msg("probe read failed")
		return core.Instance{}, false
	}
	msg, ok := ipc.Decode(line)
	if !ok {
		return core.Instance{}, false
	}
	resp, ok := msg.Payload.(ipc.DiscoverResponse)
	if !ok || !f.accept(resp) {
		return core.Instance{}, false
	}
	return toInstance(resp), true
}

func toInstance(resp ipc.DiscoverResponse) core.Instance {
	inst := core.Instance{
		Port:          resp.Port,
		IDE:           resp.IDE,
		Version:       resp.Version,
		WorkspacePath: resp.WorkspacePath,
		PID:           resp.PID,
	}
	if resp.SolutionPath != nil {
		inst.SolutionPath = *resp.SolutionPath
	}
	if resp.WindowHandle != nil {
		inst.WindowHandle = *resp.WindowHandle
	}
	return inst
}
