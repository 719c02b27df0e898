package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/rexliu/idelink/pkg/config"
	"github.com/rexliu/idelink/pkg/core"
	"github.com/rexliu/idelink/pkg/discovery"
	"github.com/rexliu/idelink/pkg/ipc"
	"github.com/rexliu/idelink/pkg/logging"
	"github.com/rexliu/idelink/pkg/peer"
)

// The bridge relays newline-delimited records on stdin to peers on the port range, for editor
// extensions that can only talk over stdio. Replies are written to stdout.
func main() {
	profile := flag.String("profile", "./_dev_profile", "Profile directory")
	workspace := flag.String("workspace", "", "Workspace used when an OPEN_FILE record carries no context")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadProfile(*profile)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.DefaultProfile("default"), nil
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "bridge exiting: %v\n", err)
		os.Exit(1)
	}
	logger, closer, err := logging.Configure("idelink-bridge", *profile, cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bridge exiting: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	b := newBridge(cfg, *workspace, logger)
	if err := b.serve(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, io.EOF) {
		logger.Error().Err(err).Msg("bridge exiting")
		os.Exit(1)
	}
}

type bridge struct {
	opener    *peer.Opener
	workspace string
	ide       string
	logger    zerolog.Logger
}

func newBridge(cfg *config.ProfileConfig, workspace string, logger zerolog.Logger) *bridge {
	prober := discovery.NewProber(cfg.IDE.Identity)
	prober.Host = cfg.IPC.Host
	prober.ConnectTimeout = cfg.IPC.ConnectTimeout.Duration
	prober.ReadTimeout = cfg.IPC.ReadTimeout.Duration
	prober.Logger = logger
	client := ipc.NewClient(cfg.IDE.Identity)
	client.Host = cfg.IPC.Host
	client.ConnectTimeout = cfg.IPC.ConnectTimeout.Duration
	client.Timeout = cfg.IPC.RequestTimeout.Duration
	return &bridge{
		opener: &peer.Opener{
			Discoverer: &discovery.Discoverer{Prober: prober, BasePort: cfg.IPC.BasePort, PortCount: cfg.IPC.PortCount},
			Selector:   core.NewSelector(core.NewSessionCache(), core.FirstChooser{}),
			Client:     client,
			Query:      discovery.Query{ExcludePID: os.Getpid()},
			Fallback:   true,
		},
		workspace: workspace,
		ide:       cfg.IDE.Identity,
		logger:    logger,
	}
}

func (b *bridge) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := ipc.NewLineReader(in)
	writer := bufio.NewWriter(out)
	defer writer.Flush()
	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			return err
		}
		for _, reply := range b.handle(ctx, msg) {
			if err := ipc.WriteMessage(writer, ipc.NewMessage(reply, b.ide)); err != nil {
				return fmt.Errorf("write reply: %w", err)
			}
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}
}

func (b *bridge) handle(ctx context.Context, msg ipc.Message) []ipc.Payload {
	switch p := msg.Payload.(type) {
	case ipc.Ping:
		return []ipc.Payload{ipc.Pong{}}
	case ipc.DiscoverRequest:
		found, err := b.opener.Candidates(ctx, p.WorkspacePath)
		if err != nil {
			b.logger.Warn().Err(err).Msg("discover failed")
			return nil
		}
		replies := make([]ipc.Payload, 0, len(found))
		for _, inst := range found {
			replies = append(replies, toResponse(inst))
		}
		return replies
	case ipc.OpenFileRequest:
		req := peer.OpenRequest{FilePath: p.FilePath, Workspace: b.workspace}
		if p.Line != nil {
			req.Line = *p.Line
		}
		if p.Column != nil {
			req.Column = *p.Column
		}
		res, err := b.opener.Open(ctx, req)
		if err != nil {
			b.logger.Info().Err(err).Str("file", p.FilePath).Msg("open failed")
			if res.Response.Error != "" {
				return []ipc.Payload{res.Response}
			}
			return []ipc.Payload{ipc.OpenFileResponse{Success: false, Error: err.Error()}}
		}
		return []ipc.Payload{res.Response}
	default:
		b.logger.Debug().Str("type", string(msg.Kind)).Msg("ignoring record")
		return nil
	}
}

func toResponse(inst core.Instance) ipc.DiscoverResponse {
	resp := ipc.DiscoverResponse{
		Port:          inst.Port,
		IDE:           inst.IDE,
		Version:       inst.Version,
		WorkspacePath: inst.WorkspacePath,
		PID:           inst.PID,
	}
	if inst.SolutionPath != "" {
		solution := inst.SolutionPath
		resp.SolutionPath = &solution
	}
	if inst.WindowHandle != 0 {
		handle := inst.WindowHandle
		resp.WindowHandle = &handle
	}
	return resp
}
