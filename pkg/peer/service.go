// Package peer wires editor collaborators to the ipc listener and drives the client open flow.
package peer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/rexliu/idelink/pkg/core"
	"github.com/rexliu/idelink/pkg/ipc"
)

// Service answers DISCOVER, OPEN_FILE and PING on behalf of the local editor.
type Service struct {
	Editor  core.EditorState
	Files   core.FileOpener
	Focuser core.WindowFocuser
	// Journal is optional.
	Journal core.Journal
	Logger  zerolog.Logger
	// PID is reported in DISCOVER_RESPONSE.
	PID int

	srv *ipc.Server
}

// NewService returns a service without a journal.
func NewService(editor core.EditorState, files core.FileOpener, focuser core.WindowFocuser, logger zerolog.Logger) *Service {
	return &Service{Editor: editor, Files: files, Focuser: focuser, Logger: logger, PID: os.Getpid()}
}

// Register installs the service handlers on srv.
func (s *Service) Register(srv *ipc.Server) {
	s.srv = srv
	srv.Register(ipc.KindDiscover, s.handleDiscover)
	srv.Register(ipc.KindOpenFile, s.handleOpenFile)
	srv.Register(ipc.KindPing, pingHandler(s.Logger))
}

func (s *Service) handleDiscover(ctx context.Context, msg ipc.Message) ipc.Payload {
	workspace, solution := s.Editor.Workspace(ctx)
	resp := ipc.DiscoverResponse{
		Port:          s.srv.Port(),
		IDE:           s.Editor.Identity(),
		Version:       s.Editor.Version(),
		WorkspacePath: workspace,
		PID:           s.PID,
	}
	if solution != "" {
		resp.SolutionPath = &solution
	}
	if handle := s.Editor.WindowHandle(); handle != 0 {
		resp.WindowHandle = &handle
	}
	s.Logger.Debug().
		Str("from", msg.SourceIDE).
		Int("fromPid", msg.SourcePID).
		Str("workspace", workspace).
		Msg("discover")
	return resp
}

func (s *Service) handleOpenFile(ctx context.Context, msg ipc.Message) ipc.Payload {
	req, ok := msg.Payload.(ipc.OpenFileRequest)
	if !ok {
		return nil
	}
	rec := core.OpenRecord{
		ID:         core.NewTraceID(),
		FilePath:   req.FilePath,
		Focus:      req.Focus,
		SourceIDE:  msg.SourceIDE,
		SourcePID:  msg.SourcePID,
		ReceivedAt: time.Now().UnixMilli(),
	}
	if req.Line != nil {
		rec.Line = *req.Line
	}
	if req.Column != nil {
		rec.Column = *req.Column
	}
	log := s.Logger.With().Str("id", rec.ID).Str("file", req.FilePath).Logger()

	resp := ipc.OpenFileResponse{Success: true}
	if err := s.open(ctx, req.FilePath); err != nil {
		log.Warn().Err(err).Msg("open file failed")
		resp = ipc.OpenFileResponse{Success: false, Error: err.Error()}
	} else {
		if rec.Line > 0 {
			column := rec.Column
			if column <= 0 {
				column = 1
			}
			if err := s.Files.NavigateTo(ctx, rec.Line, column); err != nil {
				log.Debug().Err(err).Int("line", rec.Line).Int("column", column).Msg("navigate failed")
			}
		}
		if req.Focus && s.Focuser != nil {
			if !s.Focuser.BringToFront(ctx, s.Editor.WindowHandle()) {
				log.Debug().Msg("focus request not honoured")
			}
		}
	}

	rec.Success = resp.Success
	rec.Error = resp.Error
	if s.Journal != nil {
		if err := s.Journal.Record(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("journal record failed")
		}
	}
	log.Info().Bool("success", resp.Success).Msg("open file")
	return resp
}

func (s *Service) open(ctx context.Context, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("open %s: %v", path, r)
		}
	}()
	if path == "" {
		return fmt.Errorf("file path required")
	}
	return s.Files.OpenFile(ctx, path)
}

func pingHandler(logger zerolog.Logger) ipc.HandlerFunc {
	return func(_ context.Context, msg ipc.Message) ipc.Payload {
		logger.Debug().Str("from", msg.SourceIDE).Msg("ping")
		return ipc.Pong{}
	}
}
