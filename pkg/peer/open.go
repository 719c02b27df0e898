package peer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rexliu/idelink/pkg/core"
	"github.com/rexliu/idelink/pkg/discovery"
	"github.com/rexliu/idelink/pkg/ipc"
	"github.com/rexliu/idelink/pkg/paths"
)

var (
	// ErrNoInstance indicates discovery found no usable peer.
	ErrNoInstance = errors.New("peer: no matching instance")
	// ErrSelectionCancelled indicates the chooser declined every candidate.
	ErrSelectionCancelled = errors.New("peer: selection cancelled")
	// ErrOpenFailed indicates the peer answered but could not open the file.
	ErrOpenFailed = errors.New("peer: open failed")
)

// OpenRequest names a file to open in a peer editor.
type OpenRequest struct {
	FilePath string
	// Line and Column are 1-based. Zero omits them.
	Line   int
	Column int
	// Workspace selects peers whose workspace overlaps it.
	Workspace string
}

// OpenResult reports which instance served the request.
type OpenResult struct {
	Instance core.Instance
	Response ipc.OpenFileResponse
}

// Opener discovers peers for a workspace, selects one and asks it to open a file.
type Opener struct {
	Discoverer *discovery.Discoverer
	Selector   *core.Selector
	Client     *ipc.Client
	// Query supplies the IDE and pid filters. Its Workspace is replaced per request.
	Query discovery.Query
	// Fallback considers every live peer when none matches the workspace.
	Fallback bool
}

// Candidates returns the peers eligible for workspace, applying the fallback when enabled.
func (o *Opener) Candidates(ctx context.Context, workspace string) ([]core.Instance, error) {
	q := o.Query
	q.Workspace = workspace
	found, err := o.Discoverer.Discover(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 && o.Fallback && workspace != "" {
		found, err = o.Discoverer.DiscoverAny(ctx, q)
		if err != nil {
			return nil, err
		}
	}
	return found, nil
}

// Open runs discovery, selection and the OPEN_FILE request. The peer is always asked to focus.
func (o *Opener) Open(ctx context.Context, req OpenRequest) (OpenResult, error) {
	if req.FilePath == "" {
		return OpenResult{}, errors.New("peer: file path required")
	}
	file, err := filepath.Abs(req.FilePath)
	if err != nil {
		return OpenResult{}, fmt.Errorf("peer: resolve %s: %w", req.FilePath, err)
	}
	workspace := ""
	if req.Workspace != "" {
		workspace = paths.Normalize(req.Workspace)
	}

	candidates, err := o.Candidates(ctx, workspace)
	if err != nil {
		return OpenResult{}, err
	}
	if len(candidates) == 0 {
		return OpenResult{}, ErrNoInstance
	}
	selector := o.Selector
	if selector == nil {
		selector = &core.Selector{}
	}
	inst, ok := selector.Select(ctx, candidates, workspace)
	if !ok {
		return OpenResult{}, ErrSelectionCancelled
	}

	msg := ipc.OpenFileRequest{FilePath: file, Focus: true}
	if req.Line > 0 {
		line := req.Line
		msg.Line = &line
		if req.Column > 0 {
			column := req.Column
			msg.Column = &column
		}
	}
	resp, err := o.Client.OpenFile(ctx, inst.Port, msg)
	if err != nil {
		return OpenResult{Instance: inst}, err
	}
	result := OpenResult{Instance: inst, Response: resp}
	if !resp.Success {
		return result, fmt.Errorf("%w: %s", ErrOpenFailed, resp.Error)
	}
	return result, nil
}
