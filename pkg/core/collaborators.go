package core

import "context"

// EditorState exposes the live identity and workspace of the local editor.
type EditorState interface {
	// Workspace returns the open folder and, when one is loaded, the solution file.
	Workspace(ctx context.Context) (workspace, solution string)
	Identity() string
	Version() string
	// WindowHandle returns the native main window handle, or 0 when there is none.
	WindowHandle() int64
}

// FileOpener opens documents in the local editor.
type FileOpener interface {
	OpenFile(ctx context.Context, path string) error
	// NavigateTo moves the caret in the active document to a 1-based line and column.
	NavigateTo(ctx context.Context, line, column int) error
}

// WindowFocuser raises the editor window. The result is a hint, never a guarantee.
type WindowFocuser interface {
	BringToFront(ctx context.Context, handle int64) bool
}

// Chooser asks a human to pick one of several instances. ok is false when they decline.
type Chooser interface {
	ChooseOne(ctx context.Context, candidates []Instance) (choice Instance, ok bool)
}

// Journal records served open requests.
type Journal interface {
	Record(ctx context.Context, rec OpenRecord) error
}
