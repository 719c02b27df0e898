package core

// Well-known IDE family tags. Peers may report any other identifier.
const (
	IDEVSCode       = "vscode"
	IDEVisualStudio = "visualstudio"
	IDEHeadless     = "idelink"
)

// Instance is a discovered peer listener.
type Instance struct {
	Port          int    `json:"port"`
	IDE           string `json:"ide"`
	Version       string `json:"version"`
	WorkspacePath string `json:"workspacePath"`
	SolutionPath  string `json:"solutionPath,omitempty"`
	PID           int    `json:"pid"`
	WindowHandle  int64  `json:"windowHandle,omitempty"`
}

// DisplayPath is the path shown to a user choosing between instances.
func (i Instance) DisplayPath() string {
	if i.SolutionPath != "" {
		return i.SolutionPath
	}
	return i.WorkspacePath
}

// OpenRecord describes one served OPEN_FILE request.
type OpenRecord struct {
	ID         string `json:"id"`
	FilePath   string `json:"filePath"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	Focus      bool   `json:"focus"`
	SourceIDE  string `json:"sourceIde"`
	SourcePID  int    `json:"sourcePid"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	ReceivedAt int64  `json:"receivedAt"`
}
