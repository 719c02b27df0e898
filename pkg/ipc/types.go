package ipc

// Kind discriminates the payload carried by a Message.
type Kind string

const (
	KindDiscover         Kind = "DISCOVER"
	KindDiscoverResponse Kind = "DISCOVER_RESPONSE"
	KindOpenFile         Kind = "OPEN_FILE"
	KindOpenFileResponse Kind = "OPEN_FILE_RESPONSE"
	KindPing             Kind = "PING"
	KindPong             Kind = "PONG"
)

// Message is the envelope exchanged on the wire, one per line.
type Message struct {
	Kind    Kind
	Payload Payload
	// Timestamp is Unix milliseconds at creation. Advisory only.
	Timestamp int64
	SourceIDE string
	SourcePID int
}

// Payload is implemented by every payload variant.
type Payload interface {
	Kind() Kind
}

// DiscoverRequest asks a listener to describe itself. An empty WorkspacePath matches anything.
type DiscoverRequest struct {
	WorkspacePath string `json:"workspacePath" mapstructure:"workspacePath"`
}

func (DiscoverRequest) Kind() Kind { return KindDiscover }

// DiscoverResponse describes a live listener.
type DiscoverResponse struct {
	Port          int     `json:"port" mapstructure:"port"`
	IDE           string  `json:"ide" mapstructure:"ide"`
	Version       string  `json:"version" mapstructure:"version"`
	WorkspacePath string  `json:"workspacePath" mapstructure:"workspacePath"`
	SolutionPath  *string `json:"solutionPath,omitempty" mapstructure:"solutionPath"`
	PID           int     `json:"pid" mapstructure:"pid"`
	WindowHandle  *int64  `json:"windowHandle,omitempty" mapstructure:"windowHandle"`
}

func (DiscoverResponse) Kind() Kind { return KindDiscoverResponse }

// OpenFileRequest asks a listener to open a file and optionally move to a 1-based position.
type OpenFileRequest struct {
	FilePath string `json:"filePath" mapstructure:"filePath"`
	Line     *int   `json:"line,omitempty" mapstructure:"line"`
	Column   *int   `json:"column,omitempty" mapstructure:"column"`
	Focus    bool   `json:"focus" mapstructure:"focus"`
}

func (OpenFileRequest) Kind() Kind { return KindOpenFile }

// OpenFileResponse reports the outcome of an OpenFileRequest.
type OpenFileResponse struct {
	Success bool   `json:"success" mapstructure:"success"`
	Error   string `json:"error,omitempty" mapstructure:"error"`
}

func (OpenFileResponse) Kind() Kind { return KindOpenFileResponse }

// Ping is a liveness probe.
type Ping struct{}

func (Ping) Kind() Kind { return KindPing }

// Pong answers a Ping.
type Pong struct{}

func (Pong) Kind() Kind { return KindPong }

// Unknown carries the raw payload of a kind this package does not interpret.
type Unknown struct {
	Type   Kind
	Fields map[string]any
}

func (u Unknown) Kind() Kind { return u.Type }

// wireMessage is the JSON shape of Message.
type wireMessage struct {
	Type      Kind   `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
	SourceIDE string `json:"sourceIde"`
	SourcePID int    `json:"sourcePid"`
}
