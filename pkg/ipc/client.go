package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Defaults shared by both ends of the protocol.
const (
	DefaultHost           = "127.0.0.1"
	DefaultBasePort       = 52342
	DefaultPortCount      = 100
	DefaultConnectTimeout = time.Second
	DefaultReadTimeout    = time.Second
	DefaultRequestTimeout = 5 * time.Second
)

// ErrNoResponse wraps every transport or protocol failure of a request.
var ErrNoResponse = errors.New("ipc: no response")

// Client issues single round-trip requests, one connection per request.
type Client struct {
	Host           string
	ConnectTimeout time.Duration
	// Timeout bounds the write and the read of the reply.
	Timeout   time.Duration
	SourceIDE string
}

// NewClient returns a client with the default loopback host and request timeouts.
func NewClient(sourceIDE string) *Client {
	return &Client{
		Host:           DefaultHost,
		ConnectTimeout: DefaultConnectTimeout,
		Timeout:        DefaultRequestTimeout,
		SourceIDE:      sourceIDE,
	}
}

// RoundTrip connects to port, sends payload and returns the first reply of kind want. Records
// that fail to decode or carry another kind are skipped. The connection is always closed before
// returning.
func (c *Client) RoundTrip(ctx context.Context, port int, payload Payload, want Kind) (Message, error) {
	dialer := net.Dialer{Timeout: c.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(c.host(), strconv.Itoa(port)))
	if err != nil {
		return Message{}, fmt.Errorf("%w: dial port %d: %w", ErrNoResponse, port, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if c.Timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
			return Message{}, fmt.Errorf("%w: %w", ErrNoResponse, err)
		}
	}
	if err := WriteMessage(conn, NewMessage(payload, c.SourceIDE)); err != nil {
		return Message{}, c.failure(ctx, port, err)
	}
	reader := NewLineReader(conn)
	for {
		reply, err := reader.ReadMessage()
		if err != nil {
			return Message{}, c.failure(ctx, port, err)
		}
		if reply.Kind == want {
			return reply, nil
		}
	}
}

// OpenFile asks the listener on port to open a file. A returned error means the request never
// completed; a peer that could not open the file answers with Success false.
func (c *Client) OpenFile(ctx context.Context, port int, req OpenFileRequest) (OpenFileResponse, error) {
	reply, err := c.RoundTrip(ctx, port, req, KindOpenFileResponse)
	if err != nil {
		return OpenFileResponse{}, err
	}
	resp, _ := reply.Payload.(OpenFileResponse)
	return resp, nil
}

// Ping measures one PING/PONG round trip.
func (c *Client) Ping(ctx context.Context, port int) (time.Duration, error) {
	start := time.Now()
	if _, err := c.RoundTrip(ctx, port, Ping{}, KindPong); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func (c *Client) host() string {
	if c.Host == "" {
		return DefaultHost
	}
	return c.Host
}

func (c *Client) failure(ctx context.Context, port int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return fmt.Errorf("%w: port %d: %w", ErrNoResponse, port, err)
}
