package ipc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
)

var bom = []byte("\ufeff")

// NewMessage wraps payload in an envelope stamped with the current time and process id.
func NewMessage(payload Payload, sourceIDE string) Message {
	return Message{
		Kind:      payload.Kind(),
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
		SourceIDE: sourceIDE,
		SourcePID: os.Getpid(),
	}
}

// Encode serializes msg as a single newline-terminated JSON record.
func Encode(msg Message) ([]byte, error) {
	if msg.Payload == nil {
		return nil, errors.New("ipc: message without payload")
	}
	kind := msg.Kind
	if kind == "" {
		kind = msg.Payload.Kind()
	}
	var body any = msg.Payload
	if u, ok := msg.Payload.(Unknown); ok {
		body = u.Fields
		if u.Fields == nil {
			body = map[string]any{}
		}
	}
	raw, err := json.Marshal(wireMessage{
		Type:      kind,
		Payload:   body,
		Timestamp: msg.Timestamp,
		SourceIDE: msg.SourceIDE,
		SourcePID: msg.SourcePID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return append(raw, '\n'), nil
}

// Decode parses one record. It reports false for anything that is not a well-formed envelope, and
// for known kinds whose payload fails validation.
func Decode(line []byte) (Message, bool) {
	line = bytes.TrimSpace(bytes.TrimPrefix(bytes.TrimSpace(line), bom))
	if len(line) == 0 {
		return Message{}, false
	}
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Message{}, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return Message{}, false
	}
	kind, ok := raw["type"].(string)
	if !ok {
		return Message{}, false
	}
	fields, ok := raw["payload"].(map[string]any)
	if !ok {
		return Message{}, false
	}
	payload, ok := decodePayload(Kind(kind), fields)
	if !ok {
		return Message{}, false
	}
	source, _ := raw["sourceIde"].(string)
	timestamp, _ := asInt(raw["timestamp"])
	pid, _ := asInt(raw["sourcePid"])
	return Message{
		Kind:      Kind(kind),
		Payload:   payload,
		Timestamp: timestamp,
		SourceIDE: source,
		SourcePID: int(pid),
	}, true
}

func decodePayload(kind Kind, fields map[string]any) (Payload, bool) {
	var out Payload
	switch kind {
	case KindDiscover:
		if !validDiscover(fields) {
			return nil, false
		}
		var p DiscoverRequest
		if decodeFields(fields, &p) != nil {
			return nil, false
		}
		out = p
	case KindDiscoverResponse:
		if !validDiscoverResponse(fields) {
			return nil, false
		}
		var p DiscoverResponse
		if decodeFields(fields, &p) != nil {
			return nil, false
		}
		out = p
	case KindOpenFile:
		if !validOpenFile(fields) {
			return nil, false
		}
		var p OpenFileRequest
		if decodeFields(fields, &p) != nil {
			return nil, false
		}
		out = p
	case KindOpenFileResponse:
		if !validOpenFileResponse(fields) {
			return nil, false
		}
		var p OpenFileResponse
		if decodeFields(fields, &p) != nil {
			return nil, false
		}
		out = p
	case KindPing:
		out = Ping{}
	case KindPong:
		out = Pong{}
	default:
		out = Unknown{Type: kind, Fields: fields}
	}
	return out, true
}

func validDiscover(f map[string]any) bool {
	return isString(f, "workspacePath", true)
}

func validDiscoverResponse(f map[string]any) bool {
	ide, _ := f["ide"].(string)
	return isInt(f, "port", true) &&
		ide != "" &&
		isString(f, "version", true) &&
		isString(f, "workspacePath", true) &&
		isString(f, "solutionPath", false) &&
		isInt(f, "pid", true) &&
		isInt(f, "windowHandle", false)
}

func validOpenFile(f map[string]any) bool {
	return isString(f, "filePath", true) &&
		isInt(f, "line", false) &&
		isInt(f, "column", false) &&
		isBool(f, "focus", true)
}

func validOpenFileResponse(f map[string]any) bool {
	return isBool(f, "success", true) && isString(f, "error", false)
}

// decodeFields copies validated fields into out. JSON nulls are treated as absent.
func decodeFields(fields map[string]any, out any) error {
	clean := make(map[string]any, len(fields))
	for k, v := range fields {
		if v != nil {
			clean[k] = v
		}
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: out})
	if err != nil {
		return err
	}
	return dec.Decode(clean)
}

func isString(f map[string]any, key string, required bool) bool {
	v, ok := f[key]
	if !ok || v == nil {
		return !required
	}
	_, ok = v.(string)
	return ok
}

func isBool(f map[string]any, key string, required bool) bool {
	v, ok := f[key]
	if !ok || v == nil {
		return !required
	}
	_, ok = v.(bool)
	return ok
}

func isInt(f map[string]any, key string, required bool) bool {
	v, ok := f[key]
	if !ok || v == nil {
		return !required
	}
	_, ok = asInt(v)
	return ok
}

func asInt(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}
