// ABOUTME: Typed message model for the PNCP wire protocol.
// ABOUTME: Defines the four known message kinds and tolerant decoding for unknown types.

package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedMessage indicates a payload that could not be decoded.
var ErrMalformedMessage = errors.New("malformed message")

// Message type discriminator values as they appear on the wire.
const (
	TypeAuth       = "auth"
	TypeAuthResult = "auth_result"
	TypeCommand    = "cmd"
	TypeResult     = "result"
)

// Auth is the first message an agent sends after connecting.
type Auth struct {
	Agent     string `json:"agent"`
	Timestamp int64  `json:"ts"`
	HMAC      string `json:"hmac"`
}

// AuthResult tells the agent whether its auth message was accepted.
type AuthResult struct {
	OK bool `json:"ok"`
}

// Command carries one allowlisted command key with a correlation id.
type Command struct {
	ID  string `json:"id"`
	Key string `json:"cmd"`
}

// Result answers a Command; its ID must equal the Command's ID.
type Result struct {
	ID       string `json:"id"`
	ExitCode int    `json:"rc"`
	Output   string `json:"output"`
}

// Message is the tagged envelope for everything the protocol exchanges.
// Exactly one of the variant pointers is set for a known Type; unknown
// types keep their payload in Raw so they can be logged without failing
// the connection.
type Message struct {
	Type string

	Auth       *Auth
	AuthResult *AuthResult
	Command    *Command
	Result     *Result

	Raw json.RawMessage
}

// NewAuth builds an auth message.
func NewAuth(agent string, ts int64, code string) Message {
	return Message{Type: TypeAuth, Auth: &Auth{Agent: agent, Timestamp: ts, HMAC: code}}
}

// NewAuthResult builds an auth_result message.
func NewAuthResult(ok bool) Message {
	return Message{Type: TypeAuthResult, AuthResult: &AuthResult{OK: ok}}
}

// NewCommand builds a cmd message.
func NewCommand(id, key string) Message {
	return Message{Type: TypeCommand, Command: &Command{ID: id, Key: key}}
}

// NewResult builds a result message.
func NewResult(id string, rc int, output string) Message {
	return Message{Type: TypeResult, Result: &Result{ID: id, ExitCode: rc, Output: output}}
}

type authWire struct {
	Type string `json:"type"`
	Auth
}

type authResultWire struct {
	Type string `json:"type"`
	AuthResult
}

type commandWire struct {
	Type string `json:"type"`
	Command
}

type resultWire struct {
	Type string `json:"type"`
	Result
}

// Encode serializes a Message to its JSON wire payload.
func Encode(m Message) ([]byte, error) {
	switch m.Type {
	case TypeAuth:
		if m.Auth == nil {
			return nil, fmt.Errorf("encode %s: missing payload", m.Type)
		}
		return json.Marshal(authWire{Type: m.Type, Auth: *m.Auth})
	case TypeAuthResult:
		if m.AuthResult == nil {
			return nil, fmt.Errorf("encode %s: missing payload", m.Type)
		}
		return json.Marshal(authResultWire{Type: m.Type, AuthResult: *m.AuthResult})
	case TypeCommand:
		if m.Command == nil {
			return nil, fmt.Errorf("encode %s: missing payload", m.Type)
		}
		return json.Marshal(commandWire{Type: m.Type, Command: *m.Command})
	case TypeResult:
		if m.Result == nil {
			return nil, fmt.Errorf("encode %s: missing payload", m.Type)
		}
		return json.Marshal(resultWire{Type: m.Type, Result: *m.Result})
	default:
		if m.Raw != nil {
			return m.Raw, nil
		}
		return nil, fmt.Errorf("encode: unknown message type %q with no raw payload", m.Type)
	}
}

// Decode parses a JSON wire payload into a Message. Payloads with an
// unrecognized type decode into an opaque Message carrying the raw bytes;
// payloads that are not JSON objects, or whose known-type fields have the
// wrong shape, fail with ErrMalformedMessage.
func Decode(data []byte) (Message, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch probe.Type {
	case TypeAuth:
		var w authWire
		if err := json.Unmarshal(data, &w); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return Message{Type: probe.Type, Auth: &w.Auth}, nil
	case TypeAuthResult:
		var w authResultWire
		if err := json.Unmarshal(data, &w); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return Message{Type: probe.Type, AuthResult: &w.AuthResult}, nil
	case TypeCommand:
		var w commandWire
		if err := json.Unmarshal(data, &w); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return Message{Type: probe.Type, Command: &w.Command}, nil
	case TypeResult:
		var w resultWire
		if err := json.Unmarshal(data, &w); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return Message{Type: probe.Type, Result: &w.Result}, nil
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return Message{Type: probe.Type, Raw: raw}, nil
	}
}
