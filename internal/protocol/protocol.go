// Package protocol parses client text commands and encodes server envelopes.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidMessage = errors.New("invalid message data")

// Kind is the command verb.
type Kind int

const (
	KindPing Kind = iota + 1
	KindRequest
	KindStart
	KindChat
	KindMove
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "PING"
	case KindRequest:
		return "REQUEST"
	case KindStart:
		return "START"
	case KindChat:
		return "CHAT"
	case KindMove:
		return "MOVE"
	}
	return "UNKNOWN"
}

// Command is one parsed client message.
type Command struct {
	Kind   Kind
	Text   string
	Row    int
	Column int
}

// Pong is sent verbatim, without an envelope, in reply to PING.
const Pong = "PONG"

// Parse decodes a text frame. Verbs are case-sensitive.
func Parse(msg string) (Command, error) {
	switch msg {
	case "PING":
		return Command{Kind: KindPing}, nil
	case "REQUEST":
		return Command{Kind: KindRequest}, nil
	case "START":
		return Command{Kind: KindStart}, nil
	}

	if text, ok := strings.CutPrefix(msg, "CHAT "); ok {
		return Command{Kind: KindChat, Text: text}, nil
	}
	if args, ok := strings.CutPrefix(msg, "MOVE "); ok {
		fields := strings.Fields(args)
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("%w: MOVE needs a row and a column", ErrInvalidMessage)
		}
		row, err := strconv.Atoi(fields[0])
		if err != nil {
			return Command{}, fmt.Errorf("%w: row %q", ErrInvalidMessage, fields[0])
		}
		column, err := strconv.Atoi(fields[1])
		if err != nil {
			return Command{}, fmt.Errorf("%w: column %q", ErrInvalidMessage, fields[1])
		}
		return Command{Kind: KindMove, Row: row, Column: column}, nil
	}

	return Command{}, fmt.Errorf("%w: %q", ErrInvalidMessage, clip(msg, 32))
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Envelope is the JSON shape of every server message other than Pong.
type Envelope struct {
	Error   bool   `json:"error"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// RawEnvelope is the decoding side of Envelope with the payload left raw.
type RawEnvelope struct {
	Error   bool            `json:"error"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Data encodes a success envelope around v.
func Data(v any) ([]byte, error) {
	b, err := json.Marshal(Envelope{Data: v})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}

// Error encodes an error envelope.
func Error(message string) []byte {
	b, _ := json.Marshal(Envelope{Error: true, Message: message})
	return b
}

// Decode parses any server message. Pong decodes to a zero envelope and
// ok=false.
func Decode(b []byte) (env RawEnvelope, ok bool, err error) {
	if string(b) == Pong {
		return RawEnvelope{}, false, nil
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return RawEnvelope{}, false, fmt.Errorf("decode envelope: %w", err)
	}
	return env, true, nil
}
