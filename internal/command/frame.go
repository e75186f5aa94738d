package command

import (
	"strings"

	"github.com/vovakirdan/linechat-server/internal/core"
)

// ExitPayload asks the server to end the session.
const ExitPayload = "exit"

// Frame is one steady-state client line: "<identity>:<payload>".
type Frame struct {
	Identity core.Identity
	Payload  string
}

// ParseFrame splits a line into its identity and payload.
func ParseFrame(line string) (Frame, error) {
	head, payload, ok := strings.Cut(line, ":")
	if !ok {
		return Frame{}, core.ErrProtocol
	}
	id, err := core.ParseIdentity(head)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Identity: id, Payload: payload}, nil
}

// IsExit reports whether the frame asks for a graceful disconnect.
func (f Frame) IsExit() bool {
	return strings.TrimSpace(f.Payload) == ExitPayload
}

// split classifies the payload. "<name>:<args>" names a command unless the head
// contains whitespace; a bare payload equal to a known command runs it; anything
// else is chat.
func (f Frame) split(known func(string) bool) (name, args string, chat bool) {
	payload := strings.TrimSpace(f.Payload)
	if head, rest, ok := strings.Cut(payload, ":"); ok && head != "" && !strings.ContainsAny(head, " \t") {
		return head, rest, false
	}
	if known(payload) {
		return payload, "", false
	}
	return "", f.Payload, true
}
