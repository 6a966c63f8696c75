package models

import "slices"

// Role tags who authored a chat log entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
)

// Known reports whether r is one of the roles the backend is expected to send.
func (r Role) Known() bool {
	switch r {
	case RoleUser, RoleSystem, RoleAssistant:
		return true
	}
	return false
}

type ChatLogEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatLog is the server-owned conversation in conversation order.
// The client only ever replaces its copy, it never appends to it.
type ChatLog []ChatLogEntry

// Clone returns a copy that does not share a backing array with l.
// A nil log clones to an empty, non-nil log.
func (l ChatLog) Clone() ChatLog {
	if l == nil {
		return ChatLog{}
	}
	return slices.Clone(l)
}

// TokenUsage is reported by the backend after a generate call.
type TokenUsage struct {
	Prompt     int `json:"prompt_tokens"`
	Completion int `json:"completion_tokens"`
}
