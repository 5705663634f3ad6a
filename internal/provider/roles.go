package provider

import (
	"slices"
	"strings"
)

// roleFallbacks lists, for each internal role, the role it degrades to when
// a target API does not accept it.
var roleFallbacks = map[MessageRole]MessageRole{
	MessageRoleToolResponse: MessageRoleUser,
	MessageRoleSystem:       MessageRoleUser,
}

// RemapRoles returns a copy of msgs where every role not in supported is
// rewritten to its fallback (tool_response and system become user). Roles
// with no fallback are kept as is. The input slice is never modified.
func RemapRoles(msgs []LLMMessage, supported []MessageRole) []LLMMessage {
	out := make([]LLMMessage, len(msgs))
	for i, m := range msgs {
		if !slices.Contains(supported, m.Role) {
			if fb, ok := roleFallbacks[m.Role]; ok {
				m.Role = fb
			}
		}
		out[i] = m
	}
	return out
}

// MergeConsecutive joins adjacent messages that share a role, separated by a
// blank line. APIs that require alternating user/assistant turns need this
// after RemapRoles turned observations into user messages.
func MergeConsecutive(msgs []LLMMessage) []LLMMessage {
	var out []LLMMessage
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content = strings.TrimRight(out[n-1].Content, "\n") + "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}

// Prepare applies the role mapping advertised by p (if any) to msgs.
func Prepare(p Provider, msgs []LLMMessage) []LLMMessage {
	if rm, ok := p.(RoleMapper); ok {
		return RemapRoles(msgs, rm.SupportedRoles())
	}
	return msgs
}
