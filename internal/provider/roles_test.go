package provider

import "testing"

func TestRemapRoles_ToolResponseBecomesUser(t *testing.T) {
	t.Parallel()

	msgs := []LLMMessage{
		{Role: MessageRoleSystem, Content: "sys"},
		{Role: MessageRoleUser, Content: "task"},
		{Role: MessageRoleAssistant, Content: "code"},
		{Role: MessageRoleToolResponse, Content: "observation"},
	}

	got := RemapRoles(msgs, []MessageRole{MessageRoleSystem, MessageRoleUser, MessageRoleAssistant})

	want := []MessageRole{MessageRoleSystem, MessageRoleUser, MessageRoleAssistant, MessageRoleUser}
	for i, role := range want {
		if got[i].Role != role {
			t.Errorf("msg[%d].Role = %q, want %q", i, got[i].Role, role)
		}
	}
	if msgs[3].Role != MessageRoleToolResponse {
		t.Error("RemapRoles must not modify its input")
	}
}

func TestRemapRoles_SupportedRolesUntouched(t *testing.T) {
	t.Parallel()

	msgs := []LLMMessage{{Role: MessageRoleToolResponse, Content: "obs"}}
	got := RemapRoles(msgs, []MessageRole{MessageRoleToolResponse})
	if got[0].Role != MessageRoleToolResponse {
		t.Errorf("Role = %q, want tool_response", got[0].Role)
	}
}

func TestMergeConsecutive(t *testing.T) {
	t.Parallel()

	got := MergeConsecutive([]LLMMessage{
		{Role: MessageRoleUser, Content: "task\n"},
		{Role: MessageRoleUser, Content: "observation"},
		{Role: MessageRoleAssistant, Content: "a"},
	})

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Content != "task\n\nobservation" {
		t.Errorf("merged content = %q", got[0].Content)
	}
}

type roleLimitedProvider struct{ nopProvider }

func (roleLimitedProvider) SupportedRoles() []MessageRole {
	return []MessageRole{MessageRoleSystem, MessageRoleUser, MessageRoleAssistant}
}

func TestPrepare_UsesRoleMapper(t *testing.T) {
	t.Parallel()

	msgs := []LLMMessage{{Role: MessageRoleToolResponse, Content: "obs"}}

	if got := Prepare(nopProvider{}, msgs); got[0].Role != MessageRoleToolResponse {
		t.Errorf("provider without RoleMapper: Role = %q", got[0].Role)
	}
	if got := Prepare(roleLimitedProvider{}, msgs); got[0].Role != MessageRoleUser {
		t.Errorf("provider with RoleMapper: Role = %q, want user", got[0].Role)
	}
}
