package gateway

import (
	"encoding/json"
	"net/http"
	"slices"
	"testing"
)

func TestBots_List(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	resp := h.do(t, http.MethodGet, "/api/bots", "", nil)
	var body map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !slices.Equal(body["bots"], []string{"chat", "mute", "query"}) {
		t.Errorf("bots = %v", body["bots"])
	}
}

func TestBots_Ask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		bot    string
		body   string
		status int
		answer string
	}{
		{"query bot", "query", `{"text":"who?"}`, http.StatusOK, "q:who?"},
		{"chat bot keeps session key", "chat", `{"text":"hi","session_id":"u1"}`, http.StatusOK, "c:u1:hi"},
		{"unknown bot", "nope", `{"text":"hi"}`, http.StatusNotFound, ""},
		{"no capabilities", "mute", `{"text":"hi"}`, http.StatusBadRequest, ""},
		{"blank text", "query", `{"text":""}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, nil)
			resp := h.do(t, http.MethodPost, "/api/bots/"+tt.bot, tt.body, nil)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.answer == "" {
				return
			}
			var got botResponse
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Answer != tt.answer || got.Bot != tt.bot {
				t.Errorf("response = %+v, want answer %q", got, tt.answer)
			}
		})
	}
}
