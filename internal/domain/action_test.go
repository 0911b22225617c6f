package domain

import (
	"testing"
	"time"
)

func TestActionEventMessage(t *testing.T) {
	ev := ActionEvent{
		Type:          "form_submit",
		Params:        map[string]any{"plan": "pro"},
		LLMFriendly:   "User submitted the upgrade form choosing the pro plan.",
		HumanFriendly: "Upgraded to Pro",
	}

	msg := ev.Message("t1", "u1")
	if msg.ThreadID != "t1" || msg.UserID != "u1" {
		t.Fatalf("unexpected ids: %+v", msg)
	}
	if msg.Role != RoleUser {
		t.Fatalf("expected role %q, got %q", RoleUser, msg.Role)
	}
	if msg.Content != ev.LLMFriendly {
		t.Fatalf("expected llm friendly content, got %q", msg.Content)
	}
	if msg.CreatedAt.IsZero() || msg.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", msg.CreatedAt)
	}
}

func TestActionEventMessageFallsBackToHumanText(t *testing.T) {
	ev := ActionEvent{Type: "button_click", HumanFriendly: "Clicked refresh"}

	msg := ev.Message("t1", "u1")
	if msg.Content != "Clicked refresh" {
		t.Fatalf("expected human friendly fallback, got %q", msg.Content)
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleUser, RoleAssistant, RoleSystem, " User "} {
		if !ValidRole(role) {
			t.Fatalf("expected %q to be valid", role)
		}
	}
	if ValidRole("tool") {
		t.Fatalf("expected unknown role to be invalid")
	}
}
