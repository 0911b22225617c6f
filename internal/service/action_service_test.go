package service

import (
	"context"
	"errors"
	"testing"

	"genui-relay/internal/c1"
	"genui-relay/internal/domain"
)

func TestActionServiceRejectsInvalidEvents(t *testing.T) {
	client := &c1.MockClient{Response: c1.Response{Content: "ok"}}
	relay, _, _, _ := newRelayFixture(client)
	actions := NewActionService(relay)

	cases := []struct {
		name  string
		event domain.ActionEvent
	}{
		{"empty type", domain.ActionEvent{LLMFriendly: "clicked"}},
		{"no text", domain.ActionEvent{Type: "form_submit"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := actions.CompleteAction(context.Background(), ActionInput{
				UserID: "u1",
				Event:  tc.event,
			})
			if !errors.Is(err, ErrActionInvalid) {
				t.Fatalf("expected ErrActionInvalid, got %v", err)
			}
		})
	}
	if len(client.CompleteCalls) != 0 {
		t.Fatalf("invalid events must not reach the upstream")
	}
}

func TestActionServiceBridgesEventToUserMessage(t *testing.T) {
	client := &c1.MockClient{Response: c1.Response{Content: "nueva ui"}}
	relay, _, messageRepo, _ := newRelayFixture(client)
	actions := NewActionService(relay)

	msg, err := actions.CompleteAction(context.Background(), ActionInput{
		UserID:   "u1",
		ThreadID: "t1",
		Event: domain.ActionEvent{
			Type:          "form_submit",
			Params:        map[string]any{"plan": "pro"},
			LLMFriendly:   "User submitted the plan form with plan=pro",
			HumanFriendly: "Chose the Pro plan",
		},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if msg.Role != domain.RoleAssistant {
		t.Fatalf("expected assistant reply, got role %q", msg.Role)
	}

	if len(messageRepo.msgs) != 2 {
		t.Fatalf("expected the bridged pair persisted, got %d messages", len(messageRepo.msgs))
	}
	bridged := messageRepo.msgs[0]
	if bridged.Role != domain.RoleUser {
		t.Fatalf("bridged message must be user-role, got %q", bridged.Role)
	}
	// El texto para el modelo tiene prioridad sobre el texto humano.
	if bridged.Content != "User submitted the plan form with plan=pro" {
		t.Fatalf("unexpected bridged content: %q", bridged.Content)
	}
}

func TestActionServiceHumanTextFallback(t *testing.T) {
	client := &c1.MockClient{Response: c1.Response{Content: "ok"}}
	relay, _, messageRepo, _ := newRelayFixture(client)
	actions := NewActionService(relay)

	if _, err := actions.CompleteAction(context.Background(), ActionInput{
		UserID: "u1",
		Event: domain.ActionEvent{
			Type:          "button_click",
			HumanFriendly: "Pressed refresh",
		},
	}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if messageRepo.msgs[0].Content != "Pressed refresh" {
		t.Fatalf("expected human text fallback, got %q", messageRepo.msgs[0].Content)
	}
}

func TestActionServiceStreamDelegatesToRelay(t *testing.T) {
	client := &c1.MockClient{
		Response:  c1.Response{Content: "ok"},
		RawChunks: []string{"data: [DONE]\n"},
	}
	relay, _, _, _ := newRelayFixture(client)
	actions := NewActionService(relay)

	sink := &captureSink{}
	if _, err := actions.StreamAction(context.Background(), ActionInput{
		UserID: "u1",
		Event:  domain.ActionEvent{Type: "button_click", LLMFriendly: "clicked"},
	}, sink); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sink.chunks) != 1 || sink.chunks[0] != "data: [DONE]\n" {
		t.Fatalf("expected raw bytes mirrored, got %v", sink.chunks)
	}
}
