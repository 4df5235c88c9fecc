package domain

import (
	"testing"
	"time"
)

func TestSystemContent(t *testing.T) {
	msgs := []Message{
		UserMessage("first"),
		SystemMessage("rules"),
		SystemMessage("ignored"),
	}

	if got := SystemContent(msgs); got != "rules" {
		t.Errorf("SystemContent() = %q, want %q", got, "rules")
	}
	if got := SystemContent([]Message{UserMessage("x")}); got != "" {
		t.Errorf("SystemContent() without system = %q, want empty", got)
	}
}

func TestUserMessages(t *testing.T) {
	msgs := []Message{
		SystemMessage("rules"),
		UserMessage("a"),
		UserMessage("b"),
	}

	got := UserMessages(msgs)
	if len(got) != 2 {
		t.Fatalf("UserMessages() count = %d, want 2", len(got))
	}
	if got[0].Content != "a" || got[1].Content != "b" {
		t.Errorf("UserMessages() = %+v, want order a, b", got)
	}
}

func TestNewManifest_NilNotes(t *testing.T) {
	m := NewManifest(time.Now(), nil, "Build a CLI")

	if m.Notes == nil {
		t.Error("Notes should be an empty slice, not nil")
	}
	if m.SourcePrompt != "Build a CLI" {
		t.Errorf("SourcePrompt = %q, want %q", m.SourcePrompt, "Build a CLI")
	}
	if m.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt location = %v, want UTC", m.CreatedAt.Location())
	}
}

func TestRun_Duration(t *testing.T) {
	start := time.Now().Add(-time.Minute)
	end := start.Add(30 * time.Second)
	r := &Run{CreatedAt: start, FinishedAt: &end}

	if r.Duration() != 30*time.Second {
		t.Errorf("Duration() = %v, want 30s", r.Duration())
	}
}
