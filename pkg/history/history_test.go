package history

import "testing"

func TestTrimPreservesSystemMessages(t *testing.T) {
	h := New(3)
	h.Add(Message{Role: RoleSystem, Content: "S1"})
	h.Add(Message{Role: RoleUser, Content: "U1"})
	h.Add(Message{Role: RoleAssistant, Content: "A1"})
	h.Add(Message{Role: RoleUser, Content: "U2"})
	h.Add(Message{Role: RoleAssistant, Content: "A2"})

	got := h.Messages()
	want := []string{"S1", "A1", "U2", "A2"}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].Content != w {
			t.Fatalf("message %d: expected %q, got %q", i, w, got[i].Content)
		}
	}
}

func TestTrimWithThreeSystemMessages(t *testing.T) {
	h := New(3)
	h.Add(Message{Role: RoleSystem, Content: "S1"})
	h.Add(Message{Role: RoleSystem, Content: "S2"})
	h.Add(Message{Role: RoleSystem, Content: "S3"})
	for i := 0; i < 5; i++ {
		h.Add(Message{Role: RoleUser, Content: "U"})
	}
	got := h.Messages()
	if len(got) != 6 {
		t.Fatalf("expected min(3+3,currentCount)=6 messages, got %d", len(got))
	}
	for i := 0; i < 3; i++ {
		if got[i].Role != RoleSystem {
			t.Fatalf("expected system messages to remain in relative order at front, got %+v", got)
		}
	}
}

func TestClearEmptiesHistory(t *testing.T) {
	h := New(5)
	h.Add(Message{Role: RoleUser, Content: "hi"})
	h.Clear()
	if h.Len() != 0 {
		t.Fatalf("expected empty history after Clear, got %d", h.Len())
	}
}

func TestMessagesReturnsDefensiveCopy(t *testing.T) {
	h := New(5)
	h.Add(Message{Role: RoleUser, Content: "hi"})
	got := h.Messages()
	got[0].Content = "mutated"
	if h.Messages()[0].Content != "hi" {
		t.Fatal("expected Messages() to return a defensive copy")
	}
}
