package notify

import "testing"

func TestMessageForKnownCode(t *testing.T) {
	msg := MessageFor(-10504)
	if msg == "" || msg == MessageFor(CodeGeneric) {
		t.Errorf("expected a provider-specific message for -10504, got %q", msg)
	}
}

func TestMessageForUnknownCodeFallsBack(t *testing.T) {
	if MessageFor(-99999) != MessageFor(CodeGeneric) {
		t.Error("expected unknown code to fall back to generic message")
	}
}

func TestPublishAndDrain(t *testing.T) {
	n := New(4)
	n.Publish(-10504)
	n.Publish(CodeGeneric)

	notices := n.Drain()
	if len(notices) != 2 {
		t.Fatalf("expected 2 notices, got %d", len(notices))
	}
	if notices[0].Code != -10504 {
		t.Errorf("expected first notice code -10504, got %d", notices[0].Code)
	}
	if notices[0].Message == "" {
		t.Error("expected notice to carry a message")
	}
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	n := New(2)
	n.Publish(-10001)
	n.Publish(-10203)
	n.Publish(-10504) // buffer full: -10001 dropped

	notices := n.Drain()
	if len(notices) != 2 {
		t.Fatalf("expected 2 notices, got %d", len(notices))
	}
	if notices[0].Code != -10203 || notices[1].Code != -10504 {
		t.Errorf("expected oldest notice dropped, got codes %d, %d", notices[0].Code, notices[1].Code)
	}
}
