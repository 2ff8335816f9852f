package escrow

import (
	"errors"
	"strings"
	"testing"
)

func TestAddMessage(t *testing.T) {
	tx := newTestTransaction(t)
	msg, err := tx.AddMessage(Actor{ID: testBuyer}, "When can you ship?", false, testNow)
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if msg.SenderID != testBuyer || msg.Internal {
		t.Fatalf("message = %+v", msg)
	}
	if msg.ID == "" {
		t.Fatal("message id not assigned")
	}

	if _, err := tx.AddMessage(Actor{ID: testStranger}, "hello", false, testNow); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger message: got %v, want forbidden", err)
	}
	if _, err := tx.AddMessage(Actor{ID: testSupervisor}, "note for staff", true, testNow); err != nil {
		t.Fatalf("supervisor message: %v", err)
	}
	if _, err := tx.AddMessage(Actor{ID: testStranger, Admin: true}, "admin note", true, testNow); err != nil {
		t.Fatalf("admin message: %v", err)
	}
}

func TestMessageLengthIsHardError(t *testing.T) {
	tx := newTestTransaction(t)
	long := strings.Repeat("a", MaxMessageLen+1)
	if _, err := tx.AddMessage(Actor{ID: testBuyer}, long, false, testNow); !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want validation error", err)
	}
	if len(tx.Messages) != 0 {
		t.Fatal("over-long message must not be appended, even trimmed")
	}
	exact := strings.Repeat("a", MaxMessageLen)
	if _, err := tx.AddMessage(Actor{ID: testBuyer}, exact, false, testNow); err != nil {
		t.Fatalf("exactly 1000 chars should pass: %v", err)
	}
	if _, err := tx.AddMessage(Actor{ID: testBuyer}, "", false, testNow); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty message: got %v, want validation error", err)
	}

	// The limit counts characters, not bytes: 1000 accented characters are
	// 2000 bytes of UTF-8 and must still pass.
	accented := strings.Repeat("é", MaxMessageLen)
	if _, err := tx.AddMessage(Actor{ID: testBuyer}, accented, false, testNow); err != nil {
		t.Fatalf("1000 accented chars should pass: %v", err)
	}
	if _, err := tx.AddMessage(Actor{ID: testBuyer}, accented+"é", false, testNow); !errors.Is(err, ErrValidation) {
		t.Fatal("1001 accented chars must fail validation")
	}
}

func TestMessagesForFiltersInternal(t *testing.T) {
	tx := newTestTransaction(t)
	if _, err := tx.AddMessage(Actor{ID: testBuyer}, "public question", false, testNow); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if _, err := tx.AddMessage(Actor{ID: testSupervisor}, "internal note", true, testNow); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	for _, role := range []Role{RoleBuyer, RoleSeller, RoleNone} {
		visible := tx.MessagesFor(role)
		if len(visible) != 1 {
			t.Fatalf("%s sees %d messages, want 1", role, len(visible))
		}
		if visible[0].Internal {
			t.Fatalf("%s saw an internal message", role)
		}
	}
	for _, role := range []Role{RoleSupervisor, RoleAdmin} {
		if got := len(tx.MessagesFor(role)); got != 2 {
			t.Fatalf("%s sees %d messages, want 2", role, got)
		}
	}
}

func TestLedgerPreservesOrder(t *testing.T) {
	tx := newTestTransaction(t)
	bodies := []string{"first", "second", "third"}
	for _, b := range bodies {
		if _, err := tx.AddMessage(Actor{ID: testSeller}, b, false, testNow); err != nil {
			t.Fatalf("AddMessage(%q): %v", b, err)
		}
	}
	for i, m := range tx.MessagesFor(RoleBuyer) {
		if m.Body != bodies[i] {
			t.Fatalf("position %d = %q, want %q", i, m.Body, bodies[i])
		}
	}
}
