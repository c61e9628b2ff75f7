package channels

import "testing"

func TestBaseChannelIsAllowedEmptyListPermitsEveryone(t *testing.T) {
	b := NewBaseChannel("telegram", nil, nil)
	if !b.IsAllowed("anyone") {
		t.Fatal("expected an empty allow-list to permit every sender")
	}
}

func TestBaseChannelIsAllowedRestrictsToList(t *testing.T) {
	b := NewBaseChannel("telegram", nil, []string{"u1", "u2"})
	if !b.IsAllowed("u1") {
		t.Fatal("expected u1 to be allowed")
	}
	if b.IsAllowed("u3") {
		t.Fatal("expected u3 to be rejected")
	}
}

func TestBaseChannelNameAndRunningState(t *testing.T) {
	b := NewBaseChannel("discord", nil, nil)
	if b.Name() != "discord" {
		t.Fatalf("expected name discord, got %q", b.Name())
	}
	if b.IsRunning() {
		t.Fatal("expected a fresh channel to not be running")
	}
	b.SetRunning(true)
	if !b.IsRunning() {
		t.Fatal("expected IsRunning to reflect SetRunning(true)")
	}
	b.SetRunning(false)
	if b.IsRunning() {
		t.Fatal("expected IsRunning to reflect SetRunning(false)")
	}
}
