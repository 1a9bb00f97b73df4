package presence

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/example/ride-hailing/internal/models"
)

type fakeSession struct {
	events []models.Event
	err    error
}

func (f *fakeSession) Send(ev models.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAnnounceResolveWithdraw(t *testing.T) {
	r := newTestRegistry()
	s := &fakeSession{}
	if err := r.Announce("c1", models.KindCaptain, s); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if got, ok := r.Resolve("c1", models.KindCaptain); !ok || got != s {
		t.Fatalf("resolve returned %v, %v", got, ok)
	}
	// kinds are separate namespaces
	if _, ok := r.Resolve("c1", models.KindRider); ok {
		t.Fatal("rider lookup should be absent")
	}
	r.Withdraw("c1", models.KindCaptain, s)
	if _, ok := r.Resolve("c1", models.KindCaptain); ok {
		t.Fatal("resolve after withdraw should be absent")
	}
	// idempotent
	r.Withdraw("c1", models.KindCaptain, s)
}

func TestAnnounceInvalidKind(t *testing.T) {
	r := newTestRegistry()
	if err := r.Announce("x", models.ActorKind("ghost"), &fakeSession{}); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestReconnectLastWriterWins(t *testing.T) {
	r := newTestRegistry()
	old := &fakeSession{}
	fresh := &fakeSession{}
	_ = r.Announce("r1", models.KindRider, old)
	_ = r.Announce("r1", models.KindRider, fresh)

	// the stale connection closing must not evict the fresh session
	r.Withdraw("r1", models.KindRider, old)
	if got, ok := r.Resolve("r1", models.KindRider); !ok || got != fresh {
		t.Fatalf("expected fresh session to survive, got %v, %v", got, ok)
	}
}

func TestDeliverDropsForOfflineActor(t *testing.T) {
	r := newTestRegistry()
	if r.Deliver("nobody", models.KindRider, models.Event{Name: "ping"}) {
		t.Fatal("deliver to absent actor should report false")
	}
}

func TestDeliverSendError(t *testing.T) {
	r := newTestRegistry()
	s := &fakeSession{err: errors.New("broken pipe")}
	_ = r.Announce("c1", models.KindCaptain, s)
	if r.Deliver("c1", models.KindCaptain, models.Event{Name: "ping"}) {
		t.Fatal("deliver over failing session should report false")
	}
}
