package eventbus

import "testing"

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: "one"})
	b.Publish(Event{Type: "two"})

	if e := <-a; e.Type != "one" {
		t.Fatalf("first event = %q, want one", e.Type)
	}
	select {
	case e := <-a:
		t.Fatalf("expected drop on full buffer, got %q", e.Type)
	default:
	}
	if len(c) != 2 {
		t.Fatalf("second subscriber buffered %d events, want 2", len(c))
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	b.Publish(Event{Type: "after"})
}

func TestPublishStampsTime(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()
	b.Publish(Event{Type: "x"})
	if e := <-ch; e.Time.IsZero() {
		t.Fatal("Publish should set Time")
	}
}
