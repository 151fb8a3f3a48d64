package eventbus

import "testing"

func TestFanout(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubC()

	b.Publish(Event{Type: "delivery.sent"})
	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != "delivery.sent" || e.Time.IsZero() {
			t.Fatalf("unexpected event %+v", e)
		}
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatalf("channel should be closed after unsubscribe")
	}
	b.Publish(Event{Type: "after"})
	if e := <-c; e.Type != "after" {
		t.Fatalf("remaining subscriber missed event: %+v", e)
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 3; i++ {
		b.Publish(Event{Type: "x"})
	}
	if got := b.Dropped(); got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}
}
