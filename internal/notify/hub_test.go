package notify

import (
	"testing"
	"time"
)

func TestHubReplayFromCursor(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish(MethodDocumentStored, "k", i)
	}
	if h.BacklogSize() != 3 {
		t.Fatalf("expected backlog 3, got %d", h.BacklogSize())
	}
	replay, _, cancel := h.Subscribe(3, Filter{})
	defer cancel()
	if len(replay) != 2 || replay[0].Seq != 4 || replay[1].Seq != 5 {
		t.Fatalf("unexpected replay: %+v", replay)
	}
}

func TestHubFilterByKey(t *testing.T) {
	h := NewHub(16)
	h.Publish(MethodDocumentStored, "a", 1)
	replay, ch, cancel := h.Subscribe(0, Filter{Key: "b"})
	defer cancel()
	if len(replay) != 0 {
		t.Fatalf("expected empty replay, got %d", len(replay))
	}

	h.Publish(MethodDocumentStored, "a", 2)
	h.Publish(MethodDocumentStored, "b", 3)
	select {
	case ev := <-ch:
		if ev.Key != "b" || ev.Payload.(int) != 3 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered event")
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	h := NewHub(4)
	_, ch, cancel := h.Subscribe(0, Filter{})
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
	h.Publish("x", "", nil)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := NewHub(1)
	_, ch, cancel := h.Subscribe(0, Filter{})
	defer cancel()
	for i := 0; i < defaultSubscriberBuffer+1; i++ {
		h.Publish("x", "", i)
	}
	n := 0
	for range ch {
		n++
	}
	if n != defaultSubscriberBuffer {
		t.Fatalf("expected %d buffered events before drop, got %d", defaultSubscriberBuffer, n)
	}
}
