package progress

import (
	"testing"
	"time"
)

func TestPublishReachesOwnProjectOnly(t *testing.T) {
	hub := NewHub()
	subA := hub.Subscribe("project-a")
	defer subA.Close()
	subB := hub.Subscribe("project-b")
	defer subB.Close()

	hub.Publish(Event{Type: TypeProgress, ProjectID: "project-a", Progress: 50})

	select {
	case evt := <-subA.Events():
		if evt.ProjectID != "project-a" || evt.Progress != 50 {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber A never received its event")
	}

	select {
	case evt := <-subB.Events():
		t.Fatalf("subscriber B must not see project-a events, got %+v", evt)
	default:
	}
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	hub := NewHub()

	hub.Publish(Event{Type: TypeProgress, ProjectID: "p", Progress: 10})
	hub.Publish(Event{Type: TypeProgress, ProjectID: "p", Progress: 20})

	sub := hub.Subscribe("p")
	defer sub.Close()

	select {
	case evt := <-sub.Events():
		t.Fatalf("late subscriber must not replay history, got %+v", evt)
	default:
	}

	hub.Publish(Event{Type: TypeProgress, ProjectID: "p", Progress: 30})
	select {
	case evt := <-sub.Events():
		if evt.Progress != 30 {
			t.Fatalf("expected the live event, got %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("live event never arrived")
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("p")
	defer sub.Close()

	// overflow the buffer without draining
	for i := 0; i < defaultSubscriberBuffer+10; i++ {
		hub.Publish(Event{Type: TypeProgress, ProjectID: "p", Progress: i})
	}

	first := <-sub.Events()
	if first.Progress == 0 {
		t.Fatal("expected the oldest events to have been dropped")
	}

	// the newest event must have survived
	last := first
	for {
		select {
		case evt := <-sub.Events():
			last = evt
			continue
		default:
		}
		break
	}
	if last.Progress != defaultSubscriberBuffer+9 {
		t.Fatalf("expected newest event retained, got %+v", last)
	}
}

func TestCloseDetachesSubscriber(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("p")
	if got := hub.SubscriberCount("p"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	sub.Close()
	if got := hub.SubscriberCount("p"); got != 0 {
		t.Fatalf("expected 0 subscribers after close, got %d", got)
	}

	// closing twice is harmless
	sub.Close()

	if _, open := <-sub.Events(); open {
		t.Fatal("expected closed event channel")
	}
}
