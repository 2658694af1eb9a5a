package eventbus

import "testing"

func TestPublishWakesSubscriber(t *testing.T) {
	b := NewBus()
	s := b.Subscribe()
	defer b.Unsubscribe(s)

	b.Publish(1)
	b.Publish(2)

	select {
	case <-s.Wake():
	default:
		t.Fatalf("expected a wakeup")
	}

	got, lagged := s.Drain()
	if lagged {
		t.Fatalf("did not expect lag")
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	s := b.Subscribe()
	b.Unsubscribe(s)

	b.Publish(1)
	if got, _ := s.Drain(); len(got) != 0 {
		t.Fatalf("expected no IDs after unsubscribe, got %v", got)
	}
}

func TestLaggingSubscriberDropsOldest(t *testing.T) {
	b := NewBus()
	s := b.Subscribe()
	defer b.Unsubscribe(s)

	for i := int64(1); i <= backlogSize+5; i++ {
		b.Publish(i)
	}
	got, lagged := s.Drain()
	if int64(len(got)) != backlogSize {
		t.Fatalf("expected backlog capped at %d, got %d", backlogSize, len(got))
	}
	if got[len(got)-1] != backlogSize+5 {
		t.Fatalf("expected latest ID preserved, got %v", got[len(got)-1])
	}
	if !lagged {
		t.Fatalf("expected lagged=true once more than backlogSize IDs were published between Drain calls")
	}
}

func TestDrainWithoutLagDoesNotReportLagged(t *testing.T) {
	b := NewBus()
	s := b.Subscribe()
	defer b.Unsubscribe(s)

	for i := int64(1); i <= backlogSize; i++ {
		b.Publish(i)
	}
	_, lagged := s.Drain()
	if lagged {
		t.Fatalf("publishing exactly backlogSize IDs should not trip lag detection")
	}
}

func TestLaggedFlagResetsAfterDrain(t *testing.T) {
	b := NewBus()
	s := b.Subscribe()
	defer b.Unsubscribe(s)

	for i := int64(1); i <= backlogSize+5; i++ {
		b.Publish(i)
	}
	if _, lagged := s.Drain(); !lagged {
		t.Fatalf("expected lag on first drain")
	}

	b.Publish(1000)
	if _, lagged := s.Drain(); lagged {
		t.Fatalf("lag flag should have been cleared by the previous Drain")
	}
}
