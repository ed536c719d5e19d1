package bus

import (
	"testing"
	"time"

	"github.com/bobmcallan/vire/internal/optionscan"
)

func notInProgress() (bool, optionscan.ScanEvent) {
	return false, optionscan.ScanEvent{}
}

func TestSubscribe_DeliversPublishedEventsInOrder(t *testing.T) {
	b := New(nil, notInProgress)
	events, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(optionscan.ScanEvent{Type: optionscan.EventScanStarted})
	b.Publish(optionscan.ScanEvent{Type: optionscan.EventSymbolScanning, Symbol: "AAPL"})

	first := <-events
	second := <-events
	if first.Type != optionscan.EventScanStarted {
		t.Errorf("expected first event ScanStarted, got %v", first.Type)
	}
	if second.Type != optionscan.EventSymbolScanning || second.Symbol != "AAPL" {
		t.Errorf("unexpected second event: %+v", second)
	}
}

func TestPublish_StampsTimestampWhenZero(t *testing.T) {
	b := New(nil, notInProgress)
	events, unsubscribe := b.Subscribe()
	defer unsubscribe()

	before := time.Now()
	b.Publish(optionscan.ScanEvent{Type: optionscan.EventScanStarted})
	got := <-events
	if got.Timestamp.Before(before) {
		t.Errorf("expected timestamp to be stamped at publish time, got %v before %v", got.Timestamp, before)
	}
}

func TestSubscribe_LateJoinReplaysSyntheticScanStartedWhenInProgress(t *testing.T) {
	replay := optionscan.ScanEvent{Type: optionscan.EventScanStarted, ScanLogID: "scan-42"}
	snapshotter := func() (bool, optionscan.ScanEvent) { return true, replay }

	b := New(nil, snapshotter)
	events, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(optionscan.ScanEvent{Type: optionscan.EventSymbolScanning, Symbol: "MSFT"})

	first := <-events
	if first.ScanLogID != "scan-42" {
		t.Fatalf("expected replay event to be delivered first, got %+v", first)
	}
	second := <-events
	if second.Symbol != "MSFT" {
		t.Errorf("expected live event after replay, got %+v", second)
	}
}

func TestSubscribe_NoReplayWhenNotInProgress(t *testing.T) {
	b := New(nil, notInProgress)
	events, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(optionscan.ScanEvent{Type: optionscan.EventSymbolScanning, Symbol: "MSFT"})
	only := <-events
	if only.Symbol != "MSFT" {
		t.Errorf("expected the only delivered event to be the live one, got %+v", only)
	}
}

func TestPublish_DropsOnFullQueueWithoutBlocking(t *testing.T) {
	b := New(nil, notInProgress)
	events, unsubscribe := b.Subscribe()
	defer unsubscribe()

	for i := 0; i < defaultQueueSize+10; i++ {
		b.Publish(optionscan.ScanEvent{Type: optionscan.EventSymbolScanning})
	}

	counts := b.DroppedCount()
	total := uint64(0)
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		t.Error("expected some events to be dropped once the subscriber queue filled")
	}

	drained := 0
	for {
		select {
		case <-events:
			drained++
		default:
			if drained != defaultQueueSize {
				t.Errorf("expected exactly %d queued events, drained %d", defaultQueueSize, drained)
			}
			return
		}
	}
}

func TestUnsubscribe_IsIdempotent(t *testing.T) {
	b := New(nil, notInProgress)
	_, unsubscribe := b.Subscribe()

	unsubscribe()
	unsubscribe()

	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", b.SubscriberCount())
	}
}

func TestUnsubscribe_ClosesChannelWithoutDeadlock(t *testing.T) {
	b := New(nil, notInProgress)
	events, unsubscribe := b.Subscribe()
	unsubscribe()

	_, ok := <-events
	if ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestClose_ClosesAllSubscriberChannelsAndIsIdempotent(t *testing.T) {
	b := New(nil, notInProgress)
	eventsA, _ := b.Subscribe()
	eventsB, _ := b.Subscribe()

	b.Close()
	b.Close()

	if _, ok := <-eventsA; ok {
		t.Error("expected subscriber A's channel to be closed")
	}
	if _, ok := <-eventsB; ok {
		t.Error("expected subscriber B's channel to be closed")
	}

	b.Publish(optionscan.ScanEvent{Type: optionscan.EventScanStarted})
}

func TestSubscriberCount_TracksSubscribeAndUnsubscribe(t *testing.T) {
	b := New(nil, notInProgress)
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers initially, got %d", b.SubscriberCount())
	}

	_, unsubscribeA := b.Subscribe()
	_, unsubscribeB := b.Subscribe()
	if b.SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", b.SubscriberCount())
	}

	unsubscribeA()
	if b.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber after one unsubscribe, got %d", b.SubscriberCount())
	}
	unsubscribeB()
}
