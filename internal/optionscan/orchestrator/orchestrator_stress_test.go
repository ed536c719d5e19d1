package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bobmcallan/vire/internal/optionscan"
)

// Pipeline-level test: every provider fails for the one symbol in the
// universe. The per-symbol error is non-fatal to the scan; it surfaces
// as SymbolError and the scan still closes as Succeeded with zero
// recommendations. The 429-then-succeed retry sequence itself is covered
// at the transport layer in providers/transport_test.go.
func TestRunScan_AllProvidersFailYieldsSymbolErrorScanStillSucceeds(t *testing.T) {
	st := newTestStore(t)
	market := &fakeMarket{} // no price/trend configured for AAA -> both calls fail
	options := &fakeOptions{err: map[optionscan.Symbol]error{"AAA": errors.New("exhausted retries")}}
	fundamentals := &fakeFundamentals{}

	cfg := Config{Watchlist: []optionscan.Symbol{"AAA"}, RetentionDays: 90}
	o := newOrchestrator(t, cfg, st, nil, market, options, fundamentals)

	events, unsubscribe := o.bus.Subscribe()
	defer unsubscribe()

	o.runScan(context.Background())

	got := drain(t, events, 3, time.Second)
	if got[0].Type != optionscan.EventScanStarted {
		t.Fatalf("expected ScanStarted first, got %s", got[0].Type)
	}
	if got[1].Type != optionscan.EventSymbolError {
		t.Errorf("expected SymbolError for AAA, got %s", got[1].Type)
	}
	last := got[2]
	if last.Type != optionscan.EventScanCompleted {
		t.Fatalf("expected ScanCompleted last, got %s", last.Type)
	}
	if last.Status != string(optionscan.ScanStatusSucceeded) {
		t.Errorf("expected scan to still succeed despite the per-symbol failure, got %s", last.Status)
	}
	if last.RecommendationsGenerated != 0 {
		t.Errorf("expected 0 recommendations, got %d", last.RecommendationsGenerated)
	}
}

// Cancellation issued while the first symbol of a three-symbol scan is
// being processed. That symbol still finishes; no SymbolScanning for
// index 1 is emitted; the scan closes as Failed with "cancelled".
func TestRunScan_CancellationAfterFirstSymbolStopsLoop(t *testing.T) {
	st := newTestStore(t)
	market := &fakeMarket{
		price: map[optionscan.Symbol]float64{"AAA": 100, "BBB": 50, "CCC": 20},
		trend: map[optionscan.Symbol]*optionscan.TrendAnalysis{"AAA": upTrend(), "BBB": upTrend(), "CCC": upTrend()},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel from inside AAA's options fetch, so the loop's
	// between-symbols check sees it before symbol index 1 starts.
	options := &cancellingOptions{
		fakeOptions: &fakeOptions{options: map[optionscan.Symbol][]optionscan.OptionContract{
			"AAA": {putOption(92, 2, 18, 1000)},
			"BBB": {putOption(46, 1, 18, 1000)},
			"CCC": {putOption(18, 1, 18, 1000)},
		}},
		on:     "AAA",
		cancel: cancel,
	}
	fundamentals := &fakeFundamentals{}

	cfg := Config{Watchlist: []optionscan.Symbol{"AAA", "BBB", "CCC"}, RetentionDays: 90}
	o := newOrchestrator(t, cfg, st, nil, market, options, fundamentals)

	events, unsubscribe := o.bus.Subscribe()
	defer unsubscribe()

	o.runScan(ctx)

	got := drain(t, events, 3, 2*time.Second)
	if got[0].Type != optionscan.EventScanStarted {
		t.Fatalf("expected ScanStarted first, got %s", got[0].Type)
	}
	if got[1].Type != optionscan.EventSymbolScanning || got[1].CurrentIndex != 0 {
		t.Fatalf("expected SymbolScanning(0), got %+v", got[1])
	}

	// Drain until ScanCompleted; AAA's SymbolCompleted(0) arrives first.
	var completed *optionscan.ScanEvent
	deadline := time.After(2 * time.Second)
	for completed == nil {
		select {
		case e := <-events:
			ec := e
			if e.Type == optionscan.EventScanCompleted {
				completed = &ec
			}
			if e.Type == optionscan.EventSymbolScanning && e.CurrentIndex > 0 {
				t.Fatalf("expected no SymbolScanning beyond index 0 after cancellation, got index %d", e.CurrentIndex)
			}
		case <-deadline:
			t.Fatal("timed out waiting for ScanCompleted")
		}
	}

	if completed.Status != string(optionscan.ScanStatusFailed) {
		t.Errorf("expected Failed status after cancellation, got %s", completed.Status)
	}
	if completed.ErrorMessage != "cancelled" {
		t.Errorf("expected errorMessage 'cancelled', got %q", completed.ErrorMessage)
	}
}

// Subscriber A subscribes before the scan; subscriber B subscribes
// mid-scan. B's first event must be the synthetic ScanStarted replay
// carrying the tracker's current snapshot; both see the same
// ScanCompleted.
func TestBus_LateJoinMidScanReceivesSnapshotThenLiveEvents(t *testing.T) {
	st := newTestStore(t)
	symbols := make([]optionscan.Symbol, 0, 10)
	price := map[optionscan.Symbol]float64{}
	trend := map[optionscan.Symbol]*optionscan.TrendAnalysis{}
	opts := map[optionscan.Symbol][]optionscan.OptionContract{}
	for i := 0; i < 10; i++ {
		sym := optionscan.Symbol(string(rune('A'+i)) + string(rune('A'+i)) + string(rune('A'+i)))
		symbols = append(symbols, sym)
		price[sym] = 100
		trend[sym] = upTrend()
		opts[sym] = []optionscan.OptionContract{putOption(92, 2, 18, 1000)}
	}

	market := &fakeMarket{price: price, trend: trend}
	options := newBlockingOptions(opts, 5)
	fundamentals := &fakeFundamentals{}

	cfg := Config{Watchlist: symbols, RetentionDays: 90}
	o := newOrchestrator(t, cfg, st, nil, market, options, fundamentals)

	eventsA, unsubA := o.bus.Subscribe()
	defer unsubA()

	lateJoinDone := make(chan struct{})
	go func() {
		defer close(lateJoinDone)

		<-options.reached

		eventsB, unsubB := o.bus.Subscribe()
		defer unsubB()

		first := <-eventsB
		if first.Type != optionscan.EventScanStarted {
			t.Errorf("expected B's first event to be a synthetic ScanStarted replay, got %s", first.Type)
		}
		if first.TotalSymbols != 10 {
			t.Errorf("expected replay totalSymbols=10, got %d", first.TotalSymbols)
		}

		options.release()

		for e := range eventsB {
			if e.Type == optionscan.EventScanCompleted {
				return
			}
		}
	}()

	o.runScan(context.Background())

	select {
	case <-lateJoinDone:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for late-join goroutine to observe ScanCompleted")
	}

	sawCompleted := false
	deadline := time.After(3 * time.Second)
	for !sawCompleted {
		select {
		case e := <-eventsA:
			if e.Type == optionscan.EventScanCompleted {
				sawCompleted = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for A's ScanCompleted")
		}
	}
}

// blockingOptions blocks its Nth call until release() is invoked, so a
// test can deterministically subscribe a late joiner mid-scan. reached
// and gate are preallocated at construction time to avoid a race between
// the scan goroutine and the test goroutine waiting on them.
type blockingOptions struct {
	mu           sync.Mutex
	options      map[optionscan.Symbol][]optionscan.OptionContract
	calls        int
	releaseAfter int
	reached      chan struct{}
	gate         chan struct{}
	once         sync.Once
}

func newBlockingOptions(options map[optionscan.Symbol][]optionscan.OptionContract, releaseAfter int) *blockingOptions {
	return &blockingOptions{
		options:      options,
		releaseAfter: releaseAfter,
		reached:      make(chan struct{}),
		gate:         make(chan struct{}),
	}
}

func (b *blockingOptions) GetShortTermPutOptions(ctx context.Context, symbol optionscan.Symbol, minDays, maxDays int) ([]optionscan.OptionContract, error) {
	b.mu.Lock()
	b.calls++
	n := b.calls
	b.mu.Unlock()

	if n == b.releaseAfter {
		b.once.Do(func() { close(b.reached) })
		<-b.gate
	}

	return b.options[symbol], nil
}

func (b *blockingOptions) release() {
	close(b.gate)
}

// cancellingOptions wraps fakeOptions and calls cancel when the options
// chain for symbol on is requested, then answers as fakeOptions does.
type cancellingOptions struct {
	*fakeOptions
	on     optionscan.Symbol
	cancel context.CancelFunc
}

func (c *cancellingOptions) GetShortTermPutOptions(ctx context.Context, symbol optionscan.Symbol, minDays, maxDays int) ([]optionscan.OptionContract, error) {
	if symbol == c.on {
		c.cancel()
	}
	return c.fakeOptions.GetShortTermPutOptions(ctx, symbol, minDays, maxDays)
}

// At-most-one-scan-at-a-time under concurrent tracker.StartScan callers —
// exactly one wins the guard.
func TestTracker_ConcurrentStartScanOnlyOneWins(t *testing.T) {
	st := newTestStore(t)
	cfg := Config{Watchlist: []optionscan.Symbol{"AAA"}}
	o := newOrchestrator(t, cfg, st, nil, &fakeMarket{}, &fakeOptions{}, &fakeFundamentals{})

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			wins <- o.tracker.StartScan("scan", 1)
		}()
	}
	wg.Wait()
	close(wins)

	winCount := 0
	for w := range wins {
		if w {
			winCount++
		}
	}
	if winCount != 1 {
		t.Errorf("expected exactly 1 winner, got %d", winCount)
	}
}
