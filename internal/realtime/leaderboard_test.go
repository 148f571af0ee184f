package realtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeSource serves a fixed board and counts recomputations.
type fakeSource struct {
	mu      sync.Mutex
	entries []LeaderboardEntry
	calls   int
	block   chan struct{} // when set, GetTopN waits on it
	failErr error
}

func (s *fakeSource) GetTopN(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	err := s.failErr
	entries := s.entries
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	out := make([]LeaderboardEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func board(users ...string) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, len(users))
	for i, u := range users {
		entries[i] = LeaderboardEntry{UserID: u, DisplayName: u, Points: int64(100 - i)}
	}
	return entries
}

func TestPublishNowPushesToSubscribers(t *testing.T) {
	source := &fakeSource{entries: board("alice", "bob")}
	pub := NewPublisher(source, 50, time.Hour)

	a := &testSender{}
	b := &testSender{}
	pub.Subscribe(a)
	pub.Subscribe(b)

	if err := pub.PublishNow(context.Background()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("expected 1 update each, got a=%d b=%d", a.count(), b.count())
	}
	msg := a.last()
	if msg["type"] != "leaderboard_update" {
		t.Errorf("unexpected message type: %v", msg["type"])
	}
	entries, ok := msg["leaderboard"].([]LeaderboardEntry)
	if !ok || len(entries) != 2 {
		t.Fatalf("unexpected leaderboard payload: %v", msg["leaderboard"])
	}
	if entries[0].Rank != 1 || entries[0].UserID != "alice" || entries[1].Rank != 2 {
		t.Errorf("ranks not assigned in order: %v", entries)
	}

	pub.Unsubscribe(b)
	pub.PublishNow(context.Background())
	if b.count() != 1 {
		t.Error("unsubscribed connection must not receive updates")
	}
}

func TestSendSnapshotToNewSubscriber(t *testing.T) {
	source := &fakeSource{entries: board("alice")}
	pub := NewPublisher(source, 50, time.Hour)

	s := &testSender{}
	if err := pub.SendSnapshot(context.Background(), s); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if s.count() != 1 {
		t.Fatalf("expected an immediate snapshot, got %d messages", s.count())
	}
}

func TestFailingSubscriberIsDropped(t *testing.T) {
	source := &fakeSource{entries: board("alice")}
	pub := NewPublisher(source, 50, time.Hour)

	bad := &testSender{failSend: true}
	good := &testSender{}
	pub.Subscribe(bad)
	pub.Subscribe(good)

	pub.PublishNow(context.Background())
	if pub.SubscriberCount() != 1 {
		t.Errorf("failed push should drop the subscriber, have %d", pub.SubscriberCount())
	}
	if good.count() != 1 {
		t.Error("healthy subscriber must still receive the update")
	}
}

func TestNotifyTriggersImmediatePublish(t *testing.T) {
	source := &fakeSource{entries: board("alice")}
	// Timer period far in the future; only Notify can trigger.
	pub := NewPublisher(source, 50, time.Hour)
	s := &testSender{}
	pub.Subscribe(s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pub.Run(ctx)

	pub.Notify()
	waitFor(t, func() bool { return s.count() == 1 }, "publish after notify")
}

func TestConcurrentTriggersCoalesce(t *testing.T) {
	block := make(chan struct{})
	source := &fakeSource{entries: board("alice"), block: block}
	pub := NewPublisher(source, 50, time.Hour)
	s := &testSender{}
	pub.Subscribe(s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pub.Run(ctx)

	pub.Notify()
	waitFor(t, func() bool { return source.callCount() == 1 }, "first publish to start")

	// Triggers landing while a publish is in flight collapse into one.
	for i := 0; i < 10; i++ {
		pub.Notify()
	}

	source.mu.Lock()
	source.block = nil
	source.mu.Unlock()
	close(block)

	waitFor(t, func() bool { return s.count() == 2 }, "coalesced follow-up publish")

	// Give any spurious extra publishes a moment to show up.
	time.Sleep(50 * time.Millisecond)
	if got := source.callCount(); got != 2 {
		t.Errorf("expected 2 recomputations (initial + coalesced), got %d", got)
	}
	if got := s.count(); got != 2 {
		t.Errorf("expected 2 pushed updates, got %d", got)
	}
}

func TestPublishErrorDoesNotStopRun(t *testing.T) {
	source := &fakeSource{failErr: fmt.Errorf("db down")}
	pub := NewPublisher(source, 50, time.Hour)
	s := &testSender{}
	pub.Subscribe(s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pub.Run(ctx)

	pub.Notify()
	waitFor(t, func() bool { return source.callCount() == 1 }, "failed publish attempt")

	source.mu.Lock()
	source.failErr = nil
	source.entries = board("alice")
	source.mu.Unlock()

	pub.Notify()
	waitFor(t, func() bool { return s.count() == 1 }, "recovery publish")
}
