package realtime

import (
	"context"
	"log"
	"sync"
	"time"
)

// Publisher pushes leaderboard snapshots to subscribed connections. Two
// trigger sources funnel into one publish path: a fixed-period ticker and
// the points-changed notification. Both feed the single Run goroutine, so
// a trigger that lands while a publish is in flight coalesces into at most
// one follow-up publish that reflects the latest state.
type Publisher struct {
	source   LeaderboardSource
	topN     int
	interval time.Duration

	mu   sync.Mutex
	subs map[Sender]bool
	kick chan struct{}
}

// NewPublisher creates a leaderboard publisher. interval is the liveness
// fallback period between change notifications.
func NewPublisher(source LeaderboardSource, topN int, interval time.Duration) *Publisher {
	return &Publisher{
		source:   source,
		topN:     topN,
		interval: interval,
		subs:     make(map[Sender]bool),
		kick:     make(chan struct{}, 1),
	}
}

// Subscribe adds a connection to the broadcast set.
func (p *Publisher) Subscribe(s Sender) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[s] = true
}

// Unsubscribe removes a connection from the broadcast set.
func (p *Publisher) Unsubscribe(s Sender) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subs, s)
}

// SubscriberCount reports the current number of subscribers.
func (p *Publisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Notify signals that scores changed and a publish should happen promptly.
// Safe to call from any goroutine; redundant signals collapse into one.
func (p *Publisher) Notify() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Snapshot recomputes the current top-N from the data source.
func (p *Publisher) Snapshot(ctx context.Context) ([]LeaderboardEntry, error) {
	entries, err := p.source.GetTopN(ctx, p.topN)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// SendSnapshot pushes the current snapshot to a single connection, used to
// give a fresh subscriber immediate data instead of waiting a period.
func (p *Publisher) SendSnapshot(ctx context.Context, s Sender) error {
	entries, err := p.Snapshot(ctx)
	if err != nil {
		return err
	}
	return s.Send(updateMessage(entries))
}

// PublishNow recomputes the snapshot and pushes it to every subscriber.
func (p *Publisher) PublishNow(ctx context.Context) error {
	entries, err := p.Snapshot(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	targets := make([]Sender, 0, len(p.subs))
	for s := range p.subs {
		targets = append(targets, s)
	}
	p.mu.Unlock()

	msg := updateMessage(entries)
	for _, s := range targets {
		if err := s.Send(msg); err != nil {
			log.Printf("[LEADERBOARD] push failed, dropping subscriber: %v", err)
			p.Unsubscribe(s)
		}
	}
	return nil
}

// Run drives the publisher until the context is cancelled. Publishing
// happens on this goroutine only, which is what makes concurrent triggers
// coalesce: while one publish runs, at most one tick and one kick queue up.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Printf("[LEADERBOARD] Publisher started (period %v, top %d)", p.interval, p.topN)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[LEADERBOARD] Publisher stopped")
			return
		case <-ticker.C:
		case <-p.kick:
		}
		if err := p.PublishNow(ctx); err != nil {
			log.Printf("[LEADERBOARD] publish failed: %v", err)
		}
	}
}

func updateMessage(entries []LeaderboardEntry) map[string]interface{} {
	return map[string]interface{}{
		"type":        "leaderboard_update",
		"leaderboard": entries,
	}
}
