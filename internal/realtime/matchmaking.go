package realtime

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Queue entry statuses.
const (
	QueueSearching = "searching"
	QueueMatched   = "matched"
	QueueCancelled = "cancelled"
)

// QueueEntry is a user's standing intent to be matched for a game.
type QueueEntry struct {
	UserID     string
	GameID     string
	Status     string
	EnqueuedAt time.Time
}

// QueueResult is the outcome of an enqueue or status call.
type QueueResult struct {
	Searching  bool   `json:"searching"`
	MatchID    string `json:"match_id,omitempty"`
	GameID     string `json:"game_id,omitempty"`
	OpponentID string `json:"opponent_id,omitempty"`
	Status     string `json:"status,omitempty"`
}

// Matchmaker owns the per-game FIFO queues and the set of active matches.
//
// All status transitions happen under mu, so a cancel can never race a
// pairing decision: the pairing scan selects and marks entries in one
// critical section. Pairing for a given game is additionally serialized by
// a per-game lock that stays held across the match-persistence call, so
// two enqueues for the same game can never claim the same opponent while
// queues for other games keep moving.
type Matchmaker struct {
	store MatchStore

	mu        sync.Mutex
	queues    map[string][]*QueueEntry // per game, append order
	byUser    map[string]*QueueEntry   // the one searching entry per user
	byMatchID map[string]*Match
	active    map[string]*Match // per user, status pending or active
	gameLocks map[string]*sync.Mutex
}

// NewMatchmaker creates a matchmaker backed by the given match store.
func NewMatchmaker(store MatchStore) *Matchmaker {
	return &Matchmaker{
		store:     store,
		queues:    make(map[string][]*QueueEntry),
		byUser:    make(map[string]*QueueEntry),
		byMatchID: make(map[string]*Match),
		active:    make(map[string]*Match),
		gameLocks: make(map[string]*sync.Mutex),
	}
}

// Attach subscribes the matchmaker to the registry's disconnect signal.
func (m *Matchmaker) Attach(registry *Registry) {
	registry.OnDisconnect(m.handleDisconnect)
}

func (m *Matchmaker) gameLock(gameID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.gameLocks[gameID]
	if !ok {
		l = &sync.Mutex{}
		m.gameLocks[gameID] = l
	}
	return l
}

// Enqueue places a user in the queue for a game, pairing them with the
// oldest waiting opponent when one exists. A user who already has a
// pending or active match gets that match back without touching the queue.
// A prior searching entry for any other game is cancelled first: the
// newest intent wins.
func (m *Matchmaker) Enqueue(ctx context.Context, user Identity, gameID string) (QueueResult, error) {
	if user.Anonymous() {
		return QueueResult{}, ErrIdentityRequired
	}

	if res, ok, err := m.existingMatch(ctx, user.UserID); err != nil {
		return QueueResult{}, err
	} else if ok {
		return res, nil
	}

	gl := m.gameLock(gameID)
	gl.Lock()
	defer gl.Unlock()

	m.mu.Lock()

	// A pairing may have completed while we waited for the game lock.
	if match := m.active[user.UserID]; match != nil {
		m.mu.Unlock()
		return matchResult(match, user.UserID), nil
	}

	entry := m.byUser[user.UserID]
	if entry != nil && entry.GameID != gameID {
		entry.Status = QueueCancelled
		entry = nil
	}
	if entry == nil {
		entry = &QueueEntry{
			UserID:     user.UserID,
			GameID:     gameID,
			Status:     QueueSearching,
			EnqueuedAt: time.Now(),
		}
		m.queues[gameID] = append(m.queues[gameID], entry)
		m.byUser[user.UserID] = entry
	}

	opponent := m.findOpponent(gameID, user.UserID)
	if opponent == nil {
		m.mu.Unlock()
		return QueueResult{Searching: true}, nil
	}

	// Claim both entries before releasing mu so no concurrent enqueue or
	// cancel can touch them while the match record is being written.
	opponent.Status = QueueMatched
	entry.Status = QueueMatched
	delete(m.byUser, opponent.UserID)
	delete(m.byUser, user.UserID)
	m.mu.Unlock()

	// The earlier-queued entry becomes player1. The game lock stays held
	// here; pairing for other games proceeds unimpeded.
	matchID, err := m.store.CreateMatch(ctx, gameID, opponent.UserID, user.UserID)
	if err != nil {
		m.rollback(entry, opponent)
		return QueueResult{}, fmt.Errorf("persist match: %w", err)
	}

	match := &Match{
		ID:        matchID,
		GameID:    gameID,
		Player1ID: opponent.UserID,
		Player2ID: user.UserID,
		Status:    MatchPending,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.active[match.Player1ID] = match
	m.active[match.Player2ID] = match
	m.byMatchID[match.ID] = match
	m.mu.Unlock()

	log.Printf("[MATCHMAKER] Match %s created: %s vs %s (game=%s)",
		match.ID, match.Player1ID, match.Player2ID, gameID)

	return matchResult(match, user.UserID), nil
}

// findOpponent returns the oldest searching entry for the game excluding
// the user, compacting finished entries as it goes. Callers hold mu.
func (m *Matchmaker) findOpponent(gameID, userID string) *QueueEntry {
	queue := m.queues[gameID]
	live := queue[:0]
	var opponent *QueueEntry
	for _, e := range queue {
		if e.Status != QueueSearching {
			continue
		}
		live = append(live, e)
		if opponent == nil && e.UserID != userID {
			opponent = e
		}
	}
	if len(live) == 0 {
		delete(m.queues, gameID)
	} else {
		m.queues[gameID] = live
	}
	return opponent
}

// rollback returns two claimed entries to searching after a failed match
// persist so neither player is stranded. An entry is only restored if its
// user has not queued again elsewhere in the meantime.
func (m *Matchmaker) rollback(entries ...*QueueEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if m.byUser[e.UserID] != nil {
			e.Status = QueueCancelled
			continue
		}
		e.Status = QueueSearching
		m.byUser[e.UserID] = e
	}
}

// existingMatch resolves the user's current pending/active match, checking
// memory first and falling back to the persistence collaborator.
func (m *Matchmaker) existingMatch(ctx context.Context, userID string) (QueueResult, bool, error) {
	m.mu.Lock()
	match := m.active[userID]
	m.mu.Unlock()
	if match != nil {
		return matchResult(match, userID), true, nil
	}

	match, err := m.store.GetActiveMatch(ctx, userID)
	if err != nil {
		return QueueResult{}, false, fmt.Errorf("lookup active match: %w", err)
	}
	if match == nil {
		return QueueResult{}, false, nil
	}

	m.mu.Lock()
	if cached := m.active[userID]; cached != nil {
		match = cached
	} else {
		m.active[match.Player1ID] = match
		m.active[match.Player2ID] = match
		m.byMatchID[match.ID] = match
	}
	m.mu.Unlock()
	return matchResult(match, userID), true, nil
}

func matchResult(match *Match, userID string) QueueResult {
	return QueueResult{
		Searching:  false,
		MatchID:    match.ID,
		GameID:     match.GameID,
		OpponentID: match.Opponent(userID),
		Status:     match.Status,
	}
}

// Cancel marks the user's searching entry cancelled. No-op when the user
// has no searching entry, so it is safe to call on any teardown path.
func (m *Matchmaker) Cancel(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.byUser[userID]
	if entry == nil || entry.Status != QueueSearching {
		return
	}
	entry.Status = QueueCancelled
	delete(m.byUser, userID)
}

// Status reports the user's current matchmaking state. A user either has a
// match or is treated as searching; there is no distinguishable "not
// queued" state, which keeps client polling simple.
func (m *Matchmaker) Status(ctx context.Context, userID string) (QueueResult, error) {
	if res, ok, err := m.existingMatch(ctx, userID); err != nil {
		return QueueResult{}, err
	} else if ok {
		return res, nil
	}
	return QueueResult{Searching: true}, nil
}

// Lookup returns an active match by ID.
func (m *Matchmaker) Lookup(matchID string) (*Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match := m.byMatchID[matchID]
	if match == nil {
		return nil, ErrMatchNotFound
	}
	return match, nil
}

// Complete marks a match finished and releases both players so they can
// queue again. Returns ErrMatchNotFound for an unknown or finished match.
func (m *Matchmaker) Complete(matchID string) (*Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match := m.byMatchID[matchID]
	if match == nil {
		return nil, ErrMatchNotFound
	}
	match.Status = MatchCompleted
	delete(m.byMatchID, matchID)
	delete(m.active, match.Player1ID)
	delete(m.active, match.Player2ID)
	return match, nil
}

// Sweep cancels searching entries older than ttl and reports how many were
// dropped. Keeps abandoned intents from sitting in the queue forever.
func (m *Matchmaker) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for userID, entry := range m.byUser {
		if entry.Status == QueueSearching && entry.EnqueuedAt.Before(cutoff) {
			entry.Status = QueueCancelled
			delete(m.byUser, userID)
			dropped++
		}
	}
	return dropped
}

// StartSweeper runs the queue expiry sweep on a fixed interval until the
// context is cancelled.
func (m *Matchmaker) StartSweeper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[MATCHMAKER] Starting queue sweeper (poll every %v, ttl %v)", interval, ttl)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[MATCHMAKER] Queue sweeper stopped")
			return
		case <-ticker.C:
			if n := m.Sweep(ttl); n > 0 {
				log.Printf("[MATCHMAKER] Expired %d stale queue entries", n)
			}
		}
	}
}

// handleDisconnect cancels the user's searching entry once their last
// connection is gone. An already-created match is left untouched;
// mid-match disconnects are a gameplay concern.
func (m *Matchmaker) handleDisconnect(ev DisconnectEvent) {
	if !ev.LastOfUser || ev.UserID == "" {
		return
	}
	m.Cancel(ev.UserID)
}
