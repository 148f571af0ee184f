package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeMatchStore implements MatchStore in memory.
type fakeMatchStore struct {
	mu        sync.Mutex
	seq       int
	created   [][3]string // gameID, player1, player2
	persisted *Match      // returned by GetActiveMatch for its players
	failErr   error
	block     chan struct{} // when set, CreateMatch waits on it
}

func (s *fakeMatchStore) CreateMatch(ctx context.Context, gameID, player1ID, player2ID string) (string, error) {
	s.mu.Lock()
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return "", s.failErr
	}
	s.seq++
	s.created = append(s.created, [3]string{gameID, player1ID, player2ID})
	return fmt.Sprintf("MATCH_%d", s.seq), nil
}

func (s *fakeMatchStore) GetActiveMatch(ctx context.Context, userID string) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.persisted; m != nil && (m.Player1ID == userID || m.Player2ID == userID) {
		return m, nil
	}
	return nil, nil
}

func (s *fakeMatchStore) createdCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

func ident(userID string) Identity {
	return Identity{UserID: userID, DisplayName: userID}
}

func TestEnqueuePairsFIFO(t *testing.T) {
	store := &fakeMatchStore{}
	mm := NewMatchmaker(store)
	ctx := context.Background()

	res, err := mm.Enqueue(ctx, ident("u1"), "tictactoe")
	if err != nil {
		t.Fatalf("enqueue u1: %v", err)
	}
	if !res.Searching {
		t.Fatal("first enqueue should be searching")
	}

	res, err = mm.Enqueue(ctx, ident("u2"), "tictactoe")
	if err != nil {
		t.Fatalf("enqueue u2: %v", err)
	}
	if res.Searching {
		t.Fatal("second enqueue should pair")
	}
	if res.OpponentID != "u1" {
		t.Errorf("u2's opponent should be u1, got %s", res.OpponentID)
	}

	// The earlier-queued user is player1
	if store.created[0] != [3]string{"tictactoe", "u1", "u2"} {
		t.Errorf("unexpected match record: %v", store.created[0])
	}

	// Both users resolve to the same match
	st, err := mm.Status(ctx, "u1")
	if err != nil {
		t.Fatalf("status u1: %v", err)
	}
	if st.Searching || st.MatchID != res.MatchID || st.OpponentID != "u2" {
		t.Errorf("u1 should see the same match: %+v", st)
	}
}

func TestEnqueueFIFOPicksOldest(t *testing.T) {
	store := &fakeMatchStore{}
	mm := NewMatchmaker(store)
	ctx := context.Background()

	mm.Enqueue(ctx, ident("u1"), "chess")
	mm.Enqueue(ctx, ident("u2"), "chess")
	// u1 and u2 paired; u3 and u4 queue next
	mm.Enqueue(ctx, ident("u3"), "chess")
	res, _ := mm.Enqueue(ctx, ident("u4"), "chess")

	if res.Searching || res.OpponentID != "u3" {
		t.Errorf("u4 should pair with the oldest waiter u3: %+v", res)
	}
}

func TestActiveMatchShortCircuitsEnqueue(t *testing.T) {
	store := &fakeMatchStore{}
	mm := NewMatchmaker(store)
	ctx := context.Background()

	mm.Enqueue(ctx, ident("u1"), "tictactoe")
	first, _ := mm.Enqueue(ctx, ident("u2"), "tictactoe")

	again, err := mm.Enqueue(ctx, ident("u1"), "tictactoe")
	if err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	if again.Searching || again.MatchID != first.MatchID {
		t.Errorf("re-enqueue must return the existing match, got %+v", again)
	}
	if store.createdCount() != 1 {
		t.Errorf("no second match may be created, got %d", store.createdCount())
	}

	// Even for a different game
	other, _ := mm.Enqueue(ctx, ident("u1"), "chess")
	if other.MatchID != first.MatchID {
		t.Errorf("short-circuit applies across games, got %+v", other)
	}
}

func TestNewestIntentWinsAcrossGames(t *testing.T) {
	store := &fakeMatchStore{}
	mm := NewMatchmaker(store)
	ctx := context.Background()

	mm.Enqueue(ctx, ident("u1"), "tictactoe")
	mm.Enqueue(ctx, ident("u1"), "chess")

	// u2 queues for tictactoe: u1's entry there was cancelled, no pairing.
	res, _ := mm.Enqueue(ctx, ident("u2"), "tictactoe")
	if !res.Searching {
		t.Fatalf("u1's tictactoe entry should have been cancelled: %+v", res)
	}

	// u3 queues for chess and pairs with u1's newest intent.
	res, _ = mm.Enqueue(ctx, ident("u3"), "chess")
	if res.Searching || res.OpponentID != "u1" {
		t.Errorf("u3 should pair with u1 in chess: %+v", res)
	}
}

func TestCancelThenStatus(t *testing.T) {
	store := &fakeMatchStore{}
	mm := NewMatchmaker(store)
	ctx := context.Background()

	mm.Enqueue(ctx, ident("u1"), "tictactoe")
	mm.Cancel("u1")

	st, err := mm.Status(ctx, "u1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Searching || st.MatchID != "" {
		t.Errorf("cancel then status must report searching with no match: %+v", st)
	}

	// Cancelled entry cannot be paired
	res, _ := mm.Enqueue(ctx, ident("u2"), "tictactoe")
	if !res.Searching {
		t.Errorf("u2 must not pair with a cancelled entry: %+v", res)
	}

	// Cancel with no entry is a no-op
	mm.Cancel("u1")
	mm.Cancel("nobody")
}

func TestEnqueueRequiresIdentity(t *testing.T) {
	mm := NewMatchmaker(&fakeMatchStore{})
	if _, err := mm.Enqueue(context.Background(), Identity{}, "tictactoe"); !errors.Is(err, ErrIdentityRequired) {
		t.Errorf("expected ErrIdentityRequired, got %v", err)
	}
}

func TestPersistFailureRollsBackEntries(t *testing.T) {
	store := &fakeMatchStore{failErr: fmt.Errorf("db down")}
	mm := NewMatchmaker(store)
	ctx := context.Background()

	mm.Enqueue(ctx, ident("u1"), "tictactoe")
	if _, err := mm.Enqueue(ctx, ident("u2"), "tictactoe"); err == nil {
		t.Fatal("expected persistence error to surface")
	}

	// Both entries must be searching again, so the next attempt pairs them.
	store.mu.Lock()
	store.failErr = nil
	store.mu.Unlock()

	res, err := mm.Enqueue(ctx, ident("u2"), "tictactoe")
	if err != nil {
		t.Fatalf("retry enqueue: %v", err)
	}
	if res.Searching || res.OpponentID != "u1" {
		t.Errorf("entries should have rolled back to searching: %+v", res)
	}
}

func TestConcurrentEnqueueCreatesOneMatch(t *testing.T) {
	for round := 0; round < 20; round++ {
		store := &fakeMatchStore{}
		mm := NewMatchmaker(store)
		ctx := context.Background()

		var wg sync.WaitGroup
		results := make([]QueueResult, 2)
		for i, user := range []string{"u1", "u2"} {
			wg.Add(1)
			go func(i int, user string) {
				defer wg.Done()
				res, err := mm.Enqueue(ctx, ident(user), "tictactoe")
				if err != nil {
					t.Errorf("enqueue %s: %v", user, err)
					return
				}
				results[i] = res
			}(i, user)
		}
		wg.Wait()

		if store.createdCount() != 1 {
			t.Fatalf("round %d: expected exactly 1 match, got %d", round, store.createdCount())
		}

		// Both users must resolve to the same match.
		st1, _ := mm.Status(ctx, "u1")
		st2, _ := mm.Status(ctx, "u2")
		if st1.Searching || st2.Searching || st1.MatchID != st2.MatchID {
			t.Fatalf("round %d: inconsistent outcome: %+v vs %+v", round, st1, st2)
		}

		// At least one enqueue observed the pairing directly.
		if results[0].Searching && results[1].Searching {
			t.Fatalf("round %d: both callers reported searching", round)
		}
	}
}

func TestCancelDuringPairingDoesNotCorruptState(t *testing.T) {
	store := &fakeMatchStore{block: make(chan struct{})}
	mm := NewMatchmaker(store)
	ctx := context.Background()

	mm.Enqueue(ctx, ident("u1"), "tictactoe")

	done := make(chan QueueResult, 1)
	go func() {
		res, _ := mm.Enqueue(ctx, ident("u2"), "tictactoe")
		done <- res
	}()

	// Wait for the pairing to claim both entries and suspend in CreateMatch.
	waitFor(t, func() bool {
		mm.mu.Lock()
		defer mm.mu.Unlock()
		_, waiting := mm.byUser["u1"]
		return !waiting
	}, "pairing to claim u1's entry")

	// A cancel racing the in-flight pairing must be a no-op: the entry is
	// already claimed.
	mm.Cancel("u1")
	close(store.block)

	res := <-done
	if res.Searching || res.OpponentID != "u1" {
		t.Fatalf("pairing should complete despite the racing cancel: %+v", res)
	}
	st, _ := mm.Status(ctx, "u1")
	if st.Searching || st.MatchID != res.MatchID {
		t.Errorf("u1 must end up in the created match: %+v", st)
	}
}

func TestScopedSuspensionOtherGamesProceed(t *testing.T) {
	store := &fakeMatchStore{block: make(chan struct{})}
	mm := NewMatchmaker(store)
	ctx := context.Background()

	mm.Enqueue(ctx, ident("u1"), "slowgame")
	go mm.Enqueue(ctx, ident("u2"), "slowgame")

	waitFor(t, func() bool {
		mm.mu.Lock()
		defer mm.mu.Unlock()
		_, waiting := mm.byUser["u1"]
		return !waiting
	}, "slowgame pairing to start")

	// While slowgame's pairing is suspended in the store, another game's
	// queue keeps moving.
	store.mu.Lock()
	blocked := store.block
	store.block = nil
	store.mu.Unlock()
	defer close(blocked)

	mm.Enqueue(ctx, ident("u3"), "fastgame")
	res, err := mm.Enqueue(ctx, ident("u4"), "fastgame")
	if err != nil {
		t.Fatalf("fastgame enqueue: %v", err)
	}
	if res.Searching || res.OpponentID != "u3" {
		t.Fatalf("fastgame should pair while slowgame is suspended: %+v", res)
	}
}

func TestDisconnectCancelsSearchingOnly(t *testing.T) {
	store := &fakeMatchStore{}
	mm := NewMatchmaker(store)
	registry := NewRegistry(nil)
	mm.Attach(registry)
	ctx := context.Background()

	conn := registry.Register(ident("u1"), &testSender{})
	mm.Enqueue(ctx, ident("u1"), "tictactoe")
	registry.Unregister(conn.ID)

	res, _ := mm.Enqueue(ctx, ident("u2"), "tictactoe")
	if !res.Searching {
		t.Fatalf("disconnected user's entry must be cancelled: %+v", res)
	}

	// A created match survives its players' disconnects.
	c2 := registry.Register(ident("u2"), &testSender{})
	c3 := registry.Register(ident("u3"), &testSender{})
	match, _ := mm.Enqueue(ctx, ident("u3"), "tictactoe")
	if match.Searching {
		t.Fatal("u2 and u3 should have paired")
	}
	registry.Unregister(c2.ID)
	registry.Unregister(c3.ID)

	st, _ := mm.Status(ctx, "u2")
	if st.Searching || st.MatchID != match.MatchID {
		t.Errorf("match must survive disconnect: %+v", st)
	}
}

func TestStatusHydratesPersistedMatch(t *testing.T) {
	persisted := &Match{
		ID:        "MATCH_DB1",
		GameID:    "tictactoe",
		Player1ID: "u1",
		Player2ID: "u2",
		Status:    MatchPending,
		CreatedAt: time.Now(),
	}
	store := &fakeMatchStore{persisted: persisted}
	// A fresh matchmaker, as after a process restart: the match exists only
	// in persistence.
	mm := NewMatchmaker(store)
	ctx := context.Background()

	if _, err := mm.Lookup("MATCH_DB1"); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("fresh matchmaker should not know the match yet: %v", err)
	}

	st, err := mm.Status(ctx, "u1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Searching || st.MatchID != "MATCH_DB1" || st.OpponentID != "u2" {
		t.Fatalf("status should surface the persisted match: %+v", st)
	}

	// The hydrated match is addressable by ID and can be completed.
	if _, err := mm.Lookup("MATCH_DB1"); err != nil {
		t.Fatalf("lookup after hydration: %v", err)
	}
	match, err := mm.Complete("MATCH_DB1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if match.Status != MatchCompleted {
		t.Errorf("expected completed status, got %s", match.Status)
	}
}

func TestCompleteFreesPlayers(t *testing.T) {
	store := &fakeMatchStore{}
	mm := NewMatchmaker(store)
	ctx := context.Background()

	mm.Enqueue(ctx, ident("u1"), "tictactoe")
	res, _ := mm.Enqueue(ctx, ident("u2"), "tictactoe")

	match, err := mm.Complete(res.MatchID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if match.Status != MatchCompleted {
		t.Errorf("expected completed status, got %s", match.Status)
	}

	if _, err := mm.Complete(res.MatchID); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("double complete should report ErrMatchNotFound, got %v", err)
	}

	// Both players can queue again.
	r1, _ := mm.Enqueue(ctx, ident("u1"), "tictactoe")
	if !r1.Searching {
		t.Errorf("u1 should be free to queue after completion: %+v", r1)
	}
}

func TestSweepExpiresStaleEntries(t *testing.T) {
	store := &fakeMatchStore{}
	mm := NewMatchmaker(store)
	ctx := context.Background()

	mm.Enqueue(ctx, ident("u1"), "tictactoe")
	mm.mu.Lock()
	mm.byUser["u1"].EnqueuedAt = time.Now().Add(-time.Hour)
	mm.mu.Unlock()
	mm.Enqueue(ctx, ident("u2"), "chess")

	if n := mm.Sweep(10 * time.Minute); n != 1 {
		t.Fatalf("expected 1 expired entry, got %d", n)
	}

	// u1 is gone, u2 remains.
	res, _ := mm.Enqueue(ctx, ident("u3"), "tictactoe")
	if !res.Searching {
		t.Errorf("expired entry must not pair: %+v", res)
	}
	res, _ = mm.Enqueue(ctx, ident("u4"), "chess")
	if res.Searching || res.OpponentID != "u2" {
		t.Errorf("fresh entry must still pair: %+v", res)
	}
}
