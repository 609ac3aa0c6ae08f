package game

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crashfair/internal/commitment"
	"crashfair/internal/entropy"
	"crashfair/internal/logger"
	"crashfair/internal/settlement"
)

var (
	testServerSeed = strings.Repeat("a", 64)
	errNoFunds     = errors.New("insufficient funds")
)

type fakeWallet struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func newFakeWallet(users ...string) *fakeWallet {
	w := &fakeWallet{balances: make(map[string]decimal.Decimal)}
	for _, u := range users {
		w.balances[u] = decimal.NewFromInt(1000)
	}
	return w
}

func (w *fakeWallet) Debit(_ context.Context, userID string, amount decimal.Decimal, _ string, _ map[string]string) (decimal.Decimal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	bal := w.balances[userID]
	if bal.LessThan(amount) {
		return bal, errNoFunds
	}
	w.balances[userID] = bal.Sub(amount)
	return w.balances[userID], nil
}

type fakeSettler struct {
	mu      sync.Mutex
	batches [][]settlement.Settlement
	pending map[string]bool
}

func (s *fakeSettler) Dispatch(_ context.Context, batch []settlement.Settlement) settlement.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	var report settlement.Report
	for _, st := range batch {
		if s.pending[st.ParticipantID] {
			report.Pending = append(report.Pending, st.ParticipantID)
			continue
		}
		report.Settled = append(report.Settled, st.ParticipantID)
	}
	return report
}

func (s *fakeSettler) all() [][]settlement.Settlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]settlement.Settlement(nil), s.batches...)
}

type fakeSeeds struct {
	seed entropy.Seed
	err  error
}

func (f fakeSeeds) Fetch(context.Context) (entropy.Seed, error) {
	return f.seed, f.err
}

type recordingArchive struct {
	mu      sync.Mutex
	rounds  []Summary
	updates []Summary
}

func (a *recordingArchive) SaveRound(_ context.Context, s Summary) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rounds = append(a.rounds, s)
	return nil
}

func (a *recordingArchive) UpdateFlags(_ context.Context, s Summary) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updates = append(a.updates, s)
	return nil
}

func (a *recordingArchive) lastUpdate() (Summary, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.updates) == 0 {
		return Summary{}, false
	}
	return a.updates[len(a.updates)-1], true
}

func (a *recordingArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rounds)
}

type harness struct {
	deps    Deps
	wallet  *fakeWallet
	settler *fakeSettler
	archive *recordingArchive
	store   *commitment.MemoryStore
}

// newHarness pins the server seed and the first round id to 42.
func newHarness(t *testing.T, seeds PublicSeeds) *harness {
	t.Helper()
	store := commitment.NewMemoryStore()
	commitments := commitment.NewManager(store, logger.Nop(), commitment.WithSeedSource(func() (string, error) {
		return testServerSeed, nil
	}))
	t.Cleanup(commitments.Shutdown)

	h := &harness{
		wallet:  newFakeWallet("alice", "bob", "carol", "dave", "erin"),
		settler: &fakeSettler{pending: map[string]bool{}},
		archive: &recordingArchive{},
		store:   store,
	}
	h.deps = Deps{
		Commitments: commitments,
		Entropy:     seeds,
		Wallet:      h.wallet,
		Settler:     h.settler,
		Archives:    []Archive{h.archive},
		Sequence:    NewSequence(41),
		Log:         logger.Nop(),
	}
	return h
}

func goldenSeeds() fakeSeeds {
	return fakeSeeds{seed: entropy.Seed{Value: "block123", Source: "test"}}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitPhase(t *testing.T, engine GameEngine, phases ...Phase) Snapshot {
	t.Helper()
	var snap Snapshot
	waitFor(t, 3*time.Second, "phase "+string(phases[0]), func() bool {
		s, ok := engine.CurrentRound()
		if !ok {
			return false
		}
		for _, p := range phases {
			if s.Phase == p {
				snap = s
				return true
			}
		}
		return false
	})
	return snap
}

func waitHistory(t *testing.T, engine GameEngine) Summary {
	t.Helper()
	waitFor(t, 5*time.Second, "archived round", func() bool {
		return len(engine.History(1)) == 1
	})
	return engine.History(1)[0]
}

func entryFor(s Summary, user string) EntryView {
	for _, e := range s.Entries {
		if e.UserID == user {
			return e
		}
	}
	return EntryView{}
}
