package game

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"crashfair/internal/fairness"
)

func TestPhaseTransitions(t *testing.T) {
	tests := []struct {
		from, to Phase
		ok       bool
	}{
		{PhasePending, PhaseBetting, true},
		{PhaseBetting, PhaseLocked, true},
		{PhaseLocked, PhaseRunning, true},
		{PhaseLocked, PhaseResolved, true},
		{PhaseRunning, PhaseCrashed, true},
		{PhaseCrashed, PhaseSettled, true},
		{PhaseResolved, PhaseSettled, true},
		{PhaseRunning, PhaseAborted, true},
		{PhaseBetting, PhaseRunning, false},
		{PhaseRunning, PhaseBetting, false},
		{PhaseCrashed, PhaseAborted, false},
		{PhaseSettled, PhaseBetting, false},
		{PhaseAborted, PhaseSettled, false},
	}
	for _, tt := range tests {
		r := newRound("1", GameTypeCrash, 0.01)
		r.Phase = tt.from
		err := r.transition(tt.to)
		if tt.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
		}
		if !tt.ok {
			if !errors.Is(err, ErrInvalidPhaseTransition) {
				t.Errorf("%s -> %s: error = %v, want ErrInvalidPhaseTransition", tt.from, tt.to, err)
			}
			if r.Phase != tt.from {
				t.Errorf("refused transition changed phase to %s", r.Phase)
			}
		}
	}
}

func TestRound_SnapshotHidesSeedUntilReveal(t *testing.T) {
	r := newRound("42", GameTypeCrash, 0.01)
	r.privateSeed = testServerSeed
	r.SeedHash = fairness.HashCommitment(testServerSeed)
	r.setPublicSeed("block123", "test")
	r.setResult(fairness.Outcome{Value: 1.4, WinningTicket: -1})

	data, err := json.Marshal(r.snapshot("tick"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), testServerSeed) {
		t.Fatal("snapshot leaked the private seed")
	}
	if strings.Contains(string(data), `"result"`) {
		t.Fatal("snapshot leaked the result")
	}

	r.reveal(testServerSeed)
	snap := r.snapshot("crash")
	if snap.PrivateSeed != testServerSeed || snap.Result == nil || snap.Result.Value != 1.4 {
		t.Errorf("revealed snapshot = %+v", snap)
	}
}

func TestRound_WriteOnceFields(t *testing.T) {
	r := newRound("1", GameTypeCoinflip, 0)
	r.setPublicSeed("first", "a")
	r.setPublicSeed("second", "b")
	if r.PublicSeed != "first" || r.PublicSeedSource != "a" {
		t.Errorf("public seed overwritten: %s/%s", r.PublicSeed, r.PublicSeedSource)
	}

	r.setResult(fairness.Outcome{Value: 1})
	r.setResult(fairness.Outcome{Value: 2})
	if r.result.Value != 1 {
		t.Errorf("result overwritten: %v", r.result.Value)
	}
}

func TestRound_SnapshotMultiplierOnlyForCrash(t *testing.T) {
	r := newRound("1", GameTypeJackpot, 0)
	if r.snapshot("x").CurrentMultiplier != 0 {
		t.Error("jackpot snapshot should not carry a multiplier")
	}
}

func TestSequence_Concurrent(t *testing.T) {
	seq := NewSequence(0)
	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := seq.Next()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != 50 {
		t.Errorf("got %d unique ids, want 50", len(seen))
	}
}

func TestTotalStake(t *testing.T) {
	entries := []*Entry{
		{Stake: decimal.RequireFromString("1.10")},
		{Stake: decimal.RequireFromString("2.25")},
	}
	if got := totalStake(entries); got.String() != "3.35" {
		t.Errorf("totalStake = %s, want 3.35", got)
	}
}

func TestIsCallerError(t *testing.T) {
	if !IsCallerError(ErrBettingClosed) || !IsCallerError(ErrInvalidAutoCashout) {
		t.Error("request errors should be caller errors")
	}
	if IsCallerError(ErrTimeout) || IsCallerError(errors.New("boom")) {
		t.Error("server-side errors are not caller errors")
	}
}
