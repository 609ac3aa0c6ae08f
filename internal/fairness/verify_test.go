package fairness

import (
	"errors"
	"testing"
)

func goldenProof(game Game) Proof {
	return Proof{
		Game:        game,
		RoundID:     goldenRoundID,
		ServerSeed:  goldenServerSeed,
		SeedHash:    HashCommitment(goldenServerSeed),
		PublicSeed:  goldenPublicSeed,
		HouseEdge:   0.01,
		TicketCount: 10,
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		proof   Proof
		claimed Outcome
		wantErr error
	}{
		{
			name:    "crash round",
			proof:   goldenProof(GameCrash),
			claimed: Outcome{Value: 1.40, WinningTicket: -1},
		},
		{
			name:    "coinflip round",
			proof:   goldenProof(GameCoinflip),
			claimed: Outcome{Value: 25.3499027, WinningTicket: -1},
		},
		{
			name:    "jackpot round",
			proof:   goldenProof(GameJackpot),
			claimed: Outcome{Value: 63.6066475, WinningTicket: 6},
		},
		{
			name:    "tampered multiplier",
			proof:   goldenProof(GameCrash),
			claimed: Outcome{Value: 1.41, WinningTicket: -1},
			wantErr: ErrResultMismatch,
		},
		{
			name: "wrong seed hash",
			proof: func() Proof {
				p := goldenProof(GameCrash)
				p.SeedHash = HashCommitment("other")
				return p
			}(),
			claimed: Outcome{Value: 1.40, WinningTicket: -1},
			wantErr: ErrSeedMismatch,
		},
		{
			name: "unknown game",
			proof: func() Proof {
				p := goldenProof(GameCrash)
				p.Game = "roulette"
				return p
			}(),
			wantErr: ErrUnknownGame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.proof, tt.claimed)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompute_EmptyJackpot(t *testing.T) {
	p := goldenProof(GameJackpot)
	p.TicketCount = 0

	got, err := Compute(p)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if got.WinningTicket != -1 {
		t.Errorf("WinningTicket = %d, want -1 for an empty pot", got.WinningTicket)
	}
}
