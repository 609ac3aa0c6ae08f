// Command verify recomputes a round result from its revealed seeds, offline.
//
//	verify -game crash -round 42 -server-seed <hex> -public-seed <block hash> [-hash <commitment>] [-result 1.40]
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"crashfair/internal/fairness"
)

func main() {
	var (
		gameName   = flag.String("game", "crash", "game type: crash, coinflip or jackpot")
		roundID    = flag.String("round", "", "round id")
		serverSeed = flag.String("server-seed", "", "revealed server seed")
		publicSeed = flag.String("public-seed", "", "public seed recorded for the round")
		seedHash   = flag.String("hash", "", "commitment published before betting closed (optional)")
		houseEdge  = flag.Float64("edge", 0.01, "house edge used by crash")
		tickets    = flag.Int64("tickets", 0, "jackpot ticket count")
		claimed    = flag.Float64("result", -1, "result to check against (optional)")
		ticket     = flag.Int64("ticket", -1, "jackpot winning ticket to check against (optional)")
		asJSON     = flag.Bool("json", false, "print the outcome as JSON")
	)
	flag.Parse()

	if *roundID == "" || *serverSeed == "" {
		flag.Usage()
		os.Exit(2)
	}

	proof := fairness.Proof{
		Game:        fairness.Game(*gameName),
		RoundID:     *roundID,
		ServerSeed:  *serverSeed,
		SeedHash:    *seedHash,
		PublicSeed:  *publicSeed,
		HouseEdge:   *houseEdge,
		TicketCount: *tickets,
	}
	if proof.SeedHash == "" {
		proof.SeedHash = fairness.HashCommitment(proof.ServerSeed)
	}

	out, err := fairness.Compute(proof)
	if err != nil {
		fail(err)
	}

	if *asJSON {
		json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
			"seed_hash": proof.SeedHash,
			"result":    out,
		})
	} else {
		fmt.Printf("seed hash:      %s\n", fairness.HashCommitment(proof.ServerSeed))
		fmt.Printf("result:         %v\n", out.Value)
		if proof.Game == fairness.GameJackpot {
			fmt.Printf("winning ticket: %d\n", out.WinningTicket)
		}
	}

	if *claimed < 0 && *seedHash == "" {
		return
	}
	want := out
	if *claimed >= 0 {
		want = fairness.Outcome{Value: *claimed, WinningTicket: *ticket}
		if proof.Game != fairness.GameJackpot {
			want.WinningTicket = -1
		}
	}
	if err := fairness.Verify(proof, want); err != nil {
		fail(err)
	}
	fmt.Println("verified")
}

func fail(err error) {
	code := 1
	if errors.Is(err, fairness.ErrSeedMismatch) || errors.Is(err, fairness.ErrResultMismatch) {
		code = 3
	}
	fmt.Fprintln(os.Stderr, "verify:", err)
	os.Exit(code)
}
