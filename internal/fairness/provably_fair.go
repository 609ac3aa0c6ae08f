// Package fairness holds the outcome derivation functions players use to verify a round.
//
// Every draw is HMAC-SHA256(key, publicSeed). The first 8 bytes of the digest are read as a
// big-endian uint64 u and a draw over N units is floor(u*N / 2^64). Results carry 7 fractional
// digits. Key construction per game:
//
//	crash, coinflip: serverSeed + "-" + roundID
//	jackpot:         roundID + "-" + serverSeed
//
// Changing any of this breaks verification of every archived round.
package fairness

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/bits"
)

type Game string

const (
	GameCoinflip Game = "coinflip"
	GameJackpot  Game = "jackpot"
	GameCrash    Game = "crash"
)

const (
	Precision = 7
	UnitScale = 10_000_000 // 10^Precision

	MIN_MULTIPLIER = 1.00
	SEED_BYTES     = 32

	CoinflipRange = 60
	JackpotRange  = 100

	basisPoints = 10_000
)

var ErrNoTickets = errors.New("fairness: jackpot has no tickets")

// GenerateSeed draws SEED_BYTES from crypto/rand and hex encodes them.
func GenerateSeed() (string, error) {
	b := make([]byte, SEED_BYTES)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("fairness: entropy exhausted: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashCommitment is the public commitment published before bets close.
func HashCommitment(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}

func CrashKey(serverSeed, roundID string) string {
	return serverSeed + "-" + roundID
}

func JackpotKey(serverSeed, roundID string) string {
	return roundID + "-" + serverSeed
}

// drawUnits returns floor(u*n / 2^64) for the digest of (key, message).
func drawUnits(key, message string, n uint64) uint64 {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(message))
	u := binary.BigEndian.Uint64(mac.Sum(nil)[:8])
	hi, _ := bits.Mul64(u, n)
	return hi
}

func uniformUnits(serverSeed, publicSeed, roundID string) uint64 {
	return drawUnits(CrashKey(serverSeed, roundID), publicSeed, UnitScale)
}

// DeriveUniform returns a value in [0,1) with Precision fractional digits.
func DeriveUniform(serverSeed, publicSeed, roundID string) float64 {
	return float64(uniformUnits(serverSeed, publicSeed, roundID)) / UnitScale
}

// CoinflipResult returns a value in [0,60). publicSeed may be empty.
func CoinflipResult(serverSeed, publicSeed, roundID string) float64 {
	units := drawUnits(CrashKey(serverSeed, roundID), publicSeed, CoinflipRange*UnitScale)
	return float64(units) / UnitScale
}

type JackpotOutcome struct {
	Module        float64 `json:"module"`
	WinningTicket int64   `json:"winning_ticket"`
}

// JackpotResult draws the module in [0,100) and picks the winning ticket out of ticketCount.
// With no tickets the module is still returned alongside ErrNoTickets.
func JackpotResult(serverSeed, publicSeed, roundID string, ticketCount int64) (JackpotOutcome, error) {
	units := drawUnits(JackpotKey(serverSeed, roundID), publicSeed, JackpotRange*UnitScale)
	out := JackpotOutcome{Module: float64(units) / UnitScale}

	ticket, err := WinningTicket(out.Module, ticketCount)
	if err != nil {
		return out, err
	}
	out.WinningTicket = ticket
	return out, nil
}

// WinningTicket maps a module in [0,100) onto [0, ticketCount-1].
func WinningTicket(module float64, ticketCount int64) (int64, error) {
	if ticketCount < 1 {
		return 0, ErrNoTickets
	}
	ticket := int64(math.Round(float64(ticketCount) * module / JackpotRange))
	// module close to 100 rounds up to ticketCount
	if ticket > ticketCount-1 {
		ticket = ticketCount - 1
	}
	if ticket < 0 {
		ticket = 0
	}
	return ticket, nil
}

// CrashMultiplier computes floor((1-houseEdge) * raw * 100) / 100 with raw = 1 + DeriveUniform,
// using integer arithmetic so truncation never favours the player. Never below 1.00.
func CrashMultiplier(serverSeed, publicSeed, roundID string, houseEdge float64) float64 {
	raw := UnitScale + uniformUnits(serverSeed, publicSeed, roundID)
	edge := EdgeBasisPoints(houseEdge)

	cents := (basisPoints - edge) * raw / (basisPoints * UnitScale / 100)
	if cents < 100 {
		cents = 100
	}
	return float64(cents) / 100
}

// EdgeBasisPoints rounds a house edge fraction up to whole basis points, clamped to [0, 10000].
func EdgeBasisPoints(houseEdge float64) uint64 {
	if math.IsNaN(houseEdge) || houseEdge <= 0 {
		return 0
	}
	if houseEdge >= 1 {
		return basisPoints
	}
	return uint64(math.Ceil(houseEdge*basisPoints - 1e-6))
}
