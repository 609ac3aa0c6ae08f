package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shopspring/decimal"

	"crashfair/internal/cache"
	"crashfair/internal/commitment"
	"crashfair/internal/config"
	"crashfair/internal/database"
	"crashfair/internal/entropy"
	"crashfair/internal/game"
	"crashfair/internal/logger"
	"crashfair/internal/settlement"
	"crashfair/internal/wallet"
)

type Balances interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	SetBalance(ctx context.Context, userID string, amount decimal.Decimal) error
	Transactions(ctx context.Context, userID string, limit int64) ([]wallet.Transaction, error)
}

type RoundLookup interface {
	LoadRound(ctx context.Context, roundID string) (game.Summary, error)
}

type HealthChecker interface {
	Health() map[string]string
}

// Dependencies is everything the HTTP layer talks to.
type Dependencies struct {
	Registry *game.Registry
	Hub      *game.Hub
	Balances Balances
	Rounds   RoundLookup
	Health   map[string]HealthChecker
	Log      *logger.Logger

	// HouseEdge is what /verify assumes when the caller leaves house_edge out.
	HouseEdge float64
}

type FiberServer struct {
	*fiber.App
	Dependencies

	log      *logger.Logger
	cancel   context.CancelFunc
	closers  []func()
	settling *settlement.Dispatcher
}

// NewFiberServer builds the app and its routes without starting any engine.
func NewFiberServer(deps Dependencies) *FiberServer {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "crashfair",
			AppName:       "crashfair",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
			ErrorHandler:  errorHandler,
		}),
		Dependencies: deps,
		log:          deps.Log.With("server"),
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			// websocket upgrades and health probes are not rate limited
			return c.Path() == "/ws" || c.Path() == "/health"
		},
	}))

	server.RegisterFiberRoutes()
	return server
}

// New wires Postgres, Redis, the entropy provider and every game engine from cfg.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*FiberServer, error) {
	database.Configure(cfg.DB)
	db := database.New()

	redisService, err := cache.New(cfg, log.With("cache"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("redis is required for the wallet: %w", err)
	}

	source, closeSource, err := entropySource(ctx, cfg)
	if err != nil {
		redisService.Close()
		db.Close()
		return nil, err
	}

	repo := database.NewRepository(db.Pool())
	ledger := wallet.NewLedger(redisService.GetClient())
	history := cache.NewHistoryCache(redisService.GetClient(), cfg.HistoryLimit)

	commitments := commitment.NewManager(repo, log.With("commitment"))
	dispatcher := settlement.NewDispatcher(ledger, settlement.RetryPolicy{
		MaxRetries: cfg.SettlementMaxRetries,
		Interval:   cfg.SettlementRetryInterval,
	}, log.With("settlement"))
	hub := game.NewHub(log)

	deps := game.Deps{
		Commitments: commitments,
		Entropy:     entropy.NewResilient(source, cfg.EntropyTimeout, log.With("entropy")),
		Wallet:      ledger,
		Settler:     dispatcher,
		Publisher:   hub,
		Archives:    []game.Archive{repo, history},
		Sequence:    game.NewSequence(time.Now().UnixMilli()),
		Log:         log,
	}
	limits := game.Limits{
		HouseEdge:    cfg.HouseEdge,
		MinBet:       cfg.MinBet,
		MaxBet:       cfg.MaxBet,
		HistoryLimit: cfg.HistoryLimit,
	}

	registry := game.NewRegistry(log)
	registry.Register(game.NewCrashEngine(game.CrashConfig{
		BettingTime:     cfg.CrashBettingTime,
		TickInterval:    cfg.CrashTickInterval,
		InterRoundDelay: cfg.CrashInterRoundDelay,
		GrowthRate:      cfg.CrashGrowthRate,
		MaxProfit:       cfg.MaxProfit,
		Limits:          limits,
	}, deps))
	registry.Register(game.NewCoinflipEngine(game.RoundConfig{
		Window:          cfg.CoinflipWindow,
		TickInterval:    cfg.CrashTickInterval,
		InterRoundDelay: cfg.CrashInterRoundDelay,
		Limits:          limits,
	}, deps))
	registry.Register(game.NewJackpotEngine(game.RoundConfig{
		Window:          cfg.JackpotWindow,
		TickInterval:    cfg.CrashTickInterval,
		InterRoundDelay: cfg.CrashInterRoundDelay,
		Limits:          limits,
	}, deps))

	warmCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	registry.Warm(warmCtx, func(ctx context.Context, gameType game.GameType) ([]game.Summary, error) {
		return history.Recent(ctx, gameType, cfg.HistoryLimit)
	})
	cancel()

	server := NewFiberServer(Dependencies{
		Registry: registry,
		Hub:      hub,
		Balances: ledger,
		Rounds:   repo,
		Health: map[string]HealthChecker{
			"database": db,
			"cache":    redisService,
		},
		Log:       log,
		HouseEdge: cfg.HouseEdge,
	})
	server.settling = dispatcher
	server.closers = []func(){
		closeSource,
		commitments.Shutdown,
		func() { redisService.Close() },
		func() { db.Close() },
	}
	return server, nil
}

func entropySource(ctx context.Context, cfg config.Config) (entropy.Source, func(), error) {
	switch cfg.EntropyProvider {
	case config.EntropyEthereum:
		src, err := entropy.NewEthereumSource(ctx, cfg.EntropyRPCURL)
		if err != nil {
			return nil, nil, fmt.Errorf("ethereum entropy: %w", err)
		}
		return src, src.Close, nil
	case config.EntropyCometBFT:
		src, err := entropy.NewCometBFTSource(cfg.EntropyRPCURL)
		if err != nil {
			return nil, nil, fmt.Errorf("cometbft entropy: %w", err)
		}
		return src, func() {}, nil
	case config.EntropyLocal:
		return entropy.LocalSource{}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown entropy provider %q", cfg.EntropyProvider)
	}
}

// Start launches the websocket hub, the settlement tracker and every engine.
func (s *FiberServer) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	go s.Hub.Run(ctx)
	if s.settling != nil {
		go s.Registry.TrackSettlements(ctx, s.settling.Results())
	}
	if err := s.Registry.StartAll(ctx); err != nil {
		return err
	}
	s.log.Info().Strs("games", gameNames(s.Registry.Types())).Msg("[SERVER] all game engines started")
	return nil
}

// Shutdown stops the engines first so open rounds are refunded, then drains
// pending settlement retries and closes connections.
func (s *FiberServer) Shutdown() error {
	s.log.Info().Msg("[SERVER] Shutting down...")

	if err := s.Registry.StopAll(); err != nil {
		s.log.Error().Err(err).Msg("[SERVER] error stopping game engines")
	}
	if s.settling != nil {
		s.settling.Wait()
	}
	if s.cancel != nil {
		s.cancel()
	}
	for _, closeFn := range s.closers {
		closeFn()
	}
	return nil
}

func gameNames(types []game.GameType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}
