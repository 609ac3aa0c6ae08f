package server

import (
	"strconv"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/shopspring/decimal"

	"crashfair/internal/database"
	"crashfair/internal/fairness"
	"crashfair/internal/game"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	games := api.Group("/games/:game")
	games.Get("/round", s.currentRoundHandler)
	games.Get("/history", s.historyHandler)
	games.Post("/bet", s.placeBetHandler)
	games.Post("/cashout", s.cashoutHandler)

	api.Get("/rounds/:roundId", s.roundHandler)
	api.Get("/verify", s.verifyHandler)

	api.Get("/users/:userId/balance", s.getUserBalanceHandler)
	api.Post("/users/:userId/balance", s.setUserBalanceHandler)
	api.Get("/users/:userId/transactions", s.transactionsHandler)

	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{}
	for name, checker := range s.Health {
		health[name] = checker.Health()
	}
	health["game"] = fiber.Map{
		"status":            "running",
		"games":             gameNames(s.Registry.Types()),
		"connected_clients": s.Hub.GetClientCount(),
	}
	return c.JSON(health)
}

func (s *FiberServer) engine(c *fiber.Ctx) (game.GameEngine, error) {
	return s.Registry.Engine(game.GameType(c.Params("game")))
}

func (s *FiberServer) currentRoundHandler(c *fiber.Ctx) error {
	engine, err := s.engine(c)
	if err != nil {
		return errorJSON(c, err)
	}
	snap, ok := engine.CurrentRound()
	if !ok {
		return c.Status(404).JSON(fiber.Map{
			"error": "No active game round",
		})
	}
	return c.JSON(snap)
}

func (s *FiberServer) historyHandler(c *fiber.Ctx) error {
	engine, err := s.engine(c)
	if err != nil {
		return errorJSON(c, err)
	}
	limit := c.QueryInt("limit", 20)
	return c.JSON(fiber.Map{
		"game":   engine.GetType(),
		"rounds": engine.History(limit),
	})
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	engine, err := s.engine(c)
	if err != nil {
		return errorJSON(c, err)
	}

	var req game.BetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	resp, err := engine.PlaceBet(c.UserContext(), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(resp)
}

func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	engine, err := s.engine(c)
	if err != nil {
		return errorJSON(c, err)
	}
	cashier, ok := engine.(game.Cashier)
	if !ok {
		return c.Status(400).JSON(fiber.Map{
			"error": "game has no cashout",
		})
	}

	var req game.CashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	resp, err := cashier.Cashout(c.UserContext(), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(resp)
}

// roundHandler looks a settled round up in memory first, then in the archive.
func (s *FiberServer) roundHandler(c *fiber.Ctx) error {
	roundID := c.Params("roundId")
	for _, gameType := range s.Registry.Types() {
		engine, _ := s.Registry.Engine(gameType)
		for _, summary := range engine.History(0) {
			if summary.RoundID == roundID {
				return c.JSON(summary)
			}
		}
	}
	if s.Rounds == nil {
		return errorJSON(c, database.ErrRoundNotFound)
	}
	summary, err := s.Rounds.LoadRound(c.UserContext(), roundID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(summary)
}

func (s *FiberServer) verifyHandler(c *fiber.Ctx) error {
	proof := fairness.Proof{
		Game:        fairness.Game(c.Query("game")),
		RoundID:     c.Query("round_id"),
		ServerSeed:  c.Query("server_seed"),
		PublicSeed:  c.Query("public_seed"),
		TicketCount: int64(c.QueryInt("tickets", 0)),
		HouseEdge:   c.QueryFloat("house_edge", s.HouseEdge),
	}
	if proof.RoundID == "" || proof.ServerSeed == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "round_id and server_seed are required",
		})
	}
	proof.SeedHash = fairness.HashCommitment(proof.ServerSeed)

	out, err := fairness.Compute(proof)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"game":      proof.Game,
		"round_id":  proof.RoundID,
		"seed_hash": proof.SeedHash,
		"result":    out,
	})
}

func (s *FiberServer) getUserBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	balance, err := s.Balances.Balance(c.UserContext(), userID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": balance,
	})
}

// setUserBalanceHandler sets a user's balance (for testing/admin)
func (s *FiberServer) setUserBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")

	var body struct {
		Balance float64 `json:"balance"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	balance := decimal.NewFromFloat(body.Balance).Truncate(2)
	if err := s.Balances.SetBalance(c.UserContext(), userID, balance); err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": balance,
		"message": "Balance updated successfully",
	})
}

func (s *FiberServer) transactionsHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	limit, err := strconv.ParseInt(c.Query("limit", "50"), 10, 64)
	if err != nil || limit <= 0 {
		return c.Status(400).JSON(fiber.Map{
			"error": "limit must be a positive integer",
		})
	}
	txs, err := s.Balances.Transactions(c.UserContext(), userID, limit)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id":      userID,
		"transactions": txs,
	})
}
