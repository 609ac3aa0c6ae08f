package server

import (
	"context"
	"encoding/json"

	"github.com/gofiber/contrib/websocket"

	"crashfair/internal/game"
)

type clientMessage struct {
	Type        string  `json:"type"`
	Game        string  `json:"game"`
	Amount      float64 `json:"amount"`
	AutoCashout float64 `json:"auto_cashout"`
	Choice      string  `json:"choice"`
}

type replyMessage struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// gameWebSocketHandler streams every published snapshot and accepts bets and cashouts.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id", "anonymous")
	client := s.Hub.RegisterClient(conn, userID)
	defer s.Hub.UnregisterClient(client)

	for _, gameType := range s.Registry.Types() {
		engine, _ := s.Registry.Engine(gameType)
		if snap, ok := engine.CurrentRound(); ok {
			client.Send(game.WSMessage{Type: "initial_state", Data: snap})
		}
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			s.log.Debug().Err(err).Str("user", userID).Msg("[WS] read closed")
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.Send(replyMessage{Type: "error", Error: "invalid message"})
			continue
		}
		client.Send(s.handleClientMessage(userID, msg))
	}
}

func (s *FiberServer) handleClientMessage(userID string, msg clientMessage) replyMessage {
	ctx := context.Background()

	switch msg.Type {
	case "ping":
		return replyMessage{Type: "pong"}

	case "place_bet":
		gameType := game.GameType(msg.Game)
		if gameType == "" {
			gameType = game.GameTypeCrash
		}
		engine, err := s.Registry.Engine(gameType)
		if err != nil {
			return replyMessage{Type: "bet_result", Error: err.Error()}
		}
		resp, err := engine.PlaceBet(ctx, game.BetRequest{
			UserID:      userID,
			Amount:      msg.Amount,
			AutoCashout: msg.AutoCashout,
			Choice:      msg.Choice,
		})
		if err != nil {
			return replyMessage{Type: "bet_result", Error: err.Error()}
		}
		return replyMessage{Type: "bet_result", Data: resp}

	case "cashout":
		engine, err := s.Registry.Engine(game.GameTypeCrash)
		if err != nil {
			return replyMessage{Type: "cashout_result", Error: err.Error()}
		}
		cashier, ok := engine.(game.Cashier)
		if !ok {
			return replyMessage{Type: "cashout_result", Error: "game has no cashout"}
		}
		resp, err := cashier.Cashout(ctx, game.CashoutRequest{UserID: userID})
		if err != nil {
			return replyMessage{Type: "cashout_result", Error: err.Error()}
		}
		return replyMessage{Type: "cashout_result", Data: resp}

	default:
		return replyMessage{Type: "error", Error: "unknown message type"}
	}
}
