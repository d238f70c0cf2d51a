// handlers/ws.go - WebSocket transport and RPC dispatch
package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"quizlive/services"
)

const (
	// Send channel buffer size; a full buffer drops the message rather
	// than blocking the broadcaster.
	sendBufferSize = 256

	pingPeriod = 15 * time.Second
)

// SocketHub owns the websocket endpoint: it upgrades connections,
// registers their outbound half with the messenger and dispatches
// incoming operations to the orchestrator.
type SocketHub struct {
	orchestrator *services.Orchestrator
	messenger    *services.Messenger
}

func NewSocketHub(orchestrator *services.Orchestrator, messenger *services.Messenger) *SocketHub {
	return &SocketHub{orchestrator: orchestrator, messenger: messenger}
}

// wsClient is one live connection's transport state.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan services.Message
	done chan struct{}
}

// Send queues a message without blocking; a full buffer is a delivery
// failure the messenger logs and swallows.
func (c *wsClient) Send(msg services.Message) error {
	select {
	case c.send <- msg:
		return nil
	default:
		return fmt.Errorf("send buffer full for connection %s", c.id)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("⚠️ Write error for connection %s: %v", c.id, err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteJSON(services.Message{Type: "ping"}); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Upgrade is the pre-upgrade middleware: it resolves the caller's
// identity from a JWT (header or query token) and stashes it in locals.
// Unauthenticated callers get a fresh guest identity.
func (h *SocketHub) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	identity, username, isGuest := resolveIdentity(c)
	c.Locals("identity", identity)
	c.Locals("username", username)
	c.Locals("isGuest", isGuest)
	return c.Next()
}

// Handler returns the websocket endpoint handler.
func (h *SocketHub) Handler() fiber.Handler {
	return websocket.New(h.serve)
}

func (h *SocketHub) serve(conn *websocket.Conn) {
	connID := uuid.NewString()
	identity, _ := conn.Locals("identity").(string)
	username, _ := conn.Locals("username").(string)
	isGuest, _ := conn.Locals("isGuest").(bool)

	client := &wsClient{
		id:   connID,
		conn: conn,
		send: make(chan services.Message, sendBufferSize),
		done: make(chan struct{}),
	}

	h.messenger.Register(connID, client)
	go client.writePump()

	log.Printf("🎮 Connection opened: %s (identity: %s, guest: %v)", connID, identity, isGuest)

	client.Send(services.Message{Type: "connected", Payload: map[string]interface{}{
		"connection_id": connID,
		"identity":      identity,
		"username":      username,
		"is_guest":      isGuest,
	}})

	// Read loop blocks until the connection drops.
	for {
		var msg services.Message
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		h.dispatch(connID, identity, msg)
	}

	// Connection loss is an implicit event, not an RPC.
	h.messenger.Unregister(connID)
	h.orchestrator.HandleDisconnect(connID)
	close(client.done)
	close(client.send)

	log.Printf("🔌 Connection closed: %s", connID)
}

func (h *SocketHub) dispatch(connID, identity string, msg services.Message) {
	data := parsePayload(msg.Payload)

	switch msg.Type {
	case "createGameRoom":
		gameID := getUint(data, "gameId", getUint(data, "game_id", 0))
		autoShow := getBool(data, "autoShowResults", getBool(data, "auto_show_results", true))
		h.orchestrator.CreateRoom(connID, identity, gameID, autoShow)
	case "joinGame":
		roomCode := getString(data, "roomCode", getString(data, "room_code", ""))
		userName := getString(data, "userName", getString(data, "user_name", ""))
		playerID := getString(data, "playerId", getString(data, "player_id", ""))
		h.orchestrator.JoinGame(connID, roomCode, userName, playerID)
	case "startGame":
		h.orchestrator.StartGame(connID, getString(data, "roomCode", getString(data, "room_code", "")))
	case "submitAnswer":
		h.orchestrator.SubmitAnswer(connID, getUint(data, "answerId", getUint(data, "answer_id", 0)))
	case "submitMultipleAnswers":
		ids := getUintArray(data, "answerIds")
		if len(ids) == 0 {
			ids = getUintArray(data, "answer_ids")
		}
		h.orchestrator.SubmitMultipleAnswers(connID, ids)
	case "proceedToNextQuestion":
		h.orchestrator.ProceedToNextQuestion(connID, getString(data, "roomCode", getString(data, "room_code", "")))
	case "showFinalLeaderboard":
		h.orchestrator.ShowFinalLeaderboard(connID, getString(data, "roomCode", getString(data, "room_code", "")))
	case "kickPlayer":
		roomCode := getString(data, "roomCode", getString(data, "room_code", ""))
		playerID := getString(data, "playerId", getString(data, "player_id", ""))
		h.orchestrator.KickPlayer(connID, roomCode, playerID)
	case "ping":
		h.messenger.ToConnection(connID, "pong", map[string]interface{}{})
	default:
		log.Printf("⚠️ Unknown operation %q from connection %s", msg.Type, connID)
	}
}

// resolveIdentity parses a JWT from the Authorization header or the
// token query parameter. Absent or invalid tokens fall back to a guest
// identity; the engine only needs the string to be stable per caller.
func resolveIdentity(c *fiber.Ctx) (identity, username string, isGuest bool) {
	tokenString := ""
	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			tokenString = parts[1]
		}
	}
	if tokenString == "" {
		tokenString = c.Query("token")
	}

	if tokenString != "" {
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("invalid signing method")
			}
			return []byte(os.Getenv("JWT_SECRET")), nil
		})
		if err == nil && token.Valid {
			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				if sub, ok := claims["sub"].(string); ok && sub != "" {
					identity = sub
				}
				if name, ok := claims["username"].(string); ok {
					username = name
				}
				if guest, ok := claims["is_guest"].(bool); ok {
					isGuest = guest
				}
			}
		}
	}

	if identity == "" {
		identity = uuid.NewString()
		isGuest = true
	}
	return identity, username, isGuest
}

func parsePayload(payload interface{}) map[string]interface{} {
	if payload == nil {
		return make(map[string]interface{})
	}
	if data, ok := payload.(map[string]interface{}); ok {
		return data
	}
	if str, ok := payload.(string); ok {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(str), &data); err == nil {
			return data
		}
	}
	return make(map[string]interface{})
}

func getString(data map[string]interface{}, key, defaultVal string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultVal
}

func getBool(data map[string]interface{}, key string, defaultVal bool) bool {
	if val, ok := data[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return defaultVal
}

func getUint(data map[string]interface{}, key string, defaultVal uint) uint {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case float64:
			if v >= 0 {
				return uint(v)
			}
		case int:
			if v >= 0 {
				return uint(v)
			}
		}
	}
	return defaultVal
}

func getUintArray(data map[string]interface{}, key string) []uint {
	val, ok := data[key]
	if !ok {
		return nil
	}
	arr, ok := val.([]interface{})
	if !ok {
		return nil
	}
	result := make([]uint, 0, len(arr))
	for _, item := range arr {
		if v, ok := item.(float64); ok && v >= 0 {
			result = append(result, uint(v))
		}
	}
	return result
}
