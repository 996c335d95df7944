package server_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-uno-game-server/internal/auth"
	"github.com/koopa0/system-design/14-uno-game-server/internal/card"
	"github.com/koopa0/system-design/14-uno-game-server/internal/game"
	"github.com/koopa0/system-design/14-uno-game-server/internal/gateway"
	"github.com/koopa0/system-design/14-uno-game-server/internal/server"
	"github.com/koopa0/system-design/14-uno-game-server/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newRouter 建立完整的伺服器；牌堆不洗牌，兩人局時
// 房主拿 red 0-6、第二位拿 red 1-7，起始牌 red 7，房主先出
func newRouter(t *testing.T) (http.Handler, *server.Hub) {
	t.Helper()

	logger := testLogger()
	hub := server.NewHub(logger)
	gw := gateway.New(storage.NewMemory(), hub, logger,
		gateway.WithSessionOptions(func() []game.Option {
			return []game.Option{game.WithDeck(card.NewDeck(card.StandardCards()))}
		}))
	issuer, err := auth.NewIssuer("test-secret", "uno-test", time.Hour)
	require.NoError(t, err)

	t.Cleanup(hub.Stop)
	return server.New(gw, hub, issuer, logger).Routes(), hub
}

type response struct {
	status int
	body   map[string]any
}

func do(t *testing.T, router http.Handler, method, path, token string, body any) response {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return response{status: w.Code, body: resp}
}

// member 建立或加入房間後拿到的身分
type member struct {
	code  string
	id    string
	token string
}

func create(t *testing.T, router http.Handler, name string) member {
	t.Helper()
	resp := do(t, router, http.MethodPost, "/api/v1/rooms", "", map[string]string{"player_name": name})
	require.Equal(t, http.StatusCreated, resp.status, resp.body)
	return member{
		code:  resp.body["room_code"].(string),
		id:    resp.body["player_id"].(string),
		token: resp.body["token"].(string),
	}
}

func join(t *testing.T, router http.Handler, code, name string) member {
	t.Helper()
	resp := do(t, router, http.MethodPost, "/api/v1/rooms/"+code+"/join", "", map[string]string{"player_name": name})
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	return member{
		code:  resp.body["room_code"].(string),
		id:    resp.body["player_id"].(string),
		token: resp.body["token"].(string),
	}
}

// TestServer_CreateRoom 測試創建房間 API
func TestServer_CreateRoom(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		validate       func(t *testing.T, resp map[string]any)
	}{
		{
			name:           "create room successfully",
			requestBody:    map[string]string{"player_name": "Alice"},
			expectedStatus: http.StatusCreated,
			validate: func(t *testing.T, resp map[string]any) {
				assert.Len(t, resp["room_code"], 6)
				assert.NotEmpty(t, resp["player_id"])
				assert.NotEmpty(t, resp["token"])
				room := resp["room"].(map[string]any)
				assert.Equal(t, "waiting", room["phase"])
				assert.Equal(t, resp["player_id"], room["host_id"])
				assert.Len(t, room["players"], 1)
			},
		},
		{
			name:           "empty name",
			requestBody:    map[string]string{"player_name": "   "},
			expectedStatus: http.StatusBadRequest,
			validate: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, "invalid_name", resp["code"])
			},
		},
		{
			name:           "malformed body",
			requestBody:    "{not json",
			expectedStatus: http.StatusBadRequest,
			validate: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, "bad_request", resp["code"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newRouter(t)
			resp := do(t, router, http.MethodPost, "/api/v1/rooms", "", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, resp.status)
			tt.validate(t, resp.body)
		})
	}
}

// TestServer_JoinRoom 測試加入房間的錯誤對應
func TestServer_JoinRoom(t *testing.T) {
	router, _ := newRouter(t)
	host := create(t, router, "Alice")

	bob := join(t, router, strings.ToLower(host.code), "Bob")
	assert.Equal(t, host.code, bob.code, "codes are case-insensitive")
	join(t, router, host.code, "Carol")
	join(t, router, host.code, "Dave")

	tests := []struct {
		name           string
		code           string
		expectedStatus int
		expectedCode   string
	}{
		{"unknown room", "ZZZZZZ", http.StatusNotFound, "room_not_found"},
		{"room full", host.code, http.StatusConflict, "room_full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, router, http.MethodPost, "/api/v1/rooms/"+tt.code+"/join", "", map[string]string{"player_name": "Eve"})
			assert.Equal(t, tt.expectedStatus, resp.status)
			assert.Equal(t, tt.expectedCode, resp.body["code"])
		})
	}

	t.Run("room in game", func(t *testing.T) {
		other := create(t, router, "Frank")
		join(t, router, other.code, "Grace")
		resp := do(t, router, http.MethodPost, "/api/v1/rooms/"+other.code+"/start", other.token, nil)
		require.Equal(t, http.StatusOK, resp.status)

		resp = do(t, router, http.MethodPost, "/api/v1/rooms/"+other.code+"/join", "", map[string]string{"player_name": "Heidi"})
		assert.Equal(t, http.StatusConflict, resp.status)
		assert.Equal(t, "room_in_game", resp.body["code"])
	})
}

// TestServer_Authorization 測試 token 與房主權限
func TestServer_Authorization(t *testing.T) {
	router, _ := newRouter(t)
	host := create(t, router, "Alice")
	guest := join(t, router, host.code, "Bob")
	other := create(t, router, "Mallory")

	start := "/api/v1/rooms/" + host.code + "/start"

	resp := do(t, router, http.MethodPost, start, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status, "missing token")

	resp = do(t, router, http.MethodPost, start, "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status, "invalid token")

	resp = do(t, router, http.MethodPost, start, other.token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status, "token for another room")

	resp = do(t, router, http.MethodPost, start, guest.token, nil)
	assert.Equal(t, http.StatusForbidden, resp.status)
	assert.Equal(t, "not_host", resp.body["code"])

	resp = do(t, router, http.MethodGet, "/api/v1/rooms/"+host.code+"/game", host.token, nil)
	assert.Equal(t, http.StatusConflict, resp.status)
	assert.Equal(t, "not_in_game", resp.body["code"])

	resp = do(t, router, http.MethodPost, start, host.token, nil)
	require.Equal(t, http.StatusOK, resp.status)

	resp = do(t, router, http.MethodPost, start, host.token, nil)
	assert.Equal(t, http.StatusConflict, resp.status)
	assert.Equal(t, "room_in_game", resp.body["code"])

	resp = do(t, router, http.MethodPost, "/api/v1/rooms/"+host.code+"/reset", host.token, nil)
	assert.Equal(t, http.StatusConflict, resp.status)

	resp = do(t, router, http.MethodGet, "/api/v1/rooms/"+host.code+"/game", guest.token, nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Len(t, resp.body["hand"], game.HandSize)
	assert.Equal(t, host.id, resp.body["current_player_id"])
}

// TestServer_KickAndLeave 測試踢人與離開
func TestServer_KickAndLeave(t *testing.T) {
	router, _ := newRouter(t)
	host := create(t, router, "Alice")
	guest := join(t, router, host.code, "Bob")
	kick := "/api/v1/rooms/" + host.code + "/kick"

	resp := do(t, router, http.MethodPost, kick, host.token, map[string]string{"target_id": host.id})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, "cannot_kick_self", resp.body["code"])

	resp = do(t, router, http.MethodPost, kick, host.token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.status)

	resp = do(t, router, http.MethodPost, kick, guest.token, map[string]string{"target_id": host.id})
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = do(t, router, http.MethodPost, kick, host.token, map[string]string{"target_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.status)
	assert.Equal(t, "player_not_found", resp.body["code"])

	resp = do(t, router, http.MethodPost, kick, host.token, map[string]string{"target_id": guest.id})
	require.Equal(t, http.StatusOK, resp.status)

	resp = do(t, router, http.MethodGet, "/api/v1/rooms/"+host.code, "", nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Len(t, resp.body["players"], 1)

	resp = do(t, router, http.MethodPost, "/api/v1/rooms/"+host.code+"/leave", guest.token, nil)
	assert.Equal(t, http.StatusNotFound, resp.status, "kicked player is no longer a member")

	resp = do(t, router, http.MethodPost, "/api/v1/rooms/"+host.code+"/leave", host.token, nil)
	require.Equal(t, http.StatusOK, resp.status)

	resp = do(t, router, http.MethodGet, "/api/v1/rooms/"+host.code, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.status, "last member leaving destroys the room")
}

func TestServer_HealthAndStats(t *testing.T) {
	router, _ := newRouter(t)
	host := create(t, router, "Alice")
	join(t, router, host.code, "Bob")

	resp := do(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "healthy", resp.body["status"])

	resp = do(t, router, http.MethodGet, "/stats", "", nil)
	assert.Equal(t, http.StatusOK, resp.status)
	assert.EqualValues(t, 1, resp.body["total_rooms"])
	assert.EqualValues(t, 2, resp.body["total_players"])
	assert.EqualValues(t, 0, resp.body["websocket_connections"])
	assert.EqualValues(t, 0, resp.body["stalest_pong_ms"])
}

// wsEvent 收到的事件
type wsEvent struct {
	Type string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server, m member) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/rooms/" + m.code + "?token=" + m.token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil 讀到第一個符合的事件為止，跳過其他事件
func readUntil(t *testing.T, conn *websocket.Conn, typ string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var ev wsEvent
		require.NoError(t, conn.ReadJSON(&ev), "waiting for %s", typ)
		if ev.Type == typ && (match == nil || match(ev.Data)) {
			return ev.Data
		}
	}
}

func errorCode(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	var payload gateway.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, conn, gateway.EventError, nil), &payload))
	return payload.Code
}

func gameView(t *testing.T, data json.RawMessage) game.GameView {
	t.Helper()
	var view game.GameView
	require.NoError(t, json.Unmarshal(data, &view))
	return view
}

// TestServer_WebSocketRoundTrip 從連線、開局、出牌到斷線的完整流程
func TestServer_WebSocketRoundTrip(t *testing.T) {
	router, hub := newRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	host := create(t, router, "Alice")
	guest := join(t, router, host.code, "Bob")

	hc := dial(t, srv, host)
	gc := dial(t, srv, guest)
	readUntil(t, hc, gateway.EventRoomUpdated, connected(t, guest.id, true))
	assert.Equal(t, map[string]int{host.code: 2}, hub.ConnectionCount())
	assert.Greater(t, hub.StalestPong(), time.Duration(0))
	assert.Less(t, hub.StalestPong(), time.Minute, "fresh connections count as just ponged")

	stats := do(t, router, http.MethodGet, "/stats", "", nil)
	assert.EqualValues(t, 2, stats.body["websocket_connections"])
	assert.Contains(t, stats.body, "stalest_pong_ms")

	t.Run("protocol errors go to the sender only", func(t *testing.T) {
		send(t, hc, map[string]string{"action": "ping"})
		readUntil(t, hc, gateway.EventPong, nil)

		require.NoError(t, hc.WriteMessage(websocket.TextMessage, []byte("not json")))
		assert.Equal(t, "bad_request", errorCode(t, hc))

		send(t, hc, map[string]string{"action": "fly"})
		assert.Equal(t, "unknown_action", errorCode(t, hc))

		send(t, gc, map[string]string{"action": "start_game"})
		assert.Equal(t, "not_host", errorCode(t, gc))
	})

	send(t, hc, map[string]string{"action": "start_game"})

	hostView := gameView(t, readUntil(t, hc, gateway.EventGameState, nil))
	guestView := gameView(t, readUntil(t, gc, gateway.EventGameState, nil))
	assert.Contains(t, hostView.Hand, card.Card{Color: card.Red, Rank: card.Zero})
	assert.NotContains(t, guestView.Hand, card.Card{Color: card.Red, Rank: card.Zero})
	assert.Equal(t, host.id, hostView.CurrentPlayerID)
	readUntil(t, hc, gateway.EventYourTurn, nil)

	red6 := card.Card{Color: card.Red, Rank: card.Six}

	send(t, gc, map[string]any{"action": "play_card", "card": card.Card{Color: card.Red, Rank: card.One}})
	assert.Equal(t, "not_your_turn", errorCode(t, gc))

	send(t, hc, map[string]any{"action": "play_card", "card": map[string]string{"color": "wild", "rank": "7"}})
	assert.Equal(t, "invalid_card", errorCode(t, hc))

	send(t, hc, map[string]any{"action": "play_card", "card": red6})
	turn := readUntil(t, gc, gateway.EventYourTurn, nil)
	var payload gateway.TurnPayload
	require.NoError(t, json.Unmarshal(turn, &payload))
	assert.Equal(t, guest.id, payload.PlayerID)

	send(t, hc, map[string]string{"action": "get_game"})
	view := gameView(t, readUntil(t, hc, gateway.EventGameState, func(data json.RawMessage) bool {
		return gameView(t, data).CurrentPlayerID == guest.id
	}))
	assert.Equal(t, red6, view.DiscardTop)
	assert.Len(t, view.Hand, game.HandSize-1)

	require.NoError(t, gc.Close())
	readUntil(t, hc, gateway.EventRoomUpdated, connected(t, guest.id, false))
}

// connected 比對 room_updated 裡某位玩家的連線狀態
func connected(t *testing.T, playerID string, want bool) func(json.RawMessage) bool {
	return func(data json.RawMessage) bool {
		var room struct {
			Players []game.SeatView `json:"players"`
		}
		require.NoError(t, json.Unmarshal(data, &room))
		for _, p := range room.Players {
			if p.PlayerID == playerID {
				return p.Connected == want
			}
		}
		return false
	}
}

// drain 讀到連線被伺服器關閉為止
func drain(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatal("connection was not closed by the server")
			}
			return
		}
	}
}

// TestServer_WebSocketRejects 握手階段的驗證
func TestServer_WebSocketRejects(t *testing.T) {
	router, _ := newRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	host := create(t, router, "Alice")
	other := create(t, router, "Mallory")
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/rooms/"

	tests := []struct {
		name           string
		url            string
		expectedStatus int
	}{
		{"missing token", base + host.code, http.StatusUnauthorized},
		{"token for another room", base + host.code + "?token=" + other.token, http.StatusUnauthorized},
		{"unknown room", base + "ZZZZZZ?token=" + host.token, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tt.url, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

// TestServer_WebSocketKickAndReconnect 被踢的連線收到通知後關閉；重連取代舊連線
func TestServer_WebSocketKickAndReconnect(t *testing.T) {
	router, hub := newRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	host := create(t, router, "Alice")
	guest := join(t, router, host.code, "Bob")
	hc := dial(t, srv, host)
	readUntil(t, hc, gateway.EventRoomUpdated, connected(t, host.id, true))

	first := dial(t, srv, guest)
	readUntil(t, first, gateway.EventRoomUpdated, nil)
	second := dial(t, srv, guest)
	readUntil(t, second, gateway.EventRoomUpdated, nil)

	drain(t, first)
	assert.Equal(t, map[string]int{host.code: 2}, hub.ConnectionCount())

	send(t, hc, map[string]string{"action": "kick_player", "target_id": guest.id})
	data := readUntil(t, second, gateway.EventKicked, nil)
	var kicked gateway.KickedPayload
	require.NoError(t, json.Unmarshal(data, &kicked))
	assert.Equal(t, host.code, kicked.RoomCode)

	drain(t, second)
	assert.Equal(t, map[string]int{host.code: 1}, hub.ConnectionCount())

	send(t, hc, map[string]string{"action": "leave_room"})
	readUntil(t, hc, gateway.EventRoomClosed, nil)
	drain(t, hc)
	assert.Empty(t, hub.ConnectionCount())
}
