package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Seednode/beatably/internal/catalog"
	"github.com/Seednode/beatably/internal/game"
	"github.com/Seednode/beatably/internal/session"
)

func testConfig() *Config {
	return &Config{
		playerTimeout:  time.Minute,
		sessionTimeout: time.Hour,
		winCondition:   10,
		deckSize:       80,
		catalogTimeout: time.Second,
	}
}

func testProvider() *catalog.Static {
	tracks := make([]game.Track, 0, 20)
	for i := 0; i < 20; i++ {
		tracks = append(tracks, game.Track{
			ID:         fmt.Sprintf("t%d", i),
			Title:      fmt.Sprintf("Song %d", i),
			Artist:     fmt.Sprintf("Artist %d", i),
			Year:       1960 + 3*i,
			MediaRef:   fmt.Sprintf("ref-%d", i),
			Popularity: 50,
		})
	}
	return &catalog.Static{Tracks: tracks}
}

// testClient fabricates a connected client without a real websocket; the hub
// only ever touches the send channel when handling commands.
func testClient(h *Hub, transientID string) *Client {
	c := &Client{
		send:        make(chan any, 32),
		transientID: transientID,
		playerID:    h.sessions.Bind(transientID),
	}
	h.clients[c] = true
	return c
}

// drain empties a client's send buffer and returns everything received.
func drain(c *Client) []any {
	out := []any{}
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func lastGameState(t *testing.T, c *Client) GameStateMessage {
	t.Helper()
	var last *GameStateMessage
	for _, msg := range drain(c) {
		if gs, ok := msg.(GameStateMessage); ok {
			m := gs
			last = &m
		}
	}
	if last == nil {
		t.Fatal("no game_state message received")
	}
	return *last
}

func TestNewRoomID(t *testing.T) {
	reg := newRoomRegistry(0, session.NewStore(), testProvider(), newMetrics())

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := reg.newRoomID()
		if len(id) != 8 {
			t.Fatalf("room id %q has length %d, want 8", id, len(id))
		}
		if seen[id] {
			t.Fatalf("room id %q repeated", id)
		}
		seen[id] = true
	}
}

func TestValidRoomID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"Ab3dEf9h", true},
		{"AAAAAAAA", true},
		{"", false},
		{"short", false},
		{"waytoolongcode", false},
		{"Ab3dEf9!", false},
		{"Ab3d Ef9", false},
	}

	for _, tc := range cases {
		if got := validRoomID(tc.id); got != tc.want {
			t.Errorf("validRoomID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestRegistryReusesHubs(t *testing.T) {
	cfg := testConfig()
	metrics := newMetrics()
	reg := newRoomRegistry(0, session.NewStore(), testProvider(), metrics)

	a := reg.getHub(cfg, "ROOMCODE")
	b := reg.getHub(cfg, "ROOMCODE")
	if a != b {
		t.Error("same room code should return the same hub")
	}

	reg.getHub(cfg, "OTHERONE")
	if got := testutil.ToFloat64(metrics.roomsOpen); got != 2 {
		t.Errorf("roomsOpen = %v, want 2", got)
	}
}

func TestRegistryReapsIdleRooms(t *testing.T) {
	cfg := testConfig()
	metrics := newMetrics()
	reg := newRoomRegistry(0, session.NewStore(), testProvider(), metrics)

	idle := reg.getHub(cfg, "IDLEROOM")
	reg.getHub(cfg, "LIVEROOM")

	c := testClient(idle, "cookie-idle")

	idle.mu.Lock()
	idle.lastActive = time.Now().Add(-2 * time.Hour)
	idle.mu.Unlock()

	reg.reap(time.Now().Add(-time.Hour))

	reg.mu.Lock()
	_, idleKept := reg.hubs["IDLEROOM"]
	_, liveKept := reg.hubs["LIVEROOM"]
	reg.mu.Unlock()

	if idleKept {
		t.Error("idle room should have been reaped")
	}
	if !liveKept {
		t.Error("active room should have survived the sweep")
	}
	if got := testutil.ToFloat64(metrics.roomsOpen); got != 1 {
		t.Errorf("roomsOpen = %v, want 1", got)
	}

	if _, open := <-c.send; open {
		t.Error("reaped room should close its client channels")
	}

	// A second sweep over the same cutoff finds nothing left to close.
	reg.reap(time.Now().Add(-time.Hour))
	if got := testutil.ToFloat64(metrics.roomsOpen); got != 1 {
		t.Errorf("roomsOpen after repeat sweep = %v, want 1", got)
	}
}

func TestReconnectClaimKeepsIdentity(t *testing.T) {
	cfg := testConfig()
	reg := newRoomRegistry(0, session.NewStore(), testProvider(), newMetrics())

	mux := httprouter.New()
	registerBeatably(cfg, "/beatably", mux, reg)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/beatably/ROOMCODE/ws"

	dial := func(cookie, query string) SessionInfoMessage {
		t.Helper()
		header := http.Header{"Cookie": {playerCookieName + "=" + cookie}}
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+query, header)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		var info SessionInfoMessage
		if err := conn.ReadJSON(&info); err != nil {
			t.Fatalf("read session info: %v", err)
		}
		if info.Type != "session_info" {
			t.Fatalf("first message type = %q, want session_info", info.Type)
		}
		return info
	}

	first := dial("old-cookie", "")
	if first.PlayerID == "" {
		t.Fatal("no player id issued on first connect")
	}

	// A fresh cookie claiming the old transient identity keeps the seat.
	claimed := dial("new-cookie", "?claim=old-cookie")
	if claimed.PlayerID != first.PlayerID {
		t.Errorf("claimed player id = %q, want %q", claimed.PlayerID, first.PlayerID)
	}

	// An unclaimable identity falls back to a fresh binding.
	fresh := dial("third-cookie", "?claim=never-seen")
	if fresh.PlayerID == first.PlayerID {
		t.Error("bogus claim must not inherit another player's identity")
	}
}

func TestLobbyJoinAndCollision(t *testing.T) {
	cfg := testConfig()
	hub := newHub("TESTROOM", session.NewStore(), testProvider(), newMetrics())

	alice := testClient(hub, "cookie-alice")
	bob := testClient(hub, "cookie-bob")

	hub.handleCommand(cfg, command{client: alice, msg: ClientMessage{Type: "join", Name: "Alice"}})
	hub.handleCommand(cfg, command{client: bob, msg: ClientMessage{Type: "join", Name: "alice"}})

	if len(hub.lobby) != 1 {
		t.Fatalf("lobby size = %d, want 1 (case-insensitive name collision)", len(hub.lobby))
	}

	found := false
	for _, msg := range drain(bob) {
		if sm, ok := msg.(SimpleMessage); ok && sm.Type == "collision" {
			found = true
		}
	}
	if !found {
		t.Error("colliding client should receive a collision message")
	}

	hub.handleCommand(cfg, command{client: bob, msg: ClientMessage{Type: "join", Name: "Bob"}})
	if len(hub.lobby) != 2 {
		t.Fatalf("lobby size = %d, want 2", len(hub.lobby))
	}
	if !hub.lobby[0].IsCreator || hub.lobby[1].IsCreator {
		t.Error("only the first join should be creator")
	}
}

func TestStartGame(t *testing.T) {
	cfg := testConfig()
	hub := newHub("TESTROOM", session.NewStore(), testProvider(), newMetrics())

	alice := testClient(hub, "cookie-alice")
	bob := testClient(hub, "cookie-bob")

	hub.handleCommand(cfg, command{client: alice, msg: ClientMessage{Type: "join", Name: "Alice"}})

	// Starting solo is refused.
	hub.handleCommand(cfg, command{client: alice, msg: ClientMessage{Type: "start_game"}})
	if hub.started {
		t.Fatal("game started with a single player")
	}

	hub.handleCommand(cfg, command{client: bob, msg: ClientMessage{Type: "join", Name: "Bob"}})

	// Only the creator may start.
	hub.handleCommand(cfg, command{client: bob, msg: ClientMessage{Type: "start_game"}})
	if hub.started {
		t.Fatal("game started by a non-creator")
	}

	hub.handleCommand(cfg, command{client: alice, msg: ClientMessage{Type: "start_game", WinCondition: 5}})
	if !hub.started {
		t.Fatal("creator could not start the game")
	}

	snap := lastGameState(t, bob)
	if snap.State.Phase != game.PhasePlayerTurn {
		t.Errorf("phase = %s, want %s", snap.State.Phase, game.PhasePlayerTurn)
	}
	if snap.State.WinCondition != 5 {
		t.Errorf("win condition = %d, want 5", snap.State.WinCondition)
	}
	if len(snap.State.Players) != 2 {
		t.Errorf("players = %d, want 2", len(snap.State.Players))
	}
}

func TestGameCommandsRouteIntoState(t *testing.T) {
	cfg := testConfig()
	hub := newHub("TESTROOM", session.NewStore(), testProvider(), newMetrics())

	alice := testClient(hub, "cookie-alice")
	bob := testClient(hub, "cookie-bob")

	hub.handleCommand(cfg, command{client: alice, msg: ClientMessage{Type: "join", Name: "Alice"}})
	hub.handleCommand(cfg, command{client: bob, msg: ClientMessage{Type: "join", Name: "Bob"}})
	hub.handleCommand(cfg, command{client: alice, msg: ClientMessage{Type: "start_game"}})
	drain(alice)
	drain(bob)

	snap := hub.state.Snapshot()
	activeClient := alice
	if snap.CurrentPlayerID == bob.playerID {
		activeClient = bob
	}

	// A command from the wrong player is rejected without a broadcast.
	inactive := alice
	if activeClient == alice {
		inactive = bob
	}
	idx := 0
	hub.handleCommand(cfg, command{client: inactive, msg: ClientMessage{Type: "propose_placement", Index: &idx}})

	rejected := false
	for _, msg := range drain(inactive) {
		if rm, ok := msg.(RejectedMessage); ok && rm.Kind == "not_current_player" {
			rejected = true
		}
	}
	if !rejected {
		t.Fatal("inactive player's placement should be rejected")
	}
	if len(drain(activeClient)) != 0 {
		t.Fatal("rejected commands must not broadcast")
	}

	// The active player's placement transitions to song-guess everywhere.
	end := len(snap.Timelines[snap.CurrentPlayerID])
	hub.handleCommand(cfg, command{client: activeClient, msg: ClientMessage{Type: "propose_placement", Index: &end}})

	got := lastGameState(t, inactive)
	if got.State.Phase != game.PhaseSongGuess {
		t.Errorf("phase = %s, want %s", got.State.Phase, game.PhaseSongGuess)
	}
}

func TestCommandFromUnboundTransientRejected(t *testing.T) {
	cfg := testConfig()
	hub := newHub("TESTROOM", session.NewStore(), testProvider(), newMetrics())

	alice := testClient(hub, "cookie-alice")
	bob := testClient(hub, "cookie-bob")
	hub.handleCommand(cfg, command{client: alice, msg: ClientMessage{Type: "join", Name: "Alice"}})
	hub.handleCommand(cfg, command{client: bob, msg: ClientMessage{Type: "join", Name: "Bob"}})
	hub.handleCommand(cfg, command{client: alice, msg: ClientMessage{Type: "start_game"}})

	ghost := &Client{send: make(chan any, 8), transientID: "never-bound", playerID: "nobody"}
	hub.clients[ghost] = true

	hub.handleCommand(cfg, command{client: ghost, msg: ClientMessage{Type: "continue"}})

	rejected := false
	for _, msg := range drain(ghost) {
		if rm, ok := msg.(RejectedMessage); ok && rm.Kind == "unknown_player" {
			rejected = true
		}
	}
	if !rejected {
		t.Error("unresolvable transport identity should be rejected")
	}
}
