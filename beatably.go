// Beatably music timeline game
//
// Players take turns placing the current song into their own chronological
// timeline, then guessing its title and artist for bonus tokens. Other
// players holding tokens may challenge a placement and claim the card by
// proposing a better position. First player to reach the configured score at
// the end of a round wins; an exhausted deck ends the game immediately with
// the current leader.
//
// Features:
// - WebSockets per room code: /path/:gameid and /path/:gameid/ws
// - Rooms are isolated hub goroutines; all commands for a room are processed
//   one at a time in arrival order
// - Players identified by cookie, mapped to stable server-issued player ids
//   so reconnects keep timeline/score association
// - First join becomes the room creator and starts the game
// - Candidate decks fetched from the catalog service before game start
// - Rooms auto-reaped after configurable idle timeout
// - Random 8-char room codes via crypto/rand, with server-side collision check
// - In-browser QR button to share the current room, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/beatably/internal/catalog"
	"github.com/Seednode/beatably/internal/game"
	"github.com/Seednode/beatably/internal/session"
)

// ClientMessage covers every inbound command.
type ClientMessage struct {
	Type         string   `json:"type"`
	Name         string   `json:"name,omitempty"`           // join
	Index        *int     `json:"index,omitempty"`          // propose_placement / submit_challenge_placement
	Title        string   `json:"title,omitempty"`          // submit_guess
	Artist       string   `json:"artist,omitempty"`         // submit_guess
	Action       string   `json:"action,omitempty"`         // use_token
	TargetID     string   `json:"target_id,omitempty"`      // use_token (steal_token)
	WinCondition int      `json:"win_condition,omitempty"`  // start_game
	Genres       []string `json:"genres,omitempty"`         // start_game
	YearMin      int      `json:"year_min,omitempty"`       // start_game
	YearMax      int      `json:"year_max,omitempty"`       // start_game
	Markets      []string `json:"markets,omitempty"`        // start_game
	MinPop       int      `json:"min_popularity,omitempty"` // start_game
}

// SessionInfoMessage is sent immediately on connect so the client knows what
// identity this cookie resolves to and whether a game is already running.
type SessionInfoMessage struct {
	Type      string `json:"type"` // "session_info"
	PlayerID  string `json:"player_id"`
	IsCreator bool   `json:"is_creator"`
	Rejoined  bool   `json:"rejoined"`
	Started   bool   `json:"started"`
}

// LobbyPlayer is one seat in the pre-game lobby.
type LobbyPlayer struct {
	PlayerID  string `json:"player_id"`
	Name      string `json:"name"`
	IsCreator bool   `json:"is_creator"`
}

// LobbyStateMessage broadcasts the lobby roster before the game starts.
type LobbyStateMessage struct {
	Type    string        `json:"type"` // "lobby_state"
	Players []LobbyPlayer `json:"players"`
	Started bool          `json:"started"`
}

// GameStateMessage broadcasts a full snapshot after every accepted transition.
type GameStateMessage struct {
	Type  string        `json:"type"` // "game_state"
	State game.Snapshot `json:"state"`
}

// RejectedMessage is sent only to the offending client; game state never
// explains rejections beyond the error kind.
type RejectedMessage struct {
	Type string `json:"type"` // "rejected"
	Kind string `json:"kind"`
}

// SimpleMessage is for generic notifications ("room_closed", etc.)
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Client struct {
	conn        *websocket.Conn
	send        chan any
	transientID string
	playerID    string
}

type command struct {
	client *Client
	msg    ClientMessage
}

// Hub owns one room. The run loop is the only goroutine that touches lobby
// and game state, so every transition sees commands in arrival order with no
// overlapping mutation.
type Hub struct {
	id      string
	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	commands chan command

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time

	lobby   []LobbyPlayer
	started bool
	state   *game.State

	sessions *session.Store
	provider catalog.Provider
	metrics  *serverMetrics
}

func newHub(gameID string, sessions *session.Store, provider catalog.Provider, metrics *serverMetrics) *Hub {
	now := time.Now()
	return &Hub{
		id:         gameID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		commands:   make(chan command),
		createdAt:  now,
		lastActive: now,
		sessions:   sessions,
		provider:   provider,
		metrics:    metrics,
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.clients[c] = true

			isCreator := false
			rejoined := false
			for _, lp := range h.lobby {
				if lp.PlayerID == c.playerID {
					rejoined = true
					isCreator = lp.IsCreator
					break
				}
			}

			c.send <- SessionInfoMessage{
				Type:      "session_info",
				PlayerID:  c.playerID,
				IsCreator: isCreator,
				Rejoined:  rejoined,
				Started:   h.started,
			}

			// A reconnecting player gets the state it missed right away.
			if h.started {
				c.send <- GameStateMessage{Type: "game_state", State: h.state.Snapshot()}
			} else {
				c.send <- h.lobbyMessageLocked()
			}
			h.mu.Unlock()

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			playerID := c.playerID
			started := h.started
			h.mu.Unlock()

			// Seated players in a running game keep their seat; only idle
			// lobby entries are reaped.
			if playerID != "" && !started {
				go h.scheduleRemoval(cfg, playerID, cfg.playerTimeout)
			}

		case cmd := <-h.commands:
			h.handleCommand(cfg, cmd)
		}
	}
}

func (h *Hub) lobbyMessageLocked() LobbyStateMessage {
	players := make([]LobbyPlayer, len(h.lobby))
	copy(players, h.lobby)
	return LobbyStateMessage{
		Type:    "lobby_state",
		Players: players,
		Started: h.started,
	}
}

func (h *Hub) broadcastLocked(msg any) {
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *Hub) replyLocked(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

// handleCommand validates and dispatches one inbound command. Rejected
// commands mutate nothing and are answered only to the sender; accepted ones
// are followed by a snapshot broadcast to the whole room.
func (h *Hub) handleCommand(cfg *Config, cmd command) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	c := cmd.client
	msg := cmd.msg

	var err error
	switch msg.Type {
	case "join":
		err = h.handleJoinLocked(cfg, c, msg)
	case "start_game":
		err = h.handleStartLocked(cfg, c, msg)
	case "propose_placement":
		err = h.gameCommandLocked(cfg, c, func() error {
			if msg.Index == nil {
				return game.ErrBadIndex
			}
			return h.state.ProposePlacement(c.playerID, *msg.Index)
		})
	case "submit_guess":
		err = h.gameCommandLocked(cfg, c, func() error {
			return h.state.SubmitGuess(c.playerID, msg.Title, msg.Artist)
		})
	case "skip_guess":
		err = h.gameCommandLocked(cfg, c, func() error {
			return h.state.SkipGuess(c.playerID)
		})
	case "pass_challenge_window":
		err = h.gameCommandLocked(cfg, c, func() error {
			return h.state.PassChallengeWindow(c.playerID)
		})
	case "initiate_challenge":
		err = h.gameCommandLocked(cfg, c, func() error {
			return h.state.InitiateChallenge(c.playerID)
		})
	case "submit_challenge_placement":
		err = h.gameCommandLocked(cfg, c, func() error {
			if msg.Index == nil {
				return game.ErrBadIndex
			}
			return h.state.SubmitChallengePlacement(c.playerID, *msg.Index)
		})
	case "continue":
		err = h.gameCommandLocked(cfg, c, func() error {
			return h.state.Continue(c.playerID)
		})
	case "use_token":
		err = h.gameCommandLocked(cfg, c, func() error {
			return h.state.UseTokenAction(c.playerID, game.TokenAction(msg.Action), msg.TargetID)
		})
	default:
		// ignore unknown types
		return
	}

	h.metrics.countCommand(msg.Type, err)
}

// gameCommandLocked runs one state-machine transition and broadcasts the
// resulting snapshot on success.
func (h *Hub) gameCommandLocked(cfg *Config, c *Client, fn func() error) error {
	if !h.started {
		h.replyLocked(c, RejectedMessage{Type: "rejected", Kind: "invalid_phase"})
		return game.ErrInvalidPhase
	}
	if _, ok := h.sessions.Resolve(c.transientID); !ok {
		h.replyLocked(c, RejectedMessage{Type: "rejected", Kind: "unknown_player"})
		return game.ErrUnknownPlayer
	}

	wasOver := h.state.Phase() == game.PhaseGameOver

	if err := fn(); err != nil {
		h.replyLocked(c, RejectedMessage{Type: "rejected", Kind: errorKind(err)})
		return err
	}

	if !wasOver && h.state.Phase() == game.PhaseGameOver {
		h.metrics.gamesFinished.Inc()
		if w := h.state.Winner(); w != nil {
			logf(cfg, "GAMES: %q won %s with score %d", w.Name, h.id, w.Score)
		}
	}

	h.broadcastLocked(GameStateMessage{Type: "game_state", State: h.state.Snapshot()})
	return nil
}

func (h *Hub) handleJoinLocked(cfg *Config, c *Client, msg ClientMessage) error {
	name := strings.TrimSpace(msg.Name)
	if name == "" || c.playerID == "" {
		return errors.New("join requires a name")
	}
	if h.started {
		h.replyLocked(c, RejectedMessage{Type: "rejected", Kind: "invalid_phase"})
		return game.ErrInvalidPhase
	}

	for i := range h.lobby {
		if h.lobby[i].PlayerID == c.playerID {
			h.lobby[i].Name = name
			h.broadcastLocked(h.lobbyMessageLocked())
			return nil
		}
	}

	for _, lp := range h.lobby {
		if strings.EqualFold(lp.Name, name) {
			h.replyLocked(c, SimpleMessage{
				Type:    "collision",
				Message: "That name is already taken. Please choose a different name.",
			})
			return errors.New("name collision")
		}
	}

	h.lobby = append(h.lobby, LobbyPlayer{
		PlayerID:  c.playerID,
		Name:      name,
		IsCreator: len(h.lobby) == 0,
	})
	logf(cfg, "GAMES: Player %q joined %s", name, h.id)

	h.broadcastLocked(h.lobbyMessageLocked())
	return nil
}

func (h *Hub) handleStartLocked(cfg *Config, c *Client, msg ClientMessage) error {
	if h.started {
		h.replyLocked(c, RejectedMessage{Type: "rejected", Kind: "invalid_phase"})
		return game.ErrInvalidPhase
	}

	creator := false
	for _, lp := range h.lobby {
		if lp.PlayerID == c.playerID && lp.IsCreator {
			creator = true
			break
		}
	}
	if !creator {
		h.replyLocked(c, RejectedMessage{Type: "rejected", Kind: "not_current_player"})
		return game.ErrNotCurrentPlayer
	}
	if len(h.lobby) < 2 {
		h.replyLocked(c, SimpleMessage{
			Type:    "start_failed",
			Message: "At least two players are needed to start.",
		})
		return errors.New("not enough players")
	}

	winCondition := msg.WinCondition
	if winCondition == 0 {
		winCondition = cfg.winCondition
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.catalogTimeout)
	defer cancel()

	candidates, err := h.provider.FetchCandidateDeck(ctx, catalog.Filters{
		Genres:          msg.Genres,
		YearMin:         msg.YearMin,
		YearMax:         msg.YearMax,
		Markets:         msg.Markets,
		DifficultyFloor: msg.MinPop,
		Limit:           cfg.deckSize,
	})
	if err != nil {
		logf(cfg, "GAMES: Deck fetch failed for %s: %v", h.id, err)
		h.replyLocked(c, SimpleMessage{
			Type:    "start_failed",
			Message: "Could not fetch a song deck for those filters.",
		})
		return err
	}

	shuffleTracks(candidates)

	seats := make([]game.Seed, 0, len(h.lobby))
	for _, lp := range h.lobby {
		seats = append(seats, game.Seed{
			ID:        lp.PlayerID,
			Name:      lp.Name,
			IsCreator: lp.IsCreator,
		})
	}

	state, err := game.NewState(seats, candidates, winCondition)
	if err != nil {
		h.replyLocked(c, SimpleMessage{
			Type:    "start_failed",
			Message: "Could not start the game.",
		})
		return err
	}

	h.state = state
	h.started = true
	h.metrics.gamesStarted.Inc()
	logf(cfg, "GAMES: Started %s with %d players, win condition %d", h.id, len(seats), winCondition)

	h.broadcastLocked(GameStateMessage{Type: "game_state", State: h.state.Snapshot()})
	return nil
}

// shuffleTracks is a Fisher-Yates shuffle using crypto/rand.
func shuffleTracks(tracks []game.Track) {
	for i := len(tracks) - 1; i > 0; i-- {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			continue
		}
		j := int(b[0]) % (i + 1)
		tracks[i], tracks[j] = tracks[j], tracks[i]
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, game.ErrInvalidPhase):
		return "invalid_phase"
	case errors.Is(err, game.ErrNotCurrentPlayer):
		return "not_current_player"
	case errors.Is(err, game.ErrUnknownPlayer):
		return "unknown_player"
	case errors.Is(err, game.ErrInsufficientTokens):
		return "insufficient_tokens"
	case errors.Is(err, game.ErrBadIndex):
		return "bad_index"
	case errors.Is(err, game.ErrBadAction):
		return "bad_action"
	default:
		return "rejected"
	}
}

// scheduleRemoval waits for d, and if no client with this playerID has
// reconnected, removes the lobby entry and broadcasts the updated roster.
func (h *Hub) scheduleRemoval(cfg *Config, playerID string, d time.Duration) {
	time.Sleep(d)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return
	}

	for client := range h.clients {
		if client.playerID == playerID {
			return
		}
	}

	dst := h.lobby[:0]
	changed := false
	for _, lp := range h.lobby {
		if lp.PlayerID == playerID {
			changed = true
			continue
		}
		dst = append(dst, lp)
	}
	h.lobby = dst

	if !changed {
		return
	}

	// Promote the next seat if the creator left.
	hasCreator := false
	for _, lp := range h.lobby {
		if lp.IsCreator {
			hasCreator = true
			break
		}
	}
	if !hasCreator && len(h.lobby) > 0 {
		h.lobby[0].IsCreator = true
	}

	h.lastActive = time.Now()
	logf(cfg, "GAMES: Removed idle player from %s", h.id)

	h.broadcastLocked(h.lobbyMessageLocked())
}

// closeAll disconnects all clients of this hub (used by reaper).
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		delete(h.clients, c)
	}
}

var errUnknownRoom = errors.New("unknown room")

// validRoomID reports whether id has the shape newRoomID issues. Codes of
// valid shape are created on demand so shared links survive a reaped room;
// anything else is rejected before a hub exists for it.
func validRoomID(id string) bool {
	if len(id) != 8 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "beatably_id"

func getOrSetTransientID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// RoomRegistry holds a set of hubs keyed by room code, so each $path/$gameid
// is its own isolated session. It is passed by reference wherever it is
// needed; nothing in this package holds one in a global.
type RoomRegistry struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration

	sessions *session.Store
	provider catalog.Provider
	metrics  *serverMetrics
}

func newRoomRegistry(idleTimeout time.Duration, sessions *session.Store, provider catalog.Provider, metrics *serverMetrics) *RoomRegistry {
	reg := &RoomRegistry{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
		sessions:    sessions,
		provider:    provider,
		metrics:     metrics,
	}
	if idleTimeout > 0 {
		go reg.reaperLoop()
	}
	return reg
}

func (reg *RoomRegistry) getHub(cfg *Config, gameID string) *Hub {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if hub, ok := reg.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(gameID, reg.sessions, reg.provider, reg.metrics)
	reg.hubs[gameID] = hub
	reg.metrics.roomsOpen.Set(float64(len(reg.hubs)))
	go hub.run(cfg)
	return hub
}

// newRoomID generates a crypto-random room code and ensures it doesn't
// collide with existing rooms.
func (reg *RoomRegistry) newRoomID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		reg.mu.Lock()
		_, exists := reg.hubs[id]
		reg.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reap removes every hub that has been idle since before cutoff. Reaped hubs
// are disconnected only after the registry lock is released, so a slow client
// teardown cannot block room creation.
func (reg *RoomRegistry) reap(cutoff time.Time) {
	var reaped []*Hub

	reg.mu.Lock()
	for id, hub := range reg.hubs {
		hub.mu.RLock()
		last := hub.lastActive
		hub.mu.RUnlock()

		if last.Before(cutoff) {
			delete(reg.hubs, id)
			reaped = append(reaped, hub)
		}
	}
	reg.metrics.roomsOpen.Set(float64(len(reg.hubs)))
	reg.mu.Unlock()

	for _, hub := range reaped {
		hub.closeAll()
	}
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (reg *RoomRegistry) reaperLoop() {
	ticker := time.NewTicker(reg.idleTimeout / 2)
	for range ticker.C {
		reg.reap(time.Now().Add(-reg.idleTimeout))
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForRegistry(cfg *Config, reg *RoomRegistry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if !validRoomID(gameID) {
			http.Error(w, errUnknownRoom.Error(), http.StatusNotFound)
			return
		}

		transientID := getOrSetTransientID(w, r)
		if transientID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub := reg.getHub(cfg, gameID)

		// A client that lost its cookie can claim its previous transient
		// identity (kept client-side) to reconnect into the same seat.
		playerID := ""
		if claim := r.URL.Query().Get("claim"); claim != "" && claim != transientID {
			playerID, _ = reg.sessions.Alias(transientID, claim)
		}
		if playerID == "" {
			playerID = reg.sessions.Bind(transientID)
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:        conn,
			send:        make(chan any, 8),
			transientID: transientID,
			playerID:    playerID,
		}

		hub.register <- client

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		h.commands <- command{
			client: c,
			msg:    msg,
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current room URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if !validRoomID(gameID) {
		http.Error(w, errUnknownRoom.Error(), http.StatusNotFound)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// redirectNewRoom handles GET /path by generating a new random room code
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewRoom(cfg *Config, path string, reg *RoomRegistry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := reg.newRoomID()
		logf(cfg, "GAMES: Created room %s/%s", path, gameID)
		http.Redirect(w, r, path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerBeatably sets up routes so that:
//   - $path                  → redirects to new random room (8-char code)
//   - $path/:gameid/ws       → WebSocket for that room
//   - $path/:gameid/qr       → PNG QR code for that room URL
func registerBeatably(cfg *Config, path string, mux *httprouter.Router, reg *RoomRegistry) {
	mux.GET(path, redirectNewRoom(cfg, path, reg))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForRegistry(cfg, reg))

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)
}
