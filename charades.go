// Partybox Charades
//
// One player acts out prompt words from a chosen theme while the rest of the
// room guesses. The host marks each prompt correct or passes it before the
// countdown runs out.
//
// Features:
// - WebSockets per game ID: /path/:gameid and /path/:gameid/ws
// - First connection to a game becomes the host; later connections mirror it
// - Four built-in themes, each with an editable word list per host cookie
// - Edited word lists persisted in the configured key-value store
// - Configurable countdown, pass limit and question limit
// - Passed prompts come back, shuffled, once the rest are used up
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - In-browser QR button to open a mirror on another device, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/binary"
	mrand "math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type     string    `json:"type"`               // see handleCommand
	Theme    string    `json:"theme,omitempty"`    // select_theme, start, words_theme, add_word, delete_word
	Word     string    `json:"word,omitempty"`     // add_word, delete_word
	Settings *Settings `json:"settings,omitempty"` // start
}

// SessionInfoMessage is sent immediately on connect so the client knows
// its role and what it may offer.
type SessionInfoMessage struct {
	Type     string   `json:"type"`    // "session_info"
	IsHost   bool     `json:"is_host"` // true if this cookie controls the game
	Themes   []Theme  `json:"themes"`
	Defaults Settings `json:"defaults"`
}

// StateMessage carries the current game state to every client.
type StateMessage struct {
	Type  string   `json:"type"` // "state"
	State Snapshot `json:"state"`
}

// WordsMessage is sent to the host after every word list change.
type WordsMessage struct {
	Type  string   `json:"type"` // "words"
	Theme Theme    `json:"theme"`
	Words []string `json:"words"`
	Count int      `json:"count"`
	Saved bool     `json:"saved,omitempty"`
	Reset bool     `json:"reset,omitempty"`
}

// RejectedMessage is sent only to the client whose command was refused.
type RejectedMessage struct {
	Type    string `json:"type"`   // "rejected"
	Reason  string `json:"reason"` // see rejectionReason
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type command struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id      string
	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	commands chan command
	ticks    chan struct{}
	quit     chan struct{}
	quitOnce sync.Once

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time

	hostPlayerID string // cookie/playerID of the host

	kv        KeyValue
	clock     clockwork.Clock
	defaults  Settings
	countdown *countdown
	engine    *Engine
	words     *WordBankManager
	logger    zerolog.Logger
}

func newHub(gameID string, kv KeyValue, clock clockwork.Clock, defaults Settings, logger zerolog.Logger) *Hub {
	now := clock.Now()
	h := &Hub{
		id:         gameID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		commands:   make(chan command),
		ticks:      make(chan struct{}),
		quit:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
		kv:         kv,
		clock:      clock,
		defaults:   defaults,
		logger:     logger.With().Str("game", gameID).Logger(),
	}
	h.countdown = newCountdown(clock, h.ticks)
	return h
}

func newRand() *mrand.Rand {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		binary.LittleEndian.PutUint64(seed[:], uint64(time.Now().UnixNano()))
	}
	return mrand.New(mrand.NewChaCha8(seed))
}

// bindHost makes playerID the host and loads their word lists.
func (h *Hub) bindHost(playerID string) {
	h.hostPlayerID = playerID
	h.words = newWordBankManager(h.kv.Store(customWordsKey+":"+playerID), defaultBank, h.logger)
	h.engine = newEngine(h.words, h.countdown, newRand())
}

func (h *Hub) run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case <-h.quit:
			return

		case c := <-h.register:
			h.touch()

			// First connection becomes host
			if h.hostPlayerID == "" {
				h.bindHost(c.playerID)
			}

			h.clients[c] = true

			h.deliver(c, SessionInfoMessage{
				Type:     "session_info",
				IsHost:   c.playerID == h.hostPlayerID,
				Themes:   requiredThemes,
				Defaults: h.defaults,
			})
			h.deliver(c, StateMessage{
				Type:  "state",
				State: h.engine.Snapshot(),
			})

		case c := <-h.unreg:
			h.touch()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case cmd := <-h.commands:
			h.touch()
			h.handleCommand(ctx, cmd)

		case <-h.ticks:
			delta := h.engine.Handle(ctx, Command{Type: CmdTick})
			if delta.Err != nil {
				// stale tick from a game that already ended
				break
			}

			h.broadcastState()

			if s := delta.State.Summary; s != nil {
				h.logger.Info().Str("outcome", string(s.Outcome)).Int("score", s.Score).Int("total", s.Total).Msg("GAMES: Ended")
			}
		}
	}
}

// touch records activity for the reaper.
func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = h.clock.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastActive
}

// deliver queues msg for c, dropping the client if it cannot keep up.
func (h *Hub) deliver(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcastState() {
	msg := StateMessage{
		Type:  "state",
		State: h.engine.Snapshot(),
	}

	for client := range h.clients {
		h.deliver(client, msg)
	}
}

func (h *Hub) reject(c *Client, err error) {
	h.logger.Debug().Err(err).Str("player", c.playerID).Msg("GAMES: Rejected command")

	h.deliver(c, RejectedMessage{
		Type:    "rejected",
		Reason:  rejectionReason(err),
		Message: err.Error(),
	})
}

func (h *Hub) sendWords(c *Client, theme Theme, saved, reset bool) {
	words := h.words.Words(theme)
	if words == nil {
		words = []string{}
	}

	h.deliver(c, WordsMessage{
		Type:  "words",
		Theme: theme,
		Words: words,
		Count: len(words),
		Saved: saved,
		Reset: reset,
	})
}

// handleCommand applies a host command to the engine or the word lists.
func (h *Hub) handleCommand(ctx context.Context, cmd command) {
	c := cmd.client
	msg := cmd.msg

	if _, ok := h.clients[c]; !ok {
		return
	}

	// Only the host may drive the game
	if c.playerID != h.hostPlayerID {
		h.reject(c, ErrNotHost)
		return
	}

	switch msg.Type {
	case string(CmdSelectTheme), string(CmdStart), string(CmdCorrect),
		string(CmdPass), string(CmdStop), string(CmdReset):
		ec := Command{
			Type:     CommandType(msg.Type),
			Theme:    Theme(msg.Theme),
			Settings: h.defaults,
		}
		if msg.Settings != nil {
			ec.Settings = *msg.Settings
		}

		delta := h.engine.Handle(ctx, ec)
		if delta.Err != nil {
			h.reject(c, delta.Err)
			return
		}

		switch ec.Type {
		case CmdStart:
			h.logger.Info().Str("theme", string(delta.State.Theme)).Int("questions", delta.State.Total).Msg("GAMES: Started")
		case CmdCorrect, CmdStop:
			if s := delta.State.Summary; s != nil {
				h.logger.Info().Str("outcome", string(s.Outcome)).Int("score", s.Score).Int("total", s.Total).Msg("GAMES: Ended")
			}
		}

		h.broadcastState()

	case "words_open":
		if h.engine.Running() {
			h.reject(c, ErrAlreadyRunning)
			return
		}

		theme, err := h.themeOrDefault(msg.Theme)
		if err != nil {
			h.reject(c, err)
			return
		}

		h.words.StartEditing(ctx)
		h.sendWords(c, theme, false, false)

	case "words_theme":
		theme, err := h.themeOrDefault(msg.Theme)
		if err != nil {
			h.reject(c, err)
			return
		}
		if !h.words.Editing() {
			h.reject(c, ErrNotEditing)
			return
		}

		h.sendWords(c, theme, false, false)

	case "add_word", "delete_word":
		theme, err := parseTheme(msg.Theme)
		if err != nil {
			h.reject(c, err)
			return
		}

		if msg.Type == "add_word" {
			err = h.words.AddWord(theme, msg.Word)
		} else {
			err = h.words.DeleteWord(theme, msg.Word)
		}
		if err != nil {
			h.reject(c, err)
			return
		}

		h.sendWords(c, theme, false, false)

	case "save_words":
		theme, err := h.themeOrDefault(msg.Theme)
		if err != nil {
			h.reject(c, err)
			return
		}

		if err := h.words.Save(ctx); err != nil {
			h.logger.Error().Err(err).Msg("WORDS: Failed to save custom words")
			h.reject(c, err)
			return
		}
		h.logger.Info().Str("player", c.playerID).Msg("WORDS: Saved custom words")

		h.sendWords(c, theme, true, false)

	case "reset_words":
		theme, err := h.themeOrDefault(msg.Theme)
		if err != nil {
			h.reject(c, err)
			return
		}

		if err := h.words.Reset(ctx); err != nil {
			h.logger.Error().Err(err).Msg("WORDS: Failed to reset custom words")
			h.reject(c, err)
			return
		}
		h.logger.Info().Str("player", c.playerID).Msg("WORDS: Reset custom words")

		h.sendWords(c, theme, false, true)

	default:
		// ignore unknown types
	}
}

func (h *Hub) themeOrDefault(s string) (Theme, error) {
	if s == "" {
		return requiredThemes[0], nil
	}
	return parseTheme(s)
}

// stop asks the hub loop to exit (used by reaper).
func (h *Hub) stop() {
	h.quitOnce.Do(func() {
		close(h.quit)
	})
}

// shutdown disconnects all clients and halts the countdown. It runs on the
// hub goroutine as the loop exits.
func (h *Hub) shutdown() {
	h.countdown.Stop()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "partybox_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration

	ctx      context.Context
	kv       KeyValue
	clock    clockwork.Clock
	defaults Settings
	logger   zerolog.Logger
}

func newGameManager(ctx context.Context, cfg *Config, kv KeyValue, clock clockwork.Clock) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: cfg.sessionTimeout,
		ctx:         ctx,
		kv:          kv,
		clock:       clock,
		defaults:    cfg.settings(),
		logger:      cfg.logger,
	}
	if gm.idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(gameID, gm.kv, gm.clock, gm.defaults, gm.logger)
	gm.hubs[gameID] = hub
	go hub.run(gm.ctx)
	return hub
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
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

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reap removes hubs that have been idle since before cutoff.
func (gm *GameManager) reap(cutoff time.Time) int {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	reaped := 0
	for id, hub := range gm.hubs {
		if hub.idleSince().Before(cutoff) {
			delete(gm.hubs, id)
			hub.stop()
			reaped++
		}
	}
	return reaped
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := gm.clock.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-gm.ctx.Done():
			return
		case <-ticker.Chan():
			if n := gm.reap(gm.clock.Now().Add(-gm.idleTimeout)); n > 0 {
				gm.logger.Info().Int("games", n).Msg("GAMES: Reaped idle games")
			}
		}
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)

		hub := gm.getHub(gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.logger.Warn().Err(err).Str("game", gameID).Msg("GAMES: Upgrade failed")
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.quit:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.quit:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		select {
		case h.commands <- command{client: c, msg: msg}:
		case <-h.quit:
			return
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

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// Strip the trailing "/qr" to get the game URL.
		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			cfg.logger.Error().Err(err).Str("game", gameID).Msg("SERVE: QR generation failed")
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		_, _ = w.Write(png)
	}
}

// ---- Static file paths ----

//go:embed charades/index.html
var indexHTML []byte

//go:embed charades/app.css
var charadesCSS []byte

//go:embed charades/app.js
var charadesJS []byte

func serveStatic(cfg *Config, contentType string, data []byte, setCookie bool) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		if setCookie {
			_ = getOrSetPlayerID(w, r)
		}

		_, _ = w.Write(data)
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		cfg.logger.Info().Str("game", gameID).Msgf("GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerCharadesGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerCharadesGame(cfg *Config, path string, mux *httprouter.Router, gm *GameManager) {
	// Root path → redirect to new random game
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	// Per-game client view (HTML)
	mux.GET(cfg.prefix+path+"/:gameid", serveStatic(cfg, "text/html; charset=utf-8", indexHTML, true))

	// Shared assets (no gameid in route)
	mux.GET(cfg.prefix+"/assets/charades/app.css", serveStatic(cfg, "text/css; charset=utf-8", charadesCSS, false))
	mux.GET(cfg.prefix+"/assets/charades/app.js", serveStatic(cfg, "application/javascript; charset=utf-8", charadesJS, false))

	// Per-game websocket
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	// Per-game QR code
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler(cfg))
}
