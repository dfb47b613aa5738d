package core

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/automoto/fragnet/config"
	"github.com/automoto/fragnet/server/snapshot"
	"github.com/automoto/fragnet/shared/messages"
	"github.com/automoto/fragnet/shared/netcomponents"
	"github.com/automoto/fragnet/shared/protocol"
	"github.com/google/uuid"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
	"golang.org/x/time/rate"
)

var (
	ErrServerFull      = errors.New("server full")
	ErrVersionMismatch = errors.New("version mismatch")
	ErrAlreadyJoined   = errors.New("player already connected")
	ErrReservedType    = errors.New("message type is handled by the core")
)

// Peer is one client connection. *router.NetworkClient satisfies it.
type Peer interface {
	Id() string
	SendMessage(msg any) error
}

// Handler receives envelopes of a type the core does not handle itself.
// player is zero when the peer has not joined.
type Handler func(peer Peer, player netcomponents.PlayerID, env messages.Envelope)

const outboxSize = 64

// session tracks one connection. Writes go through a per-session goroutine so
// a slow client never stalls the tick.
type session struct {
	peer    Peer
	limiter *rate.Limiter
	outbox  chan messages.Envelope
	closed  chan struct{}
	seq     atomic.Uint32

	// guarded by Server.mu
	player netcomponents.PlayerID
	joined bool
}

func (ss *session) writeLoop() {
	for {
		select {
		case <-ss.closed:
			return
		case env := <-ss.outbox:
			if err := ss.peer.SendMessage(env); err != nil {
				log.Printf("[server] write to %s failed: %v", ss.peer.Id(), err)
			}
		}
	}
}

// reservation keeps a disconnected player's slot for its reconnect token.
type reservation struct {
	token   string
	expires time.Time
}

// Server connects peers to the simulation: join handshake, input routing,
// state broadcast and reconnection.
type Server struct {
	cfg       config.ServerConfig
	sim       *Simulation
	loop      *GameLoop
	transport *transports.WsServerTransport
	clock     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
	tokens   map[string]netcomponents.PlayerID
	owners   map[netcomponents.PlayerID]*session
	reserved map[netcomponents.PlayerID]reservation
	handlers map[string]Handler
	nextID   netcomponents.PlayerID
}

// NewServer creates a server over level. A nil clock means time.Now.
func NewServer(cfg config.ServerConfig, level *Level, clock func() time.Time, opts ...Option) *Server {
	if clock == nil {
		clock = time.Now
	}
	s := &Server{
		cfg:      cfg,
		clock:    clock,
		sessions: make(map[string]*session),
		tokens:   make(map[string]netcomponents.PlayerID),
		owners:   make(map[netcomponents.PlayerID]*session),
		reserved: make(map[netcomponents.PlayerID]reservation),
		handlers: make(map[string]Handler),
	}
	opts = append([]Option{WithBroadcaster(s)}, opts...)
	s.sim = NewSimulation(cfg, level, opts...)
	s.loop = NewGameLoop(s.sim, cfg.TickRate, clock)
	return s
}

// Start runs the game loop and serves WebSocket connections on the configured
// port. It blocks until the transport stops.
func (s *Server) Start() error {
	s.setupRouterCallbacks()
	go s.loop.Run()

	s.transport = transports.NewWsServerTransport(s.cfg.Port, "", nil)
	if err := s.transport.Start(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the game loop and closes every session.
func (s *Server) Stop() {
	s.loop.Stop()

	s.mu.Lock()
	for id, ss := range s.sessions {
		close(ss.closed)
		delete(s.sessions, id)
	}
	s.mu.Unlock()
}

func (s *Server) setupRouterCallbacks() {
	router.OnConnect(func(client *router.NetworkClient) {
		s.HandleConnect(client)
	})

	router.OnDisconnect(func(client *router.NetworkClient, err error) {
		s.HandleDisconnect(client, err)
	})

	router.On(func(client *router.NetworkClient, env messages.Envelope) {
		s.HandleEnvelope(client, env)
	})

	router.OnError(func(client *router.NetworkClient, err error) {
		log.Printf("[server] client %s error: %v", client.Id(), err)
	})
}

// Simulation exposes the authoritative simulation.
func (s *Server) Simulation() *Simulation { return s.sim }

// PlayerCount returns the number of players holding a slot, including those
// inside their reconnect grace period.
func (s *Server) PlayerCount() int {
	return s.sim.PlayerCount()
}

// Handle registers h for envelopes of type typ. Core types cannot be
// overridden.
func (s *Server) Handle(typ string, h Handler) error {
	if protocol.IsCoreType(typ) {
		return fmt.Errorf("handle %q: %w", typ, ErrReservedType)
	}
	s.mu.Lock()
	s.handlers[typ] = h
	s.mu.Unlock()
	return nil
}

func (s *Server) HandleConnect(peer Peer) {
	ss := &session{
		peer:    peer,
		limiter: rate.NewLimiter(rate.Limit(s.cfg.InboundRate), s.cfg.InboundBurst),
		outbox:  make(chan messages.Envelope, outboxSize),
		closed:  make(chan struct{}),
	}

	s.mu.Lock()
	if old, ok := s.sessions[peer.Id()]; ok {
		close(old.closed)
	}
	s.sessions[peer.Id()] = ss
	s.mu.Unlock()

	go ss.writeLoop()
	log.Printf("[server] client connected: %s", peer.Id())
}

func (s *Server) HandleDisconnect(peer Peer, err error) {
	if err != nil {
		log.Printf("[server] client %s disconnected with error: %v", peer.Id(), err)
	} else {
		log.Printf("[server] client %s disconnected", peer.Id())
	}

	s.mu.Lock()
	ss, ok := s.sessions[peer.Id()]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, peer.Id())
	close(ss.closed)

	var remove bool
	id := ss.player
	if ss.joined {
		delete(s.owners, id)
		token := s.tokenOf(id)
		if s.cfg.ReconnectGrace > 0 && token != "" {
			s.reserved[id] = reservation{token: token, expires: s.clock().Add(s.cfg.ReconnectGrace)}
		} else {
			delete(s.tokens, token)
			remove = true
		}
	}
	s.mu.Unlock()

	if remove {
		s.sim.RemovePlayer(id)
	}
}

// HandleEnvelope routes one inbound message. Protocol errors are logged and
// the message dropped; they never close the connection.
func (s *Server) HandleEnvelope(peer Peer, env messages.Envelope) {
	s.mu.RLock()
	ss, ok := s.sessions[peer.Id()]
	var (
		player netcomponents.PlayerID
		joined bool
	)
	if ok {
		player, joined = ss.player, ss.joined
	}
	s.mu.RUnlock()
	if !ok {
		return
	}

	if !ss.limiter.Allow() {
		log.Printf("[server] client %s exceeded inbound rate, dropped %q", peer.Id(), env.Type)
		return
	}

	switch env.Type {
	case messages.TypeJoin:
		req, err := protocol.DecodeAs[messages.JoinRequest](env)
		if err != nil {
			log.Printf("[server] client %s: %v", peer.Id(), err)
			return
		}
		s.handleJoin(ss, req)

	case messages.TypeInput:
		if !joined {
			return
		}
		cmd, err := protocol.DecodeAs[messages.InputCommand](env)
		if err != nil {
			log.Printf("[server] player %d: %v", player, err)
			return
		}
		if err := s.sim.EnqueueInput(player, cmd); err != nil {
			log.Printf("[server] player %d input: %v", player, err)
		}

	case messages.TypePing:
		ping, err := protocol.DecodeAs[messages.Ping](env)
		if err != nil {
			log.Printf("[server] client %s: %v", peer.Id(), err)
			return
		}
		s.send(ss, messages.TypePong, messages.Pong{
			ClientTime: ping.ClientTime,
			ServerTime: s.clock().UnixMilli(),
		}, true)

	case messages.TypeChat:
		if !joined {
			return
		}
		chat, err := protocol.DecodeAs[messages.Chat](env)
		if err != nil {
			log.Printf("[server] player %d: %v", player, err)
			return
		}
		chat.From = uint32(player)
		s.sendAll(messages.TypeChat, chat, true)

	case messages.TypeLeave:
		if joined {
			s.leave(ss)
		}

	default:
		if protocol.IsCoreType(env.Type) {
			log.Printf("[server] client %s sent server-only type %q", peer.Id(), env.Type)
			return
		}
		s.mu.RLock()
		h := s.handlers[env.Type]
		s.mu.RUnlock()
		if h == nil {
			log.Printf("[server] client %s: %v %q", peer.Id(), protocol.ErrUnknownType, env.Type)
			return
		}
		h(peer, player, env)
	}
}

func (s *Server) handleJoin(ss *session, req messages.JoinRequest) {
	id, token, err := s.admit(ss, req)
	if err != nil {
		log.Printf("[server] join rejected for %s: %v", ss.peer.Id(), err)
		s.send(ss, messages.TypeJoinRejected, messages.JoinRejected{Reason: err.Error()}, true)
		return
	}

	accepted := messages.JoinAccepted{
		PlayerID:       id,
		ReconnectToken: token,
		ServerName:     s.cfg.Name,
		TickRate:       s.cfg.TickRate,
	}
	if snap, ok := s.sim.LatestSnapshot(); ok {
		accepted.Snapshot = stateFromSnapshot(snap)
	}
	s.send(ss, messages.TypeJoinAccepted, accepted, true)
	log.Printf("[server] player %d joined from %s (%q)", id, ss.peer.Id(), req.PlayerName)
}

// admit assigns a player to the session, reclaiming a reserved one when the
// request carries its reconnect token.
func (s *Server) admit(ss *session, req messages.JoinRequest) (netcomponents.PlayerID, string, error) {
	if s.cfg.Version != "" && req.Version != s.cfg.Version {
		return 0, "", fmt.Errorf("%w: server %s, client %s", ErrVersionMismatch, s.cfg.Version, req.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ss.joined {
		return ss.player, s.tokenOf(ss.player), nil
	}

	if id, ok := s.tokens[req.ReconnectToken]; ok && req.ReconnectToken != "" {
		if _, live := s.owners[id]; live {
			return 0, "", ErrAlreadyJoined
		}
		delete(s.reserved, id)
		s.bind(ss, id)
		s.sim.ResetInput(id)
		return id, req.ReconnectToken, nil
	}

	if s.cfg.MaxPlayers > 0 && len(s.owners)+len(s.reserved) >= s.cfg.MaxPlayers {
		return 0, "", ErrServerFull
	}

	s.nextID++
	id := s.nextID
	token := uuid.NewString()
	s.tokens[token] = id
	s.bind(ss, id)
	s.sim.AddPlayer(id)
	return id, token, nil
}

func (s *Server) bind(ss *session, id netcomponents.PlayerID) {
	ss.player = id
	ss.joined = true
	s.owners[id] = ss
}

// leave removes the player at once; a leave message forfeits the grace period.
func (s *Server) leave(ss *session) {
	s.mu.Lock()
	id := ss.player
	delete(s.tokens, s.tokenOf(id))
	delete(s.owners, id)
	ss.joined = false
	ss.player = 0
	s.mu.Unlock()

	s.sim.RemovePlayer(id)
	log.Printf("[server] player %d left", id)
}

// tokenOf finds a player's reconnect token. Callers hold mu.
func (s *Server) tokenOf(id netcomponents.PlayerID) string {
	for token, owner := range s.tokens {
		if owner == id {
			return token
		}
	}
	return ""
}

// Broadcast sends a tick's state update to every joined session and expires
// stale reservations. It runs on the game loop goroutine.
func (s *Server) Broadcast(update messages.StateUpdate) {
	s.expireReservations()
	s.sendAll(messages.TypeState, update, false)
}

func (s *Server) expireReservations() {
	now := s.clock()
	var expired []netcomponents.PlayerID

	s.mu.Lock()
	for id, r := range s.reserved {
		if now.After(r.expires) {
			delete(s.reserved, id)
			delete(s.tokens, r.token)
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		log.Printf("[server] reconnect grace expired for player %d", id)
		s.sim.RemovePlayer(id)
	}
}

func (s *Server) sendAll(typ string, payload any, reliable bool) {
	env, err := protocol.Encode(typ, payload, 0, s.clock())
	if err != nil {
		log.Printf("[server] %v", err)
		return
	}

	s.mu.RLock()
	targets := make([]*session, 0, len(s.owners))
	for _, ss := range s.owners {
		targets = append(targets, ss)
	}
	s.mu.RUnlock()

	for _, ss := range targets {
		s.enqueue(ss, env, reliable)
	}
}

func (s *Server) send(ss *session, typ string, payload any, reliable bool) {
	env, err := protocol.Encode(typ, payload, 0, s.clock())
	if err != nil {
		log.Printf("[server] %v", err)
		return
	}
	s.enqueue(ss, env, reliable)
}

// enqueue hands env to the session writer. Unreliable messages are dropped
// when the outbox is full; reliable ones wait until the session closes.
func (s *Server) enqueue(ss *session, env messages.Envelope, reliable bool) {
	env.Sequence = ss.seq.Add(1)
	if reliable {
		select {
		case ss.outbox <- env:
		case <-ss.closed:
		}
		return
	}
	select {
	case ss.outbox <- env:
	case <-ss.closed:
	default:
		log.Printf("[server] outbox full for %s, dropped %q", ss.peer.Id(), env.Type)
	}
}

func stateFromSnapshot(snap *snapshot.Snapshot) messages.StateUpdate {
	update := messages.StateUpdate{
		Tick:        snap.Tick,
		Timestamp:   snap.Timestamp,
		Players:     make(map[netcomponents.PlayerID]messages.PlayerView, len(snap.Players)),
		Projectiles: make(map[netcomponents.ProjectileID]messages.ProjectileView, len(snap.Projectiles)),
	}
	for id, p := range snap.Players {
		update.Players[id] = messages.ViewOf(p)
	}
	for id, pr := range snap.Projectiles {
		update.Projectiles[id] = messages.ProjectileView{Position: pr.Position, Velocity: pr.Velocity}
	}
	return update
}
