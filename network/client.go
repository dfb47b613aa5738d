package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/automoto/fragnet/config"
	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/automoto/fragnet/shared/messages"
	"github.com/automoto/fragnet/shared/movement"
	"github.com/automoto/fragnet/shared/netcomponents"
	"github.com/automoto/fragnet/shared/protocol"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError  // transport failed, a reconnect is scheduled
	StateFailed // reconnect attempts exhausted or join rejected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	ErrConnectionFailed = errors.New("network: connection failed")
	ErrNotConnected     = errors.New("network: not connected")
	ErrJoinRejected     = errors.New("network: join rejected")
)

// InputData is one frame of local player intent.
type InputData struct {
	Movement gamemath.Vec3 // desired velocity, m/s
	Aim      gamemath.Vec3
	Fire     bool
	Reload   bool
}

// GameState is handed to the game once per frame: the predicted local
// player plus remote entities interpolated behind the server.
type GameState struct {
	Tick        uint64
	LocalID     netcomponents.PlayerID
	Local       netcomponents.NetPlayerData
	HasLocal    bool
	Remote      map[netcomponents.PlayerID]messages.PlayerView
	Projectiles map[netcomponents.ProjectileID]messages.ProjectileView
	Events      []messages.Event // from every state update received this frame
	Corrected   bool             // the local prediction was reconciled this frame
}

// GameStateSink is the game side of the client.
type GameStateSink interface {
	ApplyGameState(state GameState)
	// ApplyInputLocally is called for every predicted or replayed input.
	ApplyInputLocally(cmd messages.InputCommand)
}

// Observer is notified of connection state changes. A panicking observer is
// logged and skipped.
type Observer interface {
	OnStateChange(from, to State, err error)
}

type ObserverFunc func(from, to State, err error)

func (f ObserverFunc) OnStateChange(from, to State, err error) { f(from, to, err) }

// Options configure a connection. A zero Config means config.DefaultClient.
type Options struct {
	Config   config.ClientConfig
	Sink     GameStateSink
	Tokens   TokenStore
	Observer Observer
}

// NetworkStats is a snapshot of connection health.
type NetworkStats struct {
	State         State
	Ping          time.Duration
	Jitter        time.Duration
	Synced        bool
	Sent          int
	Received      int
	Dropped       int // unreliable envelopes discarded by the outbound queue
	Reconnects    int
	Corrections   int
	PendingInputs int
}

type eventKind int

const (
	evDialed eventKind = iota
	evDialFailed
	evEnvelope
	evClosed
)

// event is how transport goroutines talk to the frame loop.
type event struct {
	gen  uint64
	kind eventKind
	conn Conn
	env  messages.Envelope
	err  error
}

const (
	inboundSize   = 256
	writeBuffer   = 64
	leaveDeadline = 250 * time.Millisecond
)

// Client is the client half of the sync core. Update is the frame loop;
// transport goroutines only push into the inbound channel it drains.
type Client struct {
	mu      sync.Mutex
	dialer  Dialer
	inbound chan event
	after   []func() // callbacks run once mu is released

	endpoint string
	opts     Options
	cfg      config.ClientConfig
	params   movement.Params

	state    State
	lastErr  error
	gen      uint64
	conn     Conn
	ctx      context.Context // lifetime of the current connection attempt
	cancel   context.CancelFunc
	writes   chan messages.Envelope
	failures int

	queue     *outQueue
	timers    timers
	clock     SyncClock
	predictor *Predictor
	interp    *Interpolator
	handlers  map[string]func(messages.Envelope)

	playerID    netcomponents.PlayerID
	joined      bool
	token       string
	inputSeq    uint32
	envSeq      uint32
	lastInputTs int64
	lastTick    uint64
	now         time.Time

	frameEvents    []messages.Event
	frameCorrected bool

	sent, received, reconnects, corrections int
}

// NewClient creates a disconnected client. A nil dialer uses WebSocket.
func NewClient(dialer Dialer) *Client {
	if dialer == nil {
		dialer = WsDialer{}
	}
	cfg := config.DefaultClient()
	return &Client{
		dialer:   dialer,
		inbound:  make(chan event, inboundSize),
		cfg:      cfg,
		queue:    newOutQueue(cfg.UnreliablePerPass, cfg.UnreliableQueueSize),
		handlers: make(map[string]func(messages.Envelope)),
	}
}

// Connect starts connecting to endpoint, replacing any current connection.
// Progress is observed through State and the Observer as Update runs.
func (c *Client) Connect(endpoint string, opts Options) error {
	if endpoint == "" {
		return fmt.Errorf("connect: empty endpoint")
	}

	c.mu.Lock()
	defer c.unlock()

	c.teardown()
	c.timers.clear()

	if opts.Config == (config.ClientConfig{}) {
		opts.Config = config.DefaultClient()
	}
	if opts.Tokens == nil {
		opts.Tokens = NewMemoryTokenStore()
	}
	c.opts = opts
	c.cfg = opts.Config
	c.endpoint = endpoint
	c.failures = 0
	c.lastErr = nil
	c.clock.Reset()

	tickRate := c.cfg.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}
	c.params = movement.Params{MaxSpeed: c.cfg.MaxSpeed, StepSeconds: 1 / float64(tickRate)}
	c.predictor = NewPredictor(c.params, c.cfg.ReconcileTolerance, c.cfg.MaxPredictionHorizon)
	c.interp = NewInterpolator(c.cfg.InterpolationDelay, c.cfg.InterpolationBufferSize)
	c.queue = newOutQueue(c.cfg.UnreliablePerPass, c.cfg.UnreliableQueueSize)

	token, err := opts.Tokens.LoadToken(endpoint)
	if err != nil {
		log.Printf("[client] %v", err)
	}
	c.token = token

	c.dial()
	return nil
}

// Disconnect closes the connection and cancels any pending reconnect. It is
// safe to call at any time and more than once.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.unlock()

	if c.conn != nil && c.joined {
		conn := c.conn
		c.conn = nil
		leave, err := protocol.Encode(messages.TypeLeave, struct{}{}, c.envSeq+1, c.frameTime())
		go func() {
			if err == nil {
				ctx, cancel := context.WithTimeout(context.Background(), leaveDeadline)
				_ = conn.Send(ctx, leave)
				cancel()
			}
			_ = conn.Close()
		}()
	}

	c.teardown()
	c.timers.clear()
	c.failures = 0
	c.setState(StateDisconnected, nil)
}

// SendInput predicts the input locally and queues it for the server.
func (c *Client) SendInput(in InputData) error {
	c.mu.Lock()
	defer c.unlock()

	if c.state != StateConnected || !c.joined {
		return ErrNotConnected
	}

	ts := c.clock.Now(c.frameTime())
	if ts < c.lastInputTs {
		ts = c.lastInputTs
	}
	c.lastInputTs = ts
	c.inputSeq++

	cmd := messages.InputCommand{
		Sequence:  c.inputSeq,
		Movement:  in.Movement,
		Aim:       in.Aim,
		Fire:      in.Fire,
		Reload:    in.Reload,
		Timestamp: ts,
	}
	if c.predictor.Initialized() {
		c.predictor.Apply(cmd)
	}
	if sink := c.opts.Sink; sink != nil {
		c.after = append(c.after, func() { sink.ApplyInputLocally(cmd) })
	}
	return c.enqueue(messages.TypeInput, cmd, false)
}

// SendMessage queues an arbitrary payload under typ.
func (c *Client) SendMessage(typ string, data any, reliable bool) error {
	c.mu.Lock()
	defer c.unlock()

	if c.state != StateConnected {
		return ErrNotConnected
	}
	return c.enqueue(typ, data, reliable)
}

// OnMessage registers fn for inbound envelopes of a type the client does not
// handle itself, such as chat.
func (c *Client) OnMessage(typ string, fn func(messages.Envelope)) {
	c.mu.Lock()
	c.handlers[typ] = fn
	c.mu.Unlock()
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error behind the current Error or Failed state.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// PlayerID returns the id assigned by the server, once joined.
func (c *Client) PlayerID() (netcomponents.PlayerID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID, c.joined
}

func (c *Client) NetworkStats() NetworkStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := NetworkStats{
		State:       c.state,
		Ping:        c.clock.RTT(),
		Jitter:      c.clock.Jitter(),
		Synced:      c.clock.Synced(),
		Sent:        c.sent,
		Received:    c.received,
		Dropped:     c.queue.dropped,
		Reconnects:  c.reconnects,
		Corrections: c.corrections,
	}
	if c.predictor != nil {
		stats.PendingInputs = c.predictor.Pending()
	}
	return stats
}

// Update runs one frame: drain inbound messages, fire due timers, hand the
// frame's state to the sink and flush outbound queues.
func (c *Client) Update(now time.Time) {
	c.mu.Lock()
	defer c.unlock()

	c.now = now
	c.drain(now)

	for _, kind := range c.timers.due(now) {
		switch kind {
		case timerReconnect:
			if c.state == StateError {
				c.reconnects++
				log.Printf("[client] reconnecting to %s (attempt %d/%d)", c.endpoint, c.failures, c.cfg.MaxReconnectAttempts)
				c.dial()
			}
		case timerPing:
			if c.state == StateConnected {
				_ = c.enqueue(messages.TypePing, messages.Ping{ClientTime: now.UnixMilli()}, true)
				c.timers.schedule(now.Add(c.cfg.PingInterval), timerPing)
			}
		}
	}

	if c.joined {
		c.frame(now)
	}
	c.flush()
}

func (c *Client) dial() {
	c.gen++
	gen := c.gen
	endpoint := c.endpoint
	timeout := c.cfg.ConnectTimeout

	ctx, cancel := context.WithCancel(context.Background())
	c.ctx, c.cancel = ctx, cancel
	c.setState(StateConnecting, nil)

	go func() {
		dialCtx := ctx
		if timeout > 0 {
			var stop context.CancelFunc
			dialCtx, stop = context.WithTimeout(ctx, timeout)
			defer stop()
		}
		conn, err := c.dialer.Dial(dialCtx, endpoint,
			func(env messages.Envelope) {
				c.deliver(ctx, event{gen: gen, kind: evEnvelope, env: env})
			},
			func(err error) {
				c.deliver(ctx, event{gen: gen, kind: evClosed, err: err})
			},
		)
		if err != nil {
			c.deliver(ctx, event{gen: gen, kind: evDialFailed, err: err})
			return
		}
		if ctx.Err() != nil {
			_ = conn.Close()
			return
		}
		c.deliver(ctx, event{gen: gen, kind: evDialed, conn: conn})
	}()
}

func (c *Client) deliver(ctx context.Context, ev event) {
	select {
	case c.inbound <- ev:
	case <-ctx.Done():
		if ev.kind == evDialed {
			_ = ev.conn.Close()
		}
	}
}

// drain processes the events queued when the frame started.
func (c *Client) drain(now time.Time) {
	for n := len(c.inbound); n > 0; n-- {
		ev := <-c.inbound
		if ev.gen != c.gen {
			if ev.kind == evDialed {
				_ = ev.conn.Close()
			}
			continue
		}

		switch ev.kind {
		case evDialed:
			if c.state != StateConnecting {
				_ = ev.conn.Close()
				continue
			}
			c.connected(ev.conn, now)

		case evDialFailed:
			if c.state == StateConnecting {
				c.fail(now, ev.err)
			}

		case evClosed:
			if c.state == StateConnected {
				if ev.err == nil {
					ev.err = errors.New("connection closed")
				}
				c.fail(now, ev.err)
			}

		case evEnvelope:
			if c.state == StateConnected {
				c.received++
				c.handleEnvelope(ev.env, now)
			}
		}
	}
}

func (c *Client) connected(conn Conn, now time.Time) {
	c.conn = conn
	c.failures = 0
	c.writes = make(chan messages.Envelope, writeBuffer)
	go c.writeLoop(c.ctx, c.gen, conn, c.writes)

	c.setState(StateConnected, nil)
	log.Printf("[client] connected to %s", c.endpoint)

	_ = c.enqueue(messages.TypeJoin, messages.JoinRequest{
		Version:        c.cfg.Version,
		PlayerName:     c.cfg.PlayerName,
		ReconnectToken: c.token,
	}, true)
	c.timers.schedule(now, timerPing)
}

func (c *Client) writeLoop(ctx context.Context, gen uint64, conn Conn, writes <-chan messages.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-writes:
			if err := conn.Send(ctx, env); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.deliver(ctx, event{gen: gen, kind: evClosed, err: fmt.Errorf("send %q: %w", env.Type, err)})
				return
			}
		}
	}
}

// fail tears the connection down and either schedules a reconnect after
// base delay times the attempt count or gives up.
func (c *Client) fail(now time.Time, err error) {
	c.teardown()
	c.failures++

	if c.failures > c.cfg.MaxReconnectAttempts {
		c.lastErr = fmt.Errorf("%w after %d attempts: %v", ErrConnectionFailed, c.failures, err)
		log.Printf("[client] %v", c.lastErr)
		c.setState(StateFailed, c.lastErr)
		return
	}

	delay := c.cfg.ReconnectBaseDelay * time.Duration(c.failures)
	c.lastErr = err
	log.Printf("[client] connection error: %v; retrying in %s", err, delay)
	c.setState(StateError, err)
	c.timers.schedule(now.Add(delay), timerReconnect)
}

// teardown releases the current connection without touching the state.
func (c *Client) teardown() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.ctx, c.cancel = nil, nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			log.Printf("[client] close: %v", err)
		}
		c.conn = nil
	}
	c.writes = nil
	c.joined = false
	c.queue.clear()
	c.timers.cancel(timerPing)
	if c.interp != nil {
		c.interp.Reset()
	}
	c.frameEvents = nil
	c.frameCorrected = false
}

func (c *Client) handleEnvelope(env messages.Envelope, now time.Time) {
	switch env.Type {
	case messages.TypeJoinAccepted:
		msg, err := protocol.DecodeAs[messages.JoinAccepted](env)
		if err != nil {
			log.Printf("[client] %v", err)
			return
		}
		c.handleJoin(msg, now)

	case messages.TypeJoinRejected:
		msg, err := protocol.DecodeAs[messages.JoinRejected](env)
		if err != nil {
			log.Printf("[client] %v", err)
			return
		}
		c.teardown()
		c.timers.clear()
		c.lastErr = fmt.Errorf("%w: %s", ErrJoinRejected, msg.Reason)
		log.Printf("[client] %v", c.lastErr)
		c.setState(StateFailed, c.lastErr)

	case messages.TypePong:
		msg, err := protocol.DecodeAs[messages.Pong](env)
		if err != nil {
			log.Printf("[client] %v", err)
			return
		}
		c.clock.Observe(msg.ClientTime, msg.ServerTime, now)

	case messages.TypeState:
		if !c.joined {
			return
		}
		update, err := protocol.DecodeAs[messages.StateUpdate](env)
		if err != nil {
			log.Printf("[client] %v", err)
			return
		}
		c.handleState(update, now)

	default:
		fn := c.handlers[env.Type]
		if fn == nil {
			if c.cfg.Debug {
				log.Printf("[client] no handler for %q", env.Type)
			}
			return
		}
		c.after = append(c.after, func() { fn(env) })
	}
}

func (c *Client) handleJoin(msg messages.JoinAccepted, now time.Time) {
	c.playerID = msg.PlayerID
	c.joined = true
	c.lastTick = 0

	if msg.ReconnectToken != "" && msg.ReconnectToken != c.token {
		c.token = msg.ReconnectToken
		if err := c.opts.Tokens.SaveToken(c.endpoint, c.token); err != nil {
			log.Printf("[client] %v", err)
		}
	}
	if msg.TickRate > 0 {
		c.params.StepSeconds = 1 / float64(msg.TickRate)
	}
	c.predictor = NewPredictor(c.params, c.cfg.ReconcileTolerance, c.cfg.MaxPredictionHorizon)
	if msg.Snapshot.Tick > 0 {
		c.handleState(msg.Snapshot, now)
	}
	log.Printf("[client] joined %q as player %d (tick rate %d)", msg.ServerName, msg.PlayerID, msg.TickRate)
}

// handleState buffers an update for interpolation and reconciles the local
// prediction against it.
func (c *Client) handleState(update messages.StateUpdate, now time.Time) {
	if update.Tick <= c.lastTick {
		return
	}
	c.lastTick = update.Tick
	c.interp.Push(update, now)
	c.frameEvents = append(c.frameEvents, update.Events...)

	view, ok := update.Players[c.playerID]
	if !ok {
		return
	}
	if !c.predictor.Initialized() {
		c.predictor.Reset(view.Apply(netcomponents.NetPlayerData{ID: c.playerID}))
		return
	}

	var replayed []messages.InputCommand
	auth := view.Apply(c.predictor.State())
	if !c.predictor.Reconcile(auth, view.LastSequence, func(cmd messages.InputCommand) {
		replayed = append(replayed, cmd)
	}) {
		return
	}

	c.corrections++
	c.frameCorrected = true
	if c.cfg.Debug {
		log.Printf("[client] reconciled at tick %d (ack %d), replayed %d inputs", update.Tick, view.LastSequence, len(replayed))
	}
	if sink := c.opts.Sink; sink != nil && len(replayed) > 0 {
		c.after = append(c.after, func() {
			for _, cmd := range replayed {
				sink.ApplyInputLocally(cmd)
			}
		})
	}
}

// frame prunes old predictions and hands the sink this frame's state.
func (c *Client) frame(now time.Time) {
	netNow := c.clock.Now(now)
	c.predictor.Prune(netNow)

	sink := c.opts.Sink
	remote, ok := c.interp.Sample(netNow, c.clock.Synced())
	if sink == nil || (!ok && !c.predictor.Initialized()) {
		c.frameEvents = nil
		c.frameCorrected = false
		return
	}

	gs := GameState{
		Tick:        remote.Tick,
		LocalID:     c.playerID,
		Local:       c.predictor.State(),
		HasLocal:    c.predictor.Initialized(),
		Remote:      make(map[netcomponents.PlayerID]messages.PlayerView, len(remote.Players)),
		Projectiles: make(map[netcomponents.ProjectileID]messages.ProjectileView, len(remote.Projectiles)),
		Events:      c.frameEvents,
		Corrected:   c.frameCorrected,
	}
	for id, v := range remote.Players {
		if id != c.playerID {
			gs.Remote[id] = v
		}
	}
	for id, v := range remote.Projectiles {
		gs.Projectiles[id] = v
	}
	c.frameEvents = nil
	c.frameCorrected = false
	c.after = append(c.after, func() { sink.ApplyGameState(gs) })
}

func (c *Client) enqueue(typ string, payload any, reliable bool) error {
	env, err := protocol.Encode(typ, payload, c.envSeq+1, c.frameTime())
	if err != nil {
		return err
	}
	c.envSeq++
	c.queue.push(env, reliable)
	return nil
}

// flush moves queued envelopes to the connection writer without blocking.
func (c *Client) flush() {
	if c.writes == nil {
		return
	}
	writes := c.writes
	c.sent += c.queue.flush(func(env messages.Envelope) bool {
		select {
		case writes <- env:
			return true
		default:
			return false
		}
	})
}

func (c *Client) setState(to State, err error) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	if obs := c.opts.Observer; obs != nil {
		c.after = append(c.after, func() { notifyObserver(obs, from, to, err) })
	}
}

func notifyObserver(o Observer, from, to State, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[client] observer panicked on %s -> %s: %v", from, to, r)
		}
	}()
	o.OnStateChange(from, to, err)
}

func (c *Client) frameTime() time.Time {
	if c.now.IsZero() {
		return time.Now()
	}
	return c.now
}

// unlock releases mu and then runs the callbacks collected while it was
// held, so sinks and observers may call back into the client.
func (c *Client) unlock() {
	after := c.after
	c.after = nil
	c.mu.Unlock()
	for _, fn := range after {
		fn()
	}
}
