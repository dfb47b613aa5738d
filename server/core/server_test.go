package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/automoto/fragnet/config"
	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/automoto/fragnet/shared/messages"
	"github.com/automoto/fragnet/shared/netcomponents"
	"github.com/automoto/fragnet/shared/protocol"
)

// fakePeer records everything the server writes to it.
type fakePeer struct {
	id  string
	out chan messages.Envelope
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id, out: make(chan messages.Envelope, 256)}
}

func (p *fakePeer) Id() string { return p.id }

func (p *fakePeer) SendMessage(msg any) error {
	env, ok := msg.(messages.Envelope)
	if !ok {
		return fmt.Errorf("unexpected message %T", msg)
	}
	p.out <- env
	return nil
}

// expect waits for the next message of type typ, skipping others.
func (p *fakePeer) expect(t *testing.T, typ string) messages.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-p.out:
			if env.Type == typ {
				return env
			}
		case <-deadline:
			t.Fatalf("%s: no %q message", p.id, typ)
			return messages.Envelope{}
		}
	}
}

// quiet fails if a message of type typ arrives within a short window.
func (p *fakePeer) quiet(t *testing.T, typ string) {
	t.Helper()
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case env := <-p.out:
			if env.Type == typ {
				t.Fatalf("%s: unexpected %q message", p.id, typ)
			}
		case <-deadline:
			return
		}
	}
}

func decode[T any](t *testing.T, env messages.Envelope) T {
	t.Helper()
	v, err := protocol.DecodeAs[T](env)
	if err != nil {
		t.Fatalf("decode %q: %v", env.Type, err)
	}
	return v
}

func envelope(t *testing.T, typ string, payload any) messages.Envelope {
	t.Helper()
	env, err := protocol.Encode(typ, payload, 0, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func newTestServer(t *testing.T, cfg config.ServerConfig, clock func() time.Time) *Server {
	t.Helper()
	s := NewServer(cfg, nil, clock)
	t.Cleanup(s.Stop)
	return s
}

func join(t *testing.T, s *Server, p *fakePeer, token string) messages.Envelope {
	t.Helper()
	s.HandleConnect(p)
	s.HandleEnvelope(p, envelope(t, messages.TypeJoin, messages.JoinRequest{
		Version:        s.cfg.Version,
		PlayerName:     p.id,
		ReconnectToken: token,
	}))
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-p.out:
			if env.Type == messages.TypeJoinAccepted || env.Type == messages.TypeJoinRejected {
				return env
			}
		case <-deadline:
			t.Fatalf("%s: no join reply", p.id)
		}
	}
}

func TestJoinAndReceiveState(t *testing.T) {
	cfg := testConfig()
	cfg.Version = "1.2"
	s := newTestServer(t, cfg, nil)
	p := newFakePeer("a")

	env := join(t, s, p, "")
	if env.Type != messages.TypeJoinAccepted {
		t.Fatalf("reply = %q, want join_accepted", env.Type)
	}
	accepted := decode[messages.JoinAccepted](t, env)
	if accepted.PlayerID != 1 || accepted.ReconnectToken == "" || accepted.TickRate != cfg.TickRate {
		t.Fatalf("accepted = %+v", accepted)
	}
	if s.PlayerCount() != 1 {
		t.Fatalf("PlayerCount = %d, want 1", s.PlayerCount())
	}

	s.Simulation().Tick(time.Now())
	update := decode[messages.StateUpdate](t, p.expect(t, messages.TypeState))
	view, ok := update.Players[1]
	if !ok || !view.Alive || view.Health != cfg.Combat.MaxHealth {
		t.Fatalf("state players = %+v", update.Players)
	}
}

func TestLateJoinerGetsSnapshot(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	join(t, s, newFakePeer("a"), "")
	s.Simulation().Tick(time.Now())

	accepted := decode[messages.JoinAccepted](t, join(t, s, newFakePeer("b"), ""))
	if _, ok := accepted.Snapshot.Players[1]; !ok || accepted.Snapshot.Tick != 1 {
		t.Fatalf("late join snapshot = %+v", accepted.Snapshot)
	}
}

func TestJoinRejected(t *testing.T) {
	t.Run("version", func(t *testing.T) {
		cfg := testConfig()
		cfg.Version = "2.0"
		s := newTestServer(t, cfg, nil)
		p := newFakePeer("a")
		s.HandleConnect(p)
		s.HandleEnvelope(p, envelope(t, messages.TypeJoin, messages.JoinRequest{Version: "1.0"}))

		rejected := decode[messages.JoinRejected](t, p.expect(t, messages.TypeJoinRejected))
		if !strings.Contains(rejected.Reason, ErrVersionMismatch.Error()) {
			t.Fatalf("reason = %q", rejected.Reason)
		}
	})

	t.Run("full", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxPlayers = 1
		s := newTestServer(t, cfg, nil)
		join(t, s, newFakePeer("a"), "")

		env := join(t, s, newFakePeer("b"), "")
		if env.Type != messages.TypeJoinRejected {
			t.Fatalf("second join = %q, want rejection", env.Type)
		}
		if r := decode[messages.JoinRejected](t, env); r.Reason != ErrServerFull.Error() {
			t.Fatalf("reason = %q", r.Reason)
		}
		if s.PlayerCount() != 1 {
			t.Fatalf("PlayerCount = %d, want 1", s.PlayerCount())
		}
	})
}

func TestReconnectWithinGrace(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPlayers = 1
	s := newTestServer(t, cfg, nil)

	first := newFakePeer("a")
	accepted := decode[messages.JoinAccepted](t, join(t, s, first, ""))
	s.HandleDisconnect(first, errors.New("connection reset"))

	if s.PlayerCount() != 1 {
		t.Fatalf("PlayerCount during grace = %d, want 1", s.PlayerCount())
	}
	if env := join(t, s, newFakePeer("stranger"), ""); env.Type != messages.TypeJoinRejected {
		t.Fatal("reserved slot was given away")
	}

	again := decode[messages.JoinAccepted](t, join(t, s, newFakePeer("b"), accepted.ReconnectToken))
	if again.PlayerID != accepted.PlayerID || again.ReconnectToken != accepted.ReconnectToken {
		t.Fatalf("reclaimed as %+v, want player %d", again, accepted.PlayerID)
	}
}

func TestReconnectTokenCannotHijackLiveSession(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	accepted := decode[messages.JoinAccepted](t, join(t, s, newFakePeer("a"), ""))

	env := join(t, s, newFakePeer("b"), accepted.ReconnectToken)
	if env.Type != messages.TypeJoinRejected {
		t.Fatalf("second holder of a live token = %q, want rejection", env.Type)
	}
}

func TestReservationExpires(t *testing.T) {
	clock := &stepClock{now: time.Unix(5000, 0)}
	cfg := testConfig()
	cfg.ReconnectGrace = time.Second
	s := newTestServer(t, cfg, clock.Now)

	p := newFakePeer("a")
	accepted := decode[messages.JoinAccepted](t, join(t, s, p, ""))
	s.Simulation().Tick(clock.Now())
	s.HandleDisconnect(p, nil)

	clock.Advance(2 * time.Second)
	s.Simulation().Tick(clock.Now())
	s.Simulation().Tick(clock.Now())
	if s.PlayerCount() != 0 {
		t.Fatalf("PlayerCount after grace = %d, want 0", s.PlayerCount())
	}
	if _, ok := s.Simulation().Player(accepted.PlayerID); ok {
		t.Fatal("expired player still simulated")
	}

	again := decode[messages.JoinAccepted](t, join(t, s, newFakePeer("b"), accepted.ReconnectToken))
	if again.PlayerID == accepted.PlayerID {
		t.Fatal("expired token reclaimed the old player")
	}
}

func TestDisconnectWithoutGraceRemovesPlayer(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectGrace = 0
	s := newTestServer(t, cfg, nil)
	p := newFakePeer("a")
	join(t, s, p, "")

	s.HandleDisconnect(p, nil)
	if s.PlayerCount() != 0 {
		t.Fatalf("PlayerCount = %d, want 0", s.PlayerCount())
	}
}

func TestLeaveForfeitsToken(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	p := newFakePeer("a")
	accepted := decode[messages.JoinAccepted](t, join(t, s, p, ""))

	s.HandleEnvelope(p, envelope(t, messages.TypeLeave, struct{}{}))
	if s.PlayerCount() != 0 {
		t.Fatalf("PlayerCount after leave = %d", s.PlayerCount())
	}
	again := decode[messages.JoinAccepted](t, join(t, s, newFakePeer("b"), accepted.ReconnectToken))
	if again.PlayerID == accepted.PlayerID {
		t.Fatal("token still valid after leave")
	}
}

func TestPingPong(t *testing.T) {
	clock := &stepClock{now: time.UnixMilli(777_000)}
	s := newTestServer(t, testConfig(), clock.Now)
	p := newFakePeer("a")
	s.HandleConnect(p)

	s.HandleEnvelope(p, envelope(t, messages.TypePing, messages.Ping{ClientTime: 123}))
	pong := decode[messages.Pong](t, p.expect(t, messages.TypePong))
	if pong.ClientTime != 123 || pong.ServerTime != 777_000 {
		t.Fatalf("pong = %+v", pong)
	}
}

func TestInboundRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.InboundRate = 0.001
	cfg.InboundBurst = 2
	s := newTestServer(t, cfg, nil)
	p := newFakePeer("a")
	s.HandleConnect(p)

	for i := 0; i < 5; i++ {
		s.HandleEnvelope(p, envelope(t, messages.TypePing, messages.Ping{ClientTime: int64(i)}))
	}
	p.expect(t, messages.TypePong)
	p.expect(t, messages.TypePong)
	p.quiet(t, messages.TypePong)
}

func TestMalformedPayloadKeepsConnection(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	p := newFakePeer("a")
	s.HandleConnect(p)

	s.HandleEnvelope(p, messages.Envelope{Type: messages.TypeJoin, Data: []byte{0xc1, 0xff}})
	s.HandleEnvelope(p, envelope(t, messages.TypePing, messages.Ping{ClientTime: 1}))
	p.expect(t, messages.TypePong)
	if s.PlayerCount() != 0 {
		t.Fatal("malformed join admitted a player")
	}
}

func TestInputReachesSimulation(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	p := newFakePeer("a")
	accepted := decode[messages.JoinAccepted](t, join(t, s, p, ""))
	now := time.Now()
	s.Simulation().Tick(now)
	start, ok := s.Simulation().Player(accepted.PlayerID)
	if !ok {
		t.Fatal("player not spawned")
	}

	s.HandleEnvelope(p, envelope(t, messages.TypeInput, messages.InputCommand{
		Sequence:  1,
		Movement:  gamemath.V(0, 0, 6),
		Timestamp: now.UnixMilli() + 16,
	}))
	s.Simulation().Tick(now.Add(16 * time.Millisecond))

	got, _ := s.Simulation().Player(accepted.PlayerID)
	if !near(got.Position.Z-start.Position.Z, 0.1) || got.LastSequence != 1 {
		t.Fatalf("after input = %+v", got)
	}
}

func TestInputBeforeJoinIgnored(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	p := newFakePeer("a")
	s.HandleConnect(p)
	s.HandleEnvelope(p, envelope(t, messages.TypeInput, messages.InputCommand{Sequence: 1}))
	if s.PlayerCount() != 0 {
		t.Fatal("input created a player")
	}
}

func TestChatRelayed(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	a, b := newFakePeer("a"), newFakePeer("b")
	join(t, s, a, "")
	join(t, s, b, "")

	s.HandleEnvelope(a, envelope(t, messages.TypeChat, messages.Chat{From: 99, Text: "gg"}))
	for _, p := range []*fakePeer{a, b} {
		chat := decode[messages.Chat](t, p.expect(t, messages.TypeChat))
		if chat.From != 1 || chat.Text != "gg" {
			t.Fatalf("%s got %+v", p.id, chat)
		}
	}
}

func TestUnknownTypesForwarded(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	if err := s.Handle(messages.TypeInput, func(Peer, netcomponents.PlayerID, messages.Envelope) {}); !errors.Is(err, ErrReservedType) {
		t.Fatalf("Handle(input) = %v, want ErrReservedType", err)
	}

	type emote struct{ Name string }
	got := make(chan netcomponents.PlayerID, 1)
	var payload emote
	if err := s.Handle("emote", func(_ Peer, player netcomponents.PlayerID, env messages.Envelope) {
		payload = decode[emote](t, env)
		got <- player
	}); err != nil {
		t.Fatal(err)
	}

	p := newFakePeer("a")
	join(t, s, p, "")
	s.HandleEnvelope(p, envelope(t, "emote", emote{Name: "wave"}))

	select {
	case player := <-got:
		if player != 1 || payload.Name != "wave" {
			t.Fatalf("handler got player %d payload %+v", player, payload)
		}
	default:
		t.Fatal("handler not called")
	}
}
