package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/automoto/fragnet/shared/messages"
	"github.com/automoto/fragnet/shared/netcomponents"
)

func TestLargeStateUpdateIsCompressed(t *testing.T) {
	update := messages.StateUpdate{
		Tick:        100,
		Timestamp:   1234,
		Players:     make(map[netcomponents.PlayerID]messages.PlayerView),
		Projectiles: map[netcomponents.ProjectileID]messages.ProjectileView{},
	}
	for i := 1; i <= 64; i++ {
		update.Players[netcomponents.PlayerID(i)] = messages.PlayerView{
			Position: gamemath.V(float64(i), 0, float64(i)),
			Health:   80,
			Alive:    true,
		}
	}

	env, err := Encode(messages.TypeState, update, 7, time.UnixMilli(5000))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !env.Compressed {
		t.Fatalf("expected payload above %d bytes to be compressed", CompressThreshold)
	}
	if env.Sequence != 7 || env.Timestamp != 5000 {
		t.Fatalf("envelope header = %d/%d", env.Sequence, env.Timestamp)
	}

	got, err := DecodeAs[messages.StateUpdate](env)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Tick != 100 || len(got.Players) != 64 {
		t.Fatalf("decoded tick=%d players=%d", got.Tick, len(got.Players))
	}
	if got.Players[10].Position != gamemath.V(10, 0, 10) {
		t.Fatalf("player 10 position = %+v", got.Players[10].Position)
	}
}

func TestDecodeMalformed(t *testing.T) {
	env := messages.Envelope{Type: messages.TypeInput, Data: []byte{0xc1}}
	if _, err := DecodeAs[messages.InputCommand](env); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}

	empty := messages.Envelope{Type: messages.TypeInput}
	if _, err := DecodeAs[messages.InputCommand](empty); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for empty payload, got %v", err)
	}
}

func TestIsCoreType(t *testing.T) {
	if !IsCoreType(messages.TypeInput) {
		t.Fatalf("input should be a core type")
	}
	if IsCoreType("scoreboard") {
		t.Fatalf("scoreboard should be forwarded")
	}
}
