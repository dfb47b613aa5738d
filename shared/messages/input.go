package messages

import "github.com/automoto/fragnet/shared/gamemath"

// InputCommand is sent from client to server for every local simulation step.
// The server consumes each command exactly once, oldest first.
type InputCommand struct {
	Sequence  uint32        `json:"seq"`      // Incrementing ID for reconciliation
	Movement  gamemath.Vec3 `json:"movement"` // desired velocity, m/s
	Aim       gamemath.Vec3 `json:"aim"`
	Fire      bool          `json:"fire"`
	Reload    bool          `json:"reload"`
	Timestamp int64         `json:"ts"` // client network time, Unix ms

	// Position is the client's predicted position after applying the command.
	// Only meaningful when HasPosition is set.
	Position    gamemath.Vec3 `json:"position"`
	HasPosition bool          `json:"hasPosition"`
}
