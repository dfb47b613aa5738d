package messages

import "github.com/automoto/fragnet/shared/netcomponents"

// JoinRequest is sent by a client after connecting to request joining the game.
type JoinRequest struct {
	Version        string `json:"version"`
	PlayerName     string `json:"playerName"`
	ReconnectToken string `json:"reconnectToken"`
}

// JoinAccepted is sent by the server when a client's join request is accepted.
// Snapshot carries the newest stored state so late joiners start in sync.
type JoinAccepted struct {
	PlayerID       netcomponents.PlayerID `json:"playerId"`
	ReconnectToken string                 `json:"reconnectToken"`
	ServerName     string                 `json:"serverName"`
	TickRate       int                    `json:"tickRate"`
	Snapshot       StateUpdate            `json:"snapshot"`
}

// JoinRejected is sent by the server when a client's join request is rejected.
type JoinRejected struct {
	Reason string `json:"reason"`
}
