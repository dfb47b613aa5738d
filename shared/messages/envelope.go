package messages

// Envelope types recognised by the core. Anything else is forwarded
// unchanged to registered handlers.
const (
	TypeJoin         = "join"
	TypeJoinAccepted = "join_accepted"
	TypeJoinRejected = "join_rejected"
	TypeLeave        = "leave"
	TypeInput        = "input"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeState        = "state"
	TypeChat         = "chat"
)

// Envelope is the single message type carried by the transport. Data holds a
// msgpack-encoded payload whose shape is selected by Type.
type Envelope struct {
	Type       string
	Data       []byte
	Timestamp  int64 // sender clock, Unix ms
	Sequence   uint32
	Compressed bool // Data is lz4-framed
}

// Ping is sent by clients to measure round trip time and clock offset.
type Ping struct {
	ClientTime int64 `json:"clientTime"`
}

// Pong echoes a Ping with the server clock at the time of reply.
type Pong struct {
	ClientTime int64 `json:"clientTime"`
	ServerTime int64 `json:"serverTime"`
}

// Chat is a free-form reliable message relayed to every client.
type Chat struct {
	From uint32 `json:"from"`
	Text string `json:"text"`
}
