package gateway

// frame is the JSON envelope exchanged with the gateway. The client sends
// hello and cmd frames; the gateway answers with event frames.
type frame struct {
	Type    string   `json:"type"`
	ID      string   `json:"id,omitempty"`
	Verb    string   `json:"verb,omitempty"`
	Args    []string `json:"args,omitempty"`
	Event   string   `json:"event,omitempty"`
	Channel string   `json:"channel,omitempty"`
	Nick    string   `json:"nick,omitempty"`
	Token   string   `json:"token,omitempty"`
	Error   string   `json:"error,omitempty"`
}

const (
	frameHello = "hello"
	frameCmd   = "cmd"
	frameEvent = "event"
)

// Gateway events the client reacts to. ready completes the handshake;
// joined and parted keep the channel membership view current.
const (
	eventReady  = "ready"
	eventJoined = "joined"
	eventParted = "parted"
)
