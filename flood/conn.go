// Package flood paces outbound chat traffic: a dispatch loop drains the
// message buffer one send per tick, holds channel traffic until the channel
// is actually joined, and spaces sends out according to a length-based rate
// model so the server never disconnects us for flooding.
package flood

import "errors"

var (
	// ErrNotConnected is the transport-down failure a Conn reports, bare
	// or wrapped, while the connection is unavailable. The loop reacts by
	// requeueing the message and requesting a reconnect.
	ErrNotConnected = errors.New("floodgate: not connected")

	// ErrUnknownCommand marks a queued verb the dispatch table has no
	// entry for.
	ErrUnknownCommand = errors.New("floodgate: unknown command")

	// ErrMalformed marks a message whose argument list cannot satisfy its
	// verb. The loop drops such messages instead of retrying them.
	ErrMalformed = errors.New("floodgate: malformed message")
)

// Conn is the outbound half of a chat connection: one typed method per
// supported verb. Implementations report ErrNotConnected while the transport
// is down and must tolerate Connect being called repeatedly.
type Conn interface {
	IsConnected() bool
	Connect() error

	Join(channel, key string) error
	Mode(target string, modes ...string) error
	Privmsg(target, text string) error
	Notice(target, text string) error
	Topic(channel, topic string) error
	Who(mask string) error
	Whois(nick string) error
}

// Membership is the externally maintained set of currently joined channels.
// The dispatch loop only ever reads it; the connection layer keeps it
// current from server events.
type Membership interface {
	Joined(target string) bool
}
