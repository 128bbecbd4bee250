// Package buffer implements the outbound message buffer: a priority queue of
// pending sends ordered by creation time, purged of stale entries so a slow
// connection never accumulates an unbounded backlog.
package buffer

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Command identifies the protocol verb of an outbound message.
type Command string

const (
	CmdJoin    Command = "join"
	CmdMode    Command = "mode"
	CmdPrivmsg Command = "privmsg"
	CmdNotice  Command = "notice"
	CmdTopic   Command = "topic"
	CmdWho     Command = "who"
	CmdWhois   Command = "whois"
)

// systemMarker prefixes notices synthesized by the purge pass so later passes
// never count them as user traffic.
const systemMarker = "--"

var ErrEmptyCommand = errors.New("floodgate: empty command")

// Message is one pending outbound send. Messages are immutable after
// construction; the queue orders them by (timestamp, insertion sequence) and
// identifies them by pointer across peek/dispatch/pop.
type Message struct {
	command   Command
	args      []string
	timestamp time.Time
}

// NewMessage builds a message stamped with the current time.
func NewMessage(command Command, args ...string) (*Message, error) {
	return NewMessageAt(command, time.Now(), args...)
}

// NewMessageAt builds a message with an explicit timestamp.
func NewMessageAt(command Command, at time.Time, args ...string) (*Message, error) {
	if command == "" {
		return nil, ErrEmptyCommand
	}
	return &Message{command: command, args: slices.Clone(args), timestamp: at}, nil
}

func (m *Message) Command() Command     { return m.command }
func (m *Message) Timestamp() time.Time { return m.timestamp }
func (m *Message) NArgs() int           { return len(m.args) }

// Arg returns the i-th argument, or "" when out of range.
func (m *Message) Arg(i int) string {
	if i < 0 || i >= len(m.args) {
		return ""
	}
	return m.args[i]
}

// Args returns a copy of the argument list.
func (m *Message) Args() []string { return slices.Clone(m.args) }

// Target returns the destination of a privmsg/notice-class message.
func (m *Message) Target() string { return m.Arg(0) }

// Text returns the body of a privmsg/notice-class message.
func (m *Message) Text() string { return m.Arg(1) }

// IsSystemMessage reports whether m is a synthetic notice generated by the
// purge pass: a privmsg or notice whose text carries the reserved -- marker.
func (m *Message) IsSystemMessage() bool {
	if m.command != CmdPrivmsg && m.command != CmdNotice {
		return false
	}
	return strings.HasPrefix(m.Text(), systemMarker)
}

func (m *Message) String() string {
	return fmt.Sprintf("[%s] %s %q", m.timestamp.Format("01-02 15:04:05"), m.command, m.args)
}

// IsChannel reports whether target names a channel rather than a user.
// Channel names start with one of the # & + ! sigils.
func IsChannel(target string) bool {
	if target == "" {
		return false
	}
	switch target[0] {
	case '#', '&', '+', '!':
		return true
	}
	return false
}
