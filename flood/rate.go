package flood

import (
	"time"

	"github.com/quenchbot/floodgate/buffer"
)

// RateModel computes the pacing delay a dispatched message imposes before
// the next send. Only privmsg carries a delay; it grows with the text length
// and saturates at Max.
type RateModel struct {
	Base        time.Duration // floor for every rate-limited send
	Max         time.Duration // ceiling the delay clamps to
	BytesPerSec float64       // budgeted text throughput
}

// DefaultRateModel returns the stock pacing: half a second plus one second
// per 35 bytes of text, clamped to four seconds.
func DefaultRateModel() RateModel {
	return RateModel{Base: 500 * time.Millisecond, Max: 4 * time.Second, BytesPerSec: 35}
}

// DelayFor returns the required gap after sending m. Verbs that are not rate
// limited, and messages too malformed to carry text, cost nothing.
func (r RateModel) DelayFor(m *buffer.Message) time.Duration {
	if m.Command() != buffer.CmdPrivmsg || m.NArgs() < 2 {
		return 0
	}
	delay := r.Base
	if r.BytesPerSec > 0 {
		delay += time.Duration(float64(len(m.Text())) / r.BytesPerSec * float64(time.Second))
	}
	if delay > r.Max {
		delay = r.Max
	}
	return delay
}
