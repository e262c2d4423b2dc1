// Package livesync keeps one consumer's view of an asset's opportunities
// current by merging a push channel and a polling fallback.
//
// Every activation bumps a versioned guard. Producers capture the guard token
// when they are spawned and every update carries it; the consumer delivers an
// update only if its token is still current, checked under the same lock that
// switches assets. A late response for a previous asset therefore can never
// reach the sink after Activate returns.
package livesync

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

// State is the lifecycle state of a sync session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StatePolling
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StatePolling:
		return "polling"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Channel names the producer an update came from.
type Channel string

const (
	ChannelPush Channel = "push"
	ChannelPoll Channel = "poll"
)

// Token identifies one activation. Updates are delivered only while their
// token is current.
type Token struct {
	Asset      string
	Generation uint64
}

// Update is one producer result. Exactly one of Report and Err is set.
type Update struct {
	Token   Token
	Channel Channel
	Report  domain.OpportunityReport
	Err     error
	At      time.Time
}

// Session is a snapshot of the manager's current session.
type Session struct {
	Asset        string    `json:"asset"`
	Channel      Channel   `json:"channel,omitempty"`
	State        State     `json:"state"`
	LastUpdateAt time.Time `json:"last_update_at"`
	Cancelled    bool      `json:"cancelled"`
}
