package linkbot

import (
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/teslashibe/go-linkbot/pkg/protocol"
)

// pendingCommand tracks an outgoing command awaiting its reply.
type pendingCommand struct {
	requestID string
	serial    string
	msgType   protocol.MessageType
	issued    time.Time

	// complete decodes the reply payload and fires the caller's callback.
	complete func(reply *protocol.Message) error
}

// pendingTable holds the in-flight commands of one robot or of the session.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingCommand
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		entries: make(map[string]*pendingCommand, 8),
	}
}

func (p *pendingTable) add(cmd *pendingCommand) {
	p.mu.Lock()
	p.entries[cmd.requestID] = cmd
	p.mu.Unlock()
}

// claim removes and returns the command for requestID. A command can be
// claimed once.
func (p *pendingTable) claim(requestID string) (*pendingCommand, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd, ok := p.entries[requestID]
	if ok {
		delete(p.entries, requestID)
	}
	return cmd, ok
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// moveTo transfers every entry to dst and returns how many moved.
func (p *pendingTable) moveTo(dst *pendingTable) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	dst.mu.Lock()
	defer dst.mu.Unlock()

	n := len(p.entries)
	for id, cmd := range p.entries {
		dst.entries[id] = cmd
		delete(p.entries, id)
	}
	return n
}

// expire removes every command issued before cutoff, oldest first.
func (p *pendingTable) expire(cutoff time.Time) []*pendingCommand {
	p.mu.Lock()
	var expired []*pendingCommand
	for id, cmd := range p.entries {
		if cmd.issued.Before(cutoff) {
			expired = append(expired, cmd)
			delete(p.entries, id)
		}
	}
	p.mu.Unlock()

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].issued.Before(expired[j].issued)
	})
	return expired
}

// generateRequestID creates a unique, time-ordered request ID.
func generateRequestID() string {
	return ulid.Make().String()
}
