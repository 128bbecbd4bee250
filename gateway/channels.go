package gateway

import (
	"strings"
	"sync"
)

// channelSet tracks which channels the gateway currently has us joined to.
// The read loop mutates it from server events; the dispatch loop reads it
// through Client.Joined. Names compare case-insensitively.
type channelSet struct {
	mu sync.RWMutex
	m  map[string]struct{}
}

func newChannelSet() *channelSet {
	return &channelSet{m: make(map[string]struct{})}
}

func (s *channelSet) add(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[strings.ToLower(name)] = struct{}{}
}

func (s *channelSet) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, strings.ToLower(name))
}

// clear empties the set. The gateway forgets our joins when the connection
// drops, so the view resets with it.
func (s *channelSet) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[string]struct{})
}

func (s *channelSet) joined(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[strings.ToLower(name)]
	return ok
}
