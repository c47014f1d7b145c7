package exchange

import (
	"sort"
	"sync"
)

// State is the narrow persistence interface the engine drives. Implementations
// must return defensive copies; the engine commits by Put-ing a fully updated
// clone after the funding leg of an operation succeeded.
type State interface {
	FactoryGet() (*Factory, bool, error)
	FactoryPut(*Factory) error
	PairGet(creationNumber uint64) (*Pair, bool, error)
	PairPut(*Pair) error
	PairList() ([]*Pair, error)
}

// MemoryState is the in-process State backend. The service runs on it by
// default; the history repository provides the durable audit trail.
type MemoryState struct {
	mu      sync.RWMutex
	factory *Factory
	pairs   map[uint64]*Pair
}

func NewMemoryState() *MemoryState {
	return &MemoryState{pairs: map[uint64]*Pair{}}
}

func (s *MemoryState) FactoryGet() (*Factory, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.factory == nil {
		return nil, false, nil
	}
	return s.factory.Clone(), true, nil
}

func (s *MemoryState) FactoryPut(f *Factory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factory = f.Clone()
	return nil
}

func (s *MemoryState) PairGet(creationNumber uint64) (*Pair, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pairs[creationNumber]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (s *MemoryState) PairPut(p *Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs[p.CreationNumber] = p.Clone()
	return nil
}

func (s *MemoryState) PairList() ([]*Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Pair, 0, len(s.pairs))
	for _, p := range s.pairs {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreationNumber < out[j].CreationNumber })
	return out, nil
}
