package models

import (
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// IDSource issues signal IDs. Implementations are safe for concurrent use.
type IDSource interface {
	NewID(symbol string) string
}

// RandomIDs issues random v4 UUIDs.
type RandomIDs struct{}

func (RandomIDs) NewID(string) string { return uuid.NewString() }

// SeededIDs issues reproducible v4 UUIDs. Each symbol draws from its own
// stream, so the order in which symbols are processed does not change the
// IDs any one symbol receives.
type SeededIDs struct {
	seed    int64
	mu      sync.Mutex
	streams map[string]*rand.Rand
}

func NewSeededIDs(seed int64) *SeededIDs {
	return &SeededIDs{seed: seed, streams: make(map[string]*rand.Rand)}
}

func (s *SeededIDs) NewID(symbol string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.streams[symbol]
	if !ok {
		h := fnv.New64a()
		_, _ = h.Write([]byte(symbol))
		r = rand.New(rand.NewSource(s.seed ^ int64(h.Sum64())))
		s.streams[symbol] = r
	}
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// DerivedID returns a name-based UUID for a set of parent IDs. The same
// parents always give the same ID.
func DerivedID(parents []string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(parents, ","))).String()
}
