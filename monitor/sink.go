package monitor

import (
	"sort"
	"strings"
	"sync"
	"time"

	"multi-serial-monitor/types"
)

// Sink is the ordered, append-only store of tagged output. Every chunk gets the next
// sequence number at append time; that number is the display order.
//
// With a capacity the oldest chunks are evicted once it is exceeded. Sequence numbers keep
// counting, so Since still works for a reader that fell behind (it just misses the evicted
// part). A zero capacity keeps all output for the life of the process.
type Sink struct {
	mu       sync.RWMutex
	chunks   []types.OutputChunk
	capacity int
	lastSeq  uint64
	subs     map[chan types.OutputChunk]bool
	now      func() time.Time
}

func NewSink(capacity int) *Sink {
	if capacity < 0 {
		capacity = 0
	}
	return &Sink{
		capacity: capacity,
		subs:     make(map[chan types.OutputChunk]bool),
		now:      time.Now,
	}
}

// Append stores one chunk and hands it to every subscriber that has room for it.
func (s *Sink) Append(source, text string) types.OutputChunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeq++
	chunk := types.OutputChunk{
		Sequence: s.lastSeq,
		Source:   source,
		Text:     text,
		Time:     s.now(),
	}
	s.chunks = append(s.chunks, chunk)
	if s.capacity > 0 && len(s.chunks) > s.capacity {
		s.chunks = s.chunks[len(s.chunks)-s.capacity:]
	}

	for client := range s.subs {
		select {
		case client <- chunk:
		default:
			// slow subscriber; it can catch up with Since
		}
	}
	return chunk
}

// Snapshot returns a copy of the retained history in display order.
func (s *Sink) Snapshot() []types.OutputChunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.OutputChunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Since returns the retained chunks with a sequence greater than seq.
func (s *Sink) Since(seq uint64) []types.OutputChunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(len(s.chunks), func(i int) bool {
		return s.chunks[i].Sequence > seq
	})
	out := make([]types.OutputChunk, len(s.chunks)-i)
	copy(out, s.chunks[i:])
	return out
}

func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *Sink) LastSequence() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq
}

// Text joins the retained history one chunk per line, as the output pane shows it.
func (s *Sink) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var b strings.Builder
	for i, c := range s.chunks {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(c.Text)
	}
	return b.String()
}

// Subscribe registers a channel that receives every chunk appended from now on.
func (s *Sink) Subscribe(buffer int) chan types.OutputChunk {
	client := make(chan types.OutputChunk, buffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[client] = true
	return client
}

func (s *Sink) Unsubscribe(client chan types.OutputChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[client] {
		delete(s.subs, client)
		close(client)
	}
}
