package api

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultStoreCapacity bounds how many results the service keeps.
const DefaultStoreCapacity = 256

// QuantizationStore holds recent results. When full, the oldest entry is
// evicted.
type QuantizationStore struct {
	mu       sync.Mutex
	capacity int
	order    []string
	items    map[string]*Quantization
}

func NewQuantizationStore(capacity int) *QuantizationStore {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	return &QuantizationStore{
		capacity: capacity,
		items:    make(map[string]*Quantization),
	}
}

func (s *QuantizationStore) Put(q *Quantization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[q.ID]; !ok {
		for len(s.order) >= s.capacity {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.items, oldest)
		}
		s.order = append(s.order, q.ID)
	}
	s.items[q.ID] = q
}

func (s *QuantizationStore) Get(id string) (*Quantization, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.items[id]
	return q, ok
}

func (s *QuantizationStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *QuantizationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func newQuantizationID() string {
	return "quant_" + uuid.NewString()
}
