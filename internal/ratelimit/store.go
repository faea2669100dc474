package ratelimit

// MemoryStore 基于 map 的 Store 实现
type MemoryStore struct {
	records map[string]Record
}

// NewMemoryStore 创建空的内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(key string) (Record, bool) {
	rec, ok := s.records[key]
	return rec, ok
}

func (s *MemoryStore) Put(key string, rec Record) {
	s.records[key] = rec
}

func (s *MemoryStore) Delete(key string) {
	delete(s.records, key)
}

func (s *MemoryStore) Range(fn func(key string, rec Record) bool) {
	for key, rec := range s.records {
		if !fn(key, rec) {
			return
		}
	}
}
