package truststore

import "sync"

// MemoryStore is an in-memory Store, suitable for tests and single-process
// deployments that do not need persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	locks   *domainLocks
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		locks:   newDomainLocks(),
	}
}

// Get returns the record for a domain, or ErrNotFound.
func (s *MemoryStore) Get(domain string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[NormalizeDomain(domain)]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Put stores a record for a domain, overwriting any prior record.
func (s *MemoryStore) Put(domain string, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[NormalizeDomain(domain)] = rec.Clone()
	return nil
}

// Update applies fn under the domain's lock.
func (s *MemoryStore) Update(domain string, fn func(prev *Record) (*Record, error)) error {
	key := NormalizeDomain(domain)
	unlock := s.locks.lock(key)
	defer unlock()

	s.mu.RLock()
	prev := s.records[key].Clone()
	s.mu.RUnlock()

	next, err := fn(prev)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	s.mu.Lock()
	s.records[key] = next.Clone()
	s.mu.Unlock()
	return nil
}

// List returns all records.
func (s *MemoryStore) List() ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

// domainLocks hands out one mutex per domain so that read-modify-write
// cycles on the same record are serialized while different domains proceed
// independently.
type domainLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newDomainLocks() *domainLocks {
	return &domainLocks{locks: make(map[string]*sync.Mutex)}
}

func (d *domainLocks) lock(domain string) (unlock func()) {
	d.mu.Lock()
	m, ok := d.locks[domain]
	if !ok {
		m = &sync.Mutex{}
		d.locks[domain] = m
	}
	d.mu.Unlock()

	m.Lock()
	return m.Unlock
}
