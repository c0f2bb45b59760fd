package truststore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore implements Store using one JSON file per domain.
// Default location: ~/.badgecore/trust/
type FileStore struct {
	dir   string
	mu    sync.RWMutex
	locks *domainLocks
}

// DefaultTrustDir returns the default trust store directory.
func DefaultTrustDir() string {
	if envPath := os.Getenv("BADGECORE_TRUST_PATH"); envPath != "" {
		return envPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".badgecore/trust"
	}
	return filepath.Join(home, ".badgecore", "trust")
}

// NewFileStore creates a file-backed trust store rooted at dir. An empty dir
// selects DefaultTrustDir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = DefaultTrustDir()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create trust directory: %w", err)
	}
	return &FileStore{dir: dir, locks: newDomainLocks()}, nil
}

// recordPath returns the file path for a domain's record.
func (s *FileStore) recordPath(domain string) string {
	return filepath.Join(s.dir, sanitizeFilename(NormalizeDomain(domain))+".json")
}

// Get returns the record for a domain, or ErrNotFound.
func (s *FileStore) Get(domain string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(domain)
}

func (s *FileStore) read(domain string) (*Record, error) {
	data, err := os.ReadFile(s.recordPath(domain))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read trust record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse trust record: %w", err)
	}
	return &rec, nil
}

// Put stores a record for a domain, overwriting any prior record.
func (s *FileStore) Put(domain string, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(domain, rec)
}

func (s *FileStore) write(domain string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal trust record: %w", err)
	}
	if err := os.WriteFile(s.recordPath(domain), data, 0600); err != nil {
		return fmt.Errorf("failed to write trust record: %w", err)
	}
	return nil
}

// Update applies fn under the domain's lock so concurrent re-verifications
// of the same domain cannot lose updates.
func (s *FileStore) Update(domain string, fn func(prev *Record) (*Record, error)) error {
	key := NormalizeDomain(domain)
	unlock := s.locks.lock(key)
	defer unlock()

	s.mu.RLock()
	prev, err := s.read(key)
	s.mu.RUnlock()
	if err != nil && err != ErrNotFound {
		return err
	}

	next, err := fn(prev)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(key, next)
}

// List returns all records in the store directory.
func (s *FileStore) List() ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust directory: %w", err)
	}

	var records []*Record
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue // skip corrupt entries
		}
		records = append(records, &rec)
	}
	return records, nil
}

// sanitizeFilename converts a domain to a safe filename.
func sanitizeFilename(domain string) string {
	safe := make([]byte, 0, len(domain))
	for _, c := range []byte(domain) {
		switch c {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			safe = append(safe, '_')
		default:
			safe = append(safe, c)
		}
	}
	return strings.TrimSpace(string(safe))
}
