package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultStorageFileName = ".usdc-bridge-history.json"
)

// ErrNotFound is returned when no record matches
var ErrNotFound = errors.New("record not found")

// Storage handles persistence of bridge records
type Storage struct {
	filePath string
	mu       sync.RWMutex
	records  map[string]*Record
	now      func() time.Time
}

// fileFormat represents the JSON structure for storage
type fileFormat struct {
	Records map[string]*Record `json:"records"`
}

// NewStorage creates a new storage instance, empty filePath means the home directory default
func NewStorage(filePath string) (*Storage, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultStorageFileName)
	}

	s := &Storage{
		filePath: filePath,
		records:  make(map[string]*Record),
		now:      time.Now,
	}

	// A missing file is created on first save
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	return s, nil
}

// load reads records from the storage file
func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}

	s.records = f.Records
	if s.records == nil {
		s.records = make(map[string]*Record)
	}
	return nil
}

// saveLocked writes records to the storage file. Callers hold mu.
func (s *Storage) saveLocked() error {
	data, err := json.MarshalIndent(fileFormat{Records: s.records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Add stores a new record, assigning its ID and timestamps
func (s *Storage) Add(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("record '%s' already exists", rec.ID)
	}

	now := s.now()
	rec.Created = now
	rec.LastUpdated = now
	s.records[rec.ID] = rec

	return s.saveLocked()
}

// Get retrieves a record by ID
func (s *Storage) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// Lookup accepts either a record ID or a source-chain transaction hash
func (s *Storage) Lookup(ref string) (*Record, error) {
	if rec, err := s.Get(ref); err == nil {
		return rec, nil
	}
	return s.FindByTxHash(ref)
}

// FindByTxHash retrieves the record of a source-chain transaction
func (s *Storage) FindByTxHash(hash string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if strings.EqualFold(rec.Result.TxHash, hash) {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
}

// Update replaces an existing record
func (s *Storage) Update(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, rec.ID)
	}

	rec.LastUpdated = s.now()
	s.records[rec.ID] = rec

	return s.saveLocked()
}

// List returns all records, newest first
func (s *Storage) List() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Created.After(records[j].Created)
	})
	return records
}

// Count returns the total number of records
func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// GetFilePath returns the storage file path
func (s *Storage) GetFilePath() string {
	return s.filePath
}
