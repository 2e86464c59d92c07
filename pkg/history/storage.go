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

	"github.com/spf13/afero"
)

const (
	DefaultStorageFileName = ".mimic-swap-history.json"
)

var ErrAttemptNotFound = errors.New("attempt not found")

// Storage handles persistence of swap attempts
type Storage struct {
	fs       afero.Fs
	filePath string
	mu       sync.RWMutex
	attempts map[string]*Attempt
}

// AttemptStorage represents the JSON structure for storage
type AttemptStorage struct {
	Attempts map[string]*Attempt `json:"attempts"`
}

// NewStorage creates a new storage instance
func NewStorage(fs afero.Fs, filePath string) (*Storage, error) {
	if filePath == "" {
		// Default to home directory
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultStorageFileName)
	}

	storage := &Storage{
		fs:       fs,
		filePath: filePath,
		attempts: make(map[string]*Attempt),
	}

	// A missing file is created on first save
	if err := storage.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	return storage, nil
}

func (s *Storage) load() error {
	data, err := afero.ReadFile(s.fs, s.filePath)
	if err != nil {
		return err
	}

	var stored AttemptStorage
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}

	if stored.Attempts != nil {
		s.attempts = stored.Attempts
	}
	return nil
}

// save writes all attempts; the caller holds the write lock
func (s *Storage) save() error {
	data, err := json.MarshalIndent(AttemptStorage{Attempts: s.attempts}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	tempFile := s.filePath + ".tmp"
	if err := afero.WriteFile(s.fs, tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	if err := s.fs.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Create adds a new attempt to storage
func (s *Storage) Create(a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.attempts[a.ID]; exists {
		return fmt.Errorf("attempt '%s' already exists", a.ID)
	}
	s.attempts[a.ID] = a.clone()
	return s.save()
}

// Update replaces an existing attempt
func (s *Storage) Update(a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.attempts[a.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrAttemptNotFound, a.ID)
	}
	s.attempts[a.ID] = a.clone()
	return s.save()
}

// Get retrieves an attempt by id or unique id prefix
func (s *Storage) Get(id string) (*Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.attempts[id]; ok {
		return a.clone(), nil
	}

	var found *Attempt
	for key, a := range s.attempts {
		if !strings.HasPrefix(key, id) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("id prefix '%s' is ambiguous", id)
		}
		found = a
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrAttemptNotFound, id)
	}
	return found.clone(), nil
}

// FindBySig returns the attempt created for a config signature
func (s *Storage) FindBySig(sig string) (*Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.attempts {
		if strings.EqualFold(a.ConfigSig, sig) {
			return a.clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: config %s", ErrAttemptNotFound, sig)
}

// List returns all attempts, newest first
func (s *Storage) List() []*Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*Attempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		res = append(res, a.clone())
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Created.After(res[j].Created)
	})
	return res
}

// ListByStatus returns attempts filtered by status, newest first
func (s *Storage) ListByStatus(status AttemptStatus) []*Attempt {
	var res []*Attempt
	for _, a := range s.List() {
		if a.Status == status {
			res = append(res, a)
		}
	}
	return res
}

// GetFilePath returns the storage file path
func (s *Storage) GetFilePath() string {
	return s.filePath
}

func (a *Attempt) clone() *Attempt {
	c := *a
	return &c
}
