package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mahino/scalar"
)

const (
	ruleSetsFile  = "rule_sets.json"
	responsesFile = "responses.json"
)

// FileStore persists rule sets and generation history as JSON files in
// one directory. Each rule set keeps a FIFO of prior revisions and each
// rule set id keeps a FIFO of generated responses, newest first, both
// capped by configuration.
type FileStore struct {
	mu            sync.RWMutex
	dir           string
	ruleLimit     int
	responseLimit int
	logger        *zap.SugaredLogger
}

type fileRuleEntry struct {
	Current *scalar.RuleSetDocument   `json:"current"`
	History []*scalar.RuleSetDocument `json:"history,omitempty"`
}

// NewFileStore creates the store and its directory.
func NewFileStore(cfg scalar.StorageConfig, logger *zap.SugaredLogger) (*FileStore, error) {
	if logger == nil {
		logger = zap.S()
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, scalar.NewStoreError("failed to create storage directory", err)
	}
	return &FileStore{
		dir:           cfg.Directory,
		ruleLimit:     cfg.RuleHistoryLimit,
		responseLimit: cfg.ResponseLimit,
		logger:        logger,
	}, nil
}

// Load returns the current revision of a stored rule set.
func (s *FileStore) Load(ctx context.Context, id string) (*scalar.RuleSetDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.readRuleEntries()
	if err != nil {
		return nil, err
	}
	entry, ok := entries[id]
	if !ok || entry.Current == nil {
		return nil, scalar.NewRuleSetNotFoundError(id)
	}
	return entry.Current, nil
}

// Save stores a rule set revision. The previous current revision is
// pushed onto the history, which is trimmed to the configured limit.
func (s *FileStore) Save(ctx context.Context, doc *scalar.RuleSetDocument) error {
	if doc == nil || doc.ID == "" {
		return scalar.NewStoreError("rule set document needs an id", nil)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return scalar.NewStoreError("failed to encode rule set", err)
	}
	if err := scalar.ValidateRuleSetDocument(raw); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readRuleEntries()
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	stored := *doc
	stored.UpdatedAt = now
	entry := entries[doc.ID]
	if entry.Current != nil {
		stored.CreatedAt = entry.Current.CreatedAt
		entry.History = append([]*scalar.RuleSetDocument{entry.Current}, entry.History...)
		if len(entry.History) > s.ruleLimit {
			entry.History = entry.History[:s.ruleLimit]
		}
	} else {
		stored.CreatedAt = now
	}
	entry.Current = &stored
	entries[doc.ID] = entry

	return s.writeJSON(ruleSetsFile, entries)
}

// Delete removes a rule set and its revision history.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readRuleEntries()
	if err != nil {
		return err
	}
	if _, ok := entries[id]; !ok {
		return scalar.NewRuleSetNotFoundError(id)
	}
	delete(entries, id)
	return s.writeJSON(ruleSetsFile, entries)
}

// List returns the stored rule set ids, sorted.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.readRuleEntries()
	if err != nil {
		return nil, err
	}
	ids := MapKeys(entries)
	sort.Strings(ids)
	return ids, nil
}

// RuleHistory returns prior revisions of a rule set, newest first.
func (s *FileStore) RuleHistory(ctx context.Context, id string) ([]*scalar.RuleSetDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.readRuleEntries()
	if err != nil {
		return nil, err
	}
	entry, ok := entries[id]
	if !ok {
		return nil, scalar.NewRuleSetNotFoundError(id)
	}
	return entry.History, nil
}

// Record stores one generated response at the front of its rule set's
// response list, trimming to the configured limit.
func (s *FileStore) Record(ctx context.Context, record *scalar.GenerationRecord) error {
	if record == nil {
		return scalar.NewStoreError("generation record is nil", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	responses, err := s.readResponses()
	if err != nil {
		return err
	}
	key := record.RuleSetID
	list := append([]*scalar.GenerationRecord{record}, responses[key]...)
	if len(list) > s.responseLimit {
		list = list[:s.responseLimit]
	}
	responses[key] = list
	return s.writeJSON(responsesFile, responses)
}

// Responses returns recorded responses for a rule set, newest first.
func (s *FileStore) Responses(ctx context.Context, ruleSetID string) ([]*scalar.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	responses, err := s.readResponses()
	if err != nil {
		return nil, err
	}
	return responses[ruleSetID], nil
}

func (s *FileStore) readRuleEntries() (map[string]fileRuleEntry, error) {
	entries := make(map[string]fileRuleEntry)
	if err := s.readJSON(ruleSetsFile, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *FileStore) readResponses() (map[string][]*scalar.GenerationRecord, error) {
	responses := make(map[string][]*scalar.GenerationRecord)
	if err := s.readJSON(responsesFile, &responses); err != nil {
		return nil, err
	}
	return responses, nil
}

func (s *FileStore) readJSON(name string, target any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return scalar.NewStoreError(fmt.Sprintf("failed to read %s", name), err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return scalar.NewStoreError(fmt.Sprintf("failed to parse %s", name), err)
	}
	return nil
}

// writeJSON writes via a temp file and rename so readers never observe a
// partial file.
func (s *FileStore) writeJSON(name string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return scalar.NewStoreError(fmt.Sprintf("failed to encode %s", name), err)
	}
	final := filepath.Join(s.dir, name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return scalar.NewStoreError(fmt.Sprintf("failed to write %s", name), err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return scalar.NewStoreError(fmt.Sprintf("failed to replace %s", name), err)
	}
	return nil
}
