package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"weathercollect/pkg/errors"
	"weathercollect/pkg/logger"
)

// Store loads and saves checkpoint documents under a single directory.
// Documents are cached in memory after the first load, and every
// read-modify-write cycle runs under a per-document mutex so concurrent
// workers never clobber each other's updates.
type Store struct {
	dir    string
	logger logger.Logger

	mu    sync.Mutex
	docs  map[string]*Document
	locks map[string]*sync.Mutex
}

// NewStore creates a store rooted at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.CheckpointIO("failed to create checkpoint directory: %v", err)
	}
	return &Store{
		dir:    dir,
		logger: logger.GetLogger(),
		docs:   make(map[string]*Document),
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Path returns the on-disk path for a key's document.
func (s *Store) Path(key Key) string {
	return filepath.Join(s.dir, key.Filename())
}

func (s *Store) lockFor(filename string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[filename]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[filename] = lock
	}
	return lock
}

// load returns the cached document for key, reading it from disk on first
// access and starting a fresh one when no file exists. Callers must hold
// the key's lock.
func (s *Store) load(key Key) (*Document, error) {
	filename := key.Filename()

	s.mu.Lock()
	doc, ok := s.docs[filename]
	s.mu.Unlock()
	if ok {
		return doc, nil
	}

	doc, err := s.read(key)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = NewDocument(key)
	}

	s.mu.Lock()
	s.docs[filename] = doc
	s.mu.Unlock()
	return doc, nil
}

// read decodes the document from disk, returning nil when no file exists.
func (s *Store) read(key Key) (*Document, error) {
	file, err := os.Open(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.CheckpointIO("failed to open checkpoint %s: %v", key, err)
	}
	defer file.Close()

	var doc Document
	if err := json.NewDecoder(file).Decode(&doc); err != nil {
		return nil, errors.CheckpointIO("failed to decode checkpoint %s: %v", key, err)
	}
	doc.normalize()

	s.logger.DebugWithFields("Checkpoint loaded", map[string]interface{}{
		"checkpoint": key.String(),
		"completed":  doc.Stats.CompletedTasks,
		"failed":     doc.Stats.FailedTasks,
	})
	return &doc, nil
}

// save writes the document to disk atomically, stamping last_updated so
// every persisted change carries a fresh timestamp. Callers must hold
// the key's lock.
func (s *Store) save(key Key, doc *Document) error {
	doc.LastUpdated = time.Now().UTC()

	path := s.Path(key)
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return errors.CheckpointIO("failed to create temporary checkpoint file: %v", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errors.CheckpointIO("failed to encode checkpoint %s: %v", key, err)
	}

	// Ensure data is written to disk before the rename
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errors.CheckpointIO("failed to sync checkpoint file: %v", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return errors.CheckpointIO("failed to close checkpoint file: %v", err)
	}

	// Atomically replace the old checkpoint file
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errors.CheckpointIO("failed to replace checkpoint file: %v", err)
	}
	return nil
}

// Update runs fn against the key's document under its lock and persists
// the result when fn reports a change. Returning false from fn skips the
// disk write, keeping repeated no-op updates cheap.
func (s *Store) Update(key Key, fn func(doc *Document) (changed bool, err error)) error {
	lock := s.lockFor(key.Filename())
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.load(key)
	if err != nil {
		return err
	}
	changed, err := fn(doc)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.save(key, doc)
}

// View runs fn against the key's document under its lock without
// persisting anything. fn must not retain or mutate the document.
func (s *Store) View(key Key, fn func(doc *Document) error) error {
	lock := s.lockFor(key.Filename())
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.load(key)
	if err != nil {
		return err
	}
	return fn(doc)
}

// Exists reports whether a checkpoint file is on disk for the key.
func (s *Store) Exists(key Key) bool {
	_, err := os.Stat(s.Path(key))
	return err == nil
}

// Delete removes the key's document from disk and memory.
func (s *Store) Delete(key Key) error {
	lock := s.lockFor(key.Filename())
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
		return errors.CheckpointIO("failed to delete checkpoint %s: %v", key, err)
	}
	s.mu.Lock()
	delete(s.docs, key.Filename())
	s.mu.Unlock()
	return nil
}

// ClearCache drops every cached document, forcing the next access to
// re-read from disk.
func (s *Store) ClearCache() {
	s.mu.Lock()
	s.docs = make(map[string]*Document)
	s.mu.Unlock()
}
