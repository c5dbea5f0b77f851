// Package spool is the durable job store: one JSON file per mail job, moved
// between ready/, done/ and failed/ directories as it progresses, plus a
// file-backed idempotency index. Every write goes through a temp file and an
// atomic rename, so a concurrent reader never sees a partial record. The spool
// assumes a single worker process owns the directory tree.
package spool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"mailspool/internal/models"
)

type Location string

const (
	LocationReady  Location = "ready"
	LocationDone   Location = "done"
	LocationFailed Location = "failed"

	indexFile = "index.json"
)

// EnqueueSpec is everything a producer supplies to create a job.
type EnqueueSpec struct {
	Message      models.Message
	FormType     string
	Meta         map[string]interface{}
	CleanupPaths []string
}

type Store struct {
	dir string

	mu    sync.Mutex
	index map[string]string // idempotency key -> jobId

	now func() time.Time
}

func New(dir string) (*Store, error) {
	for _, loc := range []Location{LocationReady, LocationDone, LocationFailed} {
		if err := os.MkdirAll(filepath.Join(dir, string(loc)), 0o755); err != nil {
			return nil, fmt.Errorf("create spool dir %s: %w", loc, err)
		}
	}

	s := &Store{
		dir:   dir,
		index: make(map[string]string),
		now:   time.Now,
	}

	if err := s.loadIndex(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) loadIndex() error {
	raw, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read idempotency index: %w", err)
	}
	if err := json.Unmarshal(raw, &s.index); err != nil {
		return fmt.Errorf("parse idempotency index: %w", err)
	}
	return nil
}

// Enqueue creates a new queued job, or returns the already-bound job when the
// idempotency key has been seen before. The job record is written before the
// index so a crash between the two leaves at most a duplicate job, never an
// index entry pointing at nothing.
func (s *Store) Enqueue(idempotencyKey string, spec EnqueueSpec) (models.EnqueueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idempotencyKey != "" {
		if jobID, ok := s.index[idempotencyKey]; ok {
			return models.EnqueueResult{OK: true, JobID: jobID, Deduped: true}, nil
		}
	}

	now := s.now()
	job := &models.MailJob{
		ID:             uuid.NewString(),
		IdempotencyKey: idempotencyKey,
		Status:         models.StatusQueued,
		Attempts:       0,
		NextAttemptAt:  now.UnixMilli(),
		Message:        spec.Message,
		FormType:       spec.FormType,
		Meta:           spec.Meta,
		CleanupPaths:   spec.CleanupPaths,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.writeJob(LocationReady, job); err != nil {
		return models.EnqueueResult{}, err
	}

	if idempotencyKey != "" {
		s.index[idempotencyKey] = job.ID
		if err := s.writeIndex(); err != nil {
			return models.EnqueueResult{}, err
		}
	}

	return models.EnqueueResult{OK: true, JobID: job.ID, Deduped: false}, nil
}

// ListReady returns the file names of all jobs currently in ready/. The order
// is whatever the directory listing yields; callers must not rely on it.
func (s *Store) ListReady() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, string(LocationReady)))
	if err != nil {
		return nil, fmt.Errorf("list ready jobs: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Load reads one ready job. ok is false when the record is missing or cannot
// be parsed; such a job is unprocessable and the caller moves it to failed.
func (s *Store) Load(name string) (job *models.MailJob, ok bool) {
	raw, err := os.ReadFile(filepath.Join(s.dir, string(LocationReady), name))
	if err != nil {
		return nil, false
	}
	job = &models.MailJob{}
	if err := json.Unmarshal(raw, job); err != nil {
		return nil, false
	}
	return job, true
}

// Save overwrites a ready job in place, stamping UpdatedAt.
func (s *Store) Save(name string, job *models.MailJob) error {
	job.UpdatedAt = s.now()
	return s.writeFile(filepath.Join(s.dir, string(LocationReady), name), job)
}

// Move relocates a job file from ready/ to done/ or failed/. A rename is the
// sole mechanism that removes a job from the ready set.
func (s *Store) Move(name string, dest Location) error {
	from := filepath.Join(s.dir, string(LocationReady), name)
	to := filepath.Join(s.dir, string(dest), name)
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("move job to %s: %w", dest, err)
	}
	return nil
}

func (s *Store) writeJob(loc Location, job *models.MailJob) error {
	return s.writeFile(filepath.Join(s.dir, string(loc), job.ID+".json"), job)
}

func (s *Store) writeIndex() error {
	return s.writeFile(filepath.Join(s.dir, indexFile), s.index)
}

// writeFile marshals v and renames a temp file over the destination so readers
// never observe a partially written record.
func (s *Store) writeFile(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best effort
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
