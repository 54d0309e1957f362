package study

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const progressFile = "study_log.json"

// Session is one recorded study session, with an optional quiz score.
type Session struct {
	Date  string `json:"date"`
	Score *int   `json:"score"`
}

// Progress tracks the study history for one file.
type Progress struct {
	FirstStudied string    `json:"first_studied"`
	LastStudied  string    `json:"last_studied"`
	Sessions     []Session `json:"sessions"`
}

// ProgressRepository persists per-file study progress as a single JSON log
// under a base directory fixed at construction.
type ProgressRepository struct {
	dir string
	now func() time.Time
}

func NewProgressRepository(dir string) (*ProgressRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress directory: %w", err)
	}
	return &ProgressRepository{dir: dir, now: time.Now}, nil
}

// MarkStudied records a study session for filename, creating its entry on
// first study.
func (r *ProgressRepository) MarkStudied(filename string, score *int) error {
	progress, err := r.All()
	if err != nil {
		return err
	}

	nowStr := r.now().Format(time.RFC3339)
	entry, ok := progress[filename]
	if !ok {
		entry = Progress{FirstStudied: nowStr}
	}
	entry.Sessions = append(entry.Sessions, Session{Date: nowStr, Score: score})
	entry.LastStudied = nowStr
	progress[filename] = entry

	data, err := json.MarshalIndent(progress, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling progress: %w", err)
	}
	if err := os.WriteFile(r.path(), data, 0o644); err != nil {
		return fmt.Errorf("writing progress: %w", err)
	}
	return nil
}

// All returns the progress log for every studied file.
func (r *ProgressRepository) All() (map[string]Progress, error) {
	data, err := os.ReadFile(r.path())
	if os.IsNotExist(err) {
		return map[string]Progress{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading progress: %w", err)
	}
	var progress map[string]Progress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, fmt.Errorf("parsing progress: %w", err)
	}
	if progress == nil {
		progress = map[string]Progress{}
	}
	return progress, nil
}

func (r *ProgressRepository) path() string {
	return filepath.Join(r.dir, progressFile)
}
