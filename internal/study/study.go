// Package study persists analysis workspaces: normalized datasets and the
// NCA runs performed on them.
package study

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/nca-cli/internal/dataset"
	"github.com/KaramelBytes/nca-cli/internal/parser"
	"github.com/KaramelBytes/nca-cli/internal/report"
	"github.com/KaramelBytes/nca-cli/internal/utils"
)

const (
	studyFileName = "study.json"
	datasetsDir   = "datasets"
	runsDir       = "runs"
)

// ErrNotFound is returned when a study, dataset or run does not exist.
var ErrNotFound = errors.New("not found")

// Study represents a workspace persisted on disk.
type Study struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Datasets    map[string]*DatasetRef `json:"datasets"`
	Runs        []*Run                 `json:"runs"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`

	// Not serialized: on-disk location of the study.json
	rootDir string `json:"-"`
}

// DatasetRef describes a dataset stored in the study as canonical CSV.
type DatasetRef struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Source       string    `json:"source"`
	Description  string    `json:"description"`
	File         string    `json:"file"`
	Subjects     int       `json:"subjects"`
	Observations int       `json:"observations"`
	AddedAt      time.Time `json:"added_at"`
}

// Run records one NCA report produced from a stored dataset.
type Run struct {
	ID        string         `json:"id"`
	DatasetID string         `json:"dataset_id"`
	Format    string         `json:"format"`
	File      string         `json:"file"`
	Params    report.Params  `json:"params"`
	Excluded  map[string]int `json:"excluded,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// New constructs an in-memory study. Call Save() to persist.
func New(name, description, rootDir string) *Study {
	now := time.Now()
	return &Study{
		Name:        name,
		Description: description,
		Datasets:    make(map[string]*DatasetRef),
		CreatedAt:   now,
		UpdatedAt:   now,
		rootDir:     rootDir,
	}
}

// Load loads a study.json from the provided directory.
func Load(dir string) (*Study, error) {
	path := filepath.Join(dir, studyFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("study at %s: %w", dir, ErrNotFound)
		}
		return nil, fmt.Errorf("read study: %w", err)
	}
	var s Study
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse study: %w", err)
	}
	if s.Datasets == nil {
		s.Datasets = make(map[string]*DatasetRef)
	}
	s.rootDir = dir
	return &s, nil
}

// List returns the names of the studies under studiesDir, sorted.
func List(studiesDir string) ([]string, error) {
	entries, err := os.ReadDir(studiesDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read studies dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(studiesDir, e.Name(), studyFileName)); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// RootDir returns the on-disk study directory path.
func (s *Study) RootDir() string { return s.rootDir }

// Save writes study.json using atomic write.
func (s *Study) Save() error {
	if s.rootDir == "" {
		return errors.New("study root directory not set")
	}
	s.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(s)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(s.rootDir, studyFileName), data)
}

// AddDataset parses and validates a data file, stores a normalized copy in
// the study and records it. The study must be saved afterwards.
func (s *Study) AddDataset(path, description string, opt parser.Options) (*DatasetRef, *dataset.Dataset, error) {
	if s.rootDir == "" {
		return nil, nil, errors.New("study root directory not set")
	}
	tab, err := parser.ParseFile(path, opt)
	if err != nil {
		return nil, nil, fmt.Errorf("parse dataset: %w", err)
	}
	ds, err := dataset.FromTable(tab)
	if err != nil {
		return nil, nil, fmt.Errorf("validate dataset: %w", err)
	}

	id := uuid.NewString()
	rel := filepath.Join(datasetsDir, id+".csv")
	var sb strings.Builder
	if err := dataset.WriteCSV(&sb, ds.Observations()); err != nil {
		return nil, nil, err
	}
	if err := utils.SafeWriteFile(filepath.Join(s.rootDir, rel), []byte(sb.String())); err != nil {
		return nil, nil, fmt.Errorf("store dataset: %w", err)
	}
	ref := &DatasetRef{
		ID:           id,
		Name:         filepath.Base(path),
		Source:       path,
		Description:  strings.TrimSpace(description),
		File:         rel,
		Subjects:     len(ds.Subjects()),
		Observations: ds.Len(),
		AddedAt:      time.Now(),
	}
	if s.Datasets == nil {
		s.Datasets = make(map[string]*DatasetRef)
	}
	s.Datasets[id] = ref
	s.UpdatedAt = time.Now()
	return ref, ds, nil
}

// FindDataset resolves a dataset by id, id prefix or file name.
func (s *Study) FindDataset(key string) (*DatasetRef, error) {
	if ref, ok := s.Datasets[key]; ok {
		return ref, nil
	}
	var match *DatasetRef
	for _, id := range s.DatasetIDs() {
		ref := s.Datasets[id]
		if strings.HasPrefix(id, key) || ref.Name == key {
			if match != nil {
				return nil, fmt.Errorf("dataset %q is ambiguous", key)
			}
			match = ref
		}
	}
	if match == nil {
		return nil, fmt.Errorf("dataset %q: %w", key, ErrNotFound)
	}
	return match, nil
}

// DatasetIDs returns dataset ids ordered by time added.
func (s *Study) DatasetIDs() []string {
	ids := make([]string, 0, len(s.Datasets))
	for id := range s.Datasets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.Datasets[ids[i]], s.Datasets[ids[j]]
		if a.AddedAt.Equal(b.AddedAt) {
			return ids[i] < ids[j]
		}
		return a.AddedAt.Before(b.AddedAt)
	})
	return ids
}

// LoadDataset reads a stored dataset back.
func (s *Study) LoadDataset(id string) (*dataset.Dataset, error) {
	ref, err := s.FindDataset(id)
	if err != nil {
		return nil, err
	}
	tab, err := parser.ParseFile(filepath.Join(s.rootDir, ref.File), parser.Options{})
	if err != nil {
		return nil, fmt.Errorf("read stored dataset: %w", err)
	}
	return dataset.FromTable(tab)
}

// AddRun writes r under the study's runs directory and records it against
// datasetID. The study must be saved afterwards.
func (s *Study) AddRun(datasetID string, r *report.Report, format string) (*Run, error) {
	if _, ok := s.Datasets[datasetID]; !ok {
		return nil, fmt.Errorf("dataset %q: %w", datasetID, ErrNotFound)
	}
	id := r.ID.String()
	abs, err := report.WriteFile(filepath.Join(s.rootDir, runsDir, id), format, r)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(s.rootDir, abs)
	if err != nil {
		rel = abs
	}
	run := &Run{
		ID:        id,
		DatasetID: datasetID,
		Format:    format,
		File:      rel,
		Params:    r.Params,
		CreatedAt: r.CreatedAt,
	}
	for _, sec := range r.Sections {
		if len(sec.Excluded) > 0 {
			if run.Excluded == nil {
				run.Excluded = make(map[string]int)
			}
			run.Excluded[sec.Label] = len(sec.Excluded)
		}
	}
	s.Runs = append(s.Runs, run)
	s.UpdatedAt = time.Now()
	return run, nil
}
