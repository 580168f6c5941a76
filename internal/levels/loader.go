package levels

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader manages loading and caching of level definitions. Level data is
// authored outside this service and handed in read-only.
type Loader struct {
	mu     sync.RWMutex
	levels map[string]*Level
	order  []string
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{levels: make(map[string]*Level)}
}

// LoadFromDir loads all YAML level files from a directory.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading levels from directory", "dir", dir)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load level", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("levels loaded", "count", loaded, "total_files", len(files))
	return nil
}

// LoadFromFile loads a single level definition from a YAML file.
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var lvl Level
	if err := yaml.Unmarshal(data, &lvl); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validate(&lvl); err != nil {
		return fmt.Errorf("invalid level %q: %w", lvl.Name, err)
	}

	normalize(&lvl)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.levels[lvl.Name]; !exists {
		l.order = append(l.order, lvl.Name)
	}
	l.levels[lvl.Name] = &lvl

	return nil
}

// validate checks the authoring invariants.
func validate(lvl *Level) error {
	if lvl.Name == "" {
		return fmt.Errorf("level name is required")
	}
	if lvl.MaxPoints < 0 {
		return fmt.Errorf("max_points must not be negative")
	}
	if len(lvl.Scenarios) == 0 {
		return fmt.Errorf("at least one scenario is required")
	}

	seen := make(map[string]bool)
	for _, sc := range lvl.Scenarios {
		if sc.ID == "" {
			return fmt.Errorf("scenario id is required")
		}
		if seen[sc.ID] {
			return fmt.Errorf("duplicate scenario id %q", sc.ID)
		}
		seen[sc.ID] = true
		if sc.Dimensions.Width <= 0 || sc.Dimensions.Height <= 0 {
			return fmt.Errorf("scenario %q dimensions must be positive", sc.ID)
		}
	}

	return nil
}

// normalize clamps thresholds to [0,100] and sorts them ascending by
// accuracy. Ties keep their original order.
func normalize(lvl *Level) {
	for i := range lvl.Thresholds {
		lvl.Thresholds[i].Accuracy = clamp(lvl.Thresholds[i].Accuracy)
		lvl.Thresholds[i].PointsPercent = clamp(lvl.Thresholds[i].PointsPercent)
	}
	sort.SliceStable(lvl.Thresholds, func(i, j int) bool {
		return lvl.Thresholds[i].Accuracy < lvl.Thresholds[j].Accuracy
	})
	for i := range lvl.Scenarios {
		if lvl.Scenarios[i].Dimensions.Unit == "" {
			lvl.Scenarios[i].Dimensions.Unit = "px"
		}
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Get retrieves a level by name, or nil.
func (l *Loader) Get(name string) *Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.levels[name]
}

// List returns all levels in load order.
func (l *Loader) List() []*Level {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Level, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.levels[name])
	}
	return out
}
