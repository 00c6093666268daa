package gamedata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// tableFile is the on-disk layout of one lookup-table file. Every section is
// optional; a directory's files are merged.
type tableFile struct {
	Species         []*Species       `yaml:"species"`
	Passives        []*PassiveSkill  `yaml:"passives"`
	Elements        []*Element       `yaml:"elements"`
	WorkTypes       []*WorkType      `yaml:"work_types"`
	TrustThresholds []TrustThreshold `yaml:"trust_thresholds"`
	MapPoints       []MapPoint       `yaml:"map_points"`
}

// DirSource loads tables from every *.yaml file in Dir.
type DirSource struct {
	Dir string
}

// LoadTables implements Source.
func (s DirSource) LoadTables(ctx context.Context) (*Tables, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadDir(s.Dir)
}

// LoadDir reads and merges every *.yaml file in dir.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns merged tables, or an error naming the file on parse
// failure, empty ids, or ids defined twice.
func LoadDir(dir string) (*Tables, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading gamedata dir %q: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && (strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	sort.Strings(paths)

	t := NewTables()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var tf tableFile
		if err := yaml.Unmarshal(data, &tf); err != nil {
			return nil, fmt.Errorf("parsing gamedata file %q: %w", path, err)
		}
		if err := t.merge(&tf); err != nil {
			return nil, fmt.Errorf("gamedata file %q: %w", path, err)
		}
	}
	t.sortThresholds()
	return t, nil
}

func addUnique[T any](dst map[string]*T, table string, items []*T, id func(*T) string) error {
	for _, it := range items {
		key := id(it)
		if key == "" {
			return fmt.Errorf("%s entry with empty id", table)
		}
		if _, dup := dst[key]; dup {
			return fmt.Errorf("%s %q defined twice", table, key)
		}
		dst[key] = it
	}
	return nil
}

func (t *Tables) merge(tf *tableFile) error {
	if err := addUnique(t.Species, TableSpecies, tf.Species, func(s *Species) string { return s.ID }); err != nil {
		return err
	}
	if err := addUnique(t.Passives, TablePassive, tf.Passives, func(p *PassiveSkill) string { return p.ID }); err != nil {
		return err
	}
	if err := addUnique(t.Elements, TableElement, tf.Elements, func(e *Element) string { return e.ID }); err != nil {
		return err
	}
	if err := addUnique(t.WorkTypes, TableWorkType, tf.WorkTypes, func(w *WorkType) string { return w.ID }); err != nil {
		return err
	}
	t.TrustThresholds = append(t.TrustThresholds, tf.TrustThresholds...)
	t.MapPoints = append(t.MapPoints, tf.MapPoints...)
	return nil
}
