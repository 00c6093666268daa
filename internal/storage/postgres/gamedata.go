package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/palworld-lens/internal/gamedata"
)

// GamedataRepository stores the lookup tables in PostgreSQL.
type GamedataRepository struct {
	db *pgxpool.Pool
}

// NewGamedataRepository creates a GamedataRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewGamedataRepository(db *pgxpool.Pool) *GamedataRepository {
	return &GamedataRepository{db: db}
}

var gamedataTables = []string{"species", "passive_skills", "elements", "work_types", "trust_thresholds", "map_points"}

// Replace swaps every stored table for the contents of t in one transaction.
//
// Precondition: t must be non-nil.
// Postcondition: On error nothing is changed.
func (r *GamedataRepository) Replace(ctx context.Context, t *gamedata.Tables) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for _, table := range gamedataTables {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}

		b := &pgx.Batch{}
		for _, id := range sortedKeys(t.Species) {
			s := t.Species[id]
			elements := s.Elements
			if elements == nil {
				elements = []string{}
			}
			work := s.WorkSuitability
			if work == nil {
				work = map[string]int{}
			}
			b.Queue(`
				INSERT INTO species (id, name, elements, work_suitability, max_full_stomach,
				                     scaling_hp, scaling_attack, scaling_defense,
				                     friendship_hp, friendship_shot_attack, friendship_defense, friendship_craft_speed)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				s.ID, s.Name, elements, work, s.MaxFullStomach,
				s.Scaling.HP, s.Scaling.Attack, s.Scaling.Defense,
				s.Friendship.HP, s.Friendship.ShotAttack, s.Friendship.Defense, s.Friendship.CraftSpeed,
			)
		}
		for _, id := range sortedKeys(t.Passives) {
			p := t.Passives[id]
			b.Queue(`INSERT INTO passive_skills (id, name, description, rank) VALUES ($1, $2, $3, $4)`,
				p.ID, p.Name, p.Description, p.Rank)
		}
		for _, id := range sortedKeys(t.Elements) {
			e := t.Elements[id]
			b.Queue(`INSERT INTO elements (id, name, color) VALUES ($1, $2, $3)`, e.ID, e.Name, e.Color)
		}
		for _, id := range sortedKeys(t.WorkTypes) {
			w := t.WorkTypes[id]
			b.Queue(`INSERT INTO work_types (id, name) VALUES ($1, $2)`, w.ID, w.Name)
		}
		for _, th := range t.TrustThresholds {
			b.Queue(`INSERT INTO trust_thresholds (level, points) VALUES ($1, $2)`, th.Level, th.Points)
		}
		for i, mp := range t.MapPoints {
			b.Queue(`
				INSERT INTO map_points (position, id, kind, name, x, y, species_id, level)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				i, mp.ID, mp.Kind, mp.Name, mp.X, mp.Y, mp.SpeciesID, mp.Level)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("inserting gamedata: %w", err)
		}
		return nil
	})
}

// LoadTables implements gamedata.Source.
//
// Postcondition: Returns the stored tables; empty storage yields empty tables.
func (r *GamedataRepository) LoadTables(ctx context.Context) (*gamedata.Tables, error) {
	t := gamedata.NewTables()

	rows, err := r.db.Query(ctx, `
		SELECT id, name, elements, work_suitability, max_full_stomach,
		       scaling_hp, scaling_attack, scaling_defense,
		       friendship_hp, friendship_shot_attack, friendship_defense, friendship_craft_speed
		FROM species`)
	if err != nil {
		return nil, fmt.Errorf("querying species: %w", err)
	}
	for rows.Next() {
		var s gamedata.Species
		if err := rows.Scan(&s.ID, &s.Name, &s.Elements, &s.WorkSuitability, &s.MaxFullStomach,
			&s.Scaling.HP, &s.Scaling.Attack, &s.Scaling.Defense,
			&s.Friendship.HP, &s.Friendship.ShotAttack, &s.Friendship.Defense, &s.Friendship.CraftSpeed,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning species: %w", err)
		}
		t.Species[s.ID] = &s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading species: %w", err)
	}

	if err := collect(ctx, r.db, `SELECT id, name, description, rank FROM passive_skills`,
		func(row pgx.Rows) error {
			var p gamedata.PassiveSkill
			if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Rank); err != nil {
				return err
			}
			t.Passives[p.ID] = &p
			return nil
		}); err != nil {
		return nil, fmt.Errorf("loading passive skills: %w", err)
	}

	if err := collect(ctx, r.db, `SELECT id, name, color FROM elements`, func(row pgx.Rows) error {
		var e gamedata.Element
		if err := row.Scan(&e.ID, &e.Name, &e.Color); err != nil {
			return err
		}
		t.Elements[e.ID] = &e
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading elements: %w", err)
	}

	if err := collect(ctx, r.db, `SELECT id, name FROM work_types`, func(row pgx.Rows) error {
		var w gamedata.WorkType
		if err := row.Scan(&w.ID, &w.Name); err != nil {
			return err
		}
		t.WorkTypes[w.ID] = &w
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading work types: %w", err)
	}

	if err := collect(ctx, r.db, `SELECT level, points FROM trust_thresholds ORDER BY points, level`, func(row pgx.Rows) error {
		var th gamedata.TrustThreshold
		if err := row.Scan(&th.Level, &th.Points); err != nil {
			return err
		}
		t.TrustThresholds = append(t.TrustThresholds, th)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading trust thresholds: %w", err)
	}

	if err := collect(ctx, r.db, `SELECT id, kind, name, x, y, species_id, level FROM map_points ORDER BY position`, func(row pgx.Rows) error {
		var mp gamedata.MapPoint
		if err := row.Scan(&mp.ID, &mp.Kind, &mp.Name, &mp.X, &mp.Y, &mp.SpeciesID, &mp.Level); err != nil {
			return err
		}
		t.MapPoints = append(t.MapPoints, mp)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading map points: %w", err)
	}

	return t, nil
}

// collect runs query and hands every row to fn.
func collect(ctx context.Context, db *pgxpool.Pool, query string, fn func(pgx.Rows) error) error {
	rows, err := db.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
