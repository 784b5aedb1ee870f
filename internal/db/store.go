package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/canopy.report/internal/fuels"
	"github.com/banshee-data/canopy.report/internal/timeutil"
)

// ErrRunNotFound is returned when a run ID has no stored run.
var ErrRunNotFound = errors.New("analysis run not found")

// Run describes one batch of trees analysed with a single parameter set.
type Run struct {
	RunID       string       `json:"run_id"`
	CreatedAt   int64        `json:"created_at"` // unix nanoseconds
	Params      fuels.Params `json:"params"`
	Source      string       `json:"source,omitempty"`
	TreeCount   int          `json:"tree_count"`
	FailedCount int          `json:"failed_count"`
}

// StoredRecord is a CBH record read back from the store, with the
// per-tree error message (empty on success).
type StoredRecord struct {
	fuels.CBHRecord
	Error string `json:"error,omitempty"`
}

// Store persists analysis runs, their CBH records and fuel layers.
type Store struct {
	db    *DB
	clock timeutil.Clock
}

// NewStore creates a Store on an opened, migrated database.
func NewStore(db *DB) *Store {
	return &Store{db: db, clock: timeutil.RealClock{}}
}

// SetClock replaces the clock used to stamp new runs.
func (s *Store) SetClock(c timeutil.Clock) {
	s.clock = c
}

// SaveRun writes run and every result in a single transaction. An empty
// RunID is replaced by a new UUID, a zero CreatedAt by the current time.
// TreeCount and FailedCount are derived from results.
func (s *Store) SaveRun(run *Run, results []fuels.Result) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.clock.Now().UnixNano()
	}
	run.TreeCount = len(results)
	run.FailedCount = 0
	for _, res := range results {
		if res.Err != nil && !errors.Is(res.Err, fuels.ErrNoLayers) {
			run.FailedCount++
		}
	}

	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO analysis_runs (run_id, created_at, params_json, source, tree_count, failed_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.CreatedAt, string(paramsJSON), run.Source, run.TreeCount, run.FailedCount,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	recStmt, err := tx.Prepare(`
		INSERT INTO cbh_records (
			run_id, tree_id, nlayers,
			maxlad_index, maxlad_hcbh, maxlad_hdepth, maxlad_hdist, maxlad_lad,
			maxlad1_index, maxlad1_hcbh, maxlad1_hdepth, maxlad1_hdist, maxlad1_lad,
			max_index, max_hcbh, max_hdepth, max_hdist, max_lad,
			last_index, last_hcbh, last_hdepth, last_hdist, last_lad,
			bp_hcbh, bp_below_pct, bp_above_pct, bp_rss,
			error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer recStmt.Close()

	layerStmt, err := tx.Prepare(`
		INSERT INTO fuel_layers (
			run_id, tree_id, layer_index, base_height, top_height, depth,
			distance, raw_distance, lad, lad_fraction
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare layer insert: %w", err)
	}
	defer layerStmt.Close()

	for _, res := range results {
		rec := res.Record
		args := []interface{}{run.RunID, res.TreeID, rec.NLayers}
		args = append(args, candidateArgs(&rec.MaxLAD)...)
		args = append(args, candidateArgs(rec.MaxLAD1)...)
		args = append(args, candidateArgs(&rec.MaxDist)...)
		args = append(args, candidateArgs(&rec.Last)...)
		args = append(args, breakpointArgs(rec.Breakpoint)...)
		errMsg := ""
		if res.Err != nil {
			errMsg = res.Err.Error()
		}
		args = append(args, errMsg)
		if _, err := recStmt.Exec(args...); err != nil {
			return fmt.Errorf("insert record for tree %q: %w", res.TreeID, err)
		}

		for _, l := range res.Layers {
			if _, err := layerStmt.Exec(
				run.RunID, res.TreeID, l.Index, l.BaseHeight, l.TopHeight, l.Depth,
				l.Distance, l.RawDistance, l.LAD, l.LADFraction,
			); err != nil {
				return fmt.Errorf("insert layer %d for tree %q: %w", l.Index, res.TreeID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

func candidateArgs(c *fuels.Candidate) []interface{} {
	if c == nil {
		return []interface{}{nil, nil, nil, nil, nil}
	}
	return []interface{}{c.Index, c.BaseHeight, c.Depth, c.Distance, c.LADFraction}
}

func breakpointArgs(bp *fuels.Breakpoint) []interface{} {
	if bp == nil {
		return []interface{}{nil, nil, nil, nil}
	}
	return []interface{}{bp.Height, bp.BelowPercent, bp.AbovePercent, bp.RSS}
}

// GetRun returns the stored run with the given ID.
func (s *Store) GetRun(runID string) (*Run, error) {
	var (
		r          Run
		paramsJSON string
	)
	err := s.db.QueryRow(`
		SELECT run_id, created_at, params_json, source, tree_count, failed_count
		FROM analysis_runs WHERE run_id = ?`, runID,
	).Scan(&r.RunID, &r.CreatedAt, &paramsJSON, &r.Source, &r.TreeCount, &r.FailedCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
		return nil, fmt.Errorf("decode params for run %s: %w", runID, err)
	}
	return &r, nil
}

// ListRuns returns every stored run, newest first.
func (s *Store) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query(`SELECT run_id FROM analysis_runs ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	runs := make([]*Run, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetRun(id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// ListRecords returns the CBH records of a run ordered by tree ID.
func (s *Store) ListRecords(runID string) ([]StoredRecord, error) {
	rows, err := s.db.Query(`
		SELECT tree_id, nlayers,
		       maxlad_index, maxlad_hcbh, maxlad_hdepth, maxlad_hdist, maxlad_lad,
		       maxlad1_index, maxlad1_hcbh, maxlad1_hdepth, maxlad1_hdist, maxlad1_lad,
		       max_index, max_hcbh, max_hdepth, max_hdist, max_lad,
		       last_index, last_hcbh, last_hdepth, last_hdist, last_lad,
		       bp_hcbh, bp_below_pct, bp_above_pct, bp_rss,
		       error
		FROM cbh_records
		WHERE run_id = ?
		ORDER BY tree_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var (
			r       StoredRecord
			maxLAD1 nullCandidate
			bp      [4]sql.NullFloat64
		)
		err := rows.Scan(
			&r.TreeID, &r.NLayers,
			&r.MaxLAD.Index, &r.MaxLAD.BaseHeight, &r.MaxLAD.Depth, &r.MaxLAD.Distance, &r.MaxLAD.LADFraction,
			&maxLAD1.index, &maxLAD1.base, &maxLAD1.depth, &maxLAD1.dist, &maxLAD1.fraction,
			&r.MaxDist.Index, &r.MaxDist.BaseHeight, &r.MaxDist.Depth, &r.MaxDist.Distance, &r.MaxDist.LADFraction,
			&r.Last.Index, &r.Last.BaseHeight, &r.Last.Depth, &r.Last.Distance, &r.Last.LADFraction,
			&bp[0], &bp[1], &bp[2], &bp[3],
			&r.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.MaxLAD1 = maxLAD1.candidate()
		if bp[0].Valid {
			r.Breakpoint = &fuels.Breakpoint{
				Height:       bp[0].Float64,
				BelowPercent: bp[1].Float64,
				AbovePercent: bp[2].Float64,
				RSS:          bp[3].Float64,
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type nullCandidate struct {
	index                       sql.NullInt64
	base, depth, dist, fraction sql.NullFloat64
}

func (n nullCandidate) candidate() *fuels.Candidate {
	if !n.index.Valid {
		return nil
	}
	return &fuels.Candidate{
		Index:       int(n.index.Int64),
		BaseHeight:  n.base.Float64,
		Depth:       n.depth.Float64,
		Distance:    n.dist.Float64,
		LADFraction: n.fraction.Float64,
	}
}

// ListLayers returns the fuel layers of one tree in a run, bottom-up.
func (s *Store) ListLayers(runID, treeID string) ([]fuels.Layer, error) {
	rows, err := s.db.Query(`
		SELECT layer_index, base_height, top_height, depth, distance, raw_distance, lad, lad_fraction
		FROM fuel_layers
		WHERE run_id = ? AND tree_id = ?
		ORDER BY layer_index`, runID, treeID)
	if err != nil {
		return nil, fmt.Errorf("query layers: %w", err)
	}
	defer rows.Close()

	var out []fuels.Layer
	for rows.Next() {
		var l fuels.Layer
		if err := rows.Scan(&l.Index, &l.BaseHeight, &l.TopHeight, &l.Depth, &l.Distance, &l.RawDistance, &l.LAD, &l.LADFraction); err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteRun removes a run together with its records and layers.
func (s *Store) DeleteRun(runID string) error {
	res, err := s.db.Exec(`DELETE FROM analysis_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}
