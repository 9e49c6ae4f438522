package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/synthlik/internal/sampler"
	"github.com/nvandessel/synthlik/internal/vecmath"
	"gonum.org/v1/gonum/mat"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteRunStore implements RunStore using SQLite.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore opens (creating if needed) dir/synthlik.db.
func NewSQLiteRunStore(dir string) (*SQLiteRunStore, error) {
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(dir, DBFileName)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteRunStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string { return s.dbPath }

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// newRunID derives a short content hash identifying a run.
func newRunID(rec RunRecord) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%s|%d", rec.Model, rec.Objective, rec.Sampler, rec.Seed, rec.ParentID, rec.CreatedAt.UnixNano())
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// SaveRun implements RunStore.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, rec RunRecord, tr *sampler.Trajectory, final *sampler.State) (string, error) {
	if tr == nil || final == nil {
		return "", fmt.Errorf("save run: trajectory and final state are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	if rec.Steps == 0 {
		rec.Steps = tr.Len()
	}
	if rec.Dim == 0 {
		rec.Dim = len(final.Theta)
	}
	if rec.AcceptanceRate == nil {
		rec.AcceptanceRate = finitePtr(tr.AcceptanceRate())
	}
	if rec.FinalObjective == nil && final.Evaluated() {
		rec.FinalObjective = finitePtr(final.Objective)
	}
	rec.ID = newRunID(rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, model, objective, sampler, dim, steps, seed, parent_id,
			acceptance_rate, final_objective, config, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Model, rec.Objective, rec.Sampler, rec.Dim, rec.Steps,
		strconv.FormatUint(rec.Seed, 10), nullString(rec.ParentID),
		nullFloat(rec.AcceptanceRate), nullFloat(rec.FinalObjective),
		nullString(rec.Config), rec.CreatedAt.Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	if err := insertSteps(ctx, tx, rec.ID, tr, final.Counter); err != nil {
		return "", err
	}
	if err := insertState(ctx, tx, rec.ID, final); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return rec.ID, nil
}

func insertSteps(ctx context.Context, tx *sql.Tx, id string, tr *sampler.Trajectory, lastCounter int) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_steps (run_id, step, current, proposed, objective, accepted, halvings)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare step insert: %w", err)
	}
	defer stmt.Close()

	first := lastCounter - tr.Len() + 1
	for i := 0; i < tr.Len(); i++ {
		step := first + i
		if tr.Counter != nil {
			step = tr.Counter[i]
		}
		var current, proposed sql.NullString
		if tr.Current != nil {
			current = encodeVec(tr.Current.RawRowView(i))
		}
		if tr.Theta != nil {
			proposed = encodeVec(tr.Theta.RawRowView(i))
		}
		var obj sql.NullFloat64
		if tr.Objective != nil {
			obj = nullFloat(finitePtr(tr.Objective[i]))
		}
		var accepted, halvings sql.NullInt64
		if tr.Accepted != nil {
			accepted = sql.NullInt64{Int64: boolToInt(tr.Accepted[i]), Valid: true}
		}
		if tr.Halvings != nil {
			halvings = sql.NullInt64{Int64: int64(tr.Halvings[i]), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, id, step, current, proposed, obj, accepted, halvings); err != nil {
			return fmt.Errorf("failed to insert step %d: %w", step, err)
		}
	}
	return nil
}

func insertState(ctx context.Context, tx *sql.Tx, id string, st *sampler.State) error {
	theta := encodeVec(st.Theta)
	if !theta.Valid {
		return fmt.Errorf("final state has non-finite parameters")
	}
	var obj sql.NullFloat64
	if st.Evaluated() {
		obj = nullFloat(finitePtr(st.Objective))
	}
	var grad, hess sql.NullString
	if st.Gradient != nil {
		grad = encodeVec(st.Gradient)
	}
	if st.Hessian != nil {
		n := st.Hessian.SymmetricDim()
		flat := make([]float64, 0, n*n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				flat = append(flat, st.Hessian.At(i, j))
			}
		}
		hess = encodeVec(flat)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO run_state (run_id, theta, objective, gradient, hessian, counter)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, theta, obj, grad, hess, st.Counter)
	if err != nil {
		return fmt.Errorf("failed to insert final state: %w", err)
	}
	return nil
}

// timeLayout is fixed width so that created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, model, objective, sampler, dim, steps, seed, parent_id,
	acceptance_rate, final_objective, config, created_at`

// ListRuns implements RunStore.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// GetRun implements RunStore.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var (
		rec                 RunRecord
		seed, created       string
		parent, cfg         sql.NullString
		acceptance, finalOb sql.NullFloat64
	)
	err := sc.Scan(&rec.ID, &rec.Model, &rec.Objective, &rec.Sampler, &rec.Dim, &rec.Steps,
		&seed, &parent, &acceptance, &finalOb, &cfg, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, err
		}
		return RunRecord{}, fmt.Errorf("failed to scan run: %w", err)
	}
	if rec.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return RunRecord{}, fmt.Errorf("run %s: bad seed %q: %w", rec.ID, seed, err)
	}
	if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return RunRecord{}, fmt.Errorf("run %s: bad created_at %q: %w", rec.ID, created, err)
	}
	rec.ParentID = parent.String
	rec.Config = cfg.String
	if acceptance.Valid {
		rec.AcceptanceRate = &acceptance.Float64
	}
	if finalOb.Valid {
		rec.FinalObjective = &finalOb.Float64
	}
	return rec, nil
}

// LoadState implements RunStore.
func (s *SQLiteRunStore) LoadState(ctx context.Context, id string) (*sampler.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		theta      string
		obj        sql.NullFloat64
		grad, hess sql.NullString
		counter    int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT theta, objective, gradient, hessian, counter FROM run_state WHERE run_id = ?`, id).
		Scan(&theta, &obj, &grad, &hess, &counter)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("state of run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state of run %s: %w", id, err)
	}

	th, err := decodeVec(theta)
	if err != nil {
		return nil, fmt.Errorf("run %s: theta: %w", id, err)
	}
	if !obj.Valid {
		st := sampler.NewState(th)
		st.Counter = counter
		return st, nil
	}

	var g []float64
	if grad.Valid {
		if g, err = decodeVec(grad.String); err != nil {
			return nil, fmt.Errorf("run %s: gradient: %w", id, err)
		}
	}
	var h *mat.SymDense
	if hess.Valid {
		flat, err := decodeVec(hess.String)
		if err != nil {
			return nil, fmt.Errorf("run %s: hessian: %w", id, err)
		}
		n := len(th)
		if len(flat) != n*n {
			return nil, fmt.Errorf("run %s: hessian has %d entries, want %d", id, len(flat), n*n)
		}
		h = vecmath.Symmetrize(mat.NewDense(n, n, flat))
	}
	return sampler.Restore(th, obj.Float64, g, h, counter), nil
}

// LoadTheta implements RunStore.
func (s *SQLiteRunStore) LoadTheta(ctx context.Context, id string) (*mat.Dense, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT current, proposed FROM run_steps WHERE run_id = ? ORDER BY step`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps of run %s: %w", id, err)
	}
	defer rows.Close()

	var current, proposed [][]float64
	allCurrent := true
	for rows.Next() {
		var c, p sql.NullString
		if err := rows.Scan(&c, &p); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if c.Valid {
			v, err := decodeVec(c.String)
			if err != nil {
				return nil, err
			}
			current = append(current, v)
		} else {
			allCurrent = false
		}
		if p.Valid {
			v, err := decodeVec(p.String)
			if err != nil {
				return nil, err
			}
			proposed = append(proposed, v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case allCurrent && len(current) > 0:
		return vecmath.StackRows(current), nil
	case len(proposed) > 0:
		return vecmath.StackRows(proposed), nil
	default:
		return nil, fmt.Errorf("run %s recorded no parameter values", id)
	}
}

func encodeVec(v []float64) sql.NullString {
	if !vecmath.AllFinite(v) {
		return sql.NullString{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func decodeVec(s string) ([]float64, error) {
	var v []float64
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return v, nil
}

func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
