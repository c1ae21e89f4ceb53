// Package store persists finished scan reports in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/raysh454/thumbscan/internal/logging"
	"github.com/raysh454/thumbscan/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var ErrReportNotFound = errors.New("report not found")

type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if path == "" {
		return nil, errors.New("store: empty database path")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("report store opened", logging.Field{Key: "path", Value: path})
	return &Store{
		db:     db,
		logger: logger.With(logging.Field{Key: "component", Value: "store"}),
	}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveReport writes r and its id lists in one transaction. A report without
// an id is given one. Saving an existing id replaces it.
func (s *Store) SaveReport(ctx context.Context, r *model.Report) (err error) {
	if r == nil {
		return errors.New("store: nil report")
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = deleteScan(ctx, tx, r.ID); err != nil {
		return fmt.Errorf("replace scan: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO scans (id, started_at, finished_at, elapsed_ms, filter, total, deleted, defect_count, error_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(), r.ElapsedMS, r.Filter,
		r.Total, r.Deleted, len(r.Defects), len(r.Errors))
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}

	for _, id := range r.Defects {
		if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO defects (scan_id, video_id) VALUES (?, ?)`, r.ID, id); err != nil {
			return fmt.Errorf("insert defect: %w", err)
		}
	}
	for _, ce := range r.Errors {
		if _, err = tx.ExecContext(ctx, `INSERT INTO check_errors (scan_id, video_id, error) VALUES (?, ?, ?)`, r.ID, ce.VideoID, ce.Error); err != nil {
			return fmt.Errorf("insert check error: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("report saved",
		logging.Field{Key: "report_id", Value: r.ID},
		logging.Field{Key: "defects", Value: len(r.Defects)})
	return nil
}

// GetReport loads a report with its defects and errors.
func (s *Store) GetReport(ctx context.Context, id string) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, elapsed_ms, filter, total, deleted
		FROM scans WHERE id = ?`, id)
	r, err := scanReport(row)
	if err != nil {
		return nil, err
	}

	r.Defects, err = s.defects(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Errors, err = s.checkErrors(ctx, id)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// LatestReport returns the most recently started report.
func (s *Store) LatestReport(ctx context.Context) (*model.Report, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM scans ORDER BY started_at DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest report: %w", err)
	}
	return s.GetReport(ctx, id)
}

// ListReports returns summaries, newest first. A limit of zero or less
// returns every report.
func (s *Store) ListReports(ctx context.Context, limit int) ([]model.ReportSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, elapsed_ms, total, deleted, defect_count, error_count
		FROM scans ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := make([]model.ReportSummary, 0)
	for rows.Next() {
		var (
			sum              model.ReportSummary
			started, finished int64
		)
		if err := rows.Scan(&sum.ID, &started, &finished, &sum.ElapsedMS, &sum.Total, &sum.Deleted, &sum.DefectCount, &sum.ErrorCount); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		sum.StartedAt = fromNanos(started)
		sum.FinishedAt = fromNanos(finished)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteReport removes a report and its id lists.
func (s *Store) DeleteReport(ctx context.Context, id string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM scans WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if exists == 0 {
		err = ErrReportNotFound
		return err
	}
	if err = deleteScan(ctx, tx, id); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return tx.Commit()
}

// deleteScan removes child rows explicitly; foreign_keys is a per-connection
// pragma and pooled connections may not have it set.
func deleteScan(ctx context.Context, tx *sql.Tx, id string) error {
	for _, q := range []string{
		`DELETE FROM defects WHERE scan_id = ?`,
		`DELETE FROM check_errors WHERE scan_id = ?`,
		`DELETE FROM scans WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return nil
}

// DiffReports compares the defect lists of two stored reports.
func (s *Store) DiffReports(ctx context.Context, baseID, headID string) (*model.ReportDiff, error) {
	base, err := s.GetReport(ctx, baseID)
	if err != nil {
		return nil, fmt.Errorf("base report %s: %w", baseID, err)
	}
	head, err := s.GetReport(ctx, headID)
	if err != nil {
		return nil, fmt.Errorf("head report %s: %w", headID, err)
	}
	return DiffDefects(base, head), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*model.Report, error) {
	var (
		r                 model.Report
		started, finished int64
	)
	err := row.Scan(&r.ID, &started, &finished, &r.ElapsedMS, &r.Filter, &r.Total, &r.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}
	r.StartedAt = fromNanos(started)
	r.FinishedAt = fromNanos(finished)
	return &r, nil
}

func (s *Store) defects(ctx context.Context, scanID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT video_id FROM defects WHERE scan_id = ? ORDER BY video_id`, scanID)
	if err != nil {
		return nil, fmt.Errorf("query defects: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) checkErrors(ctx context.Context, scanID string) ([]model.CheckError, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT video_id, error FROM check_errors WHERE scan_id = ? ORDER BY rowid`, scanID)
	if err != nil {
		return nil, fmt.Errorf("query check errors: %w", err)
	}
	defer rows.Close()

	var out []model.CheckError
	for rows.Next() {
		var ce model.CheckError
		if err := rows.Scan(&ce.VideoID, &ce.Error); err != nil {
			return nil, err
		}
		out = append(out, ce)
	}
	return out, rows.Err()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
