package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yourorg/trainlink/pkg/types"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer at a time; the live loop and the CLI share the file
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.Init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			run_key TEXT NOT NULL UNIQUE,
			card_id INTEGER NOT NULL,
			scenario_id INTEGER NOT NULL,
			start_time INTEGER NOT NULL,
			archive_path TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			ended_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);`,
		`CREATE TABLE IF NOT EXISTS skipped_files (
			path TEXT PRIMARY KEY,
			reason TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// StartRun registers a run, or marks an already known run as running again
// (the app was restarted mid-run).
func (s *SQLiteStore) StartRun(runKey string, cardID, scenarioID, startTime int64, archivePath string) (*types.Run, error) {
	if existing, err := s.FindRunByKey(runKey); err == nil {
		if err := s.UpdateRunStatus(existing.ID, types.RunRunning); err != nil {
			return nil, err
		}
		existing.Status = types.RunRunning
		existing.EndedAt = nil
		return existing, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := time.Now().UTC()
	id, err := s.nextRunID(now)
	if err != nil {
		return nil, err
	}
	run := &types.Run{
		ID:          id,
		RunKey:      runKey,
		CardID:      cardID,
		ScenarioID:  scenarioID,
		StartTime:   startTime,
		ArchivePath: archivePath,
		Status:      types.RunRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err = s.db.Exec(`INSERT INTO runs(id,run_key,card_id,scenario_id,start_time,archive_path,status,created_at,updated_at) VALUES(?,?,?,?,?,?,?,?,?)`,
		run.ID, run.RunKey, run.CardID, run.ScenarioID, run.StartTime, run.ArchivePath, run.Status, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) nextRunID(now time.Time) (string, error) {
	prefix := fmt.Sprintf("run_%s_", now.Format("20060102"))
	rows, err := s.db.Query(`SELECT id FROM runs WHERE id LIKE ?`, prefix+"%")
	if err != nil {
		return "", err
	}
	defer rows.Close()
	maxN := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		var n int
		_, _ = fmt.Sscanf(id, prefix+"%03d", &n)
		if n > maxN {
			maxN = n
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%03d", prefix, maxN+1), nil
}

const runColumns = `id,run_key,card_id,scenario_id,start_time,archive_path,status,created_at,updated_at,ended_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*types.Run, error) {
	var out types.Run
	var ended sql.NullTime
	if err := row.Scan(&out.ID, &out.RunKey, &out.CardID, &out.ScenarioID, &out.StartTime, &out.ArchivePath, &out.Status, &out.CreatedAt, &out.UpdatedAt, &ended); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		out.EndedAt = &t
	}
	return &out, nil
}

func (s *SQLiteStore) GetRun(id string) (*types.Run, error) {
	return scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id=?`, id))
}

func (s *SQLiteStore) FindRunByKey(runKey string) (*types.Run, error) {
	return scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_key=?`, runKey))
}

func (s *SQLiteStore) UpdateRunStatus(id, status string) error {
	now := time.Now().UTC()
	var ended any
	if status != types.RunRunning {
		ended = now
	}
	_, err := s.db.Exec(`UPDATE runs SET status=?, updated_at=?, ended_at=? WHERE id=?`, status, now, ended, id)
	return err
}

func (s *SQLiteStore) ListRuns() ([]types.Run, error) {
	rows, err := s.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteRun(id string) error {
	_, err := s.db.Exec(`DELETE FROM runs WHERE id=?`, id)
	return err
}

func (s *SQLiteStore) AddSkipped(path, reason string) error {
	_, err := s.db.Exec(`INSERT INTO skipped_files(path,reason,created_at) VALUES(?,?,?)
	ON CONFLICT(path) DO UPDATE SET reason=excluded.reason`, path, reason, time.Now().UTC())
	return err
}

func (s *SQLiteStore) IsSkipped(path string) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM skipped_files WHERE path=?`, path).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListSkipped() ([]types.SkippedFile, error) {
	rows, err := s.db.Query(`SELECT path,reason,created_at FROM skipped_files ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.SkippedFile
	for rows.Next() {
		var f types.SkippedFile
		if err := rows.Scan(&f.Path, &f.Reason, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return errors.New("store is nil")
	}
	return s.db.Close()
}
