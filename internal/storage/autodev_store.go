// Package storage provides persistence for Corvid.
package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/corvidlabs/corvid/internal/core"
)

// AutoDevStore handles daily schedules, dev runs, and proposals
type AutoDevStore struct {
	db *DB
}

// NewAutoDevStore creates a new autodev store
func NewAutoDevStore(db *DB) *AutoDevStore {
	return &AutoDevStore{db: db}
}

// CreateSchedule persists a daily schedule for an agent
func (s *AutoDevStore) CreateSchedule(sched *core.AutoDevSchedule) error {
	if sched.ID == "" {
		sched.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	sched.CreatedAt = now
	sched.UpdatedAt = now

	_, err := s.db.conn.Exec(`
		INSERT INTO autodev_schedules (id, agent_id, enabled, hour, minute, last_run_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sched.ID, sched.AgentID, sched.Enabled, sched.Hour, sched.Minute,
		sched.LastRunDate, sched.CreatedAt, sched.UpdatedAt)

	return err
}

// GetScheduleByAgent returns the schedule for an agent, or nil
func (s *AutoDevStore) GetScheduleByAgent(agentID core.AgentID) (*core.AutoDevSchedule, error) {
	sched := &core.AutoDevSchedule{}

	err := s.db.conn.QueryRow(`
		SELECT id, agent_id, enabled, hour, minute, last_run_date, created_at, updated_at
		FROM autodev_schedules WHERE agent_id = ?
	`, agentID).Scan(&sched.ID, &sched.AgentID, &sched.Enabled, &sched.Hour,
		&sched.Minute, &sched.LastRunDate, &sched.CreatedAt, &sched.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return sched, nil
}

// UpdateSchedule persists mutable schedule fields
func (s *AutoDevStore) UpdateSchedule(sched *core.AutoDevSchedule) error {
	sched.UpdatedAt = time.Now().UTC()

	_, err := s.db.conn.Exec(`
		UPDATE autodev_schedules SET enabled = ?, hour = ?, minute = ?, updated_at = ?
		WHERE id = ?
	`, sched.Enabled, sched.Hour, sched.Minute, sched.UpdatedAt, sched.ID)

	return err
}

// ListEnabledSchedules returns all enabled schedules, optionally pinned to
// a single agent
func (s *AutoDevStore) ListEnabledSchedules(agentID core.AgentID) ([]*core.AutoDevSchedule, error) {
	query := `
		SELECT id, agent_id, enabled, hour, minute, last_run_date, created_at, updated_at
		FROM autodev_schedules WHERE enabled = 1
	`
	var args []interface{}
	if agentID != "" {
		query += " AND agent_id = ?"
		args = append(args, agentID)
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scheds []*core.AutoDevSchedule
	for rows.Next() {
		sched := &core.AutoDevSchedule{}
		err := rows.Scan(&sched.ID, &sched.AgentID, &sched.Enabled, &sched.Hour,
			&sched.Minute, &sched.LastRunDate, &sched.CreatedAt, &sched.UpdatedAt)
		if err != nil {
			return nil, err
		}
		scheds = append(scheds, sched)
	}

	return scheds, rows.Err()
}

// AdvanceScheduleLastRun records a successful run for the given date
func (s *AutoDevStore) AdvanceScheduleLastRun(id, date string) error {
	_, err := s.db.conn.Exec(`
		UPDATE autodev_schedules SET last_run_date = ?, updated_at = ? WHERE id = ?
	`, date, time.Now().UTC(), id)
	return err
}

// CreateRun opens a dev run in running state
func (s *AutoDevStore) CreateRun(run *core.DevRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.StartedAt = time.Now().UTC()
	if run.Status == "" {
		run.Status = core.DevRunRunning
	}

	ideas, _ := json.Marshal(run.Ideas)

	_, err := s.db.conn.Exec(`
		INSERT INTO dev_runs (id, agent_id, status, ideas, notes, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.AgentID, run.Status, string(ideas), run.Notes,
		run.StartedAt, run.FinishedAt)

	return err
}

// FinishRun stamps the terminal state on a dev run
func (s *AutoDevStore) FinishRun(run *core.DevRun) error {
	now := time.Now().UTC()
	run.FinishedAt = &now

	ideas, _ := json.Marshal(run.Ideas)

	_, err := s.db.conn.Exec(`
		UPDATE dev_runs SET status = ?, ideas = ?, notes = ?, finished_at = ?
		WHERE id = ?
	`, run.Status, string(ideas), run.Notes, run.FinishedAt, run.ID)

	return err
}

// GetRun returns a dev run by ID
func (s *AutoDevStore) GetRun(id string) (*core.DevRun, error) {
	run := &core.DevRun{}
	var ideas string
	var finishedAt sql.NullTime

	err := s.db.conn.QueryRow(`
		SELECT id, agent_id, status, ideas, notes, started_at, finished_at
		FROM dev_runs WHERE id = ?
	`, id).Scan(&run.ID, &run.AgentID, &run.Status, &ideas, &run.Notes,
		&run.StartedAt, &finishedAt)

	if err == sql.ErrNoRows {
		return nil, core.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(ideas), &run.Ideas)
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}

	return run, nil
}

// RunsForAgent returns an agent's dev runs, newest first
func (s *AutoDevStore) RunsForAgent(agentID core.AgentID, limit int) ([]*core.DevRun, error) {
	rows, err := s.db.conn.Query(`
		SELECT id, agent_id, status, ideas, notes, started_at, finished_at
		FROM dev_runs
		WHERE agent_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*core.DevRun
	for rows.Next() {
		run := &core.DevRun{}
		var ideas string
		var finishedAt sql.NullTime

		err := rows.Scan(&run.ID, &run.AgentID, &run.Status, &ideas, &run.Notes,
			&run.StartedAt, &finishedAt)
		if err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(ideas), &run.Ideas)
		if finishedAt.Valid {
			run.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// CreateProposal persists a code-change proposal linked to a dev run
func (s *AutoDevStore) CreateProposal(p *core.CodeChangeProposal) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()
	if p.Status == "" {
		p.Status = "proposed"
	}

	_, err := s.db.conn.Exec(`
		INSERT INTO code_change_proposals (
		    id, run_id, path, kind, find_text, replace_text, replace_all,
		    content, rationale, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.RunID, p.Path, p.Kind, p.Find, p.Replace, p.ReplaceAll,
		p.Content, p.Rationale, p.Status, p.CreatedAt)

	return err
}

// ProposalsForRun returns a run's proposals in creation order
func (s *AutoDevStore) ProposalsForRun(runID string) ([]*core.CodeChangeProposal, error) {
	rows, err := s.db.conn.Query(`
		SELECT id, run_id, path, kind, find_text, replace_text, replace_all,
		       content, rationale, status, created_at
		FROM code_change_proposals
		WHERE run_id = ?
		ORDER BY created_at ASC, id ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []*core.CodeChangeProposal
	for rows.Next() {
		p := &core.CodeChangeProposal{}
		err := rows.Scan(&p.ID, &p.RunID, &p.Path, &p.Kind, &p.Find, &p.Replace,
			&p.ReplaceAll, &p.Content, &p.Rationale, &p.Status, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}

	return proposals, rows.Err()
}
