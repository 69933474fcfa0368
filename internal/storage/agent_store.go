// Package storage provides persistence for Corvid.
package storage

import (
	"database/sql"
	"time"

	"github.com/corvidlabs/corvid/internal/core"
)

// AgentStore handles agent persistence
type AgentStore struct {
	db *DB
}

// NewAgentStore creates a new agent store
func NewAgentStore(db *DB) *AgentStore {
	return &AgentStore{db: db}
}

// Create creates a new agent
func (s *AgentStore) Create(agent *core.Agent) error {
	now := time.Now().UTC()
	agent.CreatedAt = now
	agent.UpdatedAt = now
	if agent.Status == "" {
		agent.Status = core.AgentStatusIdle
	}

	_, err := s.db.conn.Exec(`
		INSERT INTO agents (
		    id, owner_id, name, objective,
		    cap_research, cap_development, cap_refinement,
		    tick_interval_secs, loop_enabled, status, tick_count,
		    last_run_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		agent.ID, agent.OwnerID, agent.Name, agent.Objective,
		agent.Capabilities.Research, agent.Capabilities.Development, agent.Capabilities.Refinement,
		int(agent.TickInterval/time.Second), agent.LoopEnabled, agent.Status, agent.TickCount,
		agent.LastRunAt, agent.CreatedAt, agent.UpdatedAt,
	)

	return err
}

// GetByID returns an agent by ID
func (s *AgentStore) GetByID(id core.AgentID) (*core.Agent, error) {
	row := s.db.conn.QueryRow(`
		SELECT id, owner_id, name, objective,
		       cap_research, cap_development, cap_refinement,
		       tick_interval_secs, loop_enabled, status, tick_count,
		       last_run_at, created_at, updated_at
		FROM agents WHERE id = ?
	`, id)

	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrAgentNotFound
	}
	return agent, err
}

// Update persists mutable agent fields
func (s *AgentStore) Update(agent *core.Agent) error {
	agent.UpdatedAt = time.Now().UTC()

	_, err := s.db.conn.Exec(`
		UPDATE agents SET
		    name = ?, objective = ?,
		    cap_research = ?, cap_development = ?, cap_refinement = ?,
		    tick_interval_secs = ?, loop_enabled = ?, status = ?,
		    tick_count = ?, last_run_at = ?, updated_at = ?
		WHERE id = ?
	`,
		agent.Name, agent.Objective,
		agent.Capabilities.Research, agent.Capabilities.Development, agent.Capabilities.Refinement,
		int(agent.TickInterval/time.Second), agent.LoopEnabled, agent.Status,
		agent.TickCount, agent.LastRunAt, agent.UpdatedAt,
		agent.ID,
	)

	return err
}

// List returns all agents, newest first
func (s *AgentStore) List(limit int) ([]*core.Agent, error) {
	rows, err := s.db.conn.Query(`
		SELECT id, owner_id, name, objective,
		       cap_research, cap_development, cap_refinement,
		       tick_interval_secs, loop_enabled, status, tick_count,
		       last_run_at, created_at, updated_at
		FROM agents
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAgents(rows)
}

// ListLoopEnabled returns all agents whose tick loop is enabled
func (s *AgentStore) ListLoopEnabled() ([]*core.Agent, error) {
	rows, err := s.db.conn.Query(`
		SELECT id, owner_id, name, objective,
		       cap_research, cap_development, cap_refinement,
		       tick_interval_secs, loop_enabled, status, tick_count,
		       last_run_at, created_at, updated_at
		FROM agents
		WHERE loop_enabled = 1
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAgents(rows)
}

// Count returns total agent count
func (s *AgentStore) Count() (int, error) {
	var count int
	err := s.db.conn.QueryRow("SELECT COUNT(*) FROM agents").Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*core.Agent, error) {
	agent := &core.Agent{}
	var intervalSecs int
	var lastRun sql.NullTime

	err := row.Scan(
		&agent.ID, &agent.OwnerID, &agent.Name, &agent.Objective,
		&agent.Capabilities.Research, &agent.Capabilities.Development, &agent.Capabilities.Refinement,
		&intervalSecs, &agent.LoopEnabled, &agent.Status, &agent.TickCount,
		&lastRun, &agent.CreatedAt, &agent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	agent.TickInterval = time.Duration(intervalSecs) * time.Second
	if lastRun.Valid {
		agent.LastRunAt = &lastRun.Time
	}

	return agent, nil
}

func scanAgents(rows *sql.Rows) ([]*core.Agent, error) {
	var agents []*core.Agent

	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}

	return agents, rows.Err()
}
