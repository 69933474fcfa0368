// Package storage provides persistence for Corvid.
package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/corvidlabs/corvid/internal/core"
)

// TickLogStore handles tick log persistence. Logs are append-only.
type TickLogStore struct {
	db *DB
}

// NewTickLogStore creates a new tick log store
func NewTickLogStore(db *DB) *TickLogStore {
	return &TickLogStore{db: db}
}

// Append adds an immutable tick log entry
func (s *TickLogStore) Append(log *core.TickLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	log.CreatedAt = time.Now().UTC()

	_, err := s.db.conn.Exec(`
		INSERT INTO tick_logs (id, agent_id, kind, success, summary, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, log.ID, log.AgentID, log.Kind, log.Success, log.Summary, log.Payload, log.CreatedAt)

	return err
}

// Recent returns the most recent entries for an agent, newest first
func (s *TickLogStore) Recent(agentID core.AgentID, limit int) ([]*core.TickLog, error) {
	rows, err := s.db.conn.Query(`
		SELECT id, agent_id, kind, success, summary, payload, created_at
		FROM tick_logs
		WHERE agent_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTickLogs(rows)
}

// RecentSummaries returns the summaries of the agent's latest entries,
// newest first. Used to scope oracle prompts.
func (s *TickLogStore) RecentSummaries(agentID core.AgentID, limit int) ([]string, error) {
	logs, err := s.Recent(agentID, limit)
	if err != nil {
		return nil, err
	}

	summaries := make([]string, 0, len(logs))
	for _, l := range logs {
		if l.Summary != "" {
			summaries = append(summaries, l.Summary)
		}
	}
	return summaries, nil
}

// Count returns total entries for an agent
func (s *TickLogStore) Count(agentID core.AgentID) (int, error) {
	var count int
	err := s.db.conn.QueryRow("SELECT COUNT(*) FROM tick_logs WHERE agent_id = ?", agentID).Scan(&count)
	return count, err
}

func scanTickLogs(rows *sql.Rows) ([]*core.TickLog, error) {
	var logs []*core.TickLog

	for rows.Next() {
		log := &core.TickLog{}
		err := rows.Scan(&log.ID, &log.AgentID, &log.Kind, &log.Success,
			&log.Summary, &log.Payload, &log.CreatedAt)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	return logs, rows.Err()
}
