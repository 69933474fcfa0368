// Package storage provides persistence for Corvid.
package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/corvidlabs/corvid/internal/core"
)

// CrawlStore handles crawl frontier persistence
type CrawlStore struct {
	db *DB
}

// NewCrawlStore creates a new crawl store
func NewCrawlStore(db *DB) *CrawlStore {
	return &CrawlStore{db: db}
}

// InsertItem inserts a frontier item. Returns false without error when the
// URL is already known for the agent (UNIQUE(agent_id, url) backstop).
func (s *CrawlStore) InsertItem(item *core.CrawlItem) (bool, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.CreatedAt = time.Now().UTC()
	if item.Status == "" {
		item.Status = core.CrawlQueued
	}

	res, err := s.db.conn.Exec(`
		INSERT OR IGNORE INTO crawl_items (
		    id, agent_id, url, domain, priority, depth, discovered_from,
		    status, title, content, content_type, token_estimate,
		    fetched_at, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID, item.AgentID, item.URL, item.Domain, item.Priority, item.Depth,
		item.DiscoveredFrom, item.Status, item.Title, item.Content, item.ContentType,
		item.TokenEstimate, item.FetchedAt, item.ErrorMessage, item.CreatedAt,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

// KnownURLs returns the set of URLs already recorded for an agent
func (s *CrawlStore) KnownURLs(agentID core.AgentID) (map[string]bool, error) {
	rows, err := s.db.conn.Query("SELECT url FROM crawl_items WHERE agent_id = ?", agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		known[url] = true
	}

	return known, rows.Err()
}

// NextQueued returns queued items in descending priority order, oldest first
// within a priority, capped by limit
func (s *CrawlStore) NextQueued(agentID core.AgentID, limit int) ([]*core.CrawlItem, error) {
	rows, err := s.db.conn.Query(`
		SELECT id, agent_id, url, domain, priority, depth, discovered_from,
		       status, title, content, content_type, token_estimate,
		       fetched_at, error_message, created_at
		FROM crawl_items
		WHERE agent_id = ? AND status = ?
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT ?
	`, agentID, core.CrawlQueued, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCrawlItems(rows)
}

// MarkFetching transitions an item to the fetching state
func (s *CrawlStore) MarkFetching(id string) error {
	_, err := s.db.conn.Exec("UPDATE crawl_items SET status = ? WHERE id = ?",
		core.CrawlFetching, id)
	return err
}

// MarkFetched records a successful fetch with all derived fields
func (s *CrawlStore) MarkFetched(item *core.CrawlItem) error {
	now := time.Now().UTC()
	item.Status = core.CrawlFetched
	item.FetchedAt = &now

	_, err := s.db.conn.Exec(`
		UPDATE crawl_items SET
		    status = ?, title = ?, content = ?, content_type = ?,
		    token_estimate = ?, fetched_at = ?
		WHERE id = ?
	`, item.Status, item.Title, item.Content, item.ContentType,
		item.TokenEstimate, item.FetchedAt, item.ID)

	return err
}

// MarkError records a failed fetch
func (s *CrawlStore) MarkError(id, message string) error {
	_, err := s.db.conn.Exec(`
		UPDATE crawl_items SET status = ?, error_message = ? WHERE id = ?
	`, core.CrawlError, message, id)
	return err
}

// GetItemByURL returns the item for a given agent+url pair, or nil
func (s *CrawlStore) GetItemByURL(agentID core.AgentID, url string) (*core.CrawlItem, error) {
	rows, err := s.db.conn.Query(`
		SELECT id, agent_id, url, domain, priority, depth, discovered_from,
		       status, title, content, content_type, token_estimate,
		       fetched_at, error_message, created_at
		FROM crawl_items
		WHERE agent_id = ? AND url = ?
	`, agentID, url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanCrawlItems(rows)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

// CountItems returns total frontier items for an agent
func (s *CrawlStore) CountItems(agentID core.AgentID) (int, error) {
	var count int
	err := s.db.conn.QueryRow("SELECT COUNT(*) FROM crawl_items WHERE agent_id = ?", agentID).Scan(&count)
	return count, err
}

// CreateRun opens a crawl run
func (s *CrawlStore) CreateRun(run *core.CrawlRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.StartedAt = time.Now().UTC()

	_, err := s.db.conn.Exec(`
		INSERT INTO crawl_runs (id, agent_id, budget, pages_fetched, pages_errored, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.AgentID, run.Budget, run.PagesFetched, run.PagesErrored,
		run.StartedAt, run.FinishedAt)

	return err
}

// FinishRun stamps the finish time and counters
func (s *CrawlStore) FinishRun(run *core.CrawlRun) error {
	now := time.Now().UTC()
	run.FinishedAt = &now

	_, err := s.db.conn.Exec(`
		UPDATE crawl_runs SET pages_fetched = ?, pages_errored = ?, finished_at = ?
		WHERE id = ?
	`, run.PagesFetched, run.PagesErrored, run.FinishedAt, run.ID)

	return err
}

func scanCrawlItems(rows *sql.Rows) ([]*core.CrawlItem, error) {
	var items []*core.CrawlItem

	for rows.Next() {
		item := &core.CrawlItem{}
		var fetchedAt sql.NullTime

		err := rows.Scan(
			&item.ID, &item.AgentID, &item.URL, &item.Domain, &item.Priority,
			&item.Depth, &item.DiscoveredFrom, &item.Status, &item.Title,
			&item.Content, &item.ContentType, &item.TokenEstimate,
			&fetchedAt, &item.ErrorMessage, &item.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if fetchedAt.Valid {
			item.FetchedAt = &fetchedAt.Time
		}

		items = append(items, item)
	}

	return items, rows.Err()
}
