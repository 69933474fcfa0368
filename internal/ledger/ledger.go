// Package ledger provides the append-only economic transfer log.
// Balances are always derived by folding the entry log, never cached,
// so the log and the balance can never drift apart.
package ledger

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corvidlabs/corvid/internal/core"
)

// Store manages the append-only transfer ledger
type Store struct {
	db *sql.DB
}

// NewStore creates a new ledger store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Refs carries optional foreign references for an entry
type Refs struct {
	AgentID    core.AgentID
	IndexID    string
	DocumentID string
}

// Reason codes for common transfers
const (
	ReasonTickCompute     = "compute.tick"
	ReasonResearchCompute = "compute.research"
	ReasonChatUsage       = "chat.usage"
	ReasonContentReward   = "reward.content"
	ReasonIndexingReward  = "reward.indexing"
	ReasonCuratorReward   = "reward.curation"
	ReasonCollectorYield  = "collector.yield"
	ReasonMarketBuy       = "market.buy"
	ReasonMarketList      = "market.list"
)

// Fee and reward rates
const (
	TickFee          = 0.001
	ResearchFee      = 0.002
	ChatFee          = 0.0005
	ContentReward    = 0.05
	ChunkReward      = 0.01  // per chunk, to the agent owner
	ChunkOwnerReward = 0.005 // per chunk, to the document owner
	CollectYield     = 0.01
	MarketBuyPrice   = 0.02
	MarketListReward = 0.005
)

// Transfer appends one immutable entry. It is a silent no-op when either
// endpoint is absent or the amount is not strictly positive: nothing is
// written and no error is returned. Account identifiers are lower-cased.
//
// The ledger provides no idempotency key; a retried Transfer produces a
// new entry. Callers needing idempotence dedupe by reason+refs first.
func (s *Store) Transfer(from, to string, amount float64, reason string, refs Refs) (*core.LedgerEntry, error) {
	if from == "" || to == "" || amount <= 0 {
		return nil, nil
	}

	entry := &core.LedgerEntry{
		ID:          uuid.New().String(),
		FromAccount: strings.ToLower(from),
		ToAccount:   strings.ToLower(to),
		Amount:      amount,
		Reason:      reason,
		AgentID:     refs.AgentID,
		IndexID:     refs.IndexID,
		DocumentID:  refs.DocumentID,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO ledger (id, from_account, to_account, amount, reason, agent_id, index_id, document_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.FromAccount, entry.ToAccount, entry.Amount, entry.Reason,
		entry.AgentID, entry.IndexID, entry.DocumentID, entry.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	return entry, nil
}

// Balance folds credits minus debits over all entries referencing the account
func (s *Store) Balance(account string) (float64, error) {
	account = strings.ToLower(account)

	var credits, debits sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT
		    (SELECT COALESCE(SUM(amount), 0) FROM ledger WHERE to_account = ?),
		    (SELECT COALESCE(SUM(amount), 0) FROM ledger WHERE from_account = ?)
	`, account, account).Scan(&credits, &debits)
	if err != nil {
		return 0, fmt.Errorf("fold balance: %w", err)
	}

	return credits.Float64 - debits.Float64, nil
}

// QueryOptions for listing entries
type QueryOptions struct {
	Account string // entries where the account is either endpoint
	Reason  string
	AgentID core.AgentID
	Since   time.Time
	Limit   int
}

// Query returns entries matching the given criteria, newest first
func (s *Store) Query(opts QueryOptions) ([]*core.LedgerEntry, error) {
	query := `
		SELECT id, from_account, to_account, amount, reason, agent_id, index_id, document_id, created_at
		FROM ledger WHERE 1=1
	`
	var args []interface{}

	if opts.Account != "" {
		account := strings.ToLower(opts.Account)
		query += " AND (from_account = ? OR to_account = ?)"
		args = append(args, account, account)
	}
	if opts.Reason != "" {
		query += " AND reason = ?"
		args = append(args, opts.Reason)
	}
	if opts.AgentID != "" {
		query += " AND agent_id = ?"
		args = append(args, opts.AgentID)
	}
	if !opts.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, opts.Since)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var entries []*core.LedgerEntry
	for rows.Next() {
		entry := &core.LedgerEntry{}
		err := rows.Scan(&entry.ID, &entry.FromAccount, &entry.ToAccount,
			&entry.Amount, &entry.Reason, &entry.AgentID, &entry.IndexID,
			&entry.DocumentID, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// GetRecent returns the most recent entries
func (s *Store) GetRecent(limit int) ([]*core.LedgerEntry, error) {
	return s.Query(QueryOptions{Limit: limit})
}

// Count returns the total number of entries
func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM ledger").Scan(&count)
	return count, err
}

// -----------------------------------------------------------------------------
// Derived operations. All are plain parameterized Transfer calls; storage
// never special-cases any of them.
// -----------------------------------------------------------------------------

// ChargeCompute moves a compute fee from the agent owner to the system account
func (s *Store) ChargeCompute(owner string, fee float64, reason string, agentID core.AgentID) error {
	_, err := s.Transfer(owner, core.SystemAccount, fee, reason, Refs{AgentID: agentID})
	return err
}

// RewardContent pays the fixed content-generation reward to the agent owner
func (s *Store) RewardContent(owner string, agentID core.AgentID, documentID string) error {
	_, err := s.Transfer(core.SystemAccount, owner, ContentReward, ReasonContentReward,
		Refs{AgentID: agentID, DocumentID: documentID})
	return err
}

// RewardIndexing pays the per-chunk indexing rewards: one entry to the agent
// owner, one to the document owner. Amounts are rounded to 4 decimal places;
// an amount that rounds to zero or less writes nothing.
func (s *Store) RewardIndexing(agentOwner, docOwner string, chunks int, refs Refs) error {
	agentAmount := round4(float64(chunks) * ChunkReward)
	if agentAmount > 0 {
		if _, err := s.Transfer(core.SystemAccount, agentOwner, agentAmount, ReasonIndexingReward, refs); err != nil {
			return err
		}
	}

	ownerAmount := round4(float64(chunks) * ChunkOwnerReward)
	if ownerAmount > 0 {
		if _, err := s.Transfer(core.SystemAccount, docOwner, ownerAmount, ReasonCuratorReward, refs); err != nil {
			return err
		}
	}

	return nil
}

// ChargeChat moves the per-chat fee from the payer to the index owner,
// falling back to the system account when the index has no owner
func (s *Store) ChargeChat(payer, indexOwner string, refs Refs) error {
	if indexOwner == "" {
		indexOwner = core.SystemAccount
	}
	_, err := s.Transfer(payer, indexOwner, ChatFee, ReasonChatUsage, refs)
	return err
}

// CollectorYield pays an opportunistic collection yield to the owner
func (s *Store) CollectorYield(owner string, agentID core.AgentID) error {
	_, err := s.Transfer(core.SystemAccount, owner, CollectYield, ReasonCollectorYield, Refs{AgentID: agentID})
	return err
}

// SettleMarketplace records a marketplace action: a buy debits the owner,
// a listing pays the owner a listing reward
func (s *Store) SettleMarketplace(owner string, buy bool, agentID core.AgentID) error {
	if buy {
		_, err := s.Transfer(owner, core.SystemAccount, MarketBuyPrice, ReasonMarketBuy, Refs{AgentID: agentID})
		return err
	}
	_, err := s.Transfer(core.SystemAccount, owner, MarketListReward, ReasonMarketList, Refs{AgentID: agentID})
	return err
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
