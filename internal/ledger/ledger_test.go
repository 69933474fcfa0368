package ledger

import (
	"math"
	"testing"

	"github.com/corvidlabs/corvid/internal/core"
	"github.com/corvidlabs/corvid/internal/testutil"
)

func TestTransferNoOps(t *testing.T) {
	db := testutil.TestDB(t)
	store := NewStore(db.Conn())

	tests := []struct {
		name   string
		from   string
		to     string
		amount float64
	}{
		{"missing from", "", "alice", 1},
		{"missing to", "alice", "", 1},
		{"zero amount", "alice", "bob", 0},
		{"negative amount", "alice", "bob", -0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := store.Transfer(tt.from, tt.to, tt.amount, "test", Refs{})
			testutil.AssertNoError(t, err)
			if entry != nil {
				t.Fatalf("expected no entry, got %+v", entry)
			}
		})
	}

	count, err := store.Count()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, count, 0)
}

func TestTransferLowercasesAccounts(t *testing.T) {
	db := testutil.TestDB(t)
	store := NewStore(db.Conn())

	entry, err := store.Transfer("Alice", "BOB", 1.5, "test", Refs{})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, entry.FromAccount, "alice")
	testutil.AssertEqual(t, entry.ToAccount, "bob")

	// Balance lookup is case-insensitive too
	balance, err := store.Balance("ALICE")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, balance, -1.5)
}

func TestBalanceIsFoldOfEntries(t *testing.T) {
	db := testutil.TestDB(t)
	store := NewStore(db.Conn())

	transfers := []struct {
		from, to string
		amount   float64
	}{
		{core.SystemAccount, "alice", 1.0},
		{"alice", "bob", 0.25},
		{"alice", core.SystemAccount, 0.1},
		{core.SystemAccount, "alice", 0.05},
	}
	for _, tr := range transfers {
		if _, err := store.Transfer(tr.from, tr.to, tr.amount, "test", Refs{}); err != nil {
			t.Fatalf("transfer: %v", err)
		}
	}

	balance, err := store.Balance("alice")
	testutil.AssertNoError(t, err)
	if math.Abs(balance-0.7) > 1e-9 {
		t.Errorf("balance = %v, want 0.7", balance)
	}

	// Unknown account folds to zero
	balance, err = store.Balance("nobody")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, balance, 0.0)
}

func TestRewardIndexing(t *testing.T) {
	db := testutil.TestDB(t)
	store := NewStore(db.Conn())

	err := store.RewardIndexing("alice", "bob", 7, Refs{IndexID: "idx-1", DocumentID: "doc-1"})
	testutil.AssertNoError(t, err)

	agentBal, err := store.Balance("alice")
	testutil.AssertNoError(t, err)
	if math.Abs(agentBal-0.07) > 1e-9 {
		t.Errorf("agent owner balance = %v, want 0.07", agentBal)
	}

	ownerBal, err := store.Balance("bob")
	testutil.AssertNoError(t, err)
	if math.Abs(ownerBal-0.035) > 1e-9 {
		t.Errorf("doc owner balance = %v, want 0.035", ownerBal)
	}

	entries, err := store.Query(QueryOptions{Account: "alice"})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(entries), 1)
	testutil.AssertEqual(t, entries[0].Reason, ReasonIndexingReward)
	testutil.AssertEqual(t, entries[0].IndexID, "idx-1")
	testutil.AssertEqual(t, entries[0].DocumentID, "doc-1")
}

func TestRewardIndexingZeroChunksWritesNothing(t *testing.T) {
	db := testutil.TestDB(t)
	store := NewStore(db.Conn())

	err := store.RewardIndexing("alice", "bob", 0, Refs{})
	testutil.AssertNoError(t, err)

	count, err := store.Count()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, count, 0)
}

func TestChargeChatFallsBackToSystem(t *testing.T) {
	db := testutil.TestDB(t)
	store := NewStore(db.Conn())

	err := store.ChargeChat("alice", "", Refs{IndexID: "idx-1"})
	testutil.AssertNoError(t, err)

	entries, err := store.Query(QueryOptions{Account: core.SystemAccount})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(entries), 1)
	testutil.AssertEqual(t, entries[0].ToAccount, core.SystemAccount)
	testutil.AssertEqual(t, entries[0].Amount, ChatFee)
}

func TestQueryFilters(t *testing.T) {
	db := testutil.TestDB(t)
	store := NewStore(db.Conn())

	agentID := core.AgentID("agent-1")
	if err := store.ChargeCompute("alice", TickFee, ReasonTickCompute, agentID); err != nil {
		t.Fatalf("charge: %v", err)
	}
	if err := store.ChargeCompute("bob", ResearchFee, ReasonResearchCompute, "agent-2"); err != nil {
		t.Fatalf("charge: %v", err)
	}

	byReason, err := store.Query(QueryOptions{Reason: ReasonTickCompute})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(byReason), 1)
	testutil.AssertEqual(t, byReason[0].FromAccount, "alice")

	byAgent, err := store.Query(QueryOptions{AgentID: agentID})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(byAgent), 1)

	limited, err := store.GetRecent(1)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(limited), 1)
}

func TestSettleMarketplace(t *testing.T) {
	db := testutil.TestDB(t)
	store := NewStore(db.Conn())

	testutil.AssertNoError(t, store.SettleMarketplace("alice", true, "agent-1"))
	testutil.AssertNoError(t, store.SettleMarketplace("alice", false, "agent-1"))

	balance, err := store.Balance("alice")
	testutil.AssertNoError(t, err)
	want := MarketListReward - MarketBuyPrice
	if math.Abs(balance-want) > 1e-9 {
		t.Errorf("balance = %v, want %v", balance, want)
	}
}
