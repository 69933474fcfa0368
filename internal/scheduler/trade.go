package scheduler

import (
	"fmt"
	"math/rand"

	"github.com/corvidlabs/corvid/internal/core"
	"github.com/corvidlabs/corvid/internal/ledger"
	"github.com/corvidlabs/corvid/internal/storage"
)

// Rand is the random source behind marketplace decisions. Injected so
// tests can fix draws and assert both the act and skip branches.
type Rand interface {
	Float64() float64
}

// Default action probabilities per tick
const (
	collectChance = 0.30
	buyChance     = 0.10
	listChance    = 0.20
)

// Trader runs the opportunistic collect/trade cycle at the end of a tick
type Trader struct {
	ledger *ledger.Store
	rand   Rand
}

// NewTrader creates a trader. A nil source falls back to math/rand.
func NewTrader(led *ledger.Store, r Rand) *Trader {
	if r == nil {
		r = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Trader{ledger: led, rand: r}
}

// CollectTrade makes at most one collection draw and one marketplace draw
// for the agent. Every action that lands writes a TickLog entry.
func (t *Trader) CollectTrade(agent *core.Agent, ticks *storage.TickLogStore) error {
	if t.rand.Float64() < collectChance {
		if err := t.ledger.CollectorYield(agent.OwnerID, agent.ID); err != nil {
			return fmt.Errorf("collector yield: %w", err)
		}
		ticks.Append(&core.TickLog{
			AgentID: agent.ID,
			Kind:    core.TickLogAction,
			Success: true,
			Summary: "collected yield",
		})
	}

	draw := t.rand.Float64()
	switch {
	case draw < buyChance:
		if err := t.ledger.SettleMarketplace(agent.OwnerID, true, agent.ID); err != nil {
			return fmt.Errorf("marketplace buy: %w", err)
		}
		ticks.Append(&core.TickLog{
			AgentID: agent.ID,
			Kind:    core.TickLogAction,
			Success: true,
			Summary: "marketplace buy",
		})
	case draw < buyChance+listChance:
		if err := t.ledger.SettleMarketplace(agent.OwnerID, false, agent.ID); err != nil {
			return fmt.Errorf("marketplace list: %w", err)
		}
		ticks.Append(&core.TickLog{
			AgentID: agent.ID,
			Kind:    core.TickLogAction,
			Success: true,
			Summary: "marketplace list",
		})
	}

	return nil
}
