// Package scheduler drives each agent's periodic tick loop: one recurring
// timer per agent, an overlap guard so ticks never run concurrently for
// the same agent, and a rate gate so scheduled ticks never fire more often
// than the agent's interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/corvidlabs/corvid/internal/chunker"
	"github.com/corvidlabs/corvid/internal/core"
	"github.com/corvidlabs/corvid/internal/ledger"
	"github.com/corvidlabs/corvid/internal/logging"
	"github.com/corvidlabs/corvid/internal/oracle"
	"github.com/corvidlabs/corvid/internal/storage"
)

// loopState is the supervisor's per-agent bookkeeping. Access only with
// the supervisor mutex held.
type loopState struct {
	cancel      context.CancelFunc // nil when no timer is armed
	nextAllowed time.Time          // rate gate for scheduled ticks
	inFlight    bool               // overlap guard
}

// Supervisor owns all agent tick loops
type Supervisor struct {
	agents  *storage.AgentStore
	ticks   *storage.TickLogStore
	corpus  *storage.CorpusStore
	ledger  *ledger.Store
	indexer *chunker.Indexer
	oracle  oracle.Oracle
	trader  *Trader

	mu     sync.Mutex
	loops  map[core.AgentID]*loopState
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a supervisor
func New(agents *storage.AgentStore, ticks *storage.TickLogStore, corpus *storage.CorpusStore,
	led *ledger.Store, indexer *chunker.Indexer, orc oracle.Oracle, trader *Trader) *Supervisor {

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		agents:  agents,
		ticks:   ticks,
		corpus:  corpus,
		ledger:  led,
		indexer: indexer,
		oracle:  orc,
		trader:  trader,
		loops:   make(map[core.AgentID]*loopState),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// StartLoop enables the agent's loop, resets the rate gate, arms the
// recurring timer, and fires one tick immediately.
func (s *Supervisor) StartLoop(agentID core.AgentID) error {
	agent, err := s.agents.GetByID(agentID)
	if err != nil {
		return err
	}

	if !agent.LoopEnabled {
		agent.LoopEnabled = true
		if err := s.agents.Update(agent); err != nil {
			return err
		}
	}

	s.mu.Lock()
	state := s.ensureState(agentID)
	state.nextAllowed = time.Now()
	if state.cancel != nil {
		state.cancel()
	}
	loopCtx, cancelLoop := context.WithCancel(s.ctx)
	state.cancel = cancelLoop
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(loopCtx, agentID, agent.EffectiveInterval())

	// First tick fires right away; the reset gate lets it through
	s.Tick(agentID, false)
	return nil
}

// StopLoop disables the agent's loop and cancels its timer. An in-flight
// tick runs to completion.
func (s *Supervisor) StopLoop(agentID core.AgentID) error {
	agent, err := s.agents.GetByID(agentID)
	if err != nil {
		return err
	}

	if agent.LoopEnabled {
		agent.LoopEnabled = false
		if err := s.agents.Update(agent); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if state, ok := s.loops[agentID]; ok && state.cancel != nil {
		state.cancel()
		state.cancel = nil
	}
	s.mu.Unlock()

	return nil
}

// RunOnce forces one tick immediately, bypassing the rate gate but not
// the overlap guard.
func (s *Supervisor) RunOnce(agentID core.AgentID) error {
	executed, err := s.Tick(agentID, true)
	if err != nil {
		return err
	}
	if !executed {
		return core.ErrTickInFlight
	}
	return nil
}

// ResumeLoops re-arms timers for every loop-enabled agent. Called once at
// daemon startup so loops survive restarts.
func (s *Supervisor) ResumeLoops() error {
	agents, err := s.agents.ListLoopEnabled()
	if err != nil {
		return err
	}

	for _, agent := range agents {
		if err := s.StartLoop(agent.ID); err != nil {
			logging.WithAgent(string(agent.ID)).Error("resume loop: %v", err)
		}
	}
	return nil
}

// Shutdown cancels all loops and waits for in-flight ticks to finish
func (s *Supervisor) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// Tick is the guarded tick entry point. It skips silently (executed=false,
// nil error) when a tick for the agent is already in flight, or when the
// call is not forced and the rate gate has not elapsed. The guard
// check-and-set is atomic under the supervisor mutex.
func (s *Supervisor) Tick(agentID core.AgentID, force bool) (bool, error) {
	s.mu.Lock()
	state := s.ensureState(agentID)
	if state.inFlight {
		s.mu.Unlock()
		return false, nil
	}
	if !force && time.Now().Before(state.nextAllowed) {
		s.mu.Unlock()
		return false, nil
	}
	state.inFlight = true
	s.mu.Unlock()

	// The guard is always released, whatever the tick does
	defer func() {
		s.mu.Lock()
		state.inFlight = false
		s.mu.Unlock()
	}()

	err := s.runTick(s.ctx, agentID)
	return true, err
}

// runLoop is the per-agent timer goroutine
func (s *Supervisor) runLoop(ctx context.Context, agentID core.AgentID, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(agentID, false)
		}
	}
}

func (s *Supervisor) ensureState(agentID core.AgentID) *loopState {
	state, ok := s.loops[agentID]
	if !ok {
		state = &loopState{}
		s.loops[agentID] = state
	}
	return state
}

// advanceGate pushes the rate gate to now+interval after a completed tick
func (s *Supervisor) advanceGate(agentID core.AgentID, interval time.Duration) {
	s.mu.Lock()
	s.ensureState(agentID).nextAllowed = time.Now().Add(interval)
	s.mu.Unlock()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
