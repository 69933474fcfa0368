package testutil

import (
	"context"

	"github.com/corvidlabs/corvid/internal/oracle"
)

// FakeOracle implements oracle.Oracle with overridable function fields.
// Unset fields return empty results.
type FakeOracle struct {
	DecideFn         func(ctx context.Context, objective string, recentSummaries []string) (*oracle.TickDecision, error)
	ResearchFn       func(ctx context.Context, objective, question string) (string, error)
	PlanCrawlFn      func(ctx context.Context, objective string, recentSummaries []string) (*oracle.CrawlPlan, error)
	FetchPageFn      func(ctx context.Context, url string) (*oracle.Page, error)
	GenerateFn       func(ctx context.Context, objective, topic string) (*oracle.GeneratedContent, error)
	BrainstormFn     func(ctx context.Context, objective string, recentSummaries []string) ([]string, error)
	DraftProposalsFn func(ctx context.Context, objective string, ideas []string) ([]oracle.ProposalDraft, error)
	ChatFn           func(ctx context.Context, passages []string, question string) (string, error)
}

func (f *FakeOracle) Decide(ctx context.Context, objective string, recentSummaries []string) (*oracle.TickDecision, error) {
	if f.DecideFn != nil {
		return f.DecideFn(ctx, objective, recentSummaries)
	}
	return &oracle.TickDecision{Analysis: "nothing to do"}, nil
}

func (f *FakeOracle) Research(ctx context.Context, objective, question string) (string, error) {
	if f.ResearchFn != nil {
		return f.ResearchFn(ctx, objective, question)
	}
	return "no findings", nil
}

func (f *FakeOracle) PlanCrawl(ctx context.Context, objective string, recentSummaries []string) (*oracle.CrawlPlan, error) {
	if f.PlanCrawlFn != nil {
		return f.PlanCrawlFn(ctx, objective, recentSummaries)
	}
	return &oracle.CrawlPlan{}, nil
}

func (f *FakeOracle) FetchPage(ctx context.Context, url string) (*oracle.Page, error) {
	if f.FetchPageFn != nil {
		return f.FetchPageFn(ctx, url)
	}
	return &oracle.Page{Title: url, Content: "empty page", ContentType: "text/markdown"}, nil
}

func (f *FakeOracle) Generate(ctx context.Context, objective, topic string) (*oracle.GeneratedContent, error) {
	if f.GenerateFn != nil {
		return f.GenerateFn(ctx, objective, topic)
	}
	return &oracle.GeneratedContent{Title: "untitled", Body: "generated body"}, nil
}

func (f *FakeOracle) Brainstorm(ctx context.Context, objective string, recentSummaries []string) ([]string, error) {
	if f.BrainstormFn != nil {
		return f.BrainstormFn(ctx, objective, recentSummaries)
	}
	return nil, nil
}

func (f *FakeOracle) DraftProposals(ctx context.Context, objective string, ideas []string) ([]oracle.ProposalDraft, error) {
	if f.DraftProposalsFn != nil {
		return f.DraftProposalsFn(ctx, objective, ideas)
	}
	return nil, nil
}

func (f *FakeOracle) Chat(ctx context.Context, passages []string, question string) (string, error) {
	if f.ChatFn != nil {
		return f.ChatFn(ctx, passages, question)
	}
	return "no answer", nil
}
