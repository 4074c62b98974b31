package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/scout/internal/agent"
	"github.com/mohammad-safakhou/scout/internal/state"
)

// BranchFailure is a retrieval branch that wrote no output.
type BranchFailure = agent.BranchFailure

// BranchResult is the outcome of one branch.
type BranchResult struct {
	Stage   string
	Outcome agent.Outcome
	Err     error
}

// FanOut runs stages concurrently against store and waits for all of them.
// A failing or panicking stage never cancels its siblings; its error is
// reported in the returned slice, which follows the order of stages.
func FanOut(ctx context.Context, store state.Store, request string, stages []*agent.Stage) []BranchResult {
	results := make([]BranchResult, len(stages))
	var g errgroup.Group
	for i, s := range stages {
		results[i].Stage = s.Name
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i].Err = &BranchFailure{Stage: s.Name, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			out, err := s.Run(ctx, store, request)
			results[i].Outcome = out
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Failures maps each failed branch to its error.
func Failures(results []BranchResult) map[string]error {
	out := make(map[string]error)
	for _, r := range results {
		if r.Err != nil {
			out[r.Stage] = r.Err
		}
	}
	return out
}
