package council

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/project"
)

// PollValidators runs every validator concurrently and joins before
// combining. Consensus is the AND of all approvals; concerns are
// concatenated in validator order as "validator: concern".
func PollValidators(ctx context.Context, validators []Validator, stack map[project.Category]string, platforms project.PlatformRequirements) project.ConsensusOutcome {
	timer := logging.StartTimer(logging.CategoryCouncil, "PollValidators")
	defer timer.Stop()

	votes := make([]project.Vote, len(validators))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range validators {
		g.Go(func() error {
			votes[i] = v.Validate(gctx, copyStack(stack), platforms)
			return nil
		})
	}
	_ = g.Wait()

	outcome := project.ConsensusOutcome{Achieved: true, Votes: votes}
	for _, vote := range votes {
		logging.CouncilDebug("vote from %s: approve=%v concerns=%d", vote.Validator, vote.Approve, len(vote.Concerns))
		if !vote.Approve {
			outcome.Achieved = false
		}
		for _, c := range vote.Concerns {
			outcome.Concerns = append(outcome.Concerns, fmt.Sprintf("%s: %s", vote.Validator, c))
		}
	}
	if len(validators) == 0 {
		logging.CouncilWarn("no validators selected; consensus is vacuous")
	}
	return outcome
}

func copyStack(stack map[project.Category]string) map[project.Category]string {
	out := make(map[project.Category]string, len(stack))
	for k, v := range stack {
		out[k] = v
	}
	return out
}
