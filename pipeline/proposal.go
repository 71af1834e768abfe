package pipeline

import (
	"context"
	"log/slog"

	"sfstory/generator"
	"sfstory/workpool"
)

// ProposalRound asks every persona for a proposal concurrently, on a pool
// bounded by the persona count. Failed or timed-out requests are dropped and
// logged. Each successful proposal is appended to its author's memory once
// all requests have settled. The result holds between 0 and len(personas)
// proposals, in persona order.
func ProposalRound(ctx context.Context, agent *generator.Agent, personas []generator.Persona,
	element, worldContext string, mem *generator.Memory, round int, logger *slog.Logger,
) []generator.Proposal {
	k := len(personas)
	outcomes := workpool.Run(ctx, k, k, func(ctx context.Context, i int) (string, error) {
		return agent.Think(ctx, personas[i], element, worldContext, mem.Contents(i))
	})

	proposals := make([]generator.Proposal, 0, k)
	for _, o := range outcomes {
		p := personas[o.Index]
		if !o.OK() {
			logger.Warn("persona dropped from round", "persona", p.Name, "element", element, "round", round, "error", o.Err)
			continue
		}
		mem.Append(o.Index, o.Value)
		proposals = append(proposals, generator.Proposal{Author: p, Content: o.Value})
	}
	return proposals
}
