package rag

import "chatrag/internal/schema"

// rerankBoost is the maximum lexical bonus added to a vector score.
const rerankBoost = 0.15

// rerank adds a lexical-overlap bonus to each context's score, capped
// at 1.0, then reorders and truncates to topK. Scores never decrease,
// so reranking cannot drop a context below the confidence gate it
// would otherwise have passed.
func rerank(query string, contexts []schema.RetrievalContext, topK int) []schema.RetrievalContext {
	if len(contexts) == 0 {
		return contexts
	}

	queryTokens := tokenize(query)
	rescored := make([]schema.RetrievalContext, len(contexts))
	for i, ctx := range contexts {
		docTokens := tokenize(ctx.Text)
		overlapScore := 0.0
		if len(queryTokens) > 0 && len(docTokens) > 0 {
			overlapScore = float64(overlapCount(queryTokens, docTokens)) / float64(len(queryTokens))
		}
		boosted := ctx.Score + rerankBoost*overlapScore
		if boosted > 1.0 {
			boosted = 1.0
		}
		ctx.Score = boosted
		rescored[i] = ctx
	}

	sortByScore(rescored)
	if len(rescored) > topK {
		rescored = rescored[:topK]
	}
	return rescored
}
