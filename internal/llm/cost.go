package llm

// gpt-4o-mini pricing, USD per million tokens. Cached prompt tokens are
// billed at half the prompt rate.
const (
	promptRatePerM     = 0.150
	cachedRatePerM     = 0.075
	completionRatePerM = 0.600
)

// CompletionCost returns the USD cost of one completion.
func CompletionCost(u Usage) float64 {
	fresh := u.PromptTokens - u.CachedTokens
	if fresh < 0 {
		fresh = 0
	}
	return float64(fresh)/1_000_000*promptRatePerM +
		float64(u.CachedTokens)/1_000_000*cachedRatePerM +
		float64(u.CompletionTokens)/1_000_000*completionRatePerM
}
