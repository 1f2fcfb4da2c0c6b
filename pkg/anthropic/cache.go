package anthropic

// CachedSystemBlocks wraps a system prompt in a single block carrying a
// 1-hour cache breakpoint. The classifier reuses the same system prompt for
// every batch of a run, so all calls after the first hit the warm cache.
func CachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "1h"},
		},
	}
}
