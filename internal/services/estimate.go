package services

// EstimateTokens gives a rough token count for a single chat message:
// about four characters per token plus fixed per-message and per-request overhead.
func EstimateTokens(content string) int64 {
	const (
		charsPerToken   = 4
		messageOverhead = 4
		requestOverhead = 3
	)
	return int64(len(content))/charsPerToken + messageOverhead + requestOverhead
}
