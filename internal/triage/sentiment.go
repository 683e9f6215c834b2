package triage

// AnalyzeSentiment scores text against the lexicons and returns its polarity
// and signed score. Empty or whitespace-only text is neutral.
func (e *Engine) AnalyzeSentiment(text string) (Sentiment, int) {
	return e.sentiment(tokenize(text))
}

func (e *Engine) sentiment(tokens []string) (Sentiment, int) {
	score := 0
	for i, tok := range tokens {
		w, ok := e.weights[tok]
		if !ok {
			continue
		}
		if e.negated(tokens, i) {
			w = -w
		}
		score += w
	}
	switch {
	case score > 0:
		return SentimentPositive, score
	case score < 0:
		return SentimentNegative, score
	default:
		return SentimentNeutral, 0
	}
}

// negated reports whether a negation token appears within the window of
// tokens immediately before position i.
func (e *Engine) negated(tokens []string, i int) bool {
	start := i - e.window
	if start < 0 {
		start = 0
	}
	for j := start; j < i; j++ {
		if e.negations[tokens[j]] {
			return true
		}
	}
	return false
}
