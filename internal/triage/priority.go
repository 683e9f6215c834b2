package triage

// ScorePriority derives a priority from the upstream sentiment and category
// plus urgency markers found in text. Rules are evaluated in order and the
// first match wins:
//
//  1. negative, safety-critical and urgent -> urgent
//  2. negative and sensitive or safety-critical -> high
//  3. negative -> medium
//  4. neutral -> low, medium when urgent
//  5. positive -> low
//
// Safety-critical means the category is a safety category, or, when cross
// category safety is enabled, the text contains a safety category keyword.
func (e *Engine) ScorePriority(s Sentiment, c Category, text string) Priority {
	tokens := tokenize(text)
	return e.priority(s, c, tokens, e.urgency(text, tokens))
}

func (e *Engine) priority(s Sentiment, c Category, tokens []string, urgent bool) Priority {
	switch s {
	case SentimentNegative:
		safety := e.safetyCritical(c, tokens)
		switch {
		case safety && urgent:
			return PriorityUrgent
		case safety || e.sensitive[c]:
			return PriorityHigh
		default:
			return PriorityMedium
		}
	case SentimentNeutral:
		if urgent {
			return PriorityMedium
		}
		return PriorityLow
	default:
		return PriorityLow
	}
}

func (e *Engine) safetyCritical(c Category, tokens []string) bool {
	if e.safety[c] {
		return true
	}
	for _, p := range e.safetyPhrases {
		if countPhrase(tokens, p) > 0 {
			return true
		}
	}
	return false
}

// HasUrgency reports whether text carries an urgency marker.
func (e *Engine) HasUrgency(text string) bool {
	return e.urgency(text, tokenize(text))
}

func (e *Engine) urgency(text string, tokens []string) bool {
	for _, tok := range tokens {
		if e.urgentWords[tok] {
			return true
		}
	}
	for _, p := range e.urgentPhrases {
		if countPhrase(tokens, p) > 0 {
			return true
		}
	}

	sig := scanSignals(text)
	if e.exclMin > 0 && sig.exclamations >= e.exclMin {
		words := sig.words
		if words == 0 {
			words = 1
		}
		if float64(sig.exclamations)/float64(words) >= e.exclRatio {
			return true
		}
	}
	if e.capsMin > 0 && sig.capsWords >= e.capsMin && sig.letterWords > 0 {
		if float64(sig.capsWords)/float64(sig.letterWords) >= e.capsRatio {
			return true
		}
	}
	return false
}
