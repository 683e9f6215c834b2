package triage

// ClassifyCategory returns the category whose keywords match text most often.
// Equal counts resolve by rule table order; no match yields general.
func (e *Engine) ClassifyCategory(text string) Category {
	return e.category(tokenize(text))
}

func (e *Engine) category(tokens []string) Category {
	best, bestCount := CategoryGeneral, 0
	for _, cc := range e.categories {
		n := 0
		for _, p := range cc.phrases {
			n += countPhrase(tokens, p)
		}
		// strict > keeps the earlier category on ties
		if n > bestCount {
			best, bestCount = cc.name, n
		}
	}
	return best
}
