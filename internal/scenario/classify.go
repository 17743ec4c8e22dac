package scenario

import "strings"

// keyword sets are checked in this order; the first hit wins.
var classifierRules = []struct {
	category Category
	keywords []string
}{
	{CareerChange, []string{"quit"}},
	{Relocation, []string{"move"}},
	{Commitment, []string{"propos"}},
}

// DefaultCategory is returned when no keyword matches.
const DefaultCategory = CareerChange

// Classify maps free-text decision input to a category by case-insensitive
// substring match.
func Classify(decision string) Category {
	d := strings.ToLower(decision)
	for _, rule := range classifierRules {
		for _, kw := range rule.keywords {
			if strings.Contains(d, kw) {
				return rule.category
			}
		}
	}
	return DefaultCategory
}
