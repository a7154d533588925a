package valueobjects

// StyleCategory is a presentation hint attached to a node. It is purely
// cosmetic: nothing reads it back for logic, the "already added" check in the
// suggestion workflow is driven by label alone.
type StyleCategory string

const (
	StyleNeutral    StyleCategory = "neutral"
	StyleLearned    StyleCategory = "learned"
	StyleInterested StyleCategory = "interested"
	StylePast       StyleCategory = "past"
	StyleFuture     StyleCategory = "future"
	StyleBase       StyleCategory = "base"
	StyleFresh      StyleCategory = "fresh"
)

// Valid reports whether the category is one of the known presentation hints.
func (c StyleCategory) Valid() bool {
	switch c {
	case StyleNeutral, StyleLearned, StyleInterested, StylePast, StyleFuture, StyleBase, StyleFresh:
		return true
	}
	return false
}
