package reply

import (
	"fmt"
	"strings"
)

// Tips derives posting hints for a drafted reply. It is deterministic in its
// inputs.
func Tips(c Context, replyText string) []string {
	var tips []string

	// An empty product name counts as mentioned.
	if strings.Contains(strings.ToLower(replyText), strings.ToLower(c.Product.Name)) {
		tips = append(tips,
			"Product mentioned - make sure it flows naturally in context",
			"Consider engaging in the thread first before posting promotional content",
		)
	} else {
		tips = append(tips, "No product mention - this builds credibility for future interactions")
	}

	return append(tips,
		fmt.Sprintf("Read other comments in r/%s to match the tone", c.Subreddit),
		"Wait a bit before posting - instant replies can look suspicious",
		"Be ready to follow up if they have questions",
	)
}
