package reply

import (
	"hash/fnv"
	"strings"
)

// DemoTip leads the tips of every mock draft.
const DemoTip = "This is a demo reply - configure OPENAI_API_KEY, ANTHROPIC_API_KEY or GEMINI_API_KEY for real AI generation"

var mockTemplates = []func(p Product) string{
	func(p Product) string {
		return "Hey! I've been in a similar situation before. What worked for me was taking a more systematic approach to the problem.\n\n" +
			"I actually started using " + p.Name + " a few months ago for exactly this - it's been pretty helpful for " + strings.ToLower(p.TargetAudience) + ". " +
			"Not saying it's the only solution, but worth checking out if you haven't already.\n\n" +
			"Happy to share more details about my experience if you're interested!"
	},
	func(p Product) string {
		return "Great question! This is something a lot of people struggle with.\n\n" +
			"From my experience, the key is finding a tool that fits your workflow. I've tried a few different options and ended up settling on " +
			p.Name + " (" + p.Website + "). It's designed specifically for " + strings.ToLower(p.TargetAudience) + " which made the learning curve pretty smooth.\n\n" +
			"Let me know if you have specific questions!"
	},
	func(p Product) string {
		return "I dealt with this exact problem last year. Here's what I learned:\n\n" +
			"1. Start by identifying your biggest pain points\n" +
			"2. Look for solutions that address those specifically\n" +
			"3. Don't overcomplicate things early on\n\n" +
			"For what it's worth, " + p.Name + " helped me a lot with this. It's not perfect but it does the job well. You can check it out at " + p.Website + ".\n\n" +
			"Good luck!"
	},
}

// mockReply picks a canned draft from the subreddit and post title, so the
// same post always gets the same draft.
func mockReply(c Context) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(c.Subreddit)))
	h.Write([]byte{0})
	h.Write([]byte(c.PostTitle))
	return mockTemplates[h.Sum32()%uint32(len(mockTemplates))](c.Product)
}
