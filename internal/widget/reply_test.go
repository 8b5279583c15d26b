package widget

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
)

const testFallbackReply = "fallback reply"

func TestResolveReplyPicksFirstMatchInListOrder(testingT *testing.T) {
	faqs := []model.FAQ{
		{Question: "pricing", Answer: "A"},
		{Question: "price list", Answer: "B"},
	}

	testCases := []struct {
		name          string
		userText      string
		expectedReply string
		expectedIndex int
	}{
		{name: "question contained in message", userText: "what is your price list", expectedReply: "B", expectedIndex: 1},
		{name: "message contained in question", userText: "price", expectedReply: "A", expectedIndex: 0},
		{name: "case insensitive", userText: "Tell me about PRICING please", expectedReply: "A", expectedIndex: 0},
		{name: "both entries match, first wins", userText: "pricing and price list", expectedReply: "A", expectedIndex: 0},
		{name: "no match falls back", userText: "opening hours", expectedReply: testFallbackReply, expectedIndex: -1},
	}

	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(testingT *testing.T) {
			require.Equal(testingT, testCase.expectedReply, ResolveReply(testCase.userText, faqs, testFallbackReply))
			_, matchedIndex, _ := MatchFAQ(testCase.userText, faqs)
			require.Equal(testingT, testCase.expectedIndex, matchedIndex)
		})
	}
}

// The loose bidirectional match is kept as-is; these cases pin its documented quirks.
func TestResolveReplyLooseMatchingQuirks(testingT *testing.T) {
	testingT.Run("short question matches any message containing it", func(testingT *testing.T) {
		faqs := []model.FAQ{{Question: "a", Answer: "short"}}
		require.Equal(testingT, "short", ResolveReply("can I book a demo", faqs, testFallbackReply))
	})

	testingT.Run("empty question matches everything", func(testingT *testing.T) {
		faqs := []model.FAQ{{Question: "", Answer: "catch-all"}, {Question: "refund", Answer: "refund policy"}}
		require.Equal(testingT, "catch-all", ResolveReply("refund", faqs, testFallbackReply))
	})

	testingT.Run("matched entry without answer falls back without searching further", func(testingT *testing.T) {
		faqs := []model.FAQ{{Question: "refund", Answer: ""}, {Question: "refund policy", Answer: "30 days"}}
		require.Equal(testingT, testFallbackReply, ResolveReply("refund policy", faqs, testFallbackReply))
	})

	testingT.Run("empty faq list falls back", func(testingT *testing.T) {
		require.Equal(testingT, testFallbackReply, ResolveReply("hello", nil, testFallbackReply))
	})
}
