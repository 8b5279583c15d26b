package widget

import (
	"strings"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
)

// MatchFAQ returns the first FAQ, in list order, whose question contains the user text or is
// contained by it, ignoring case. The match is deliberately loose: short questions match most
// messages and an FAQ with an empty question matches everything.
func MatchFAQ(userText string, faqs []model.FAQ) (model.FAQ, int, bool) {
	loweredUserText := strings.ToLower(userText)
	for index, faq := range faqs {
		loweredQuestion := strings.ToLower(faq.Question)
		if strings.Contains(loweredUserText, loweredQuestion) || strings.Contains(loweredQuestion, loweredUserText) {
			return faq, index, true
		}
	}
	return model.FAQ{}, -1, false
}

// ResolveReply maps a visitor utterance to the bot reply. A matched FAQ without an answer
// yields the fallback; the search does not continue past the first match.
func ResolveReply(userText string, faqs []model.FAQ, fallbackMessage string) string {
	matchedFAQ, _, matched := MatchFAQ(userText, faqs)
	if matched && matchedFAQ.Answer != "" {
		return matchedFAQ.Answer
	}
	return fallbackMessage
}
