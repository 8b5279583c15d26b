package widget

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbedConfigResolve(testingT *testing.T) {
	resolved, resolveErr := EmbedConfig{ChatbotID: " bot-1 "}.Resolve()
	require.NoError(testingT, resolveErr)
	require.Equal(testingT, EmbedConfig{ChatbotID: "bot-1", Position: "right", APIURL: DefaultAPIBaseURL}, resolved)

	customized, customizedErr := EmbedConfig{ChatbotID: "bot-1", Position: "left", APIURL: "https://api.example.com/api/"}.Resolve()
	require.NoError(testingT, customizedErr)
	require.Equal(testingT, "left", customized.Position)
	require.Equal(testingT, "https://api.example.com/api", customized.APIURL)

	_, missingErr := EmbedConfig{Position: "left"}.Resolve()
	require.ErrorIs(testingT, missingErr, ErrMissingChatbotID)
}
