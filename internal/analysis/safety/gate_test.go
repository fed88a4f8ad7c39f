package safety

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mharburg8/talk-to-your-inner-child/internal/model/chat"
)

func TestCheckFlagsCrisisPhrases(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		category chat.SafetyCategory
	}{
		{"want to die", "Sometimes I want to die", chat.CategorySuicide},
		{"suicidal", "I've been feeling SUICIDAL lately", chat.CategorySuicide},
		{"kill myself", "I could kill myself over this", chat.CategorySuicide},
		{"hurt myself", "I want to hurt my self", chat.CategorySelfHarm},
		{"cut myself", "i cut myself last week", chat.CategorySelfHarm},
		{"self harm mentioning suicide", "I cut myself, maybe it's suicide", chat.CategorySuicide},
		{"no reason to live", "There's no reason to live", chat.CategorySuicide},
		{"dont want to be here", "I dont want to be here anymore", chat.CategorySelfHarm},
		{"don't want to be here", "I don't want to be here anymore", chat.CategorySelfHarm},
		{"end it all", "I just want to end it all", chat.CategorySuicide},
		{"better off dead", "they'd be better off dead without me", chat.CategorySuicide},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Check(tc.text)
			require.False(t, res.IsSafe)
			assert.Equal(t, tc.category, res.Category)
			assert.Equal(t, tc.text, res.Snippet)
			assert.Equal(t, CrisisResponse, res.CrisisResponse)
		})
	}
}

func TestCheckAllowsOrdinaryText(t *testing.T) {
	for _, text := range []string{
		"I loved dinosaurs when I was eight",
		"We played until the sun went down",
		"I'm dying to see that movie",
		"",
	} {
		res := Check(text)
		assert.True(t, res.IsSafe, text)
		assert.Empty(t, res.Category)
		assert.Empty(t, res.CrisisResponse)
	}
}

func TestCheckSnippetIsFirst200Chars(t *testing.T) {
	text := "I want to die " + strings.Repeat("x", 400)
	res := Check(text)
	require.False(t, res.IsSafe)
	assert.Equal(t, text[:200], res.Snippet)
	assert.Len(t, []rune(res.Snippet), SnippetLimit)
}

func TestCrisisResponseMentions988(t *testing.T) {
	assert.Contains(t, CrisisResponse, "988 Suicide and Crisis Lifeline")
}

func TestCheckCategoryIsSuicideOrSelfHarm(t *testing.T) {
	for _, text := range []string{
		"I don't want to be here anymore",
		"I dont want to be here",
		"i want to end myself",
		"I keep wanting to harm myself",
	} {
		res := Check(text)
		require.False(t, res.IsSafe, text)
		assert.Contains(t, []chat.SafetyCategory{chat.CategorySuicide, chat.CategorySelfHarm}, res.Category, text)
		assert.NotEqual(t, chat.CategoryCrisis, res.Category, text)
	}
}
