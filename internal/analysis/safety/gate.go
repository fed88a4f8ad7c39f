package safety

import (
	"regexp"
	"strings"

	"github.com/mharburg8/talk-to-your-inner-child/internal/model/chat"
)

// SnippetLimit 审计片段保留的最大字符数。
const SnippetLimit = 200

// CrisisResponse 命中安全规则时返回给用户的固定文本，不经过模型。
const CrisisResponse = `I'm concerned about what you've shared. Your safety is important, and I want to make sure you get the support you need right now.

If you're in the United States, please reach out to the 988 Suicide and Crisis Lifeline by calling or texting 988. They provide free, confidential support 24/7.

If you're outside the US, please contact your local emergency services or crisis helpline.

You can also:
- Reach out to a trusted friend, family member, or mental health professional
- Go to your nearest emergency room if you're in immediate danger

Remember, you don't have to face this alone. There are people who want to help and support you through this difficult time.

I'm here to listen, but I'm not equipped to provide crisis support. Please reach out to a trained professional who can help you right now.`

// Result 安全检查结果。IsSafe 为 false 时其余字段才有值。
type Result struct {
	IsSafe         bool
	Category       chat.SafetyCategory
	Snippet        string
	CrisisResponse string
}

type rule struct {
	pattern  *regexp.Regexp
	category chat.SafetyCategory
}

// rules 按顺序匹配，第一个命中的规则决定分类，只会是 suicide 或 self_harm。
var rules = []rule{
	{regexp.MustCompile(`(?i)\b(kill|end)\s+(myself|my\s*self)\b`), chat.CategorySuicide},
	{regexp.MustCompile(`(?i)\b(hurt|harm|cut)\s+(myself|my\s*self)\b`), chat.CategorySelfHarm},
	{regexp.MustCompile(`(?i)\bsuicid(e|al)\b`), chat.CategorySuicide},
	{regexp.MustCompile(`(?i)\bwant\s+to\s+die\b`), chat.CategorySuicide},
	{regexp.MustCompile(`(?i)\bno\s+reason\s+to\s+live\b`), chat.CategorySuicide},
	{regexp.MustCompile(`(?i)\bdon'?t\s+want\s+to\s+be\s+here\b`), chat.CategorySelfHarm},
	{regexp.MustCompile(`(?i)\bend\s+it\s+all\b`), chat.CategorySuicide},
	{regexp.MustCompile(`(?i)\bbetter\s+off\s+dead\b`), chat.CategorySuicide},
}

// Check 对文本做确定性的规则检查。
func Check(text string) Result {
	for _, r := range rules {
		if !r.pattern.MatchString(text) {
			continue
		}
		category := r.category
		if strings.Contains(strings.ToLower(text), "suicid") {
			category = chat.CategorySuicide
		}
		return Result{
			IsSafe:         false,
			Category:       category,
			Snippet:        Snippet(text),
			CrisisResponse: CrisisResponse,
		}
	}
	return Result{IsSafe: true}
}

// Snippet 截取前 SnippetLimit 个字符，不做脱敏。
func Snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= SnippetLimit {
		return text
	}
	return string(runes[:SnippetLimit])
}
