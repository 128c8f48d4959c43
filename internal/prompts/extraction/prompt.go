// Package extraction holds the prompts for systematic-review data extraction.
package extraction

import (
	_ "embed"
	"strings"

	"github.com/jackzampolin/sysrev/internal/prompts"
)

//go:embed system.tmpl
var systemPromptTmpl string

//go:embed user.tmpl
var userPromptTmpl string

var (
	systemTemplate = prompts.MustParse(SystemPromptKey, systemPromptTmpl)
	userTemplate   = prompts.MustParse(UserPromptKey, userPromptTmpl)
)

// Prompt keys
const (
	SystemPromptKey = "extraction.system"
	UserPromptKey   = "extraction.user"
)

const (
	unknownRule     = "write 'unknown'"
	blankRule       = "leave it blank"
	englishRule     = "All output must be in English."
	followInputRule = "Output language should follow the input."
)

// Options toggles the variable parts of the system prompt.
type Options struct {
	ForceEnglish bool
	AllowUnknown bool
}

// DefaultOptions matches the defaults offered to users.
func DefaultOptions() Options {
	return Options{ForceEnglish: true, AllowUnknown: true}
}

// SystemPrompt returns the system prompt for the given options.
func SystemPrompt(opts Options) string {
	data := struct {
		UnknownRule  string
		LanguageRule string
	}{
		UnknownRule:  blankRule,
		LanguageRule: followInputRule,
	}
	if opts.AllowUnknown {
		data.UnknownRule = unknownRule
	}
	if opts.ForceEnglish {
		data.LanguageRule = englishRule
	}

	return strings.TrimRight(systemTemplate.MustRender(data), "\n")
}

// UserPrompt wraps the article text in the extraction request.
func UserPrompt(articleText string) string {
	return userTemplate.MustRender(struct{ ArticleText string }{ArticleText: articleText})
}

// RegisterPrompts registers the extraction prompts with the registry.
func RegisterPrompts(r *prompts.Registry) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemTemplate.Text(),
		Description: "Extraction system prompt - systematic review instructions, missing-field and language rules",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         UserPromptKey,
		Text:        userTemplate.Text(),
		Description: "Extraction user prompt template wrapping the article text",
	})
}
