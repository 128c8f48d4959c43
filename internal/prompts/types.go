// Package prompts provides prompt management for embedded prompt templates.
//
// Embedded .tmpl files in code are the source of truth. Each prompt is
// registered under a hierarchical key (e.g. "extraction.system") together
// with a content hash, so every recorded LLM call can be traced back to the
// exact prompt text that produced it.
package prompts

// EmbeddedPrompt represents a prompt loaded from an embedded .tmpl file.
type EmbeddedPrompt struct {
	Key         string   `json:"key"`                   // Hierarchical key: extraction.system
	Text        string   `json:"text"`                  // The prompt text (Go template)
	Description string   `json:"description,omitempty"` // Human-readable description
	Variables   []string `json:"variables,omitempty"`   // Extracted template variables
	Hash        string   `json:"hash"`                  // SHA256 hash of the text for change detection
}
