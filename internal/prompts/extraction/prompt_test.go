package extraction

import (
	"strings"
	"testing"

	"github.com/jackzampolin/sysrev/internal/prompts"
)

func TestSystemPrompt(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		contains []string
		excludes []string
	}{
		{
			name:     "defaults",
			opts:     DefaultOptions(),
			contains: []string{"write 'unknown'", "All output must be in English."},
			excludes: []string{"leave it blank", "{{"},
		},
		{
			name:     "blank and follow input",
			opts:     Options{},
			contains: []string{"leave it blank", "Output language should follow the input."},
			excludes: []string{"write 'unknown'", "All output must be in English.", "{{"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SystemPrompt(tt.opts)
			for _, s := range tt.contains {
				if !strings.Contains(got, s) {
					t.Errorf("system prompt missing %q", s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(got, s) {
					t.Errorf("system prompt should not contain %q", s)
				}
			}
			if strings.HasSuffix(got, "\n") {
				t.Error("system prompt should not end with a newline")
			}
		})
	}
}

func TestUserPrompt(t *testing.T) {
	got := UserPrompt("Patients with X improved.")
	want := "---BEGIN ARTICLE TEXT---\nPatients with X improved.\n---END ARTICLE TEXT---\n"
	if !strings.HasSuffix(got, want) {
		t.Errorf("user prompt does not wrap article text:\n%s", got)
	}
	if !strings.HasPrefix(got, "Analyze the following scientific article") {
		t.Errorf("unexpected preamble:\n%s", got)
	}
}

func TestUserPrompt_NoHTMLEscaping(t *testing.T) {
	got := UserPrompt("p < 0.05 & n > 10")
	if !strings.Contains(got, "p < 0.05 & n > 10") {
		t.Errorf("article text was altered: %s", got)
	}
}

func TestRegisterPrompts(t *testing.T) {
	r := prompts.NewRegistry(nil)
	RegisterPrompts(r)

	for _, key := range []string{SystemPromptKey, UserPromptKey} {
		p, err := r.Get(key)
		if err != nil {
			t.Fatalf("Get(%q) error = %v", key, err)
		}
		if p.Hash == "" {
			t.Errorf("%s: missing hash", key)
		}
	}

	user, _ := r.Get(UserPromptKey)
	if len(user.Variables) != 1 || user.Variables[0] != "ArticleText" {
		t.Errorf("user prompt variables = %v", user.Variables)
	}
}
