package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"
)

// Template is a parsed prompt template together with its source text.
type Template struct {
	text string
	tmpl *template.Template
}

// MustParse parses an embedded prompt and panics on a syntax error.
func MustParse(name, text string) *Template {
	return &Template{
		text: text,
		tmpl: template.Must(template.New(name).Option("missingkey=error").Parse(text)),
	}
}

// Text returns the unrendered template source.
func (t *Template) Text() string {
	return t.text
}

// Render executes the template with data.
func (t *Template) Render(data any) (string, error) {
	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", t.tmpl.Name(), err)
	}
	return sb.String(), nil
}

// MustRender is Render for fixed templates whose data always satisfies them.
func (t *Template) MustRender(data any) string {
	out, err := t.Render(data)
	if err != nil {
		panic(err)
	}
	return out
}

// ExtractVariables returns the field references of a Go template, sorted
// and without duplicates. "{{.Book.Title}}" yields "Book.Title".
// Text that does not parse yields nil.
func ExtractVariables(text string) []string {
	t, err := template.New("vars").Parse(text)
	if err != nil || t.Tree == nil {
		return nil
	}
	seen := make(map[string]bool)
	collectFields(t.Tree.Root, seen)
	if len(seen) == 0 {
		return nil
	}

	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

func collectFields(node parse.Node, seen map[string]bool) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			collectFields(c, seen)
		}
	case *parse.ActionNode:
		collectFields(n.Pipe, seen)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, c := range n.Cmds {
			collectFields(c, seen)
		}
	case *parse.CommandNode:
		for _, a := range n.Args {
			collectFields(a, seen)
		}
	case *parse.FieldNode:
		seen[strings.Join(n.Ident, ".")] = true
	case *parse.IfNode:
		collectBranch(&n.BranchNode, seen)
	case *parse.RangeNode:
		collectBranch(&n.BranchNode, seen)
	case *parse.WithNode:
		collectBranch(&n.BranchNode, seen)
	}
}

func collectBranch(b *parse.BranchNode, seen map[string]bool) {
	collectFields(b.Pipe, seen)
	collectFields(b.List, seen)
	collectFields(b.ElseList, seen)
}

// HashText returns the hex SHA-256 of a prompt; recorded LLM calls carry it
// so a result can be traced to the exact prompt text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
