// Package resumetext formats and recognizes resume-command lines in
// free-form text. Agents paste these lines into answers and logs;
// extraction turns them back into tokens, and the strict line check
// lets truncation logic preserve them.
//
// Canonical formats, all case-insensitive, tolerated plain, wrapped
// in backticks, or inside code fences:
//
//	codex resume <id>
//	claude --resume <id>
//	kimi --session <id>
//	opencode [run] --session ses_<id>
//	pi --session <token-possibly-quoted>
//	lemon resume <id>

package resumetext

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/HyphaGroup/warden/internal/event"
)

// pattern pairs an engine with its resume-line regexp. The token is
// always capture group 1.
type pattern struct {
	engine string
	re     *regexp.Regexp
}

// Patterns are matched in declaration order; Extract returns the
// first hit across the engine set.
var patterns = []pattern{
	{"codex", regexp.MustCompile(`(?i)\bcodex\s+resume\s+([A-Za-z0-9_-]+)`)},
	{"claude", regexp.MustCompile(`(?i)\bclaude\s+--resume\s+([A-Za-z0-9_-]+)`)},
	{"kimi", regexp.MustCompile(`(?i)\bkimi\s+--session\s+([A-Za-z0-9_-]+)`)},
	{"opencode", regexp.MustCompile(`(?i)\bopencode\s+(?:run\s+)?--session\s+(ses_[A-Za-z0-9]+)`)},
	{"pi", regexp.MustCompile(`(?i)\bpi\s+--session\s+(?:"([^"]+)"|([^\s"` + "`" + `]+))`)},
	{"lemon", regexp.MustCompile(`(?i)\blemon\s+resume\s+([A-Za-z0-9_-]+)`)},
}

// strict holds the whole-line forms for IsResumeLine.
var strict = func() []pattern {
	out := make([]pattern, len(patterns))
	for i, p := range patterns {
		out[i] = pattern{p.engine, regexp.MustCompile(`^(?:` + p.re.String() + `)$`)}
	}
	return out
}()

// Format renders the canonical resume line for a token.
func Format(token event.ResumeToken) string {
	switch token.Engine {
	case "codex":
		return "codex resume " + token.Value
	case "claude":
		return "claude --resume " + token.Value
	case "kimi":
		return "kimi --session " + token.Value
	case "opencode":
		return "opencode --session " + token.Value
	case "pi":
		if strings.ContainsAny(token.Value, " \t") {
			return fmt.Sprintf("pi --session %q", token.Value)
		}
		return "pi --session " + token.Value
	case "lemon":
		return "lemon resume " + token.Value
	}
	return ""
}

// Extract parses the first recognized resume line anywhere in text.
func Extract(text string) (event.ResumeToken, bool) {
	for _, line := range strings.Split(text, "\n") {
		line = stripDecoration(line)
		for _, p := range patterns {
			if m := p.re.FindStringSubmatch(line); m != nil {
				return event.ResumeToken{Engine: p.engine, Value: firstGroup(m)}, true
			}
		}
	}
	return event.ResumeToken{}, false
}

// IsResumeLine reports whether the trimmed line is essentially a
// resume command and nothing else.
func IsResumeLine(line string) bool {
	line = stripDecoration(line)
	for _, p := range strict {
		if p.re.MatchString(line) {
			return true
		}
	}
	return false
}

// firstGroup returns the first non-empty capture group; pi's pattern
// has separate groups for the quoted and bare forms.
func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// stripDecoration trims whitespace, surrounding backticks, and fence
// markers so decorated lines match the same patterns.
func stripDecoration(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "$")
	line = strings.TrimSpace(line)
	line = strings.Trim(line, "`")
	return strings.TrimSpace(line)
}
