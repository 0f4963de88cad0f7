// Package suggest proposes short replies to a message. It never fails: when
// the model is unavailable or unhelpful the gaps are filled from templates.
package suggest

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/anonify/anonify/internal/apperr"
)

// Count is the number of suggestions returned.
const Count = 3

// Separator splits suggestions in generated text.
const Separator = "||"

// ErrMessageRequired rejects an empty input message.
var ErrMessageRequired = apperr.New(apperr.Validation, "Message is required")

var (
	promptOpeners = []string{
		"Generate 3 diverse, engaging responses to this message:",
		"Create 3 unique, friendly replies for:",
		"Suggest 3 different ways to respond to:",
		"Craft 3 distinct, polite answers for this message:",
	}
	fallbackTemplates = []string{
		"I've been thinking about %s too. What's your perspective?",
		"That point about %s really resonates. Could you elaborate?",
		"Your message about %s made me curious to learn more.",
		"I appreciate your thoughts on %s. What else should I know?",
		"%s is something I've been considering lately. Tell me more!",
		"Your perspective on %s is unique. I'd love to hear more.",
	}

	leadingNumber = regexp.MustCompile(`^\d+[.)]\s*`)
	leadingDash   = regexp.MustCompile(`^-\s*`)
	labelPrefix   = regexp.MustCompile(`(?i)suggestion\s*\d+\s*:`)
	boilerplate   = []string{"format", "suggestion", "response", "here are"}
)

// Service produces reply suggestions.
type Service struct {
	gen    Generator
	logger *slog.Logger
	pick   func(n int) int
}

// New constructs a Service. gen may be nil, in which case only templates are used.
func New(gen Generator, logger *slog.Logger) Service {
	return Service{gen: gen, logger: logger, pick: rand.IntN}
}

// Suggest returns exactly Count distinct suggestions for message.
func (s Service) Suggest(ctx context.Context, message string) []string {
	message = strings.TrimSpace(message)
	var suggestions []string
	if s.gen != nil {
		text, err := s.gen.Generate(ctx, s.prompt(message))
		if err != nil {
			s.logger.Warn("suggestion generation failed", "error", err)
		} else {
			suggestions = Clean(text)
		}
	}
	return fill(suggestions, message)
}

func (s Service) prompt(message string) string {
	opener := promptOpeners[s.pick(len(promptOpeners))]
	return fmt.Sprintf(`%s %q

IMPORTANT:
- Make each suggestion completely different in tone and content
- Avoid generic phrases like "That's interesting" or "Thanks for sharing"
- Be specific to the message content when possible
- Keep responses between 1-2 sentences
- Format exactly as: suggestion1%[3]ssuggestion2%[3]ssuggestion3
- Random variation: %[4]d
`, opener, message, Separator, s.pick(10000))
}

// Clean splits generated text on Separator, strips list markers and quotes,
// drops boilerplate lines and keeps at most Count distinct entries.
func Clean(text string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, Count)
	for _, part := range strings.Split(text, Separator) {
		s := strings.TrimSpace(part)
		s = leadingNumber.ReplaceAllString(s, "")
		s = leadingDash.ReplaceAllString(s, "")
		s = labelPrefix.ReplaceAllString(s, "")
		s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'`))
		if len(s) <= 5 || isBoilerplate(s) {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == Count {
			break
		}
	}
	return out
}

func isBoilerplate(s string) bool {
	lower := strings.ToLower(s)
	for _, word := range boilerplate {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// fill tops suggestions up from the templates. Template choice depends only on
// the message, so the fallback is deterministic.
func fill(suggestions []string, message string) []string {
	if len(suggestions) >= Count {
		return suggestions[:Count]
	}
	keywords := strings.Join(firstWords(message, 3), " ")
	if keywords == "" {
		keywords = "this"
	}
	seen := make(map[string]struct{}, len(suggestions))
	for _, s := range suggestions {
		seen[s] = struct{}{}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(message))
	start := int(h.Sum32() % uint32(len(fallbackTemplates)))
	for i := 0; i < len(fallbackTemplates) && len(suggestions) < Count; i++ {
		candidate := fmt.Sprintf(fallbackTemplates[(start+i)%len(fallbackTemplates)], keywords)
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		suggestions = append(suggestions, candidate)
	}
	return suggestions
}

func firstWords(s string, n int) []string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return words
}
