package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
)

var numberedPrefix = regexp.MustCompile(`^\d+\.\s*`)

// Summarize condenses content to at most maxWords words.
func Summarize(ctx context.Context, g Generator, content string, maxWords int) (string, error) {
	prompt := fmt.Sprintf("Summarize the following content in %d words or less:\n\n%s", maxWords, content)
	return g.Generate(ctx, prompt, Options{
		Temperature:   Temperature(0.3),
		MaxTokens:     500,
		SystemMessage: "You are a skilled summarizer who creates concise, informative summaries.",
	})
}

// ExtractKeyPoints asks for a numbered list of key points and returns the
// non-empty lines with their "N. " prefixes removed.
func ExtractKeyPoints(ctx context.Context, g Generator, content string) ([]string, error) {
	prompt := fmt.Sprintf("Extract 5-7 key points from the following content:\n\n%s\n\nProvide the key points as a numbered list.", content)
	text, err := g.Generate(ctx, prompt, Options{
		Temperature:   Temperature(0.3),
		MaxTokens:     500,
		SystemMessage: "You are an expert at identifying and extracting key information.",
	})
	if err != nil {
		return nil, err
	}
	var points []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(numberedPrefix.ReplaceAllString(strings.TrimSpace(line), ""))
		if line != "" {
			points = append(points, line)
		}
	}
	return points, nil
}

// GenerateTags asks for up to maxTags comma-separated tags.
func GenerateTags(ctx context.Context, g Generator, content string, maxTags int) ([]string, error) {
	prompt := fmt.Sprintf("Generate relevant tags/keywords for the following content (maximum %d tags):\n\n%s\n\nProvide tags as a comma-separated list.", maxTags, content)
	text, err := g.Generate(ctx, prompt, Options{
		Temperature:   Temperature(0.3),
		MaxTokens:     200,
		SystemMessage: "You are an expert at identifying relevant tags and keywords.",
	})
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, tag := range strings.Split(text, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
		if len(tags) == maxTags {
			break
		}
	}
	return tags, nil
}

// GenerateArticle writes a Markdown article about topic from research sources.
func GenerateArticle(ctx context.Context, g Generator, topic string, sources []domain.SourceDocument, tags []string, style string) (string, error) {
	var refs strings.Builder
	for i, s := range sources {
		ref := s.Title
		if ref == "" {
			ref = Truncate(s.Content, 200)
		}
		fmt.Fprintf(&refs, "%d. %s\n", i+1, ref)
	}
	if style == "" {
		style = "professional"
	}
	prompt := fmt.Sprintf(`Write a comprehensive, well-structured blog article about: %s

Tags: %s

Research Data:
%s
Requirements:
- Write an engaging introduction
- Create well-organized sections with headers
- Include relevant facts and insights from the research
- Use a %s yet accessible tone
- Add a compelling conclusion
- Format in Markdown
- Aim for 1000-1500 words

Article:`, topic, strings.Join(tags, ", "), refs.String(), style)

	return g.Generate(ctx, prompt, Options{
		Temperature:   Temperature(0.7),
		MaxTokens:     3000,
		SystemMessage: "You are an expert content writer who creates engaging, informative blog articles based on research data.",
	})
}

// ReviewVerdict is the parsed outcome of ReviewArticle.
type ReviewVerdict struct {
	Approved bool
	Notes    string
}

// ReviewArticle asks for an editorial verdict. The reply's first line must be
// APPROVED or CHANGES; the rest is kept as notes.
func ReviewArticle(ctx context.Context, g Generator, title, content string) (ReviewVerdict, error) {
	prompt := fmt.Sprintf(`Review the following article for factual consistency, structure and tone.

Title: %s

%s

Reply with APPROVED or CHANGES on the first line, followed by short reviewer notes.`, title, content)
	text, err := g.Generate(ctx, prompt, Options{
		Temperature:   Temperature(0.2),
		MaxTokens:     600,
		SystemMessage: "You are a meticulous editor reviewing articles before publication.",
	})
	if err != nil {
		return ReviewVerdict{}, err
	}
	first, rest, _ := strings.Cut(strings.TrimSpace(text), "\n")
	verdict := strings.ToUpper(strings.Trim(strings.TrimSpace(first), "*#:. "))
	return ReviewVerdict{
		Approved: strings.HasPrefix(verdict, "APPROVED"),
		Notes:    strings.TrimSpace(rest),
	}, nil
}

// Truncate returns at most the first n runes of s.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
