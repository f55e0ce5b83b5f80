package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"mailtriage/internal/domain"
	"mailtriage/internal/httpx"
)

const (
	maxTitleTokens = 64
	maxBodyChars   = 4000
	maxTitleChars  = 120
)

type LLMUsage struct {
	InputTokens  int64
	OutputTokens int64
}

func (u LLMUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// Summarizer asks Anthropic for a short work-item title describing a message.
type Summarizer struct {
	client anthropic.Client
	model  string
}

// NewSummarizer builds a Summarizer on the shared outbound HTTP client. Extra
// options are applied last, so tests can point it at a fake server.
func NewSummarizer(apiKey, model string, opts ...option.RequestOption) *Summarizer {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpx.ExternalHTTPClient()),
	}
	reqOpts = append(reqOpts, opts...)
	return &Summarizer{
		client: anthropic.NewClient(reqOpts...),
		model:  model,
	}
}

// Title returns a one-line title for a new work item created from msg.
func (s *Summarizer) Title(ctx context.Context, msg domain.Message) (string, error) {
	systemPrompt, userPrompt := buildTitlePrompts(msg)

	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: maxTitleTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	usage := LLMUsage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			title := cleanTitle(block.Text)
			log.Printf("llm title model=%s tokens_in=%d tokens_out=%d title=%q", s.model, usage.InputTokens, usage.OutputTokens, title)
			if title == "" {
				return "", fmt.Errorf("empty title in Anthropic response")
			}
			return title, nil
		}
	}
	return "", fmt.Errorf("no text content in Anthropic response")
}

func buildTitlePrompts(msg domain.Message) (string, string) {
	systemPrompt := `You name work items created from email.
Reply with a single short title (at most 12 words) describing the requested work.
No quotes, no trailing punctuation, no explanation.`

	body := strings.TrimSpace(msg.Body)
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars] + "..."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", strings.TrimSpace(msg.Subject))
	fmt.Fprintf(&b, "From: %s\n", strings.TrimSpace(msg.Sender))
	b.WriteString("\n")
	b.WriteString(body)
	return systemPrompt, b.String()
}

// cleanTitle keeps the first non-empty line, strips wrapping quotes and
// trailing punctuation, and caps the length.
func cleanTitle(raw string) string {
	var title string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			title = line
			break
		}
	}
	title = strings.TrimPrefix(title, "Title:")
	title = strings.Trim(strings.TrimSpace(title), "\"'`")
	title = strings.TrimRight(title, ".!; ")
	if len(title) > maxTitleChars {
		title = strings.TrimSpace(title[:maxTitleChars])
	}
	return title
}
