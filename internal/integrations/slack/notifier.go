package slackbot

import (
	"context"
	"fmt"
	"log"
	"strings"

	"mailtriage/internal/domain"
	"mailtriage/internal/grouping"
	"mailtriage/internal/httpx"
	"mailtriage/internal/triage"

	"github.com/slack-go/slack"
)

const (
	actionPickProject = "pick_project"
	actionPickPackage = "pick_package"
	actionSelectItem  = "select_item"
	actionCreateItem  = "create_item"

	headerMaxChars    = 150
	optionMaxChars    = 75
	maxSelectOptions  = 100
	maxCandidateItems = 5
)

// Poster is the part of *slack.Client the notifier needs.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// NewClient builds a Slack client on the shared outbound HTTP client.
func NewClient(token string, opts ...slack.Option) *slack.Client {
	all := append([]slack.Option{slack.OptionHTTPClient(httpx.ExternalHTTPClient())}, opts...)
	return slack.New(token, all...)
}

type Notifier struct {
	api       Poster
	channelID string
	directory *Directory
}

func NewNotifier(api Poster, channelID string) *Notifier {
	return &Notifier{api: api, channelID: channelID}
}

// WithDirectory enables assignee mentions on linked outcomes.
func (n *Notifier) WithDirectory(d *Directory) *Notifier {
	n.directory = d
	return n
}

// PostOutcome posts the triage outcome to the configured channel and returns
// the message timestamp.
func (n *Notifier) PostOutcome(ctx context.Context, o triage.Outcome) (string, error) {
	blocks := OutcomeBlocks(o)
	if mention := n.assigneeMention(ctx, o); mention != "" {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, "Assignee: "+mention, false, false),
		))
	}
	_, ts, err := n.api.PostMessageContext(ctx, n.channelID,
		slack.MsgOptionText(fallbackText(o), false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return "", fmt.Errorf("post triage outcome: %w", err)
	}
	log.Printf("slack triage posted channel=%s ts=%s linked=%v ambiguous=%v",
		n.channelID, ts, o.Linked(), o.NeedsDecision())
	return ts, nil
}

func (n *Notifier) assigneeMention(ctx context.Context, o triage.Outcome) string {
	if n.directory == nil || !o.Linked() {
		return ""
	}
	id, ok := n.directory.Resolve(ctx, o.LinkedItem.Assignee)
	if !ok {
		return ""
	}
	return "<@" + id + ">"
}

func fallbackText(o triage.Outcome) string {
	subject := subjectOf(o.Message)
	if o.Linked() {
		return fmt.Sprintf("%s linked to %s", subject, o.LinkedItem.ID)
	}
	return fmt.Sprintf("%s needs triage", subject)
}

// OutcomeBlocks renders an outcome as Block Kit blocks: a header, the link or
// suggestion summary, tie-break buttons when ambiguous, and the grouped item
// selector.
func OutcomeBlocks(o triage.Outcome) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType, truncate(subjectOf(o.Message), headerMaxChars), false, false),
		),
	}
	if sender := strings.TrimSpace(o.Message.Sender); sender != "" {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, "From "+sender, false, false),
		))
	}

	if o.Linked() {
		text := fmt.Sprintf("Linked to *%s* (%s match): %s",
			o.LinkedItem.ID, o.MatchKind, grouping.ItemLabel(o.LinkedItem))
		blocks = append(blocks, markdownSection(text))
	} else {
		c := o.Classification
		item := c.SuggestedItemID
		if item == "" {
			item = "-"
		}
		text := fmt.Sprintf("*New item:* %s\nProject: `%s`  Package: `%s`", o.ProposedTitle, c.SuggestedParentID, item)
		createBtn := slack.NewButtonBlockElement(
			actionCreateItem,
			domain.NormalizeMessageID(o.Message.MessageID),
			slack.NewTextBlockObject(slack.PlainTextType, "Create item", false, false),
		)
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, text, false, false),
			nil,
			slack.NewAccessory(createBtn),
		))
	}

	if o.NeedsDecision() {
		blocks = append(blocks, AmbiguityBlocks(o.Classification)...)
	}
	if sel := SelectionBlock(o.Grouping); sel != nil {
		blocks = append(blocks, slack.NewDividerBlock(), sel)
	}
	return blocks
}

// AmbiguityBlocks asks a person to pick between tied candidates, one button
// row per level.
func AmbiguityBlocks(c domain.ClassificationResult) []slack.Block {
	if !c.IsAmbiguous {
		return nil
	}
	blocks := []slack.Block{markdownSection(":warning: " + c.AmbiguityReason)}

	var projects, packages []slack.BlockElement
	for _, cand := range c.Candidates {
		label := fmt.Sprintf("%s (%d)", cand.Name, cand.Score)
		btn := func(action string) *slack.ButtonBlockElement {
			return slack.NewButtonBlockElement(
				action,
				cand.Name,
				slack.NewTextBlockObject(slack.PlainTextType, truncate(label, optionMaxChars), false, false),
			)
		}
		if cand.Type == domain.LevelItem {
			if len(packages) < maxCandidateItems {
				packages = append(packages, btn(actionPickPackage))
			}
		} else if len(projects) < maxCandidateItems {
			projects = append(projects, btn(actionPickProject))
		}
	}
	if len(projects) > 0 {
		blocks = append(blocks, slack.NewActionBlock("tie_projects", projects...))
	}
	if len(packages) > 0 {
		blocks = append(blocks, slack.NewActionBlock("tie_packages", packages...))
	}
	return blocks
}

// SelectionBlock renders the grouped open items as one select menu with an
// option group per non-empty bucket. It returns nil when there are no items.
func SelectionBlock(g domain.GroupingResult) slack.Block {
	var groups []*slack.OptionGroupBlockObject
	total := 0
	for b, items := range g.Buckets() {
		bucket := domain.Bucket(b)
		var opts []*slack.OptionBlockObject
		for _, item := range items {
			if total == maxSelectOptions {
				break
			}
			opts = append(opts, slack.NewOptionBlockObject(
				item.ID,
				slack.NewTextBlockObject(slack.PlainTextType, truncate(grouping.ItemLabel(item), optionMaxChars), false, false),
				nil,
			))
			total++
		}
		if len(opts) == 0 {
			continue
		}
		groups = append(groups, slack.NewOptionGroupBlockElement(
			slack.NewTextBlockObject(slack.PlainTextType, grouping.Tag(bucket), false, false),
			opts...,
		))
	}
	if len(groups) == 0 {
		return nil
	}
	menu := slack.NewOptionsGroupSelectBlockElement(
		slack.OptTypeStatic,
		slack.NewTextBlockObject(slack.PlainTextType, "Add to existing item", false, false),
		actionSelectItem,
		groups...,
	)
	return slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Open items* (%d)", g.Len()), false, false),
		nil,
		slack.NewAccessory(menu),
	)
}

func markdownSection(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, text, false, false),
		nil,
		nil,
	)
}

func subjectOf(msg domain.Message) string {
	if s := strings.TrimSpace(msg.Subject); s != "" {
		return s
	}
	return "(no subject)"
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
