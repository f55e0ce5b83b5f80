package classify

import (
	"fmt"
	"strings"

	"mailtriage/internal/domain"
	"mailtriage/internal/rules"
)

const (
	keywordPoints = 100
	senderPoints  = 200
	bonusBase     = 10
)

// Mode selects the scoring variant.
type Mode int

const (
	// ModeExclusive applies keyword exclusion between levels and credits
	// ITEM scores to their parent.
	ModeExclusive Mode = iota
	// ModePlain scores every rule on its own with no exclusion or
	// back-propagation.
	ModePlain
)

func (m Mode) String() string {
	if m == ModePlain {
		return "plain"
	}
	return "exclusive"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exclusive":
		return ModeExclusive, nil
	case "plain":
		return ModePlain, nil
	default:
		return ModeExclusive, fmt.Errorf("unknown classifier mode %q", s)
	}
}

type Options struct {
	Mode Mode
	// ClampPriorityBonus floors the 10-priority bonus at zero. Off by
	// default, so rules with priority above 10 lose points when they match.
	ClampPriorityBonus bool
	// DefaultParent is suggested when no project scores; blank means
	// domain.DefaultParent.
	DefaultParent string
}

// Input is the message content a classification looks at.
type Input struct {
	Subject string
	Body    string
	Sender  string
	To      []string
}

// InputFromMessage picks the classified fields out of a message.
func InputFromMessage(msg domain.Message) Input {
	return Input{Subject: msg.Subject, Body: msg.Body, Sender: msg.Sender, To: msg.To}
}

// Classifier is safe for concurrent use; it never mutates its rules.
type Classifier struct {
	rules rules.Store
	opts  Options
}

func New(store rules.Store, opts Options) Classifier {
	if strings.TrimSpace(opts.DefaultParent) == "" {
		opts.DefaultParent = domain.DefaultParent
	}
	return Classifier{rules: store, opts: opts}
}

func (c Classifier) Options() Options { return c.opts }

// Score runs both phases and returns the raw per-target scores.
func (c Classifier) Score(in Input) (parentScores, itemScores Scores) {
	text := normalizeText(in.Subject + " " + in.Body)
	senders := candidateSenders(in)

	parentScores = Scores{}
	itemScores = Scores{}
	claimed := make(map[string]struct{})

	for _, rule := range c.rules.ByScope(domain.ScopeParent) {
		matched := matchedKeywords(rule.Keywords(), text)
		score := 0
		if len(matched) > 0 {
			score += keywordPoints
			for _, kw := range matched {
				claimed[kw] = struct{}{}
			}
		}
		if senderMatches(rule.SenderPatterns(), senders) {
			score += senderPoints
		}
		if score > 0 {
			score += c.bonus(rule.Priority)
			parentScores.Add(rule.TargetID, score)
		}
	}

	for _, rule := range c.rules.ByScope(domain.ScopeItem) {
		matched := matchedKeywords(rule.Keywords(), text)
		if c.opts.Mode == ModeExclusive {
			matched = unclaimed(matched, claimed)
		}
		score := 0
		if len(matched) > 0 {
			score += keywordPoints
		}
		if senderMatches(rule.SenderPatterns(), senders) {
			score += senderPoints
		}
		if score > 0 {
			score += c.bonus(rule.Priority)
		}
		if score <= 0 {
			continue
		}
		itemScores.Add(rule.TargetID, score)
		if c.opts.Mode == ModeExclusive && rule.ParentID != "" {
			parentScores.Add(rule.ParentID, score)
		}
	}
	return parentScores, itemScores
}

// Classify scores the input and picks a suggestion per level.
func (c Classifier) Classify(in Input) domain.ClassificationResult {
	parentScores, itemScores := c.Score(in)

	res := domain.ClassificationResult{SuggestedParentID: c.opts.DefaultParent}
	var reasons []string

	if top, ok := parentScores.top(); ok {
		if len(top) == 1 {
			res.SuggestedParentID = top[0].ID
		} else {
			reasons = append(reasons, tieReason("project", top))
			res.Candidates = appendCandidates(res.Candidates, top, domain.LevelParent)
		}
	}
	if top, ok := itemScores.top(); ok {
		if len(top) == 1 {
			res.SuggestedItemID = top[0].ID
		} else {
			reasons = append(reasons, tieReason("package", top))
			res.Candidates = appendCandidates(res.Candidates, top, domain.LevelItem)
		}
	}

	if len(reasons) > 0 {
		res.IsAmbiguous = true
		res.AmbiguityReason = strings.Join(reasons, "; ")
	}
	return res
}

// ClassifyMessage is Classify over a message's subject, body and addresses.
func (c Classifier) ClassifyMessage(msg domain.Message) domain.ClassificationResult {
	return c.Classify(InputFromMessage(msg))
}

func (c Classifier) bonus(priority int) int {
	b := bonusBase - priority
	if c.opts.ClampPriorityBonus && b < 0 {
		return 0
	}
	return b
}

func candidateSenders(in Input) []string {
	out := make([]string, 0, len(in.To)+1)
	if s := strings.ToLower(strings.TrimSpace(in.Sender)); s != "" {
		out = append(out, s)
	}
	for _, to := range in.To {
		if s := strings.ToLower(strings.TrimSpace(to)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func unclaimed(matched []string, claimed map[string]struct{}) []string {
	var out []string
	for _, kw := range matched {
		if _, ok := claimed[kw]; !ok {
			out = append(out, kw)
		}
	}
	return out
}

func tieReason(level string, tied []Ranked) string {
	ids := make([]string, len(tied))
	for i, r := range tied {
		ids[i] = r.ID
	}
	return fmt.Sprintf("%d %ss tied at score %d: %s", len(tied), level, tied[0].Score, strings.Join(ids, ", "))
}

func appendCandidates(dst []domain.Candidate, tied []Ranked, level domain.Level) []domain.Candidate {
	for _, r := range tied {
		dst = append(dst, domain.Candidate{Name: r.ID, Score: r.Score, Type: level})
	}
	return dst
}
