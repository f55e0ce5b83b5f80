package slackbot

import (
	"context"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

const userCacheTTL = 5 * time.Minute

// UserLister is the part of *slack.Client used to resolve assignees.
type UserLister interface {
	GetUsersContext(ctx context.Context, options ...slack.GetUsersOption) ([]slack.User, error)
}

// Directory maps work-item assignees (Slack id, email or display name) to
// Slack user ids. The user list is cached for a few minutes.
type Directory struct {
	api UserLister

	mu        sync.Mutex
	users     []slack.User
	fetchedAt time.Time
}

func NewDirectory(api UserLister) *Directory {
	return &Directory{api: api}
}

func (d *Directory) cachedUsers(ctx context.Context) ([]slack.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.users != nil && time.Since(d.fetchedAt) < userCacheTTL {
		return d.users, nil
	}
	users, err := d.api.GetUsersContext(ctx)
	if err != nil {
		return nil, err
	}
	d.users = users
	d.fetchedAt = time.Now()
	return users, nil
}

// Resolve returns the Slack user id for assignee, if one can be found.
func (d *Directory) Resolve(ctx context.Context, assignee string) (string, bool) {
	val := strings.TrimSpace(assignee)
	if val == "" {
		return "", false
	}
	if isLikelySlackID(val) {
		return val, true
	}

	users, err := d.cachedUsers(ctx)
	if err != nil {
		log.Printf("resolve assignee: get users error: %v", err)
		return "", false
	}

	if strings.Contains(val, "@") {
		key := strings.ToLower(val)
		for _, u := range users {
			if strings.ToLower(strings.TrimSpace(u.Profile.Email)) == key {
				return u.ID, true
			}
		}
		return "", false
	}
	for _, u := range users {
		if u.Deleted || u.IsBot {
			continue
		}
		for _, name := range []string{u.Name, u.RealName, u.Profile.DisplayName} {
			if nameMatches(val, name) {
				return u.ID, true
			}
		}
	}
	log.Printf("resolve assignee: unresolved name=%q users=%d", val, len(users))
	return "", false
}

func isLikelySlackID(val string) bool {
	if len(val) < 9 {
		return false
	}
	for i, r := range val {
		if i == 0 {
			if r != 'U' && r != 'W' {
				return false
			}
			continue
		}
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

var parenPattern = regexp.MustCompile(`\([^)]*\)|（[^）]*）`)

func normalizeNameTokens(s string) []string {
	if s == "" {
		return nil
	}
	s = parenPattern.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// nameMatches accepts either token set being a subset of the other, so
// "Alice" matches "Alice Smith (Ops)".
func nameMatches(assignee, candidate string) bool {
	a := normalizeNameTokens(assignee)
	c := normalizeNameTokens(candidate)
	if len(a) == 0 || len(c) == 0 {
		return false
	}
	return allIn(a, c) || allIn(c, a)
}

func allIn(needles, haystack []string) bool {
	set := make(map[string]bool, len(haystack))
	for _, t := range haystack {
		set[t] = true
	}
	for _, t := range needles {
		if !set[t] {
			return false
		}
	}
	return true
}
