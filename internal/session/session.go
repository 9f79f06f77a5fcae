// Package session persists conversations: a JSON index of session metadata
// plus one payload file per session, optionally encrypted at rest.
package session

import (
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/olc-dev/olc/internal/chat"
)

// ErrNotFound is returned when no session exists for the requested id.
var ErrNotFound = errors.New("session not found")

// summaryExcerptLen caps the summary excerpt stored in the index.
const summaryExcerptLen = 120

// Meta is the index entry for a saved session.
type Meta struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Model          string    `json:"model"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Tags           []string  `json:"tags,omitempty"`
	MessageCount   int       `json:"message_count"`
	TokenTotal     int       `json:"token_total"`
	SummaryExcerpt string    `json:"summary_excerpt,omitempty"`
	Encrypted      bool      `json:"encrypted"`
	Path           string    `json:"path,omitempty"`
}

// Valid reports whether the entry is well-formed enough to use.
func (m Meta) Valid() bool {
	return m.ID != "" && !m.UpdatedAt.IsZero()
}

// Data is the full persisted payload of one session.
type Data struct {
	Meta        Meta            `json:"meta"`
	Messages    []chat.Message  `json:"messages"`
	Summary     string          `json:"summary,omitempty"`
	Usage       chat.TokenStats `json:"token_stats"`
	Persona     string          `json:"persona,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

// NewID generates a session id: a UTC timestamp for human sorting plus a
// short random suffix against same-second collisions.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return now.UTC().Format("20060102_150405") + "_" + suffix
}

// messageCount counts the conversational turns, system messages excluded.
func messageCount(msgs []chat.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role != chat.RoleSystem {
			n++
		}
	}
	return n
}

// summaryExcerpt truncates summary text for the index listing.
func summaryExcerpt(s string) string {
	if utf8.RuneCountInString(s) <= summaryExcerptLen {
		return s
	}
	return string([]rune(s)[:summaryExcerptLen])
}

// normalizeTags sorts and de-duplicates, dropping empties.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
