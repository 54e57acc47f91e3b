// Package matcher picks the knowledge-base answer that best fits a farmer's
// question and personalizes it with the farmer's profile.
package matcher

import (
	"fmt"
	"regexp"
	"strings"

	"farm-advisor-go/internal/knowledge"
	"farm-advisor-go/internal/model"
	"farm-advisor-go/pkg/log"
	"farm-advisor-go/pkg/textnorm"
)

// DefaultReply is returned whenever no trigger matches.
const DefaultReply = "Sorry, I couldn't find a specific answer to that. " +
	"Could you rephrase your question or add details such as your crop, the symptoms you see and your region?"

// Placeholders understood in answer templates.
const (
	PlaceholderCrop     = "{crop}"
	PlaceholderRegion   = "{region}"
	PlaceholderLanguage = "{language}"
)

var (
	spaceRun         = regexp.MustCompile(`[ \t]{2,}`)
	spaceBeforePunct = regexp.MustCompile(`[ \t]+([,.;:!?])`)
)

// Snapshotter supplies the knowledge base in effect for a request.
type Snapshotter interface {
	Snapshot() *knowledge.Base
}

// Matcher is stateless apart from the snapshot source and is safe for
// concurrent use.
type Matcher struct {
	kb Snapshotter
}

// New returns a matcher reading from kb.
func New(kb Snapshotter) *Matcher {
	return &Matcher{kb: kb}
}

// Match describes the winning entry for a message.
type Match struct {
	Index    int
	Score    int
	Affinity int
	Entry    knowledge.Entry
}

// ProcessMessage returns the personalized answer for message, or
// DefaultReply when nothing matches. It never panics.
func (m *Matcher) ProcessMessage(profile model.UserProfile, message string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("[Matcher] 匹配过程中发生异常，返回默认回复", "panic", fmt.Sprint(r))
			reply = DefaultReply
		}
	}()

	match, ok := m.Best(profile, message)
	if !ok {
		return DefaultReply
	}
	return Render(match.Entry.Answer, profile)
}

// Best finds the highest scoring entry. Ties go to the entry whose tags match
// more of the profile's crop and region, then to the earliest entry.
func (m *Matcher) Best(profile model.UserProfile, message string) (Match, bool) {
	var base *knowledge.Base
	if m != nil && m.kb != nil {
		base = m.kb.Snapshot()
	}
	normalized := textnorm.Normalize(message)
	if normalized == "" {
		return Match{}, false
	}

	best := Match{Index: -1}
	for i, entry := range base.All() {
		score := Score(entry, normalized)
		if score == 0 {
			continue
		}
		affinity := Affinity(entry, profile)
		if score > best.Score || (score == best.Score && affinity > best.Affinity) {
			best = Match{Index: i, Score: score, Affinity: affinity, Entry: entry}
		}
	}
	if best.Index < 0 {
		return Match{}, false
	}
	return best, true
}

// Score counts the entry's triggers contained in the normalized message.
func Score(entry knowledge.Entry, normalized string) int {
	score := 0
	for _, trigger := range entry.Triggers {
		if trigger != "" && strings.Contains(normalized, trigger) {
			score++
		}
	}
	return score
}

// Affinity counts how many of the profile's crop and region appear among the
// entry's tags.
func Affinity(entry knowledge.Entry, profile model.UserProfile) int {
	n := 0
	if entry.HasTag(profile.PrimaryCrop) {
		n++
	}
	if entry.HasTag(profile.Region) {
		n++
	}
	return n
}

// Render substitutes profile fields into an answer template. Missing fields
// are dropped and the whitespace they leave behind is tidied.
func Render(template string, profile model.UserProfile) string {
	r := strings.NewReplacer(
		PlaceholderCrop, strings.TrimSpace(profile.PrimaryCrop),
		PlaceholderRegion, strings.TrimSpace(profile.Region),
		PlaceholderLanguage, profile.Language(),
	)
	out := r.Replace(template)
	out = spaceRun.ReplaceAllString(out, " ")
	out = spaceBeforePunct.ReplaceAllString(out, "$1")

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
