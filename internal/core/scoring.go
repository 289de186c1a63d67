package core

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	maxQuestionMarks   = 3
	minPersonalMatches = 2
	minBodyLength      = 100
	maxBodyLength      = 1000
)

// Signal names reported by Explain
const (
	SignalSubjectKeyword  = "subject_keyword"
	SignalBodyKeyword     = "body_keyword"
	SignalImportantSender = "important_sender"
	SignalQuestionMark    = "question_mark"
	SignalPersonal        = "personal"
	SignalEmailLength     = "email_length"
	SignalDirectMessage   = "direct_message"
)

// Contribution is one signal's share of an importance score
type Contribution struct {
	Signal string `json:"signal"`
	Term   string `json:"term,omitempty"`
	Points int    `json:"points"`
}

// Score computes the importance score of an item. It is pure and safe for concurrent use.
func Score(item *InboxItem, cfg ScoringConfig) int {
	total := 0
	for _, c := range Explain(item, cfg) {
		total += c.Points
	}
	return total
}

// Explain returns the per-signal breakdown of an item's importance score
func Explain(item *InboxItem, cfg ScoringConfig) []Contribution {
	if item == nil {
		return nil
	}

	// Caser keeps state, so each call gets its own
	lower := cases.Lower(language.Und)
	subject := lower.String(item.Subject)
	body := lower.String(item.Body)
	sender := lower.String(item.Sender)
	w := cfg.weights

	var out []Contribution

	for _, kw := range cfg.keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(subject, lower.String(kw)) {
			out = append(out, Contribution{Signal: SignalSubjectKeyword, Term: kw, Points: w.SubjectKeyword})
		}
	}

	for _, kw := range cfg.keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(body, lower.String(kw)) {
			out = append(out, Contribution{Signal: SignalBodyKeyword, Term: kw, Points: w.BodyKeyword})
		}
	}

	// First matching sender wins
	for _, s := range cfg.importantSenders {
		if s == "" {
			continue
		}
		if strings.Contains(sender, lower.String(s)) {
			out = append(out, Contribution{Signal: SignalImportantSender, Term: s, Points: w.ImportantSender})
			break
		}
	}

	if n := strings.Count(item.Body, "?"); n > 0 {
		if n > maxQuestionMarks {
			n = maxQuestionMarks
		}
		out = append(out, Contribution{Signal: SignalQuestionMark, Points: n * w.QuestionMark})
	}

	// Flat bonus, not weighted
	if countPersonal(body) >= minPersonalMatches {
		out = append(out, Contribution{Signal: SignalPersonal, Points: 1})
	}

	if n := utf8.RuneCountInString(item.Body); n >= minBodyLength && n <= maxBodyLength {
		out = append(out, Contribution{Signal: SignalEmailLength, Points: w.EmailLength})
	}

	if len(item.CC) == 0 {
		out = append(out, Contribution{Signal: SignalDirectMessage, Points: w.DirectMessage})
	}

	return out
}

// countPersonal counts the words "you" and "your". Letters, numbers and
// underscores in any script are word characters.
func countPersonal(lowered string) int {
	n := 0
	for _, word := range strings.FieldsFunc(lowered, isWordBreak) {
		if word == "you" || word == "your" {
			n++
		}
	}
	return n
}

func isWordBreak(r rune) bool {
	return !(unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_')
}
