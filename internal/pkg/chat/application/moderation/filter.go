// Package moderation blocks messages that leak contact details off-platform.
package moderation

import "regexp"

// Reasons reported in a flagged Verdict.
const (
	ReasonPhone  = "phone"
	ReasonEmail  = "email"
	ReasonSocial = "social"
)

// Verdict is the outcome of classifying one message body.
type Verdict struct {
	Flagged bool
	Reason  string
	// Match is the offending fragment, for logs only. Never echo it back to
	// the recipient.
	Match string
}

type rule struct {
	reason string
	re     *regexp.Regexp
}

// Filter classifies text. It holds no mutable state and is safe for
// concurrent use.
type Filter struct {
	rules []rule
}

var defaultRules = []rule{
	// 7 to 10 digits with up to three non-digits between each pair.
	{ReasonPhone, regexp.MustCompile(`\d(?:\D{0,3}\d){6,9}`)},
	{ReasonEmail, regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	{ReasonSocial, regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?\b(?:instagram|facebook|twitter|x|tiktok)\.com/[a-z0-9_.]+`)},
	{ReasonSocial, regexp.MustCompile(`[@#][a-zA-Z0-9_.]+`)},
}

// NewFilter returns a Filter with the platform's contact-info rules.
func NewFilter() *Filter {
	return &Filter{rules: defaultRules}
}

// Classify reports whether text contains restricted contact information.
// Rules are checked in order and the first hit wins.
func (f *Filter) Classify(text string) Verdict {
	for _, r := range f.rules {
		if m := r.re.FindString(text); m != "" {
			return Verdict{Flagged: true, Reason: r.reason, Match: m}
		}
	}
	return Verdict{}
}

// Classify runs the default filter.
func Classify(text string) Verdict {
	return defaultFilter.Classify(text)
}

var defaultFilter = NewFilter()
