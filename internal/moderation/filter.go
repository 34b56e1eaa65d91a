// Package moderation gates comment text before any network write is attempted.
//
// Marketplace comments must not become a channel for exchanging contact
// details and taking deals off the platform, so detection is deliberately
// generous: any single category match blocks the text. The filter never
// mutates or redacts - rejected text goes back to the author unchanged.
package moderation

import (
	"regexp"
	"strings"
)

// Category names a moderation pattern group. Returned verbatim to the author
// so the UI can explain the rejection.
type Category string

const (
	CategoryPhone       Category = "phone"
	CategoryEmail       Category = "email"
	CategoryAddress     Category = "address"
	CategorySocial      Category = "social"
	CategoryOffPlatform Category = "off_platform"
)

// Result is the outcome of classifying one piece of text.
type Result struct {
	Blocked bool
	Reasons []Category
}

// Pattern tables per category. All patterns run against the lowercased text,
// so they are written lowercase-only.
var categoryPatterns = []struct {
	category Category
	patterns []*regexp.Regexp
}{
	{
		category: CategoryPhone,
		patterns: []*regexp.Regexp{
			// 10+ digits with optional separators, with or without a country code
			regexp.MustCompile(`\+?\d(?:[ .()-]*\d){9,}`),
			regexp.MustCompile(`\bcall me\b`),
			regexp.MustCompile(`\bphone (?:number|no)\b`),
			regexp.MustCompile(`\bmobile (?:number|no)\b`),
			regexp.MustCompile(`\bwhats ?app\b`),
			regexp.MustCompile(`\bsms\b`),
		},
	},
	{
		category: CategoryEmail,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`),
			regexp.MustCompile(`\b(?:gmail|yahoo|hotmail|outlook|protonmail)\b`),
			regexp.MustCompile(`\be-?mail me\b`),
		},
	},
	{
		category: CategoryAddress,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\baddress\b`),
			regexp.MustCompile(`\bpin ?code\b`),
			regexp.MustCompile(`\blandmark\b`),
			regexp.MustCompile(`\bmeet me\b`),
			regexp.MustCompile(`\bcome over\b`),
			regexp.MustCompile(`\bmy place\b`),
		},
	},
	{
		category: CategorySocial,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\binsta(?:gram)?\b`),
			regexp.MustCompile(`\bfacebook\b`),
			regexp.MustCompile(`\bfb\b`),
			regexp.MustCompile(`\btelegram\b`),
			regexp.MustCompile(`\bsnapchat\b`),
			regexp.MustCompile(`\btwitter\b`),
			regexp.MustCompile(`\blinkedin\b`),
			regexp.MustCompile(`\bdiscord\b`),
			regexp.MustCompile(`\bskype\b`),
		},
	},
	{
		category: CategoryOffPlatform,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\bbypass\b`),
			regexp.MustCompile(`\bdirect deal\b`),
			regexp.MustCompile(`\boutside the (?:app|platform|site)\b`),
			regexp.MustCompile(`\boff the (?:app|platform|record)\b`),
			regexp.MustCompile(`\bno commission\b`),
			regexp.MustCompile(`\bavoid (?:the )?fees?\b`),
		},
	},
}

// Classify inspects text against every category and reports all matches.
// Pure and synchronous: no I/O, no mutation.
func Classify(text string) Result {
	lowered := strings.ToLower(text)

	var reasons []Category
	for _, group := range categoryPatterns {
		for _, p := range group.patterns {
			if p.MatchString(lowered) {
				reasons = append(reasons, group.category)
				break
			}
		}
	}

	return Result{
		Blocked: len(reasons) > 0,
		Reasons: reasons,
	}
}

// ReasonStrings converts the reasons to plain strings for error payloads.
func (r Result) ReasonStrings() []string {
	out := make([]string, len(r.Reasons))
	for i, c := range r.Reasons {
		out[i] = string(c)
	}
	return out
}
