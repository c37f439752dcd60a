package classifier

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/iamwavecut/ngguard/internal/moderation"
	"github.com/iamwavecut/ngguard/internal/utils/text"
)

var (
	noise = regexp.MustCompile(`[^\pL\pN\pM]+`)
	links = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+|\b(?:t\.me|telegram\.(?:me|dog))/\S+|@[a-z0-9_]{5,}\b|\b[a-z0-9-]+(?:\.[a-z0-9-]+)*\.(?:com|net|org|io|me|ly|gg|xyz|ru|in|co|info|biz|app|link|site|top|online|club|shop)\b\S*`)
)

const (
	minSpelledOut = 3
	maxSeparator  = 3
)

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	rules   Rules
	strict  *regexp.Regexp
	relaxed *regexp.Regexp
	domains []string
	trusted string
}

func New(rules Rules) (*Classifier, error) {
	c := &Classifier{rules: rules}

	strict, err := compileWords(rules.Strict, true)
	if err != nil {
		return nil, fmt.Errorf("compile strict list: %w", err)
	}
	relaxed, err := compileWords(rules.Relaxed, false)
	if err != nil {
		return nil, fmt.Errorf("compile relaxed list: %w", err)
	}
	c.strict, c.relaxed = strict, relaxed

	for _, d := range rules.SpamDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			c.domains = append(c.domains, d)
		}
	}
	c.trusted = strings.ToLower(strings.TrimSpace(rules.TrustedDomain))
	return c, nil
}

// With returns a classifier that also treats extra as strict-list words.
func (c *Classifier) With(extra []string) (*Classifier, error) {
	if len(extra) == 0 {
		return c, nil
	}
	rules := c.rules
	rules.Strict = append(append([]string{}, c.rules.Strict...), extra...)
	return New(rules)
}

// Classify reports the highest-priority violation found in text:
// strict abuse, relaxed abuse, bypass, unauthorized link. It never panics;
// anything unexpected yields a clean verdict.
func (c *Classifier) Classify(content string) (verdict moderation.Verdict) {
	if strings.TrimSpace(content) == "" {
		return moderation.Clean()
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("object", "Classifier").WithField("panic", fmt.Sprint(r)).Warn("classification failed, passing message")
			verdict = moderation.Clean()
		}
	}()

	normalized, err := Normalize(content)
	if err != nil {
		log.WithField("object", "Classifier").WithField("error", err.Error()).Warn("normalization failed, passing message")
		return moderation.Clean()
	}

	if c.strict != nil {
		if m := c.strict.FindStringSubmatch(normalized); m != nil {
			return moderation.Violation(moderation.ReasonAbuse, m[1])
		}
	}
	if c.relaxed != nil {
		if m := c.relaxed.FindString(normalized); m != "" {
			return moderation.Violation(moderation.ReasonAbuse, m)
		}
		if m := c.relaxed.FindString(noise.ReplaceAllString(normalized, "")); m != "" {
			return moderation.Violation(moderation.ReasonBypass, m)
		}
	}
	if m := c.spelledOutStrict(normalized); m != "" {
		return moderation.Violation(moderation.ReasonBypass, m)
	}
	if d := c.spamDomain(normalized); d != "" {
		return moderation.Violation(moderation.ReasonUnauthorizedLink, d)
	}
	return moderation.Clean()
}

// spelledOutStrict collapses letter-by-letter spellings and matches each
// one against the strict list as a whole word.
func (c *Classifier) spelledOutStrict(normalized string) string {
	if c.strict == nil {
		return ""
	}
	for _, word := range spelledOutWords(normalized) {
		if w := c.strict.FindStringSubmatch(word); w != nil {
			return w[1]
		}
	}
	return ""
}

// spelledOutWords joins runs of standalone characters that share one short
// separator: "s.h.i.t" and "s h i t" give "shit", "a s.h.i.t" gives "shit".
func spelledOutWords(s string) []string {
	rs := []rune(s)
	isWord := func(i int) bool {
		return i >= 0 && i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsNumber(rs[i]))
	}

	var (
		words []string
		cur   []rune
		sep   string
		last  int
	)
	flush := func() {
		if len(cur) >= minSpelledOut {
			words = append(words, string(cur))
		}
		cur, sep = nil, ""
	}
	for i := range rs {
		if !isWord(i) || isWord(i-1) || isWord(i+1) {
			continue
		}
		if len(cur) > 0 {
			gap := rs[last+1 : i]
			switch g := string(gap); {
			case len(gap) > maxSeparator || strings.ContainsRune(g, '\n'):
				flush()
			case sep == "":
				sep = g
			case g != sep:
				prev := cur[len(cur)-1]
				flush()
				cur, sep = []rune{prev}, g
			}
		}
		cur = append(cur, rs[i])
		last = i
	}
	flush()
	return words
}

// FindLink returns the first link or channel mention outside the trusted
// domain, regardless of the spam-domain list.
func (c *Classifier) FindLink(content string) string {
	for _, link := range links.FindAllString(strings.ToLower(content), -1) {
		if c.trusted != "" && strings.Contains(link, c.trusted) {
			continue
		}
		return link
	}
	return ""
}

func (c *Classifier) spamDomain(normalized string) string {
	if c.trusted != "" && strings.Contains(normalized, c.trusted) {
		return ""
	}
	for _, d := range c.domains {
		if strings.Contains(normalized, d) {
			return d
		}
	}
	return ""
}

// Normalize decomposes text, strips combining marks, case-folds it and folds
// lookalike letters in mixed-script words.
func Normalize(content string) (string, error) {
	chain := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(chain, content)
	if err != nil {
		return "", err
	}
	return text.FoldHomoglyphs(cases.Fold().String(out)), nil
}

func compileWords(words []string, bounded bool) (*regexp.Regexp, error) {
	seen := make(map[string]struct{}, len(words))
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		n, err := Normalize(strings.TrimSpace(w))
		if err != nil {
			return nil, err
		}
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		quoted = append(quoted, regexp.QuoteMeta(n))
	}
	if len(quoted) == 0 {
		return nil, nil
	}
	// longest first, so alternation reports the most specific word
	sort.Slice(quoted, func(i, j int) bool {
		if len(quoted[i]) != len(quoted[j]) {
			return len(quoted[i]) > len(quoted[j])
		}
		return quoted[i] < quoted[j]
	})
	alternation := strings.Join(quoted, "|")
	if bounded {
		return regexp.Compile(`(?:^|[^\pL\pN])(` + alternation + `)(?:$|[^\pL\pN])`)
	}
	return regexp.Compile(alternation)
}
