// Package filter decides whether a thread is archived by matching its opening
// post against a board's configured patterns.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/board-archiver/internal/archive"
)

// Filter holds the compiled patterns of one board.
type Filter struct {
	patterns    []*regexp.Regexp
	reverse     bool
	includeBody bool
}

var _ archive.Filter = (*Filter)(nil)

// New compiles patterns case-insensitively. With reverse set, a match rejects
// the thread instead of admitting it. With includeBody set, the opening post's
// comment text is tested after the subject.
func New(patterns []string, reverse, includeBody bool) (*Filter, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, archive.ErrConfiguration.Wrap(fmt.Errorf("compile filter %q: %w", p, err))
		}
		compiled = append(compiled, re)
	}
	return &Filter{
		patterns:    compiled,
		reverse:     reverse,
		includeBody: includeBody,
	}, nil
}

// Empty reports whether no pattern is configured.
func (f *Filter) Empty() bool {
	return f == nil || len(f.patterns) == 0
}

// Admit reports whether the thread opened by op should be archived.
func (f *Filter) Admit(op *archive.Post) bool {
	if f.Empty() || op == nil {
		return true
	}
	matched := f.matches(op)
	return matched != f.reverse
}

func (f *Filter) matches(op *archive.Post) bool {
	var subject, body string
	if op.Subject != nil {
		subject = *op.Subject
	}
	bodyReady := false
	for _, re := range f.patterns {
		if subject != "" && re.MatchString(subject) {
			return true
		}
		if !f.includeBody || op.Comment == nil {
			continue
		}
		if !bodyReady {
			body = PlainText(*op.Comment)
			bodyReady = true
		}
		if re.MatchString(body) {
			return true
		}
	}
	return false
}

// PlainText strips markup from a post comment, concatenating its text nodes
// in document order with entities decoded.
func PlainText(comment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(comment))
	if err != nil {
		return comment
	}
	return doc.Text()
}
