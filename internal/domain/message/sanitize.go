// internal/domain/message/sanitize.go
package message

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

const (
	zeroWidthSpace = "\u200b"
	ellipsis       = "…"
)

var (
	massMentionPattern = regexp.MustCompile(`@(everyone|here)`)
	rawMentionPattern  = regexp.MustCompile(`<@([!&]?)(\d+)>`)
)

// Sanitize prepares untrusted data (spreadsheet rows, stored names, free text) for
// interpolation into a message. It must not be applied to templates.
//
// Markdown emphasis (*, _, ~) is preserved.
func Sanitize(text string, maxLen int) string {
	text = truncate(text, maxLen)
	text = stripInvisible(text)
	text = massMentionPattern.ReplaceAllString(text, "@"+zeroWidthSpace+"$1")
	text = rawMentionPattern.ReplaceAllString(text, "<@"+zeroWidthSpace+"$1$2>")
	return strings.ReplaceAll(text, "`", "ˋ")
}

// truncate cuts text to at most maxLen grapheme clusters including the ellipsis.
func truncate(text string, maxLen int) string {
	if maxLen <= 0 || uniseg.GraphemeClusterCount(text) <= maxLen {
		return text
	}
	if maxLen == 1 {
		return ellipsis
	}

	var b strings.Builder
	g := uniseg.NewGraphemes(text)
	for n := 0; n < maxLen-1 && g.Next(); n++ {
		b.WriteString(g.Str())
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace) + ellipsis
}

// stripInvisible drops control and format characters (zero-width spaces and joiners,
// bidi overrides, BOM) but keeps newlines and tabs.
func stripInvisible(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, text)
}
