package extractor

import (
	"regexp"
	"strings"
)

const authorPrefix = "by "

var repeatedDelimiters = regexp.MustCompile(`,{2,}`)

// Sanitize cleans a raw export line: it drops every double quote, removes runs
// of two or more commas left by empty CSV fields, trims whitespace and strips
// any leading "by " tokens. Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(line string) string {
	line = strings.ReplaceAll(line, `"`, "")
	line = repeatedDelimiters.ReplaceAllString(line, "")
	line = strings.TrimSpace(line)
	for strings.HasPrefix(line, authorPrefix) {
		line = strings.TrimSpace(strings.TrimPrefix(line, authorPrefix))
	}
	return line
}
