package ocr

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	// markdown image references emitted by OCR for embedded pictures
	reImageRef = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
)

// Normalize collapses noisy whitespace. Conservative: keeps line breaks;
// collapses >2 newlines into a single blank line.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	// trim trailing spaces on lines
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	s = strings.Join(lines, "\n")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// StripImageRefs drops markdown image placeholders, keeping the text only.
func StripImageRefs(s string) string {
	return reImageRef.ReplaceAllString(s, "")
}

// meaningfulChars counts non-whitespace runes.
func meaningfulChars(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' && r != '\f' {
			n++
		}
	}
	return n
}
