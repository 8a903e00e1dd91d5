package validate

import (
	"strings"
	"unicode"
)

// scriptMarkers are substrings that almost never occur in extracted
// prose but are common in leaked script and template source.
var scriptMarkers = []string{
	"function(", "window.", "document.", "=>", "var ", "const ", "});",
	"<script", "{{", "}}",
}

// IsMostlyNonProse reports whether text looks like script, markup, or
// navigation noise rather than readable prose. It combines symbol
// density, average line length, the share of readable sentences, and
// script marker counts; two independent signals reject the text. Short
// inputs are left to the length rules.
func IsMostlyNonProse(text string) bool {
	if len(text) < 80 {
		return false
	}
	signals := 0
	if symbolDensity(text) > 0.10 {
		signals++
	}
	if averageLineLength(text) < 18 {
		signals++
	}
	if readableSentenceRatio(text) < 0.30 {
		signals++
	}
	if scriptMarkerCount(text) >= 3 {
		signals++
	}
	return signals >= 2
}

// symbolDensity is the fraction of characters drawn from the symbol
// set typical of code and markup.
func symbolDensity(text string) float64 {
	symbols := 0
	for _, r := range text {
		switch r {
		case '{', '}', '(', ')', '[', ']', '<', '>', ';', '=', '|', '\\', '/', '#', '$', '%', '^', '&', '*', '~', '`', '_':
			symbols++
		}
	}
	return float64(symbols) / float64(len(text))
}

// averageLineLength is the mean length of non-empty lines. Menu and
// listing noise runs to many short lines; prose paragraphs do not.
func averageLineLength(text string) float64 {
	lines := strings.Split(text, "\n")
	total, count := 0, 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		total += len(line)
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

// readableSentenceRatio is the share of sentence-like fragments that
// have at least four words and are mostly word characters.
func readableSentenceRatio(text string) float64 {
	fragments := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	total, readable := 0, 0
	for _, frag := range fragments {
		frag = strings.TrimSpace(frag)
		if frag == "" {
			continue
		}
		total++
		if len(strings.Fields(frag)) >= 4 && wordCharRatio(frag) >= 0.8 {
			readable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

// wordCharRatio is the fraction of letters, digits, spaces, and light
// punctuation in a fragment.
func wordCharRatio(frag string) float64 {
	good := 0
	n := 0
	for _, r := range frag {
		n++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == ',' || r == '\'' || r == '-' {
			good++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(good) / float64(n)
}

func scriptMarkerCount(text string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, m := range scriptMarkers {
		count += strings.Count(lower, m)
	}
	return count
}
