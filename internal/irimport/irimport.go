// Package irimport reads raw infrared timing captures as operators paste
// them: the C array a capture sketch prints, or a plain list of numbers.
package irimport

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var declaredCountPattern = regexp.MustCompile(`\[\s*(\d+)\s*\]\s*=`)

// Parse extracts the timing values from text. When the text declares an
// array size, the number of values must match it.
func Parse(text string) ([]uint16, error) {
	body := StripComments(text)

	declared := -1
	if open := strings.Index(body, "{"); open >= 0 {
		if m := declaredCountPattern.FindStringSubmatch(body[:open+1]); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, fmt.Errorf("parse declared count: %w", err)
			}
			declared = n
		}
		end := strings.Index(body[open:], "}")
		if end < 0 {
			return nil, fmt.Errorf("unterminated array literal")
		}
		body = body[open+1 : open+end]
	}

	values, err := ParseList(body)
	if err != nil {
		return nil, err
	}
	if declared >= 0 && declared != len(values) {
		return nil, fmt.Errorf("array declares %d values, found %d", declared, len(values))
	}
	return values, nil
}

// ParseFile reads and parses a capture file.
func ParseFile(path string) ([]uint16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	values, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse capture %s: %w", path, err)
	}
	return values, nil
}

// ParseList parses comma or whitespace separated timings. Values are
// decimal, so leading zeros do not mean octal; a 0x prefix selects hex.
func ParseList(text string) ([]uint16, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n', '\r':
			return true
		}
		return false
	})

	values := make([]uint16, 0, len(fields))
	for i, field := range fields {
		if strings.HasPrefix(field, "-") {
			return nil, fmt.Errorf("value %d (%q) is negative", i, field)
		}
		v, err := parseTiming(field)
		if err != nil {
			return nil, fmt.Errorf("value %d (%q): %w", i, field, err)
		}
		values = append(values, uint16(v))
	}
	return values, nil
}

func parseTiming(field string) (uint64, error) {
	if hex, ok := strings.CutPrefix(field, "0x"); ok {
		return strconv.ParseUint(hex, 16, 16)
	}
	if hex, ok := strings.CutPrefix(field, "0X"); ok {
		return strconv.ParseUint(hex, 16, 16)
	}
	return strconv.ParseUint(field, 10, 16)
}

// StripComments removes // and /* */ comments outside string literals.
func StripComments(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			b.WriteByte(c)
			switch c {
			case '\\':
				if i+1 < len(text) {
					i++
					b.WriteByte(text[i])
				}
			case '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			for i < len(text) && text[i] != '\n' {
				i++
			}
			if i < len(text) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
