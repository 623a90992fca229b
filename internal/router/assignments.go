package router

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// fillPattern matches "fill pdf ... with <assignments>" case-insensitively.
var fillPattern = regexp.MustCompile(`(?i)^fill pdf\s+.*?with\s*(.+)$`)

// ErrFillUsage is surfaced when an utterance does not follow the fill grammar.
var ErrFillUsage = errors.New("usage: fill pdf ... with Field=Value[,Field=Value...]")

// ParseAssignments extracts form-field assignments from a fill-pdf utterance.
// The grammar is "fill pdf ... with K1=V1[,;]K2=V2...". Values may not
// contain the separator characters. Duplicate keys resolve last-write-wins.
func ParseAssignments(utterance string) (map[string]string, error) {
	m := fillPattern.FindStringSubmatch(strings.TrimSpace(utterance))
	if m == nil {
		return nil, ErrFillUsage
	}

	fields := make(map[string]string)
	for _, item := range strings.FieldsFunc(m[1], func(r rune) bool {
		return r == ',' || r == ';'
	}) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("invalid assignment %q: %w", item, ErrFillUsage)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid assignment %q: %w", item, ErrFillUsage)
		}
		// Last write wins on duplicate keys.
		fields[key] = strings.TrimSpace(value)
	}

	if len(fields) == 0 {
		return nil, ErrFillUsage
	}
	return fields, nil
}
