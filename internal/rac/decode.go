package rac

import (
	"regexp"
	"strings"
)

// Record is one block of `key : value` lines from console output.
type Record map[string]string

// First returns the first non-empty value among keys, in order.
func (r Record) First(keys ...string) string {
	for _, key := range keys {
		if value := r[key]; value != "" {
			return value
		}
	}
	return ""
}

var keySeparators = regexp.MustCompile(`[\s\-]+`)

// NormalizeKey folds a raw key into its canonical form: BOM removed,
// lower-cased, whitespace and hyphen runs replaced by underscores.
func NormalizeKey(raw string) string {
	key := strings.TrimSpace(raw)
	key = strings.TrimPrefix(key, "\ufeff")
	key = strings.TrimSpace(key)
	key = strings.ToLower(key)
	return keySeparators.ReplaceAllString(key, "_")
}

func normalizeValue(raw string) string {
	value := strings.TrimSpace(raw)
	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		value = value[1 : len(value)-1]
	}
	return value
}

// Decode splits console output into records. Records are separated by blank
// lines; lines without a colon are ignored and empty records are dropped.
func Decode(text string) []Record {
	records := []Record{}
	if text == "" {
		return records
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	current := Record{}
	flush := func() {
		if len(current) > 0 {
			records = append(records, current)
		}
		current = Record{}
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(strings.TrimPrefix(line, "\ufeff")) == "" {
			flush()
			continue
		}
		rawKey, rawValue, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key := NormalizeKey(rawKey)
		if key == "" {
			continue
		}
		current[key] = normalizeValue(rawValue)
	}
	flush()

	return records
}
