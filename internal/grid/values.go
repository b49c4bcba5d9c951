package grid

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"molluscadb/pkg/domain"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02.01.2006",
	"2.1.2006",
	"01/02/2006",
	"1/2/2006",
	"2006-01",
}

// sameValue compares on string-coerced values; missing and "" are equal.
func sameValue(a, b any) bool {
	return domain.Stringify(a) == domain.Stringify(b)
}

// thousands matches comma digit grouping such as 1,000 or -12,345.5.
var thousands = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// parseNumber accepts plain numbers, comma grouping (1,000 and 1,234.5) and a
// lone decimal comma (3,5). Anything else with a comma is not a number.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	switch {
	case thousands.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") == 1 && !strings.Contains(s, "."):
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// compareMode is how one column's values are ordered. A column is numeric or
// dated only when every non-blank value parses that way.
type compareMode int

const (
	compareText compareMode = iota
	compareNumber
	compareDate
)

func modeOf(values []string) compareMode {
	numeric, dated, nonBlank := true, true, 0
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		nonBlank++
		if numeric {
			_, numeric = parseNumber(v)
		}
		if dated {
			_, dated = parseDate(v)
		}
		if !numeric && !dated {
			return compareText
		}
	}
	switch {
	case nonBlank == 0:
		return compareText
	case numeric:
		return compareNumber
	case dated:
		return compareDate
	}
	return compareText
}

// compareValues orders a and b under mode. Blank values sort first.
func compareValues(mode compareMode, a, b string) int {
	blankA, blankB := strings.TrimSpace(a) == "", strings.TrimSpace(b) == ""
	switch {
	case blankA && blankB:
		return 0
	case blankA:
		return -1
	case blankB:
		return 1
	}
	switch mode {
	case compareNumber:
		fa, _ := parseNumber(a)
		fb, _ := parseNumber(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case compareDate:
		ta, _ := parseDate(a)
		tb, _ := parseDate(b)
		return ta.Compare(tb)
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
