package calls

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	isoDate      = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	dayFirstDate = regexp.MustCompile(`^(\d{1,2})[-/](\d{1,2})[-/](\d{4})$`)
)

// DateResult is the outcome of NormalizeDateDetailed.
type DateResult struct {
	Value string
	// Changed is true when the input was reformatted.
	Changed bool
	// Ambiguous is true when both leading components are <= 12, so the input could
	// also have been month-first. The day-first reading is used regardless.
	Ambiguous bool
}

// NormalizeDate returns an ISO YYYY-MM-DD date for ISO or day-first input.
//
// Day-first input (DD-MM-YYYY or DD/MM/YYYY) is reordered. A leading component
// above 31 or a middle component above 12 cannot be day-first, so the input is
// returned unchanged rather than guessed at. Month and day are never swapped.
// This is an approximation: "03-04-2025" is read as 3 April.
func NormalizeDate(s string) string {
	return NormalizeDateDetailed(s).Value
}

func NormalizeDateDetailed(s string) DateResult {
	if m := isoDate.FindStringSubmatch(s); m != nil {
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if mo < 1 || mo > 12 || d < 1 || d > 31 {
			return DateResult{Value: s}
		}
		out := fmt.Sprintf("%s-%02d-%02d", m[1], mo, d)
		return DateResult{Value: out, Changed: out != s}
	}

	m := dayFirstDate.FindStringSubmatch(s)
	if m == nil {
		return DateResult{Value: s}
	}
	d, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	if d > 31 || d < 1 || mo < 1 || mo > 12 {
		return DateResult{Value: s}
	}
	return DateResult{
		Value:     fmt.Sprintf("%s-%02d-%02d", m[3], mo, d),
		Changed:   true,
		Ambiguous: d <= 12 && d != mo,
	}
}
