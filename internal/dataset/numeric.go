package dataset

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// missingTokens are cell values read as missing, in addition to blanks.
var missingTokens = map[string]bool{
	"NA": true, "N/A": true, "n/a": true, "#N/A": true, "<NA>": true,
	"NaN": true, "nan": true, "-NaN": true, "-nan": true,
	"NULL": true, "null": true, "None": true,
}

// IsMissing reports whether a cell holds no value.
func IsMissing(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || missingTokens[s]
}

// ParseFloat parses a cell strictly. Missing cells, NaN and infinities fail.
func ParseFloat(s string) (float64, bool) {
	if IsMissing(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Coerce parses a cell leniently: parentheses and whitespace are stripped and
// a comma decimal separator becomes a dot, so "(3)" and " 1,5 " both parse.
func Coerce(s string) (float64, bool) {
	if IsMissing(s) {
		return 0, false
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '(' || r == ')':
			return -1
		case r == ',':
			return '.'
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\u00a0':
			return -1
		}
		return r
	}, s)
	return ParseFloat(cleaned)
}

// FormatFloat renders v in its shortest form: integers without a fraction,
// NaN as a missing cell.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatInt renders an integer cell.
func FormatInt(v int) string { return strconv.Itoa(v) }

// Median returns the median of the non-NaN values, averaging the two middle
// values for even counts. It returns NaN when there is no value.
func Median(values []float64) float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return stat.Mean(sorted[n/2-1:n/2+1], nil)
}
