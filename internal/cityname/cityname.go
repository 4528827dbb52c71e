// Package cityname filters noisy place names before they are used as lookup keys.
package cityname

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minLength        = 3
	maxMixedCaseRate = 0.3
	maxSpecialRate   = 0.2
	maxRepeatRun     = 3
)

// noiseWords flag monitoring stations, plants and other non-city entries.
var noiseWords = []string{
	"station",
	"powerplant",
	"industrial",
	"district",
	"zone",
	"monitoring",
	"area",
	"unknown",
	"point",
}

// IsValid reports whether name looks like a real city name.
// All checks run on the trimmed input; lengths are counted in runes.
func IsValid(name string) bool {
	name = strings.TrimSpace(name)
	runes := []rune(name)
	length := len(runes)

	if length < minLength {
		return false
	}

	lower := strings.ToLower(name)
	for _, word := range noiseWords {
		if strings.Contains(lower, word) {
			return false
		}
	}

	if strings.IndexFunc(name, unicode.IsDigit) >= 0 {
		return false
	}

	if float64(mixedCasePairs(runes)) > float64(length)*maxMixedCaseRate {
		return false
	}

	if float64(specialChars(runes)) > float64(length)*maxSpecialRate {
		return false
	}

	return !hasRepeatedRun(runes)
}

// mixedCasePairs counts non-overlapping adjacent ASCII lower/upper transitions.
func mixedCasePairs(runes []rune) int {
	count := 0
	for i := 0; i+1 < len(runes); {
		a, b := runes[i], runes[i+1]
		if (isLower(a) && isUpper(b)) || (isUpper(a) && isLower(b)) {
			count++
			i += 2
			continue
		}
		i++
	}
	return count
}

// specialChars counts runes other than ASCII letters, whitespace, hyphens and apostrophes.
func specialChars(runes []rune) int {
	count := 0
	for _, r := range runes {
		switch {
		case isLower(r), isUpper(r), unicode.IsSpace(r), r == '-', r == '\'':
		default:
			count++
		}
	}
	return count
}

func hasRepeatedRun(runes []rune) bool {
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run > maxRepeatRun {
				return true
			}
			continue
		}
		run = 1
	}
	return false
}

func isLower(r rune) bool { return r >= 'a' && r <= 'z' }

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

// Normalize drops invalid UTF-8 and trims surrounding whitespace.
func Normalize(name string) string {
	if !utf8.ValidString(name) {
		name = strings.ToValidUTF8(name, "")
	}
	return strings.TrimSpace(name)
}
