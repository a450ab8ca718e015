package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats tracks what happened while repairing a model response
type RepairStats struct {
	OriginalBytes    int           `json:"original_bytes"`
	RepairedBytes    int           `json:"repaired_bytes"`
	CommentsLost     int           `json:"comments_lost"`
	ErrorsFixed      int           `json:"errors_fixed"`
	RepairTime       time.Duration `json:"repair_time"`
	RepairStrategies []string      `json:"repair_strategies"`
	WasRepaired      bool          `json:"was_repaired"`
}

var (
	trailingCommaObject = regexp.MustCompile(`,\s*}`)
	trailingCommaArray  = regexp.MustCompile(`,\s*]`)
	blockComment        = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// RepairJSON attempts to repair malformed JSON. Cheap local fixes run first
// (trailing commas, whole-line comments, unclosed objects); kaptinlin/jsonrepair
// handles anything still invalid, including single quotes and unquoted keys.
func RepairJSON(raw string) (repaired string, stats RepairStats, err error) {
	startTime := time.Now()
	stats.OriginalBytes = len(raw)

	if json.Valid([]byte(raw)) {
		stats.RepairedBytes = len(raw)
		stats.RepairTime = time.Since(startTime)
		return raw, stats, nil
	}

	stats.WasRepaired = true
	repaired = raw

	if trailingCommaObject.MatchString(repaired) || trailingCommaArray.MatchString(repaired) {
		repaired = trailingCommaObject.ReplaceAllString(repaired, "}")
		repaired = trailingCommaArray.ReplaceAllString(repaired, "]")
		stats.RepairStrategies = append(stats.RepairStrategies, "trailing_commas")
		stats.ErrorsFixed++
	}

	if cleaned, n := removeComments(repaired); n > 0 {
		repaired = cleaned
		stats.CommentsLost = n
		stats.RepairStrategies = append(stats.RepairStrategies, "comments_removed")
		stats.ErrorsFixed++
	}

	if completed := completeJSON(repaired); completed != repaired {
		repaired = completed
		stats.RepairStrategies = append(stats.RepairStrategies, "completion")
		stats.ErrorsFixed++
	}

	if !json.Valid([]byte(repaired)) {
		libraryRepaired, libraryErr := jsonrepair.JSONRepair(repaired)
		if libraryErr == nil && libraryRepaired != repaired {
			repaired = libraryRepaired
			stats.RepairStrategies = append(stats.RepairStrategies, "jsonrepair_library")
			stats.ErrorsFixed++
		}
	}

	stats.RepairedBytes = len(repaired)
	stats.RepairTime = time.Since(startTime)

	if !json.Valid([]byte(repaired)) {
		return repaired, stats, fmt.Errorf("JSON repair failed after %d strategies", len(stats.RepairStrategies))
	}
	return repaired, stats, nil
}

// removeComments strips block comments and lines that are entirely a // comment.
// Inline // is left alone since reply text often carries URLs.
func removeComments(s string) (string, int) {
	removed := 0

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "//") {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	s = strings.Join(kept, "\n")

	matches := blockComment.FindAllString(s, -1)
	removed += len(matches)
	s = blockComment.ReplaceAllString(s, "")

	return s, removed
}

// completeJSON closes any objects, arrays or strings left open by a truncated response
func completeJSON(s string) string {
	s = strings.TrimSpace(s)

	var stack []rune
	inString := false
	escaped := false

	for _, char := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case char == '\\':
				escaped = true
			case char == '"':
				inString = false
			}
			continue
		}

		switch char {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == char {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
