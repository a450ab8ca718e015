package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrNoJSON is returned when a model response carries no JSON object at all
var ErrNoJSON = errors.New("no JSON found in model response")

// DecodeResponse extracts the JSON payload from a raw model response, repairs it
// when needed and unmarshals it into target.
func DecodeResponse(raw string, target interface{}) (RepairStats, error) {
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		log.Debug().Str("response", truncateForLog(raw, 200)).Msg("No JSON found in model response")
		return RepairStats{}, ErrNoJSON
	}

	repaired, stats, err := RepairJSON(jsonStr)
	if stats.WasRepaired {
		log.Debug().
			Strs("strategies", stats.RepairStrategies).
			Int("errors_fixed", stats.ErrorsFixed).
			Dur("repair_time", stats.RepairTime).
			Msg("JSON repair applied to model response")
	}
	if err != nil {
		log.Warn().Err(err).Str("json", truncateForLog(repaired, 500)).Msg("JSON repair failed")
		return stats, err
	}

	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return stats, fmt.Errorf("JSON parsing failed after repair: %w", err)
	}
	return stats, nil
}

// extractJSON pulls the first JSON object out of mixed text, fenced code blocks included
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "{") {
		return raw
	}

	if strings.Contains(raw, "```") {
		var jsonLines []string
		inCodeBlock := false
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				if inCodeBlock {
					break
				}
				inCodeBlock = true
				continue
			}
			if inCodeBlock {
				jsonLines = append(jsonLines, line)
			}
		}
		if len(jsonLines) > 0 {
			return strings.TrimSpace(strings.Join(jsonLines, "\n"))
		}
	}

	startIdx := strings.Index(raw, "{")
	if startIdx == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := startIdx; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[startIdx : i+1]
			}
		}
	}

	return raw[startIdx:]
}

func truncateForLog(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
