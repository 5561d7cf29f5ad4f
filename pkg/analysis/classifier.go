package analysis

import "strings"

// Lexical markers used to derive the connection_found signal from the
// provider's free-text answer. Negative phrases win when present; this
// precedence is a design choice, the classifier is approximate by nature.
var (
	negativeIndicators = []string{
		"no reasonable connection found",
		"no connection found",
		"no relevant connection",
		"unable to find a connection",
		"does not relate",
		"unrelated to the hypothesis",
	}
	positiveIndicators = []string{
		"supports",
		"contradicts",
		"evidence suggests",
		"consistent with",
		"correlates",
		"respondents indicated",
		"according to",
		"[1]",
		"(source",
	}
)

// ClassifyConnection scans the response text for connection markers.
// Absence of both indicator classes defaults to false.
func ClassifyConnection(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range negativeIndicators {
		if strings.Contains(lowered, phrase) {
			return false
		}
	}
	for _, phrase := range positiveIndicators {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
