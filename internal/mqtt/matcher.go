package mqtt

import "strings"

// Matches reports whether topic matches the subscription pattern.
// Wildcards are only meaningful in pattern; topic is compared literally.
func Matches(pattern, topic string) bool {
	patternParts := strings.Split(pattern, "/")
	topicParts := strings.Split(topic, "/")

	for i, p := range patternParts {
		if p == "#" {
			return true
		}

		if i >= len(topicParts) {
			return false
		}

		if p != "+" && p != topicParts[i] {
			return false
		}
	}

	return len(patternParts) == len(topicParts)
}

// ValidPattern reports whether pattern is a well-formed subscription filter:
// non-empty, '#' only as the final level, and wildcards never mixed into a level.
func ValidPattern(pattern string) bool {
	if pattern == "" {
		return false
	}

	levels := strings.Split(pattern, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return false
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return false
		}
	}
	return true
}
