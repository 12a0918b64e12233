package packregistry

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxSegmentLength = 100
	maxSegments      = 16
)

var segmentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidatePath checks a dotted class path such as "games.COC7".
// Each segment must be a 1-100 character identifier and a path has at most 16 segments.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("class path cannot be empty")
	}

	segments := strings.Split(path, ".")
	if len(segments) > maxSegments {
		return fmt.Errorf("class path has %d segments, maximum allowed is %d", len(segments), maxSegments)
	}

	for i, segment := range segments {
		if err := validateSegment(segment); err != nil {
			return fmt.Errorf("segment %d: %w", i+1, err)
		}
	}

	return nil
}

func validateSegment(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("segment cannot be empty")
	}
	if len(name) > maxSegmentLength {
		return fmt.Errorf("segment length %d exceeds maximum of %d characters", len(name), maxSegmentLength)
	}

	if !segmentPattern.MatchString(name) {
		return fmt.Errorf("%q must start with a letter or underscore, followed by letters, digits, or underscores", name)
	}

	return nil
}
