package ytapi

import (
	"fmt"
	"regexp"
	"strconv"
)

var isoDurationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISODuration converts an ISO 8601 duration like PT1H23M45S to
// seconds. The API only emits the PT form for video durations.
func ParseISODuration(value string) (int64, error) {
	if value == "" || value == "P0D" {
		return 0, nil
	}
	match := isoDurationPattern.FindStringSubmatch(value)
	if match == nil {
		return 0, fmt.Errorf("unrecognized duration %q", value)
	}
	var seconds int64
	units := []int64{3600, 60, 1}
	for i, unit := range units {
		if match[i+1] == "" {
			continue
		}
		parsed, err := strconv.ParseInt(match[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", value, err)
		}
		seconds += parsed * unit
	}
	return seconds, nil
}
