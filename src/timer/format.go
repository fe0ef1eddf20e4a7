package timer

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders seconds as MM:SS, or HH:MM:SS from one hour up.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if seconds >= 3600 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Parse is the inverse of Format. It also accepts a bare number of seconds.
func Parse(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	total := 0
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		if i > 0 && n >= 60 {
			return 0, fmt.Errorf("invalid duration %q: field out of range", s)
		}
		total = total*60 + n
	}
	return total, nil
}
