package template

import (
	"strconv"
	"strings"
	"time"
)

var units = [...]struct {
	name string
	secs int64
}{
	{"days", 86400},
	{"hours", 3600},
	{"minutes", 60},
	{"seconds", 1},
}

// ReadableDuration formats a duration as a human sentence, e.g.
// "1 day, 2 hours, and 3 minutes". Units with a zero count are omitted,
// and a duration of less than one second formats as the empty string.
func ReadableDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	var parts []string
	for _, u := range units {
		n := secs / u.secs
		if n == 0 {
			continue
		}
		secs -= n * u.secs
		name := u.name
		if n == 1 {
			name = name[:len(name)-1]
		}
		parts = append(parts, strconv.FormatInt(n, 10)+" "+name)
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
	}
}
