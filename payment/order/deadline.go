package order

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// "Bayar sebelum 15 Jan, 10:50" carries no year.
var months = map[string]time.Month{
	"jan": time.January, "januari": time.January, "january": time.January,
	"feb": time.February, "februari": time.February, "february": time.February,
	"mar": time.March, "maret": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May, "mei": time.May,
	"jun": time.June, "juni": time.June, "june": time.June,
	"jul": time.July, "juli": time.July, "july": time.July,
	"aug": time.August, "agu": time.August, "agt": time.August, "agustus": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "okt": time.October, "oktober": time.October, "october": time.October,
	"nov": time.November, "nopember": time.November, "november": time.November,
	"dec": time.December, "des": time.December, "desember": time.December, "december": time.December,
}

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseDeadline turns "15 Jan 10:50" into a time in loc. The year is the
// current one, or the next one when that instant already passed.
func ParseDeadline(day, month, clock string, now time.Time, loc *time.Location) (time.Time, bool) {
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return time.Time{}, false
	}
	m, ok := months[strings.ToLower(month)]
	if !ok {
		return time.Time{}, false
	}
	c := clockPattern.FindStringSubmatch(clock)
	if c == nil {
		return time.Time{}, false
	}
	hour, _ := strconv.Atoi(c[1])
	minute, _ := strconv.Atoi(c[2])
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	now = now.In(loc)
	deadline := time.Date(now.Year(), m, d, hour, minute, 0, 0, loc)
	if deadline.Day() != d {
		// 31 Feb and friends
		return time.Time{}, false
	}
	if deadline.Before(now) {
		deadline = deadline.AddDate(1, 0, 0)
	}
	return deadline, true
}
