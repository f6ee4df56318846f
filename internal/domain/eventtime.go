package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// titleClockRe parses the leading date/time of a standard title,
	// e.g. "16 januari 20.29, Stöld/inbrott, Nacka" -> day=16, month=januari,
	// hour=20, minute=29. The hour/minute separator varies between "." and ":".
	titleClockRe = regexp.MustCompile(`^(\d{1,2}) ([a-zA-ZåäöÅÄÖ]+) (\d{1,2})[.:](\d{2})`)

	// summaryClockRe matches an incident clock reference in free text,
	// e.g. "Kl. 20.29 larmas polisen ..." or "Klockan 02:15".
	summaryClockRe = regexp.MustCompile(`(?i)\bkl(?:ockan)?\.?\s*(\d{1,2})[.:](\d{2})`)

	// hourRangeRe matches an explicit covered period in digest summaries,
	// e.g. "kl. 21-07" or "klockan 22 - 06".
	hourRangeRe = regexp.MustCompile(`(?i)\bkl(?:ockan)?\.?\s*(\d{1,2})(?:[.:]\d{2})?\s*[-–]\s*(\d{1,2})`)
)

// months maps lowercase Swedish month names as they appear in titles.
var months = map[string]time.Month{
	"januari":   time.January,
	"februari":  time.February,
	"mars":      time.March,
	"april":     time.April,
	"maj":       time.May,
	"juni":      time.June,
	"juli":      time.July,
	"augusti":   time.August,
	"september": time.September,
	"oktober":   time.October,
	"november":  time.November,
	"december":  time.December,
}

// periodStartHours are conventional start hours for named digest periods.
// "kväll" is checked before "natt" because combined digests ("kväll och
// natt") cover a period that begins in the evening.
var periodStartHours = []struct {
	word string
	hour int
}{
	{"kväll", 18},
	{"natt", 0},
	{"morgon", 6},
}

// eventTimeMatcher attempts to derive an occurrence time from one feed
// convention. It reports false when the record does not match, letting the
// chain fall through to the next rule.
type eventTimeMatcher func(raw RawEvent, published time.Time) (time.Time, bool)

// eventTimeMatchers is tried in priority order; the first match wins.
var eventTimeMatchers = []eventTimeMatcher{
	matchDigestPeriod,
	matchTitleClock,
	matchSummaryClock,
}

// DeriveEventTime returns the best-guess occurrence time of a feed record,
// as opposed to its publication time. It never fails: when no convention
// matches, the publication time is returned unchanged.
func DeriveEventTime(raw RawEvent, published time.Time) time.Time {
	for _, match := range eventTimeMatchers {
		if t, ok := match(raw, published); ok {
			return t
		}
	}
	return published
}

// matchDigestPeriod handles roundup categories ("Sammanfattning natt", ...).
// The occurrence time anchors to the publication date with the clock set to
// the start of the covered period: an explicit hour range start when the
// summary names one, otherwise the conventional start hour of the named
// period (natt 00:00, kväll 18:00, morgon 06:00).
func matchDigestPeriod(raw RawEvent, published time.Time) (time.Time, bool) {
	if !strings.HasPrefix(strings.ToLower(raw.Type), "sammanfattning") {
		return time.Time{}, false
	}

	if m := hourRangeRe.FindStringSubmatch(raw.Summary); m != nil {
		if hour, err := strconv.Atoi(m[1]); err == nil && hour <= 23 {
			return atClock(published, published.Day(), hour, 0), true
		}
	}

	haystack := strings.ToLower(raw.Type + " " + raw.Summary)
	for _, p := range periodStartHours {
		if strings.Contains(haystack, p.word) {
			return atClock(published, published.Day(), p.hour, 0), true
		}
	}

	return time.Time{}, false
}

// matchTitleClock handles the standard "<day> <month> <HH>.<MM>, ..." title.
// A day-of-month differing from the publication day means the event was
// published after the fact: a smaller day stays within the publication
// month, a larger day belongs to the previous calendar month. Only a
// one-step month rollback is attempted; time.Date normalizes the year
// boundary (and days that overflow a shorter month).
func matchTitleClock(raw RawEvent, published time.Time) (time.Time, bool) {
	m := titleClockRe.FindStringSubmatch(raw.Name)
	if m == nil {
		return time.Time{}, false
	}
	if _, known := months[strings.ToLower(m[2])]; !known {
		return time.Time{}, false
	}

	day, _ := strconv.Atoi(m[1])
	hour, _ := strconv.Atoi(m[3])
	minute, _ := strconv.Atoi(m[4])
	if day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	month := published.Month()
	if day > published.Day() {
		month--
	}
	return time.Date(published.Year(), month, day, hour, minute, 0, 0, published.Location()), true
}

// matchSummaryClock handles a "Kl./Klockan HH:MM" reference in the summary.
// When the referenced hour is more than two hours ahead of the publication
// hour the feed is catching up on the previous day, so the date rolls back
// one day before the clock is applied.
func matchSummaryClock(raw RawEvent, published time.Time) (time.Time, bool) {
	m := summaryClockRe.FindStringSubmatch(raw.Summary)
	if m == nil {
		return time.Time{}, false
	}

	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	day := published.Day()
	if hour > published.Hour()+2 {
		day--
	}
	return atClock(published, day, hour, minute), true
}

// atClock rebuilds a timestamp on the published record's calendar and zone
// with the given day-of-month and clock. time.Date normalizes day 0 or an
// overflowing day across month and year boundaries.
func atClock(published time.Time, day, hour, minute int) time.Time {
	return time.Date(published.Year(), published.Month(), day, hour, minute, 0, 0, published.Location())
}
