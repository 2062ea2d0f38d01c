package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"huddle/internal/domain/entity"
)

const clockToken = `(noon|\d{1,2}(?::[0-5]\d)?\s*(?:am|pm)?)`

var (
	asapPattern  = regexp.MustCompile(`\b(now|asap|right away|immediately)\b`)
	rangePattern = regexp.MustCompile(`(?:between|from)?\s*` + clockToken + `\s*(?:-|to|and|until|till)\s*` + clockToken)
	clockParts   = regexp.MustCompile(`^(\d{1,2})(?::([0-5]\d))?\s*(am|pm)?$`)
)

// Tried in order; the first match wins.
var pointPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:at|around|by|about)\s*` + clockToken),
	regexp.MustCompile(`\b(noon)\b`),
	regexp.MustCompile(`\b(\d{1,2}:[0-5]\d\s*(?:am|pm)?)`),
	regexp.MustCompile(`\b(\d{1,2}\s*(?:am|pm))\b`),
}

// clock is a time of day as written by a user.
type clock struct {
	hour     int
	minute   int
	meridiem string
}

func normalizeText(text string) string {
	lowered := strings.ToLower(text)
	lowered = strings.NewReplacer("a.m.", "am", "p.m.", "pm", "–", "-", "—", "-").Replace(lowered)

	return strings.TrimSpace(lowered)
}

// parseWindow finds the desired time in text. Times of day without am/pm between 1 and 7
// are read as afternoon.
func parseWindow(text string, now time.Time, tz *time.Location, asap time.Duration) (entity.TimeWindow, bool) {
	normalized := normalizeText(text)
	local := now.In(tz)

	if m := rangePattern.FindStringSubmatch(normalized); m != nil {
		start, okStart := parseClock(m[1])
		end, okEnd := parseClock(m[2])
		if okStart && okEnd {
			if start.meridiem == "" && end.meridiem != "" {
				start.meridiem = end.meridiem
				if start.on(local).After(end.on(local)) {
					start.meridiem = opposite(end.meridiem)
				}
			}
			from, to := start.on(local), end.on(local)
			if !to.Before(from) {
				return entity.TimeWindow{Start: from, End: to}, true
			}
		}
	}

	for _, pattern := range pointPatterns {
		if m := pattern.FindStringSubmatch(normalized); m != nil {
			if c, ok := parseClock(m[1]); ok {
				return entity.NewPointWindow(c.on(local)), true
			}
		}
	}

	if asapPattern.MatchString(normalized) {
		return entity.TimeWindow{Start: now, End: now.Add(asap)}, true
	}

	return entity.TimeWindow{}, false
}

func parseClock(token string) (clock, bool) {
	token = strings.TrimSpace(token)
	if token == "noon" {
		return clock{hour: 12, meridiem: "pm"}, true
	}

	m := clockParts.FindStringSubmatch(token)
	if m == nil {
		return clock{}, false
	}

	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour > 23 || (m[3] != "" && (hour == 0 || hour > 12)) {
		return clock{}, false
	}

	return clock{hour: hour, minute: minute, meridiem: m[3]}, true
}

// parseHHMM reads the 24-hour "15:04" form.
func parseHHMM(value string, now time.Time, tz *time.Location) (time.Time, bool) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, false
	}

	c := clock{hour: parsed.Hour(), minute: parsed.Minute(), meridiem: "24h"}

	return c.on(now.In(tz)), true
}

// on places the clock on the day of ref.
func (c clock) on(ref time.Time) time.Time {
	hour := c.hour
	switch c.meridiem {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	case "":
		if hour >= 1 && hour <= 7 {
			hour += 12
		}
	}

	return time.Date(ref.Year(), ref.Month(), ref.Day(), hour, c.minute, 0, 0, ref.Location())
}

func opposite(meridiem string) string {
	if meridiem == "am" {
		return "pm"
	}

	return "am"
}
