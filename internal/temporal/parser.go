// Package temporal converts free-form English and Italian date text into
// absolute instants, using a fixed chain of matchers where the first match
// wins. Parse failure is signaled by the zero time.Time, never an error,
// so callers must check IsZero explicitly.
package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// weekdayPrefixes maps the first three letters of English and Italian
// weekday names. Ambiguity note: "mar" is both martedì and March; weekday
// matchers run before month matchers, so the weekday reading wins.
var weekdayPrefixes = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
	"dom": time.Sunday, "lun": time.Monday, "mar": time.Tuesday,
	"mer": time.Wednesday, "gio": time.Thursday, "ven": time.Friday,
	"sab": time.Saturday,
}

var monthPrefixes = []struct {
	en, it string
	month  time.Month
}{
	{"jan", "gen", time.January}, {"feb", "feb", time.February},
	{"mar", "mar", time.March}, {"apr", "apr", time.April},
	{"may", "mag", time.May}, {"jun", "giu", time.June},
	{"jul", "lug", time.July}, {"aug", "ago", time.August},
	{"sep", "set", time.September}, {"oct", "ott", time.October},
	{"nov", "nov", time.November}, {"dec", "dic", time.December},
}

var spelledCounts = map[string]int{
	"two": 2, "due": 2,
	"three": 3, "tre": 3,
	"four": 4, "quattro": 4,
}

var (
	atTimeRe   = regexp.MustCompile(`(?:\bat\b|\balle\b|@)\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
	bareTimeRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*(am|pm)?$|^(\d{1,2})\s*(am|pm)$`)
	isoRe      = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?:[ T](\d{1,2}):(\d{2}))?`)
	inUnitRe   = regexp.MustCompile(`^(?:in|tra)\s+(\d+)\s+(\S+)`)
	weeksRe    = regexp.MustCompile(`\s(?:in|tra)\s+(\S+)\s+(?:weeks?|settimane?)`)
	numberRe   = regexp.MustCompile(`(\d{1,2})`)
	durationRe = regexp.MustCompile(`^(\d+)\s*([smhdwSMHDW])?`)
)

// timeOfDay is a detected wall-clock time within whatever day a date
// matcher resolves. found=false leaves the end-of-day default in place.
type timeOfDay struct {
	hour, minute int
	found        bool
}

const (
	defaultHour   = 23
	defaultMinute = 59
)

// detectTimeOfDay scans for time keywords or explicit "at"/"alle" clock
// times. Keyword order matters: "stasera" must resolve via "sera" and
// "tonight" before the bare "night".
func detectTimeOfDay(in string) timeOfDay {
	keywords := []struct {
		words []string
		hour  int
	}{
		{[]string{"morning", "mattina"}, 9},
		{[]string{"noon", "mezzogiorno"}, 12},
		{[]string{"afternoon", "pomeriggio"}, 14},
		{[]string{"evening", "sera"}, 19},
		{[]string{"tonight", "stasera"}, 20},
		{[]string{"night", "notte"}, 21},
	}
	for _, kw := range keywords {
		for _, w := range kw.words {
			if strings.Contains(in, w) {
				return timeOfDay{hour: kw.hour, found: true}
			}
		}
	}

	if m := atTimeRe.FindStringSubmatch(in); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		hour = applyMeridiem(hour, m[3])
		if hour <= 23 && minute <= 59 {
			return timeOfDay{hour: hour, minute: minute, found: true}
		}
	}

	if m := bareTimeRe.FindStringSubmatch(in); m != nil {
		if m[1] != "" {
			hour, _ := strconv.Atoi(m[1])
			minute, _ := strconv.Atoi(m[2])
			hour = applyMeridiem(hour, m[3])
			if hour <= 23 && minute <= 59 {
				return timeOfDay{hour: hour, minute: minute, found: true}
			}
		} else {
			hour, _ := strconv.Atoi(m[4])
			hour = applyMeridiem(hour, m[5])
			if hour <= 23 {
				return timeOfDay{hour: hour, found: true}
			}
		}
	}
	return timeOfDay{}
}

func applyMeridiem(hour int, meridiem string) int {
	switch meridiem {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour
}

func (t timeOfDay) orDefault() (int, int) {
	if t.found {
		return t.hour, t.minute
	}
	return defaultHour, defaultMinute
}

// atDay places the time-of-day onto the given calendar day.
func (t timeOfDay) atDay(day time.Time) time.Time {
	h, m := t.orDefault()
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

// matcher attempts one parsing rule. The boolean reports whether the rule
// claimed the input; a claimed input never falls through to later rules.
type matcher func(in string, base time.Time, tod timeOfDay) (time.Time, bool)

// matchers is the precedence order. First match wins.
var matchers = []matcher{
	matchImmediate,
	matchTodayTomorrow,
	matchNextWeekday,
	matchWeekdayInWeeks,
	matchBareWeekday,
	matchRelativeUnit,
	matchISO,
	matchMonthDay,
	matchBareTime,
}

// ParseDate resolves input against base. A zero base means "now". The zero
// time is returned when no rule matches.
func ParseDate(input string, base time.Time) time.Time {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "" {
		return time.Time{}
	}
	if base.IsZero() {
		base = time.Now()
	}
	tod := detectTimeOfDay(in)
	for _, m := range matchers {
		if t, ok := m(in, base, tod); ok {
			return t
		}
	}
	return time.Time{}
}

// matchImmediate handles the two inputs that ignore the time-of-day pass:
// "tonight" pins 20:00 today, "now" means one minute from base.
func matchImmediate(in string, base time.Time, _ timeOfDay) (time.Time, bool) {
	switch in {
	case "tonight", "stasera":
		return time.Date(base.Year(), base.Month(), base.Day(), 20, 0, 0, 0, base.Location()), true
	case "now", "adesso":
		return base.Add(time.Minute), true
	}
	return time.Time{}, false
}

func matchTodayTomorrow(in string, base time.Time, tod timeOfDay) (time.Time, bool) {
	if in == "today" || in == "oggi" {
		return tod.atDay(base), true
	}
	if strings.Contains(in, "tomorrow") || strings.Contains(in, "domani") {
		return tod.atDay(base.AddDate(0, 0, 1)), true
	}
	return time.Time{}, false
}

// nextWeekday returns the next strict occurrence: the same weekday as base
// resolves a full week ahead, never today.
func nextWeekday(base time.Time, wd time.Weekday) time.Time {
	days := int(wd) - int(base.Weekday())
	if days <= 0 {
		days += 7
	}
	return base.AddDate(0, 0, days)
}

func weekdayAt(in string) (time.Weekday, bool) {
	if len(in) < 3 {
		return 0, false
	}
	wd, ok := weekdayPrefixes[in[:3]]
	return wd, ok
}

func matchNextWeekday(in string, base time.Time, tod timeOfDay) (time.Time, bool) {
	if rest, ok := strings.CutPrefix(in, "next "); ok {
		if strings.HasPrefix(rest, "week") {
			return tod.atDay(base.AddDate(0, 0, 7)), true
		}
		if wd, ok := weekdayAt(rest); ok {
			return tod.atDay(nextWeekday(base, wd)), true
		}
	}
	// "lunedi prossimo", "martedi prossima settimana"
	if strings.Contains(in, "prossim") {
		if wd, ok := weekdayAt(in); ok {
			return tod.atDay(nextWeekday(base, wd)), true
		}
	}
	return time.Time{}, false
}

// matchWeekdayInWeeks handles "thursday in two weeks": the next strict
// occurrence of the weekday plus (N-1) further weeks, so the result is
// always at least a week past the plain "next thursday" reading.
func matchWeekdayInWeeks(in string, base time.Time, tod timeOfDay) (time.Time, bool) {
	wd, ok := weekdayAt(in)
	if !ok {
		return time.Time{}, false
	}
	m := weeksRe.FindStringSubmatch(in)
	if m == nil {
		return time.Time{}, false
	}
	weeks, ok := spelledCounts[m[1]]
	if !ok {
		weeks, _ = strconv.Atoi(m[1])
	}
	if weeks <= 0 {
		return time.Time{}, false
	}
	return tod.atDay(nextWeekday(base, wd).AddDate(0, 0, (weeks-1)*7)), true
}

func matchBareWeekday(in string, base time.Time, tod timeOfDay) (time.Time, bool) {
	if wd, ok := weekdayAt(in); ok {
		return tod.atDay(nextWeekday(base, wd)), true
	}
	return time.Time{}, false
}

// matchRelativeUnit handles "in N <unit>" / "tra N <unit>". Hours and
// minutes are raw offsets from base; days, weeks and months are calendar
// steps that land on the detected (or default) time of day.
func matchRelativeUnit(in string, base time.Time, tod timeOfDay) (time.Time, bool) {
	m := inUnitRe.FindStringSubmatch(in)
	if m == nil {
		return time.Time{}, false
	}
	n, _ := strconv.Atoi(m[1])
	unit := m[2]
	switch {
	case strings.HasPrefix(unit, "hour") || strings.HasPrefix(unit, "or"):
		return base.Add(time.Duration(n) * time.Hour), true
	case strings.HasPrefix(unit, "min"):
		return base.Add(time.Duration(n) * time.Minute), true
	case strings.HasPrefix(unit, "day") || strings.HasPrefix(unit, "giorn"):
		return tod.atDay(base.AddDate(0, 0, n)), true
	case strings.HasPrefix(unit, "week") || strings.HasPrefix(unit, "settiman"):
		return tod.atDay(base.AddDate(0, 0, n*7)), true
	case strings.HasPrefix(unit, "month") || strings.HasPrefix(unit, "mes"):
		return tod.atDay(base.AddDate(0, n, 0)), true
	}
	return time.Time{}, false
}

func matchISO(in string, base time.Time, tod timeOfDay) (time.Time, bool) {
	m := isoRe.FindStringSubmatch(in)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	hour, minute := tod.orDefault()
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
		if hour > 23 || minute > 59 {
			return time.Time{}, false
		}
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, base.Location()), true
}

// matchMonthDay handles "dec 25" and "25 december" with English and
// Italian month abbreviations, rolling past dates forward a year.
func matchMonthDay(in string, base time.Time, tod timeOfDay) (time.Time, bool) {
	for _, mp := range monthPrefixes {
		if !strings.Contains(in, mp.en) && !strings.Contains(in, mp.it) {
			continue
		}
		num := numberRe.FindStringSubmatch(in)
		if num == nil {
			return time.Time{}, false
		}
		day, _ := strconv.Atoi(num[1])
		if day < 1 || day > 31 {
			return time.Time{}, false
		}
		h, min := tod.orDefault()
		result := time.Date(base.Year(), mp.month, day, h, min, 0, 0, base.Location())
		if result.Before(base) {
			result = result.AddDate(1, 0, 0)
		}
		return result, true
	}
	return time.Time{}, false
}

// matchBareTime resolves a time with no date to today, or tomorrow when the
// moment has already passed relative to base.
func matchBareTime(in string, base time.Time, tod timeOfDay) (time.Time, bool) {
	if !tod.found {
		return time.Time{}, false
	}
	result := tod.atDay(base)
	if !result.After(base) {
		result = result.AddDate(0, 0, 1)
	}
	return result, true
}

// ParseDuration reads "<int><unit>" with unit s/m/h/d/w, defaulting to
// minutes. Zero means parse failure.
func ParseDuration(input string) time.Duration {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(input))
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0
	}
	switch strings.ToLower(m[2]) {
	case "s":
		return time.Duration(n) * time.Second
	case "h":
		return time.Duration(n) * time.Hour
	case "d":
		return time.Duration(n) * 24 * time.Hour
	case "w":
		return time.Duration(n) * 7 * 24 * time.Hour
	default:
		return time.Duration(n) * time.Minute
	}
}
