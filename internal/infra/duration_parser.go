package infra

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/eliteGoblin/pactd/internal/domain"
)

// RegexDurationParser extracts time expressions from free text, e.g.
// "5 minutes", "how about 1 hour", "90 min", "2h30m", "an hour and a half".
// It is the default implementation of the duration-parser collaborator;
// anything it cannot recognize yields ok=false.
type RegexDurationParser struct{}

// NewDurationParser creates the default free-text duration parser.
func NewDurationParser() *RegexDurationParser {
	return &RegexDurationParser{}
}

var (
	// "2h30m", "1h", "45m" compact forms
	compactRe = regexp.MustCompile(`(?i)\b(?:(\d+)\s*h(?:ours?)?\s*)?(\d+)\s*m(?:in(?:ute)?s?)?\b`)
	hourRe    = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*h(?:ours?|rs?)?\b`)
	minuteRe  = regexp.MustCompile(`(?i)\b(\d+)\s*m(?:in(?:ute)?s?)?\b`)
	secondRe  = regexp.MustCompile(`(?i)\b(\d+)\s*sec(?:ond)?s?\b`)
	// word forms
	wordNumbers = map[string]int{
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
		"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
		"fifteen": 15, "twenty": 20, "thirty": 30, "forty": 40,
		"fifty": 50, "sixty": 60, "ninety": 90,
	}
	wordAmountRe = regexp.MustCompile(`(?i)\b([a-z]+)\s+(minutes?|mins?|hours?)\b`)
	halfHourRe   = regexp.MustCompile(`(?i)\bhalf\s+an?\s+hour\b`)
	anHourRe     = regexp.MustCompile(`(?i)\ban?\s+hour(\s+and\s+a\s+half)?\b`)
	aMinuteRe    = regexp.MustCompile(`(?i)\ba\s+minute\b`)
)

// ParseDuration returns the first recognizable duration in text.
func (p *RegexDurationParser) ParseDuration(text string) (time.Duration, bool) {
	if m := halfHourRe.FindString(text); m != "" {
		return 30 * time.Minute, true
	}
	if m := anHourRe.FindStringSubmatch(text); m != nil {
		if strings.TrimSpace(m[1]) != "" {
			return 90 * time.Minute, true
		}
		return time.Hour, true
	}
	if aMinuteRe.MatchString(text) {
		return time.Minute, true
	}

	// "2h30m" style with both parts present
	if m := compactRe.FindStringSubmatch(text); m != nil && m[1] != "" {
		hours, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		return time.Duration(hours)*time.Hour + time.Duration(mins)*time.Minute, true
	}

	if m := secondRe.FindStringSubmatch(text); m != nil {
		secs, _ := strconv.Atoi(m[1])
		return time.Duration(secs) * time.Second, true
	}
	if m := minuteRe.FindStringSubmatch(text); m != nil {
		mins, _ := strconv.Atoi(m[1])
		return time.Duration(mins) * time.Minute, true
	}
	if m := hourRe.FindStringSubmatch(text); m != nil {
		hours, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return time.Duration(hours * float64(time.Hour)), true
		}
	}

	if m := wordAmountRe.FindStringSubmatch(text); m != nil {
		n, ok := wordNumbers[strings.ToLower(m[1])]
		if ok {
			if strings.HasPrefix(strings.ToLower(m[2]), "h") {
				return time.Duration(n) * time.Hour, true
			}
			return time.Duration(n) * time.Minute, true
		}
	}

	return 0, false
}

// Ensure RegexDurationParser implements domain.DurationParser.
var _ domain.DurationParser = (*RegexDurationParser)(nil)
