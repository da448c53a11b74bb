// Package tracker renders the pinned progress message kept in every
// project channel.
package tracker

import (
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Segments is the width of the progress bar.
const Segments = 10

const (
	filledSegment = "█"
	emptySegment  = "░"
)

// Footer is appended to every tracker and describes the two update lines
// the listener understands.
const Footer = "**How to update**\n" +
	"Post either (or both) of these lines in this channel:\n" +
	"`Current Word Count: 12345`\n" +
	"`Stage: drafting`"

// DateLayout is the layout of the "last updated" line.
const DateLayout = "2 Jan 2006"

var printer = message.NewPrinter(language.English)

// Input carries everything a tracker shows.
type Input struct {
	Title   string
	Genre   string
	Stage   string
	Current int
	Goal    int
}

// FromStrings builds an Input from raw word counts as typed by a member.
// Counts that do not parse are marked invalid so Render takes its
// fallback path instead of failing.
func FromStrings(title, genre, stage, current, goal string) Input {
	return Input{
		Title:   title,
		Genre:   genre,
		Stage:   stage,
		Current: parseCount(current),
		Goal:    parseCount(goal),
	}
}

// ParseCount parses a word count, accepting thousands separators.
func ParseCount(s string) (int, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func parseCount(s string) int {
	n, ok := ParseCount(s)
	if !ok {
		return -1
	}
	return n
}

// Percent returns round(current/goal*100) and whether the counts were
// usable. Unusable counts (goal <= 0, negative current) yield 0.
func Percent(current, goal int) (int, bool) {
	if goal <= 0 || current < 0 {
		return 0, false
	}
	return int(math.Round(float64(current) / float64(goal) * 100)), true
}

// Bar renders a Segments-wide bar with floor(percent/10) filled segments.
func Bar(percent int) string {
	filled := percent / 10
	if filled < 0 {
		filled = 0
	}
	if filled > Segments {
		filled = Segments
	}
	return strings.Repeat(filledSegment, filled) + strings.Repeat(emptySegment, Segments-filled)
}

// Render produces the tracker text. It never fails: unusable counts are
// shown as 0 / 1 with an empty bar.
func Render(in Input, date time.Time) string {
	current, goal := in.Current, in.Goal
	percent, ok := Percent(current, goal)
	if !ok {
		current, goal = 0, 1
	}

	var b strings.Builder
	b.WriteString("📖 **" + in.Title + "**\n")
	b.WriteString("**Genre:** " + in.Genre + "\n")
	b.WriteString("**Stage:** " + in.Stage + "\n")
	b.WriteString(printer.Sprintf("**Word Count:** %d / %d\n", current, goal))
	b.WriteString("`" + Bar(percent) + "` " + strconv.Itoa(percent) + "%\n")
	b.WriteString("_Last updated: " + date.Format(DateLayout) + "_\n\n")
	b.WriteString(Footer)
	return b.String()
}
