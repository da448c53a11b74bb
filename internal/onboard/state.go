package onboard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ksteinfeldt/wipbot/internal/tracker"
)

// Phase is a step of the intake conversation.
type Phase int

const (
	AwaitingName Phase = iota
	AwaitingProjectCount
	AwaitingProjectDetail
	Provisioning
	Done
	Cancelled
)

func (p Phase) String() string {
	switch p {
	case AwaitingName:
		return "awaiting-name"
	case AwaitingProjectCount:
		return "awaiting-project-count"
	case AwaitingProjectDetail:
		return "awaiting-project-detail"
	case Provisioning:
		return "provisioning"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MaxProjects caps the digit form of the project count.
const MaxProjects = 25

// detailFields is the number of comma-separated fields in a project line.
const detailFields = 5

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// Detail is one project as described by the member.
type Detail struct {
	Title   string
	Genre   string
	Current int
	Goal    int
	Stage   string
}

// State is the intake conversation state. It is a plain value; Next
// never mutates its argument.
type State struct {
	Phase   Phase
	Name    string
	Count   int
	Details []Detail
}

// Prompt returns the question for the state's phase.
func Prompt(s State) string {
	switch s.Phase {
	case AwaitingName:
		return "👋 Welcome! Let's set up your project space.\n\n" +
			"What name would you like your workspace to use? (Your real or pen name, not your username.)"
	case AwaitingProjectCount:
		return fmt.Sprintf("Nice to meet you, %s! How many projects are you working on right now?", s.Name)
	case AwaitingProjectDetail:
		return fmt.Sprintf("Project %d of %d: reply in one message as\n"+
			"`Title, Genre, Current Word Count, Goal Word Count, Stage`\n"+
			"e.g. `The Long Road, Fantasy, 12000, 90000, drafting`",
			len(s.Details)+1, s.Count)
	case Provisioning:
		return "Thanks! Setting up your workspace now..."
	default:
		return ""
	}
}

// Next applies one reply to s and returns the new state together with
// the message to send back. Invalid input keeps the phase and returns a
// re-prompt; there is no retry limit.
func Next(s State, reply string) (State, string) {
	reply = strings.TrimSpace(reply)

	switch s.Phase {
	case AwaitingName:
		if reply == "" {
			return s, "I didn't catch that. " + Prompt(s)
		}
		s.Name = reply
		s.Phase = AwaitingProjectCount
		return s, Prompt(s)

	case AwaitingProjectCount:
		n, ok := ParseProjectCount(reply)
		if !ok {
			return s, fmt.Sprintf("Please reply with a number from 1 to %d (digits or a word like \"three\").", MaxProjects)
		}
		s.Count = n
		s.Details = make([]Detail, 0, n)
		s.Phase = AwaitingProjectDetail
		return s, Prompt(s)

	case AwaitingProjectDetail:
		d, err := ParseDetail(reply)
		if err != nil {
			return s, fmt.Sprintf("Sorry, %v.\n%s", err, Prompt(s))
		}
		details := make([]Detail, len(s.Details), len(s.Details)+1)
		copy(details, s.Details)
		s.Details = append(details, d)
		if len(s.Details) == s.Count {
			s.Phase = Provisioning
		}
		return s, Prompt(s)
	}

	return s, ""
}

// ParseProjectCount accepts digits 1..MaxProjects or a number word from
// "one" to "ten".
func ParseProjectCount(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, ok := numberWords[s]; ok {
		return n, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > MaxProjects {
		return 0, false
	}
	return n, true
}

// ParseDetail parses "title, genre, current, goal, stage". Fields beyond
// the fifth are ignored.
func ParseDetail(s string) (Detail, error) {
	parts := strings.Split(s, ",")
	if len(parts) < detailFields {
		return Detail{}, fmt.Errorf("I need %d comma-separated values but got %d", detailFields, len(parts))
	}
	for i := range parts[:detailFields] {
		parts[i] = strings.TrimSpace(parts[i])
	}

	title := parts[0]
	if title == "" {
		return Detail{}, fmt.Errorf("the title can't be empty")
	}
	current, ok := tracker.ParseCount(parts[2])
	if !ok {
		return Detail{}, fmt.Errorf("%q isn't a word count", parts[2])
	}
	goal, ok := tracker.ParseCount(parts[3])
	if !ok {
		return Detail{}, fmt.Errorf("%q isn't a word count", parts[3])
	}

	return Detail{
		Title:   title,
		Genre:   parts[1],
		Current: current,
		Goal:    goal,
		Stage:   parts[4],
	}, nil
}
