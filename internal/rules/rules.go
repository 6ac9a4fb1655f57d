package rules

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/dotcommander/asanasense/internal/models"
)

// Kind selects how a rule projects its matching tasks.
type Kind string

const (
	KindCounter Kind = "counter"
	KindList    Kind = "list"
)

// Timeframe selects which bucket a rule reads: completed tasks (past) or
// open tasks (future).
type Timeframe string

const (
	TimeframePast   Timeframe = "past"
	TimeframeFuture Timeframe = "future"
)

// All is the horizon and date-key sentinel meaning "no date restriction".
const All = "all"

var (
	validKinds      = map[Kind]bool{KindCounter: true, KindList: true}
	validTimeframes = map[Timeframe]bool{TimeframePast: true, TimeframeFuture: true}

	daysPattern = regexp.MustCompile(`(?i)_(\d+)day`)
)

// MaxHorizonDays keeps every boundary a four-digit-year YYYY-MM-DD so it
// compares lexically against bucket keys.
const MaxHorizonDays = 365 * 1000

// Horizon is either a bounded number of days or the All sentinel.
type Horizon struct {
	days int
	all  bool
}

// Days returns a bounded horizon.
func Days(n int) Horizon { return Horizon{days: n} }

// Unbounded returns the All horizon.
func Unbounded() Horizon { return Horizon{all: true} }

// IsAll reports whether the horizon has no date restriction.
func (h Horizon) IsAll() bool { return h.all }

// Days returns the day count; zero for the All horizon.
func (h Horizon) Days() int { return h.days }

func (h Horizon) String() string {
	if h.all {
		return All
	}
	return strconv.Itoa(h.days) + "day"
}

// Rule is one monitored variable, e.g. counter_past_7day.
type Rule struct {
	Name      string
	Kind      Kind
	Timeframe Timeframe
	Horizon   Horizon
}

// Reason classifies why a variable name was dropped.
type Reason string

const (
	ReasonMalformed Reason = "malformed"
	ReasonHorizon   Reason = "horizon"
	ReasonKind      Reason = "kind"
	ReasonTimeframe Reason = "timeframe"
)

var _ models.RecoverableError = (*DroppedRule)(nil)

// DroppedRule is returned for every variable name that failed validation.
type DroppedRule struct {
	Name   string
	Reason Reason
}

func (e *DroppedRule) Error() string {
	switch e.Reason {
	case ReasonHorizon:
		return fmt.Sprintf("invalid date range in monitored variable: %s", e.Name)
	case ReasonKind:
		return fmt.Sprintf("invalid attribute type in monitored variable: %s", e.Name)
	case ReasonTimeframe:
		return fmt.Sprintf("invalid timeframe in monitored variable: %s", e.Name)
	default:
		return fmt.Sprintf("monitored variable must be <type>_<timeframe>_<range>: %s", e.Name)
	}
}

func (e *DroppedRule) ErrorCode() string {
	return "INVALID_RULE_" + strings.ToUpper(string(e.Reason))
}

func (e *DroppedRule) Context() map[string]string {
	return map[string]string{"rule": e.Name, "reason": string(e.Reason)}
}

func (e *DroppedRule) SuggestedAction() string {
	return "rename the variable to counter|list _ past|future _ <N>day|all"
}

// Set is an insertion-ordered collection of rules keyed by name.
type Set struct {
	order []string
	rules map[string]Rule
	state string
}

// Parse validates raw variable names and returns the accepted rules along with
// one DroppedRule per rejected name. Each drop is also logged to logger.
func Parse(names []string, logger *slog.Logger) (*Set, []*DroppedRule) {
	if logger == nil {
		logger = slog.Default()
	}
	set := &Set{rules: make(map[string]Rule, len(names))}
	var dropped []*DroppedRule

	for _, raw := range names {
		rule, err := parseOne(raw)
		if err != nil {
			logger.Error("monitored variable dropped", "rule", err.Name, "reason", string(err.Reason))
			dropped = append(dropped, err)
			continue
		}
		set.add(rule)
	}
	return set, dropped
}

func parseOne(raw string) (Rule, *DroppedRule) {
	name := strings.ToLower(raw)
	parts := strings.Split(name, "_")
	if len(parts) != 3 {
		return Rule{}, &DroppedRule{Name: name, Reason: ReasonMalformed}
	}

	horizon, ok := parseHorizon(name)
	if !ok {
		return Rule{}, &DroppedRule{Name: name, Reason: ReasonHorizon}
	}
	kind := Kind(parts[0])
	if !validKinds[kind] {
		return Rule{}, &DroppedRule{Name: name, Reason: ReasonKind}
	}
	timeframe := Timeframe(parts[1])
	if !validTimeframes[timeframe] {
		return Rule{}, &DroppedRule{Name: name, Reason: ReasonTimeframe}
	}

	return Rule{Name: name, Kind: kind, Timeframe: timeframe, Horizon: horizon}, nil
}

// parseHorizon checks for "all" anywhere in the name before looking for _<N>day.
func parseHorizon(name string) (Horizon, bool) {
	if strings.Contains(name, All) {
		return Unbounded(), true
	}
	m := daysPattern.FindStringSubmatch(name)
	if m == nil {
		return Horizon{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n > MaxHorizonDays {
		return Horizon{}, false
	}
	return Days(n), true
}

func (s *Set) add(r Rule) {
	if _, exists := s.rules[r.Name]; !exists {
		s.order = append(s.order, r.Name)
	}
	s.rules[r.Name] = r
	if s.state == "" {
		s.state = r.Name
	}
}

// Rules returns the accepted rules in insertion order.
func (s *Set) Rules() []Rule {
	out := make([]Rule, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.rules[name])
	}
	return out
}

// Get looks up a rule by its lower-cased name.
func (s *Set) Get(name string) (Rule, bool) {
	r, ok := s.rules[name]
	return r, ok
}

// Len returns the number of accepted rules.
func (s *Set) Len() int { return len(s.order) }

// StateRule returns the name of the first accepted rule, or "" when none parsed.
func (s *Set) StateRule() string { return s.state }
