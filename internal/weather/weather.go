package weather

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Condition is the weather category reported by the companion device.
type Condition int8

// Condition codes as sent on the wire (key 0). ConditionPending is never decoded
// from a message; it marks a state that has not received a condition yet.
const (
	ConditionPending Condition = -1
	Sunny            Condition = 0
	Cloudy           Condition = 1
	Rain             Condition = 2
	Snow             Condition = 3
)

func (c Condition) String() string {
	switch c {
	case Sunny:
		return "SUNNY"
	case Cloudy:
		return "CLOUDY"
	case Rain:
		return "RAIN"
	case Snow:
		return "SNOW"
	case ConditionPending:
		return "PENDING"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether c is one of the four wire condition codes.
func (c Condition) Valid() bool {
	return c >= Sunny && c <= Snow
}

// Precipitating is true for rain and snow.
func (c Condition) Precipitating() bool {
	return c == Rain || c == Snow
}

// ParseCondition maps a wire code (0-3) to a Condition.
func ParseCondition(code uint64) (Condition, error) {
	if code > uint64(Snow) {
		return ConditionPending, fmt.Errorf("%w: %d", ErrInvalidCondition, code)
	}
	return Condition(code), nil
}

// ParseConditionName maps a condition name to a Condition. Besides the display
// names it accepts the OpenWeatherMap "main" groups the companion may forward.
func ParseConditionName(name string) (Condition, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "SUNNY", "CLEAR":
		return Sunny, nil
	case "CLOUDY", "CLOUDS":
		return Cloudy, nil
	case "RAIN", "DRIZZLE", "THUNDERSTORM":
		return Rain, nil
	case "SNOW":
		return Snow, nil
	}
	return ConditionPending, fmt.Errorf("%w: %q", ErrInvalidCondition, name)
}

// Temperature bounds accepted from the companion, in Fahrenheit.
const (
	MinFahrenheit = -40
	MaxFahrenheit = 140
)

// MaxCityLength bounds the city name in bytes.
const MaxCityLength = 32

var (
	ErrInvalidCondition = errors.New("invalid condition code")
	ErrTemperatureRange = errors.New("temperature out of range")
	ErrCityTooLong      = errors.New("city name too long")
)

// Temperature is a Fahrenheit reading that may be unset.
type Temperature struct {
	Fahrenheit int
	Set        bool
}

// Fahrenheit returns a set temperature.
func Fahrenheit(f int) Temperature {
	return Temperature{Fahrenheit: f, Set: true}
}

func (t Temperature) String() string {
	if !t.Set {
		return "--"
	}
	return fmt.Sprintf("%d", t.Fahrenheit)
}

// Update is a partial set of fields decoded from one inbound message.
// Nil fields are absent and leave the stored value untouched.
type Update struct {
	Condition   *Condition
	Temperature *int
	City        *string
}

// Empty reports whether the update carries no fields.
func (u Update) Empty() bool {
	return u.Condition == nil && u.Temperature == nil && u.City == nil
}

// Validate checks every present field against the state invariants.
func (u Update) Validate() error {
	if u.Condition != nil && !u.Condition.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidCondition, *u.Condition)
	}
	if u.Temperature != nil && (*u.Temperature < MinFahrenheit || *u.Temperature > MaxFahrenheit) {
		return fmt.Errorf("%w: %d", ErrTemperatureRange, *u.Temperature)
	}
	if u.City != nil && len(*u.City) > MaxCityLength {
		return fmt.Errorf("%w: %d bytes", ErrCityTooLong, len(*u.City))
	}
	return nil
}

// Change enumerates which fields an Apply modified.
type Change uint8

const (
	ChangedCondition Change = 1 << iota
	ChangedTemperature
	ChangedCity
)

// Any reports whether at least one field changed.
func (c Change) Any() bool { return c != 0 }

// Has reports whether all fields in f changed.
func (c Change) Has(f Change) bool { return c&f == f }

func (c Change) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	if c.Has(ChangedCondition) {
		parts = append(parts, "condition")
	}
	if c.Has(ChangedTemperature) {
		parts = append(parts, "temperature")
	}
	if c.Has(ChangedCity) {
		parts = append(parts, "city")
	}
	return strings.Join(parts, ",")
}

// State is the authoritative weather known to the watch.
type State struct {
	Condition   Condition
	Temperature Temperature
	City        string
	Seq         uint64
	UpdatedAt   time.Time
	// ReceivedAt is when the companion last delivered a non-empty update,
	// whether or not it changed anything.
	ReceivedAt time.Time
}

// NewState returns the placeholder state used at startup.
func NewState() State {
	return State{Condition: ConditionPending}
}

// Pending reports whether the state lacks a condition or a temperature.
func (s State) Pending() bool {
	return !s.Condition.Valid() || !s.Temperature.Set
}

// Apply merges u into s. An invalid update is rejected as a whole and leaves s untouched.
// Seq and UpdatedAt advance only when a field actually changed; ReceivedAt
// advances for every non-empty update.
func (s *State) Apply(u Update, now time.Time) (Change, error) {
	if err := u.Validate(); err != nil {
		return 0, err
	}
	if u.Empty() {
		return 0, nil
	}
	s.ReceivedAt = now
	var change Change
	if u.Condition != nil && *u.Condition != s.Condition {
		s.Condition = *u.Condition
		change |= ChangedCondition
	}
	if u.Temperature != nil {
		t := Fahrenheit(*u.Temperature)
		if t != s.Temperature {
			s.Temperature = t
			change |= ChangedTemperature
		}
	}
	if u.City != nil && *u.City != s.City {
		s.City = *u.City
		change |= ChangedCity
	}
	if change.Any() {
		s.Seq++
		s.UpdatedAt = now
	}
	return change, nil
}
