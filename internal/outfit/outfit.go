package outfit

import (
	"fmt"

	"github.com/chrpow/Wearcast-Pebble/internal/weather"
)

// Head items, in wardrobe order.
const (
	HeadEyes Head = iota
	HeadHat
	headCount
)

// Head indexes the head wardrobe.
type Head int

func (h Head) String() string {
	switch h {
	case HeadEyes:
		return "eyes"
	case HeadHat:
		return "hat"
	default:
		return "unknown"
	}
}

// Chest items, in wardrobe order.
const (
	ChestCoat Chest = iota
	ChestRainJacket
	ChestSweater
	ChestLongSleeve
	ChestShortSleeve
	chestCount
)

// Chest indexes the chest wardrobe.
type Chest int

func (c Chest) String() string {
	switch c {
	case ChestCoat:
		return "coat"
	case ChestRainJacket:
		return "rain_jacket"
	case ChestSweater:
		return "sweater"
	case ChestLongSleeve:
		return "long_sleeve"
	case ChestShortSleeve:
		return "short_sleeve"
	default:
		return "unknown"
	}
}

// Legs items, in wardrobe order.
const (
	LegsPantsBoots Legs = iota
	LegsPantsShoes
	LegsShortsShoes
	legsCount
)

// Legs indexes the legs wardrobe.
type Legs int

func (l Legs) String() string {
	switch l {
	case LegsPantsBoots:
		return "pants_boots"
	case LegsPantsShoes:
		return "pants_shoes"
	case LegsShortsShoes:
		return "shorts_shoes"
	default:
		return "unknown"
	}
}

// Selection is the outfit derived from one weather state.
type Selection struct {
	Head     Head
	Chest    Chest
	Legs     Legs
	Umbrella bool
}

// Default is shown while weather is pending.
var Default = Selection{Head: HeadEyes, Chest: ChestCoat, Legs: LegsPantsBoots}

// Valid reports whether every index lies inside its wardrobe table.
func (s Selection) Valid() bool {
	return s.Head >= 0 && s.Head < headCount &&
		s.Chest >= 0 && s.Chest < chestCount &&
		s.Legs >= 0 && s.Legs < legsCount
}

func (s Selection) String() string {
	return fmt.Sprintf("%s/%s/%s umbrella=%t", s.Head, s.Chest, s.Legs, s.Umbrella)
}

// Threshold is a Fahrenheit cut-off. Inclusive thresholds match t <= Fahrenheit,
// exclusive ones t < Fahrenheit.
type Threshold struct {
	Fahrenheit int  `yaml:"fahrenheit"`
	Inclusive  bool `yaml:"inclusive"`
}

// Matches reports whether t falls at or under the threshold.
func (th Threshold) Matches(t int) bool {
	if th.Inclusive {
		return t <= th.Fahrenheit
	}
	return t < th.Fahrenheit
}

// Policy holds the temperature cut-offs used by Resolve.
type Policy struct {
	Hat        Threshold `yaml:"hat"`
	Coat       Threshold `yaml:"coat"`
	Sweater    Threshold `yaml:"sweater"`
	LongSleeve Threshold `yaml:"long_sleeve"`
	Pants      Threshold `yaml:"pants"`
}

// DefaultPolicy: hat under 42F, coat at or under 42F, sweater 50F, long sleeve 60F, pants 60F.
var DefaultPolicy = Policy{
	Hat:        Threshold{Fahrenheit: 42},
	Coat:       Threshold{Fahrenheit: 42, Inclusive: true},
	Sweater:    Threshold{Fahrenheit: 50, Inclusive: true},
	LongSleeve: Threshold{Fahrenheit: 60, Inclusive: true},
	Pants:      Threshold{Fahrenheit: 60, Inclusive: true},
}

// Validate rejects policies whose chest thresholds are not ordered coldest first,
// which would make later chest branches unreachable.
func (p Policy) Validate() error {
	if p.Coat.Fahrenheit > p.Sweater.Fahrenheit {
		return fmt.Errorf("outfit policy: coat threshold %d above sweater %d", p.Coat.Fahrenheit, p.Sweater.Fahrenheit)
	}
	if p.Sweater.Fahrenheit > p.LongSleeve.Fahrenheit {
		return fmt.Errorf("outfit policy: sweater threshold %d above long sleeve %d", p.Sweater.Fahrenheit, p.LongSleeve.Fahrenheit)
	}
	return nil
}

// Resolve maps s to an outfit using DefaultPolicy.
func Resolve(s weather.State) Selection {
	return DefaultPolicy.Resolve(s)
}

// Resolve maps s to an outfit. Pending states get Default.
func (p Policy) Resolve(s weather.State) Selection {
	if s.Pending() {
		return Default
	}
	t := s.Temperature.Fahrenheit
	return Selection{
		Head:     p.head(s.Condition, t),
		Chest:    p.chest(s.Condition, t),
		Legs:     p.legs(s.Condition, t),
		Umbrella: s.Condition == weather.Rain,
	}
}

func (p Policy) head(c weather.Condition, t int) Head {
	if p.Hat.Matches(t) || c.Precipitating() {
		return HeadHat
	}
	return HeadEyes
}

func (p Policy) chest(c weather.Condition, t int) Chest {
	switch {
	case c == weather.Snow || p.Coat.Matches(t):
		return ChestCoat
	case c == weather.Rain:
		return ChestRainJacket
	case p.Sweater.Matches(t):
		return ChestSweater
	case p.LongSleeve.Matches(t):
		return ChestLongSleeve
	default:
		return ChestShortSleeve
	}
}

func (p Policy) legs(c weather.Condition, t int) Legs {
	switch {
	case c.Precipitating():
		return LegsPantsBoots
	case p.Pants.Matches(t):
		return LegsPantsShoes
	default:
		return LegsShortsShoes
	}
}
