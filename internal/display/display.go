// Package display formats weather and time the way the watchface shows them.
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/chrpow/Wearcast-Pebble/internal/weather"
)

// Brand is the label drawn under the outfit.
const Brand = "WEARCAST"

// Clock layouts for 24h and 12h styles.
const (
	Layout24h = "15:04"
	Layout12h = "03:04"
)

// Icon indexes the weather icon table.
type Icon int

// IconNone is used while the condition is pending.
const (
	IconNone Icon = iota - 1
	IconSunny
	IconCloudy
	IconRain
	IconSnow
)

func (i Icon) String() string {
	switch i {
	case IconSunny:
		return "sunny"
	case IconCloudy:
		return "cloudy"
	case IconRain:
		return "rain"
	case IconSnow:
		return "snow"
	default:
		return "none"
	}
}

// WeatherIcon maps a condition to its icon.
func WeatherIcon(c weather.Condition) Icon {
	if !c.Valid() {
		return IconNone
	}
	return Icon(c)
}

// TemperatureText renders the temperature line, e.g. "55F-RAIN".
// Unset parts render as "--" and "PENDING".
func TemperatureText(s weather.State) string {
	return fmt.Sprintf("%sF-%s", s.Temperature, s.Condition)
}

// CityText renders the city line in upper case.
func CityText(s weather.State) string {
	return strings.ToUpper(s.City)
}

// TimeText renders the clock for the given style.
func TimeText(t time.Time, clock24h bool) string {
	if clock24h {
		return t.Format(Layout24h)
	}
	return t.Format(Layout12h)
}
