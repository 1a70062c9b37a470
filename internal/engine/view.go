package engine

import (
	"time"

	"github.com/chrpow/Wearcast-Pebble/internal/display"
	"github.com/chrpow/Wearcast-Pebble/internal/outfit"
	"github.com/chrpow/Wearcast-Pebble/internal/weather"
)

// View is the immutable snapshot handed to the Presenter. A new View is
// published after every event; readers never see one being built.
type View struct {
	Outfit outfit.Selection `json:"-"`
	Icon   display.Icon     `json:"-"`

	Head        string `json:"head"`
	Chest       string `json:"chest"`
	Legs        string `json:"legs"`
	Umbrella    bool   `json:"umbrella"`
	WeatherIcon string `json:"weather_icon"`

	TemperatureText string `json:"temperature_text"`
	CityText        string `json:"city_text"`
	TimeText        string `json:"time_text"`
	Brand           string `json:"brand"`

	Condition   weather.Condition   `json:"-"`
	Temperature weather.Temperature `json:"-"`
	Pending     bool                `json:"pending"`
	Seq         uint64              `json:"seq"`
	UpdatedAt   time.Time           `json:"updated_at"`
	ReceivedAt  time.Time           `json:"received_at"`
	RenderedAt  time.Time           `json:"rendered_at"`
	Scheduler   string              `json:"scheduler_state"`
}

func newView(s weather.State, sel outfit.Selection, sched string, now time.Time, clock24h bool) *View {
	icon := display.WeatherIcon(s.Condition)
	return &View{
		Outfit:          sel,
		Icon:            icon,
		Head:            sel.Head.String(),
		Chest:           sel.Chest.String(),
		Legs:            sel.Legs.String(),
		Umbrella:        sel.Umbrella,
		WeatherIcon:     icon.String(),
		TemperatureText: display.TemperatureText(s),
		CityText:        display.CityText(s),
		TimeText:        display.TimeText(now, clock24h),
		Brand:           display.Brand,
		Condition:       s.Condition,
		Temperature:     s.Temperature,
		Pending:         s.Pending(),
		Seq:             s.Seq,
		UpdatedAt:       s.UpdatedAt,
		ReceivedAt:      s.ReceivedAt,
		RenderedAt:      now,
		Scheduler:       sched,
	}
}

// Age returns how long ago the companion last delivered weather, changed or
// not; ok is false before the first update.
func (v *View) Age(now time.Time) (age time.Duration, ok bool) {
	if v.ReceivedAt.IsZero() {
		return 0, false
	}
	return now.Sub(v.ReceivedAt), true
}
