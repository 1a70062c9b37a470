package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chrpow/Wearcast-Pebble/internal/config"
	"github.com/chrpow/Wearcast-Pebble/internal/display"
	"github.com/chrpow/Wearcast-Pebble/internal/outfit"
	"github.com/chrpow/Wearcast-Pebble/internal/weather"
)

type resolveResult struct {
	TemperatureText string `json:"temperature_text"`
	CityText        string `json:"city_text,omitempty"`
	WeatherIcon     string `json:"weather_icon"`
	Head            string `json:"head"`
	Chest           string `json:"chest"`
	Legs            string `json:"legs"`
	Umbrella        bool   `json:"umbrella"`
}

// newResolveCmd creates the "wearcast resolve" subcommand.
func newResolveCmd() *cobra.Command {
	var (
		condition  string
		temp       int
		city       string
		configPath string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the outfit for a given weather",
		Long:  "Resolves condition and temperature to an outfit with the default thresholds,\nor the thresholds of --config when given.",
		Example: "  wearcast resolve --condition rain --temp 55\n" +
			"  wearcast resolve --condition clear --temp 72 --config config/dev.yaml --json",
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := outfit.DefaultPolicy
			if configPath != "" {
				cfg, err := config.LoadFile(configPath)
				if err != nil {
					return err
				}
				policy = cfg.Outfit
			}
			c, err := weather.ParseConditionName(condition)
			if err != nil {
				return err
			}
			u := weather.Update{Condition: &c, Temperature: &temp}
			if city != "" {
				u.City = &city
			}
			state := weather.NewState()
			if _, err := state.Apply(u, time.Now()); err != nil {
				return err
			}

			sel := policy.Resolve(state)
			res := resolveResult{
				TemperatureText: display.TemperatureText(state),
				CityText:        display.CityText(state),
				WeatherIcon:     display.WeatherIcon(state.Condition).String(),
				Head:            sel.Head.String(),
				Chest:           sel.Chest.String(),
				Legs:            sel.Legs.String(),
				Umbrella:        sel.Umbrella,
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			if res.CityText != "" {
				fmt.Fprintf(out, "%s %s\n", res.TemperatureText, res.CityText)
			} else {
				fmt.Fprintln(out, res.TemperatureText)
			}
			fmt.Fprintf(out, "head:     %s\n", res.Head)
			fmt.Fprintf(out, "chest:    %s\n", res.Chest)
			fmt.Fprintf(out, "legs:     %s\n", res.Legs)
			fmt.Fprintf(out, "umbrella: %t\n", res.Umbrella)
			return nil
		},
	}
	cmd.Flags().StringVar(&condition, "condition", "", "weather condition: sunny, cloudy, rain or snow")
	cmd.Flags().IntVar(&temp, "temp", 0, "temperature in Fahrenheit")
	cmd.Flags().StringVar(&city, "city", "", "optional city name")
	cmd.Flags().StringVar(&configPath, "config", "", "config file to read outfit thresholds from")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("condition")
	_ = cmd.MarkFlagRequired("temp")
	return cmd
}
