package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chrpow/Wearcast-Pebble/internal/appsync"
	"github.com/chrpow/Wearcast-Pebble/internal/weather"
)

// newDecodeCmd creates the "wearcast decode" subcommand.
func newDecodeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "decode <message>",
		Short: "Decode a companion message",
		Long:  "Decodes a hex-encoded tuple dictionary, or with --json the JSON dictionary form,\nand prints the weather update it carries. Rejected messages exit non-zero.",
		Example: "  wearcast decode 02000000000201000201000000010300353500\n" +
			"  wearcast decode --json '{\"0\":2,\"1\":\"55\"}'",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			input := strings.Join(args, "")
			var (
				u   weather.Update
				err error
			)
			if asJSON {
				u, err = appsync.DecodeJSONUpdate([]byte(strings.Join(args, " ")), weather.MaxCityLength)
			} else {
				raw, hexErr := hex.DecodeString(input)
				if hexErr != nil {
					return fmt.Errorf("message is not hex: %w", hexErr)
				}
				tuples, dictErr := appsync.DecodeDict(raw)
				if dictErr != nil {
					return dictErr
				}
				for _, t := range tuples {
					fmt.Fprintf(out, "tuple key=%d type=%s len=%d value=%s\n", t.Key, t.Type, len(t.Value), hex.EncodeToString(t.Value))
				}
				u, err = appsync.DecodeUpdate(raw, weather.MaxCityLength)
			}
			if err != nil {
				return err
			}
			printUpdate(cmd, u)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "message is the JSON dictionary form")
	return cmd
}

// newEncodeCmd creates the "wearcast encode" subcommand.
func newEncodeCmd() *cobra.Command {
	var (
		condition string
		temp      string
		city      string
		refresh   bool
	)
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a companion message as hex",
		Long:  "Builds the tuple dictionary the companion sends, for posting to\n/companion/inbound with curl. --refresh builds the watch's refresh request instead.",
		Example: "  wearcast encode --condition rain --temp 55 --city Oslo | xxd -r -p | \\\n" +
			"    curl -X POST --data-binary @- -H 'Content-Type: application/octet-stream' localhost:8080/companion/inbound",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				msg []byte
				err error
			)
			if refresh {
				msg, err = appsync.EncodeRefreshRequest()
			} else {
				var tuples []appsync.Tuple
				if condition != "" {
					c, err := weather.ParseConditionName(condition)
					if err != nil {
						return err
					}
					tuples = append(tuples, appsync.UintTuple(appsync.KeyCondition, uint8(c)))
				}
				if temp != "" {
					if _, err := strconv.Atoi(temp); err != nil {
						return fmt.Errorf("temp must be an integer: %q", temp)
					}
					tuples = append(tuples, appsync.CStringTuple(appsync.KeyTemperature, temp))
				}
				if city != "" {
					tuples = append(tuples, appsync.CStringTuple(appsync.KeyCity, city))
				}
				if len(tuples) == 0 {
					return fmt.Errorf("nothing to encode: set --condition, --temp, --city or --refresh")
				}
				msg, err = appsync.EncodeDict(tuples)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(msg))
			return nil
		},
	}
	cmd.Flags().StringVar(&condition, "condition", "", "weather condition: sunny, cloudy, rain or snow")
	cmd.Flags().StringVar(&temp, "temp", "", "temperature in Fahrenheit")
	cmd.Flags().StringVar(&city, "city", "", "city name")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "encode the outbound refresh request")
	return cmd
}

func printUpdate(cmd *cobra.Command, u weather.Update) {
	out := cmd.OutOrStdout()
	if u.Empty() {
		fmt.Fprintln(out, "update: empty")
		return
	}
	if u.Condition != nil {
		fmt.Fprintf(out, "condition:   %s\n", *u.Condition)
	}
	if u.Temperature != nil {
		fmt.Fprintf(out, "temperature: %dF\n", *u.Temperature)
	}
	if u.City != nil {
		fmt.Fprintf(out, "city:        %s\n", *u.City)
	}
}
