package appsync

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chrpow/Wearcast-Pebble/internal/validation"
	"github.com/chrpow/Wearcast-Pebble/internal/weather"
)

// Inbound keys.
const (
	KeyCondition   uint32 = 0
	KeyTemperature uint32 = 1
	KeyCity        uint32 = 2
)

// KeyRefresh is the outbound trigger tuple; its value is ignored by the companion.
const KeyRefresh uint32 = 1

// MaxJSONMessageSize bounds the companion's JSON dictionary form.
const MaxJSONMessageSize = 256

var (
	ErrChannelBusy = errors.New("channel busy: refresh request already outstanding")
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownKey  = errors.New("unknown key")
	ErrSendFailure = errors.New("send failure")
)

// DecodeError reports a rejected inbound message. Err is ErrMalformed or ErrUnknownKey.
type DecodeError struct {
	Key    uint32
	HasKey bool
	Err    error
}

func (e *DecodeError) Error() string {
	if e.HasKey {
		return fmt.Sprintf("decode key %d: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func malformed(err error) error {
	return &DecodeError{Err: err}
}

func keyError(key uint32, err error) error {
	return &DecodeError{Key: key, HasKey: true, Err: err}
}

// field is one decoded value before it is typed by key.
type field struct {
	key  uint32
	num  *int64
	text *string
}

// DecodeUpdate turns a binary dictionary into a typed weather update.
func DecodeUpdate(raw []byte, cityMaxLen int) (weather.Update, error) {
	tuples, err := DecodeDict(raw)
	if err != nil {
		return weather.Update{}, malformed(err)
	}
	fields := make([]field, 0, len(tuples))
	for _, t := range tuples {
		f := field{key: t.Key}
		switch t.Type {
		case TypeUint:
			v, err := t.Uint()
			if err != nil {
				return weather.Update{}, keyError(t.Key, err)
			}
			n := int64(v)
			f.num = &n
		case TypeInt:
			n, err := t.Int()
			if err != nil {
				return weather.Update{}, keyError(t.Key, err)
			}
			f.num = &n
		case TypeCString:
			s, err := t.CString()
			if err != nil {
				return weather.Update{}, keyError(t.Key, err)
			}
			f.text = &s
		default:
			if !knownKey(t.Key) {
				return weather.Update{}, keyError(t.Key, ErrUnknownKey)
			}
			return weather.Update{}, keyError(t.Key, fmt.Errorf("%w: byte array value", ErrMalformed))
		}
		fields = append(fields, f)
	}
	return buildUpdate(fields, cityMaxLen)
}

// DecodeJSONUpdate decodes the companion's JSON dictionary, e.g. {"0":2,"1":"55","2":"Oslo"}.
// Values may be JSON numbers or strings.
func DecodeJSONUpdate(raw []byte, cityMaxLen int) (weather.Update, error) {
	if len(raw) > MaxJSONMessageSize {
		return weather.Update{}, malformed(fmt.Errorf("%w: %d bytes exceeds %d", ErrMalformed, len(raw), MaxJSONMessageSize))
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return weather.Update{}, malformed(fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	fields := make([]field, 0, len(m))
	for k, v := range m {
		key, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			return weather.Update{}, malformed(fmt.Errorf("%w: %q", ErrUnknownKey, k))
		}
		f := field{key: uint32(key)}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			if !knownKey(f.key) {
				return weather.Update{}, keyError(f.key, ErrUnknownKey)
			}
			return weather.Update{}, keyError(f.key, fmt.Errorf("%w: null value", ErrMalformed))
		}
		var s string
		var n json.Number
		switch {
		case json.Unmarshal(v, &s) == nil:
			f.text = &s
		case json.Unmarshal(v, &n) == nil:
			i, err := n.Int64()
			if err != nil {
				return weather.Update{}, keyError(f.key, fmt.Errorf("%w: non-integer %s", ErrMalformed, n))
			}
			f.num = &i
		default:
			if !knownKey(f.key) {
				return weather.Update{}, keyError(f.key, ErrUnknownKey)
			}
			return weather.Update{}, keyError(f.key, fmt.Errorf("%w: unsupported value %s", ErrMalformed, v))
		}
		fields = append(fields, f)
	}
	return buildUpdate(fields, cityMaxLen)
}

func knownKey(k uint32) bool {
	return k == KeyCondition || k == KeyTemperature || k == KeyCity
}

// buildUpdate types each field by key. Unknown keys and duplicates reject the
// whole message so nothing is half-applied.
func buildUpdate(fields []field, cityMaxLen int) (weather.Update, error) {
	var u weather.Update
	for _, f := range fields {
		switch f.key {
		case KeyCondition:
			if u.Condition != nil {
				return weather.Update{}, keyError(f.key, fmt.Errorf("%w: duplicate key", ErrMalformed))
			}
			c, err := conditionOf(f)
			if err != nil {
				return weather.Update{}, keyError(f.key, err)
			}
			u.Condition = &c
		case KeyTemperature:
			if u.Temperature != nil {
				return weather.Update{}, keyError(f.key, fmt.Errorf("%w: duplicate key", ErrMalformed))
			}
			t, err := temperatureOf(f)
			if err != nil {
				return weather.Update{}, keyError(f.key, err)
			}
			u.Temperature = &t
		case KeyCity:
			if u.City != nil {
				return weather.Update{}, keyError(f.key, fmt.Errorf("%w: duplicate key", ErrMalformed))
			}
			if f.text == nil {
				return weather.Update{}, keyError(f.key, fmt.Errorf("%w: city must be text", ErrMalformed))
			}
			c, err := validation.ValidateCity(*f.text, cityMaxLen)
			if err != nil {
				return weather.Update{}, keyError(f.key, fmt.Errorf("%w: %v", ErrMalformed, err))
			}
			u.City = &c
		default:
			return weather.Update{}, keyError(f.key, ErrUnknownKey)
		}
	}
	if err := u.Validate(); err != nil {
		return weather.Update{}, malformed(fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	return u, nil
}

// conditionOf accepts the numeric code or, from the JSON form, the upper-case name.
func conditionOf(f field) (weather.Condition, error) {
	var (
		c   weather.Condition
		err error
	)
	switch {
	case f.num != nil && *f.num >= 0:
		c, err = weather.ParseCondition(uint64(*f.num))
	case f.text != nil:
		c, err = weather.ParseConditionName(*f.text)
	default:
		return weather.ConditionPending, fmt.Errorf("%w: condition must be an unsigned integer", ErrMalformed)
	}
	if err != nil {
		return weather.ConditionPending, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return c, nil
}

// temperatureOf normalises integer and text temperatures ("55", "-3", "55F") to Fahrenheit.
func temperatureOf(f field) (int, error) {
	var v int64
	switch {
	case f.num != nil:
		v = *f.num
	case f.text != nil:
		s := strings.TrimSpace(*f.text)
		s = strings.TrimSuffix(strings.TrimSuffix(s, "F"), "°")
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: temperature %q", ErrMalformed, *f.text)
		}
		v = n
	default:
		return 0, fmt.Errorf("%w: temperature missing value", ErrMalformed)
	}
	if v < weather.MinFahrenheit || v > weather.MaxFahrenheit {
		return 0, fmt.Errorf("%w: temperature %d out of range", ErrMalformed, v)
	}
	return int(v), nil
}

// EncodeRefreshRequest builds the outbound trigger message.
func EncodeRefreshRequest() ([]byte, error) {
	return EncodeDict([]Tuple{IntTuple(KeyRefresh, 1)})
}
