package appsync

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/chrpow/Wearcast-Pebble/internal/observability"
	"github.com/chrpow/Wearcast-Pebble/internal/weather"
)

// SendID tags one accepted send so its completion can be matched to it.
// Zero means untagged.
type SendID uint64

// Transport hands encoded messages to the companion link. Send must not block
// and must not report completion synchronously; completion arrives later
// through Channel.OnSendSuccess or Channel.OnSendFailure, tagged with the
// SendID that Send returned.
type Transport interface {
	Send(msg []byte) (SendID, error)
}

// Channel is the watch side of the companion link. It holds at most one
// outstanding refresh request. Not safe for concurrent use; the engine loop owns it.
type Channel struct {
	transport  Transport
	logger     *zap.Logger
	cityMaxLen int
	now        func() time.Time
	entropy    *rand.Rand

	outstanding bool
	delivered   bool
	requestID   string
	sendID      SendID
	sentAt      time.Time
}

// NewChannel creates a Channel over transport. cityMaxLen bounds inbound city names
// (0 uses weather.MaxCityLength).
func NewChannel(transport Transport, logger *zap.Logger, cityMaxLen int) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cityMaxLen <= 0 || cityMaxLen > weather.MaxCityLength {
		cityMaxLen = weather.MaxCityLength
	}
	return &Channel{
		transport:  transport,
		logger:     logger,
		cityMaxLen: cityMaxLen,
		now:        time.Now,
		entropy:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SendRefreshRequest asks the companion for fresh weather. While a request is
// outstanding it returns ErrChannelBusy and the new request is dropped.
func (c *Channel) SendRefreshRequest() error {
	if c.outstanding {
		observability.RefreshRequestsTotal.WithLabelValues("busy").Inc()
		c.logger.Debug("refresh request dropped", zap.String("outstanding_request_id", c.requestID))
		return ErrChannelBusy
	}
	msg, err := EncodeRefreshRequest()
	if err != nil {
		observability.RefreshRequestsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: encode: %v", ErrSendFailure, err)
	}
	id, err := c.transport.Send(msg)
	if err != nil {
		observability.RefreshRequestsTotal.WithLabelValues("failed").Inc()
		c.logger.Warn("refresh request not handed to transport", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrSendFailure, err)
	}
	c.outstanding = true
	c.delivered = false
	c.sendID = id
	c.sentAt = c.now()
	c.requestID = c.newRequestID(c.sentAt)
	observability.RefreshRequestsTotal.WithLabelValues("sent").Inc()
	c.logger.Info("refresh request sent", zap.String("request_id", c.requestID))
	return nil
}

// OnInbound decodes one binary message. A decode failure discards the message
// and leaves the outstanding request untouched.
func (c *Channel) OnInbound(raw []byte) (weather.Update, error) {
	return c.inbound(DecodeUpdate(raw, c.cityMaxLen))
}

// OnInboundJSON decodes one JSON dictionary message.
func (c *Channel) OnInboundJSON(raw []byte) (weather.Update, error) {
	return c.inbound(DecodeJSONUpdate(raw, c.cityMaxLen))
}

func (c *Channel) inbound(u weather.Update, err error) (weather.Update, error) {
	if err != nil {
		label := "malformed"
		if errors.Is(err, ErrUnknownKey) {
			label = "unknown_key"
		}
		observability.InboundMessagesTotal.WithLabelValues(label).Inc()
		c.logger.Warn("inbound message discarded", zap.String("reason", label), zap.Error(err))
		return weather.Update{}, err
	}
	observability.InboundMessagesTotal.WithLabelValues("ok").Inc()
	if c.outstanding {
		c.logger.Debug("refresh request answered",
			zap.String("request_id", c.requestID),
			zap.Duration("latency", c.now().Sub(c.sentAt)))
	}
	c.clear()
	return u, nil
}

// OnSendSuccess records that the transport delivered the outstanding request.
// The slot stays held until a reply arrives or the request is released.
func (c *Channel) OnSendSuccess() {
	observability.SendResultsTotal.WithLabelValues("success").Inc()
	if !c.outstanding {
		return
	}
	c.delivered = true
	c.logger.Debug("refresh request delivered", zap.String("request_id", c.requestID))
}

// OnSendFailure records a failed delivery and frees the slot. It does not retry.
func (c *Channel) OnSendFailure(reason error) {
	observability.SendResultsTotal.WithLabelValues("failure").Inc()
	c.logger.Warn("refresh request failed", zap.String("request_id", c.requestID), zap.Error(reason))
	c.clear()
}

// Release frees the slot of a request that will not be answered.
func (c *Channel) Release() {
	if c.outstanding {
		c.logger.Debug("refresh request released", zap.String("request_id", c.requestID), zap.Bool("delivered", c.delivered))
	}
	c.clear()
}

// Outstanding reports whether a request holds the outbound slot.
func (c *Channel) Outstanding() bool { return c.outstanding }

// RequestID identifies the outstanding request in logs; empty when idle.
func (c *Channel) RequestID() string { return c.requestID }

// SendID is the transport tag of the outstanding request; zero when idle.
func (c *Channel) SendID() SendID { return c.sendID }

// newRequestID returns a ULID so request IDs sort by send time in logs.
func (c *Channel) newRequestID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), c.entropy).String()
}

func (c *Channel) clear() {
	c.outstanding = false
	c.delivered = false
	c.requestID = ""
	c.sendID = 0
	c.sentAt = time.Time{}
}
