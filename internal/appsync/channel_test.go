package appsync

import (
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/chrpow/Wearcast-Pebble/internal/weather"
)

type fakeTransport struct {
	sent [][]byte
	err  error
}

func (f *fakeTransport) Send(msg []byte) (SendID, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.sent = append(f.sent, msg)
	return SendID(len(f.sent)), nil
}

func newTestChannel(tr Transport) (*Channel, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewChannel(tr, zap.New(core), 0), logs
}

// TestChannel_SendRefreshRequest_BusyWhileOutstanding verifies only one request holds the slot.
func TestChannel_SendRefreshRequest_BusyWhileOutstanding(t *testing.T) {
	tr := &fakeTransport{}
	ch, _ := newTestChannel(tr)

	if err := ch.SendRefreshRequest(); err != nil {
		t.Fatalf("first SendRefreshRequest error = %v", err)
	}
	id := ch.RequestID()
	if id == "" {
		t.Fatal("RequestID() empty after send")
	}
	if err := ch.SendRefreshRequest(); !errors.Is(err, ErrChannelBusy) {
		t.Fatalf("second SendRefreshRequest error = %v, want ErrChannelBusy", err)
	}
	if len(tr.sent) != 1 {
		t.Errorf("transport got %d messages, want 1", len(tr.sent))
	}
	if ch.RequestID() != id {
		t.Error("busy request replaced the outstanding request id")
	}

	// Delivery alone does not free the slot.
	ch.OnSendSuccess()
	if err := ch.SendRefreshRequest(); !errors.Is(err, ErrChannelBusy) {
		t.Fatalf("SendRefreshRequest after delivery error = %v, want ErrChannelBusy", err)
	}
}

func TestChannel_SlotFreedByReplyFailureOrRelease(t *testing.T) {
	reply := mustEncode(t, UintTuple(KeyCondition, 1))
	tests := []struct {
		name string
		free func(t *testing.T, ch *Channel)
	}{
		{"reply", func(t *testing.T, ch *Channel) {
			if _, err := ch.OnInbound(reply); err != nil {
				t.Fatalf("OnInbound error = %v", err)
			}
		}},
		{"send failure", func(t *testing.T, ch *Channel) { ch.OnSendFailure(errors.New("link lost")) }},
		{"release", func(t *testing.T, ch *Channel) { ch.Release() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{}
			ch, _ := newTestChannel(tr)
			if err := ch.SendRefreshRequest(); err != nil {
				t.Fatalf("SendRefreshRequest error = %v", err)
			}
			tt.free(t, ch)
			if ch.Outstanding() {
				t.Fatal("Outstanding() = true after slot freed")
			}
			if err := ch.SendRefreshRequest(); err != nil {
				t.Errorf("SendRefreshRequest after free error = %v", err)
			}
			if len(tr.sent) != 2 {
				t.Errorf("transport got %d messages, want 2", len(tr.sent))
			}
		})
	}
}

func TestChannel_SendRefreshRequest_TransportError(t *testing.T) {
	tr := &fakeTransport{err: errors.New("outbox closed")}
	ch, logs := newTestChannel(tr)
	err := ch.SendRefreshRequest()
	if !errors.Is(err, ErrSendFailure) {
		t.Fatalf("SendRefreshRequest error = %v, want ErrSendFailure", err)
	}
	if ch.Outstanding() {
		t.Error("Outstanding() = true after hand-off failure")
	}
	if logs.FilterMessage("refresh request not handed to transport").Len() != 1 {
		t.Error("expected a warning for the failed hand-off")
	}
}

// TestChannel_OnInbound_MalformedKeepsSlot verifies a bad message is discarded and logged.
func TestChannel_OnInbound_MalformedKeepsSlot(t *testing.T) {
	ch, logs := newTestChannel(&fakeTransport{})
	if err := ch.SendRefreshRequest(); err != nil {
		t.Fatalf("SendRefreshRequest error = %v", err)
	}
	u, err := ch.OnInbound([]byte{1, 0})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("OnInbound error = %v, want ErrMalformed", err)
	}
	if !u.Empty() {
		t.Errorf("OnInbound returned fields %+v on error", u)
	}
	if !ch.Outstanding() {
		t.Error("malformed message freed the outstanding request")
	}

	_, err = ch.OnInbound(mustEncode(t, UintTuple(4, 1)))
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("OnInbound error = %v, want ErrUnknownKey", err)
	}
	entries := logs.FilterMessage("inbound message discarded").AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("got %d discard logs, want 2", len(entries))
	}
	if got := entries[1].ContextMap()["reason"]; got != "unknown_key" {
		t.Errorf("reason = %v, want unknown_key", got)
	}
}

func TestChannel_OnInboundJSON(t *testing.T) {
	ch, _ := newTestChannel(&fakeTransport{})
	u, err := ch.OnInboundJSON([]byte(`{"0":3,"1":"20"}`))
	if err != nil {
		t.Fatalf("OnInboundJSON error = %v", err)
	}
	if *u.Condition != weather.Snow || *u.Temperature != 20 {
		t.Errorf("update = %+v", u)
	}
}

func TestChannel_OnSendSuccess_NoOutstanding(t *testing.T) {
	ch, _ := newTestChannel(&fakeTransport{})
	ch.OnSendSuccess()
	if ch.Outstanding() {
		t.Error("OnSendSuccess without request set Outstanding")
	}
}

func TestChannel_RequestIDCarriesSendTime(t *testing.T) {
	sentAt := time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)
	ch, _ := newTestChannel(&fakeTransport{})
	ch.now = func() time.Time { return sentAt }

	if err := ch.SendRefreshRequest(); err != nil {
		t.Fatalf("SendRefreshRequest error = %v", err)
	}
	id, err := ulid.Parse(ch.RequestID())
	if err != nil {
		t.Fatalf("RequestID %q is not a ULID: %v", ch.RequestID(), err)
	}
	if got := ulid.Time(id.Time()); !got.Equal(sentAt) {
		t.Errorf("request ID time = %v, want %v", got, sentAt)
	}

	ch.Release()
	if ch.RequestID() != "" {
		t.Errorf("RequestID after release = %q, want empty", ch.RequestID())
	}
}

func TestChannel_SendIDTracksOutstandingRequest(t *testing.T) {
	ch, _ := newTestChannel(&fakeTransport{})
	if ch.SendID() != 0 {
		t.Fatalf("idle SendID = %d, want 0", ch.SendID())
	}
	if err := ch.SendRefreshRequest(); err != nil {
		t.Fatalf("SendRefreshRequest error = %v", err)
	}
	if ch.SendID() != 1 {
		t.Errorf("SendID = %d, want 1", ch.SendID())
	}
	ch.Release()
	if err := ch.SendRefreshRequest(); err != nil {
		t.Fatalf("second SendRefreshRequest error = %v", err)
	}
	if ch.SendID() != 2 {
		t.Errorf("SendID = %d, want 2", ch.SendID())
	}
	ch.OnSendFailure(errors.New("expired"))
	if ch.SendID() != 0 {
		t.Errorf("SendID after failure = %d, want 0", ch.SendID())
	}
}
