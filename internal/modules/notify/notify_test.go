package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/segmentio/kafka-go"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/ride"
)

var sample = ride.Event{
	Type:       ride.EventRideCancelled,
	RideID:     "r1",
	DriverID:   "d1",
	Status:     ride.StatusCancelledByDriver,
	Recipients: []string{"d1@example.com", "p.one@example.com"},
	Payload:    map[string]string{"reason": "flat tyre"},
	At:         time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
}

type countingSink struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingSink) Emit(context.Context, ride.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func TestMultiTriesEverySink(t *testing.T) {
	failing := &countingSink{err: errors.New("down")}
	ok := &countingSink{}
	m := NewMulti().Add("kafka", failing).Add("log", ok)

	err := m.Emit(context.Background(), sample)
	if err == nil || !errors.Is(err, failing.err) {
		t.Fatalf("err = %v, want wrapped sink error", err)
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", failing.calls, ok.calls)
	}
	if err := NewMulti().Add("log", NewLogEmitter(logging.Discard())).Emit(context.Background(), sample); err != nil {
		t.Fatalf("log sink: %v", err)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaEmitterKeysByRide(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaEmitter{writer: w, timeout: time.Second}
	if err := k.Emit(context.Background(), sample); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "r1" {
		t.Fatalf("messages = %+v", w.msgs)
	}
	var got ride.Event
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != ride.EventRideCancelled || got.Payload["reason"] != "flat tyre" {
		t.Fatalf("decoded = %+v", got)
	}
}

func TestRoutingKey(t *testing.T) {
	if got := RoutingKey(sample); got != "ride.ride_cancelled" {
		t.Fatalf("routing key = %q", got)
	}
}

type mapTokens map[string]string

func (m mapTokens) DeviceToken(_ context.Context, email string) (string, error) {
	return m[EmailKey(email)], nil
}

type fakeMessenger struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeMessenger) Send(_ context.Context, msg *messaging.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "msg-1", nil
}

func TestPushEmitterSendsToRegisteredDevices(t *testing.T) {
	m := &fakeMessenger{}
	tokens := mapTokens{"p,one@example,com": "tok-p"}
	p := NewPushEmitter(tokens, m, logging.Discard())

	if err := p.Emit(context.Background(), sample); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(m.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(m.sent))
	}
	msg := m.sent[0]
	if msg.Token != "tok-p" || msg.Data["ride_id"] != "r1" || msg.Data["reason"] != "flat tyre" {
		t.Fatalf("message = %+v", msg)
	}
	if msg.Notification.Title != "Ride cancelled" {
		t.Fatalf("title = %q", msg.Notification.Title)
	}
}

func TestPushEmitterReportsSendFailure(t *testing.T) {
	m := &fakeMessenger{err: errors.New("fcm down")}
	p := NewPushEmitter(mapTokens{"d1@example,com": "tok-d"}, m, logging.Discard())
	if err := p.Emit(context.Background(), sample); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmailKey(t *testing.T) {
	if got := EmailKey(" Jane.Doe@Example.com "); got != "jane,doe@example,com" {
		t.Fatalf("EmailKey = %q", got)
	}
}
