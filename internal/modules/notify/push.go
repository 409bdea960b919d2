// README: FCM push sink; device tokens are read from Firebase RTDB by email.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/db"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"

	"ridedispatch/internal/modules/ride"
)

// TokenStore resolves a participant's device token; "" means none.
type TokenStore interface {
	DeviceToken(ctx context.Context, email string) (string, error)
}

type Messenger interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// RTDBTokens reads /device_tokens/{email key}.
type RTDBTokens struct {
	client *db.Client
}

func NewRTDBTokens(client *db.Client) *RTDBTokens {
	return &RTDBTokens{client: client}
}

func (t *RTDBTokens) DeviceToken(ctx context.Context, email string) (string, error) {
	var token string
	if err := t.client.NewRef("device_tokens/"+EmailKey(email)).Get(ctx, &token); err != nil {
		return "", fmt.Errorf("reading device token: %w", err)
	}
	return token, nil
}

// EmailKey makes an email usable as an RTDB key, which may not contain '.'.
func EmailKey(email string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(email)), ".", ",")
}

type PushEmitter struct {
	tokens    TokenStore
	messenger Messenger
	log       logrus.FieldLogger
}

func NewPushEmitter(tokens TokenStore, messenger Messenger, log logrus.FieldLogger) *PushEmitter {
	return &PushEmitter{tokens: tokens, messenger: messenger, log: log}
}

// Emit sends one data message per recipient with a registered device.
func (p *PushEmitter) Emit(ctx context.Context, e ride.Event) error {
	var errs []error
	for _, email := range e.Recipients {
		token, err := p.tokens.DeviceToken(ctx, email)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if token == "" {
			continue
		}
		id, err := p.messenger.Send(ctx, pushMessage(token, e))
		if err != nil {
			errs = append(errs, fmt.Errorf("sending FCM for ride %s: %w", e.RideID, err))
			continue
		}
		p.log.WithFields(logrus.Fields{"ride_id": e.RideID, "event": e.Type, "message_id": id}).Debug("push sent")
	}
	return errors.Join(errs...)
}

var pushTitles = map[ride.EventType]string{
	ride.EventRideScheduled: "Ride scheduled",
	ride.EventRideStarted:   "Ride started",
	ride.EventRideFinished:  "Ride finished",
	ride.EventRideCancelled: "Ride cancelled",
	ride.EventRidePanic:     "Emergency reported",
	ride.EventDriverRated:   "New rating",
}

func pushMessage(token string, e ride.Event) *messaging.Message {
	data := map[string]string{
		"type":    string(e.Type),
		"ride_id": string(e.RideID),
		"status":  string(e.Status),
	}
	for k, v := range e.Payload {
		data[k] = v
	}
	priority := "normal"
	if e.Type == ride.EventRidePanic {
		priority = "high"
	}
	return &messaging.Message{
		Token: token,
		Data:  data,
		Notification: &messaging.Notification{
			Title: pushTitles[e.Type],
			Body:  fmt.Sprintf("Ride %s is now %s", e.RideID, strings.ToLower(string(e.Status))),
		},
		Android: &messaging.AndroidConfig{Priority: priority},
	}
}
