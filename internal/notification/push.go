package notification

import (
	"context"
	"log"

	"firebase.google.com/go/v4/messaging"
	"github.com/pkg/errors"
)

// FCM accepts at most 500 tokens per multicast.
const fcmBatchSize = 500

// PushResult counts per-token outcomes. Stale holds tokens FCM no longer
// recognises.
type PushResult struct {
	Sent   int
	Failed int
	Stale  []string
}

type Pusher interface {
	Push(ctx context.Context, tokens []string, title, body string, data map[string]string) (PushResult, error)
}

type fcmPusher struct {
	client *messaging.Client
}

// NewFCMPusher returns nil when Firebase is not configured so callers can
// treat push as disabled.
func NewFCMPusher(client *messaging.Client) Pusher {
	if client == nil {
		return nil
	}
	return &fcmPusher{client: client}
}

func buildMulticast(tokens []string, title, body string, data map[string]string) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   data,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID:    "school_notifications",
				Priority:     messaging.PriorityHigh,
				DefaultSound: true,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: title,
				Body:  body,
				Icon:  "/icon-192x192.png",
			},
		},
	}
}

func (p *fcmPusher) Push(ctx context.Context, tokens []string, title, body string, data map[string]string) (PushResult, error) {
	var res PushResult
	for start := 0; start < len(tokens); start += fcmBatchSize {
		end := start + fcmBatchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		resp, err := p.client.SendEachForMulticast(ctx, buildMulticast(batch, title, body, data))
		if err != nil {
			res.Failed += len(batch)
			return res, errors.Wrap(err, "fcm multicast")
		}
		res.Sent += resp.SuccessCount
		res.Failed += resp.FailureCount
		for i, r := range resp.Responses {
			if r.Error != nil && (messaging.IsUnregistered(r.Error) || messaging.IsInvalidArgument(r.Error)) {
				res.Stale = append(res.Stale, batch[i])
			}
		}
	}
	log.Printf("✅ FCM push: %d sent, %d failed", res.Sent, res.Failed)
	return res, nil
}
