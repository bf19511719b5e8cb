package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sharath018/school-management-backend/middleware"
	"github.com/sharath018/school-management-backend/utils"
)

// alert is the in-app message a domain event turns into.
type alert struct {
	title    string
	message  string
	category string
	roles    []string
}

func str(p map[string]interface{}, key string) string {
	if v, ok := p[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// alertFor maps an event to the school admins' notification. Events with no
// audience return false.
func alertFor(evt utils.DomainEvent) (alert, bool) {
	admins := []string{middleware.RoleSchoolAdmin}
	switch evt.Type {
	case utils.EventPaymentCaptured:
		return alert{
			title:    "Fee payment received",
			message:  fmt.Sprintf("%s paid %s towards %s", str(evt.Payload, "student_name"), str(evt.Payload, "amount"), str(evt.Payload, "fee_name")),
			category: CategoryFees,
			roles:    admins,
		}, true
	case utils.EventGuestCheckedIn:
		return alert{
			title:    "Guest checked in",
			message:  fmt.Sprintf("%s has arrived (%s of %s)", str(evt.Payload, "full_name"), str(evt.Payload, "arrived_count"), str(evt.Payload, "invite_count")),
			category: CategoryEvent,
			roles:    []string{middleware.RoleSchoolAdmin, middleware.RoleStaff},
		}, true
	case utils.EventFieldsSaved:
		return alert{
			title:    "Guest form updated",
			message:  fmt.Sprintf("The guest form now has %s fields in %s groups", str(evt.Payload, "fields"), str(evt.Payload, "groups")),
			category: CategoryEvent,
			roles:    admins,
		}, true
	case utils.EventSchoolImpersonated:
		return alert{
			title:    "Platform support signed in",
			message:  "A platform administrator is acting on behalf of your school",
			category: CategorySystem,
			roles:    admins,
		}, true
	}
	return alert{}, false
}

// HandleEvent delivers the in-app alert for one domain event.
func (s *Service) HandleEvent(ctx context.Context, evt utils.DomainEvent) error {
	a, ok := alertFor(evt)
	if !ok || evt.SchoolID == 0 {
		return nil
	}
	meta := map[string]interface{}{"event": evt.Type, "category": a.category}
	for k, v := range evt.Payload {
		meta[k] = v
	}
	return s.CreateInAppForSchoolRoles(ctx, evt.SchoolID, a.roles, a.title, a.message, meta)
}

// messageReader is the part of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Consumer struct {
	reader  messageReader
	service *Service
}

func NewConsumer(reader *kafka.Reader, svc *Service) *Consumer {
	return &Consumer{reader: reader, service: svc}
}

// Run consumes until ctx is cancelled. Undecodable messages are committed
// and skipped so one bad record cannot stall the group.
func (c *Consumer) Run(ctx context.Context) {
	log.Println("🔄 Notification consumer started")
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("🛑 Notification consumer stopped")
				return
			}
			if errors.Is(err, io.EOF) {
				log.Println("🛑 Notification consumer reader closed")
				return
			}
			log.Printf("❌ fetch event: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		evt, err := utils.DecodeEvent(m.Value)
		if err != nil {
			log.Printf("⚠️ skip undecodable event at offset %d: %v", m.Offset, err)
		} else if err := c.service.HandleEvent(ctx, evt); err != nil {
			log.Printf("❌ handle %s for school %d: %v", evt.Type, evt.SchoolID, err)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			log.Printf("⚠️ commit offset %d: %v", m.Offset, err)
		}
	}
}
