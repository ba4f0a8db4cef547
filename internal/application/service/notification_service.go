package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/store-approval/internal/application/dispatcher"
	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/domain/event"
)

// NotificationService turns engine events into messages. Delivery failures are
// logged and reported to the dispatcher; they never affect the instance.
type NotificationService interface {
	// Register subscribes the service to every event type it notifies on
	Register(d dispatcher.Dispatcher)

	// Handle notifies the recipients of one event
	Handle(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	senders   []port.MessageSender
	operators []string
	logger    Logger
}

// NewNotificationService creates a notifier. operators receive hold alerts.
func NewNotificationService(senders []port.MessageSender, operators []string, logger Logger) NotificationService {
	return &notificationServiceImpl{
		senders:   senders,
		operators: operators,
		logger:    logger,
	}
}

var notifiedTypes = []event.Type{
	event.TypeNodeEntered,
	event.TypeInstanceApproved,
	event.TypeInstanceRejected,
	event.TypeInstanceCancelled,
	event.TypeInstanceTimeout,
	event.TypeInstanceHeld,
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	for _, t := range notifiedTypes {
		d.SubscribeNamed(t, "notification-"+string(t), "sends approval notifications", s.Handle)
	}
}

func (s *notificationServiceImpl) Handle(ctx context.Context, evt *event.Event) error {
	recipients, subject, body := s.compose(evt)
	if len(recipients) == 0 || len(s.senders) == 0 {
		return nil
	}

	var errs []error
	for _, to := range recipients {
		msg := port.Message{Recipient: to, Subject: subject, Body: body}
		for _, sender := range s.senders {
			if err := sender.Send(ctx, msg); err != nil {
				s.logger.Error("Failed to send notification",
					"channel", sender.Name(),
					"recipient", to,
					"event_type", evt.Type,
					"instance_id", evt.InstanceID,
					"error", err,
				)
				errs = append(errs, fmt.Errorf("%s to %s: %w", sender.Name(), to, err))
			}
		}
	}

	s.logger.Info("Notifications sent",
		"event_type", evt.Type,
		"instance_id", evt.InstanceID,
		"recipients", len(recipients),
		"failures", len(errs),
	)
	return errors.Join(errs...)
}

// compose picks recipients and renders the message for an event
func (s *notificationServiceImpl) compose(evt *event.Event) ([]string, string, string) {
	title := evt.GetPayloadString(event.KeyTitle)
	code := evt.InstanceCode
	applicant := evt.GetPayloadString(event.KeyApplicant)
	reason := evt.GetPayloadString(event.KeyReason)

	var b strings.Builder
	fmt.Fprintf(&b, "Instance: %s\nTitle: %s\n", code, title)

	switch evt.Type {
	case event.TypeNodeEntered:
		node := evt.GetPayloadString(event.KeyNodeName)
		if node == "" {
			node = evt.GetPayloadString(event.KeyNodeID)
		}
		fmt.Fprintf(&b, "Step: %s\nApplicant: %s\n", node, applicant)
		if deadline, ok := evt.GetPayloadTime(event.KeyDeadline); ok {
			fmt.Fprintf(&b, "Please decide before %s\n", deadline.Format(time.RFC3339))
		}
		return evt.GetPayloadStrings(event.KeyApprovers), "Approval required: " + title, b.String()

	case event.TypeInstanceApproved:
		b.WriteString("Your request was approved.\n")
		return []string{applicant}, "Approved: " + title, b.String()

	case event.TypeInstanceRejected:
		fmt.Fprintf(&b, "Rejected by %s.\n", evt.GetPayloadString(event.KeyActor))
		if reason != "" {
			fmt.Fprintf(&b, "Comment: %s\n", reason)
		}
		return []string{applicant}, "Rejected: " + title, b.String()

	case event.TypeInstanceCancelled:
		b.WriteString("The applicant withdrew this request; no action is needed.\n")
		return evt.GetPayloadStrings(event.KeyApprovers), "Withdrawn: " + title, b.String()

	case event.TypeInstanceTimeout:
		b.WriteString("The request passed its deadline without a decision and has timed out.\n")
		recipients := append([]string{applicant}, evt.GetPayloadStrings(event.KeyApprovers)...)
		return recipients, "Timed out: " + title, b.String()

	case event.TypeInstanceHeld:
		fmt.Fprintf(&b, "Held at node %s (%s). An operator must remediate it.\n", evt.GetPayloadString(event.KeyNodeID), reason)
		return s.operators, "Held: " + title, b.String()
	}
	return nil, "", ""
}
