/*
notify.go - Side-effect hook for invitation transitions

PURPOSE:
  The core emits an event after every committed transition and grant.
  Delivery is fire-and-forget: a notification failure is logged and
  never rolls back the transition that triggered it.
*/
package invite

import (
	"context"
	"log"
)

type EventType string

const (
	EventInvitationSent      EventType = "invitation.sent"
	EventInvitationDeclined  EventType = "invitation.declined"
	EventInvitationCancelled EventType = "invitation.cancelled"
	EventInvitationExpired   EventType = "invitation.expired"
	EventMemberJoined        EventType = "member.joined"
	EventResourcesGranted    EventType = "resources.granted"
)

// Event carries the context a downstream notifier (email, in-app feed)
// needs to render a notification.
type Event struct {
	Type      EventType
	ProjectID ProjectID
	ActorID   string
	TargetID  string
	Context   map[string]string
}

// Notifier receives events after successful transitions.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// LogNotifier writes events to the process log. The default wiring
// until a real delivery channel is attached.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, e Event) {
	log.Printf("[Notify] %s project=%s actor=%s target=%s", e.Type, e.ProjectID, e.ActorID, e.TargetID)
}

// NopNotifier discards events. Used in tests.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}
