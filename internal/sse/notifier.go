package sse

import (
	"time"

	"github.com/GTDGit/registry_api/internal/models"
)

// RegistrationNotifier is the interface services use to emit registration events.
type RegistrationNotifier interface {
	NotifyRegistrationSubmitted(reg *models.Registration)
	NotifyRegistrationStatusChanged(reg *models.Registration, actor string)
}

// HubNotifier implements RegistrationNotifier using the SSE Hub.
type HubNotifier struct {
	hub *Hub
}

// NewHubNotifier creates a notifier backed by the given Hub.
func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

// NotifyRegistrationSubmitted broadcasts registration.flagged for flagged
// submissions and registration.submitted otherwise.
func (n *HubNotifier) NotifyRegistrationSubmitted(reg *models.Registration) {
	if n.hub.ClientCount() == 0 {
		return
	}
	event := EventRegistrationSubmitted
	if reg.DuplicateFlag {
		event = EventRegistrationFlagged
	}
	n.hub.Broadcast(registrationToEvent(event, reg, ""))
}

func (n *HubNotifier) NotifyRegistrationStatusChanged(reg *models.Registration, actor string) {
	if n.hub.ClientCount() == 0 {
		return
	}
	n.hub.Broadcast(registrationToEvent(EventRegistrationStatusChanged, reg, actor))
}

func registrationToEvent(eventType EventType, reg *models.Registration, actor string) *RegistrationEvent {
	reasons := make([]string, len(reg.DuplicateReasons))
	for i, r := range reg.DuplicateReasons {
		reasons[i] = string(r)
	}
	return &RegistrationEvent{
		Event:            eventType,
		RegistrationID:   reg.ID,
		ReferenceNumber:  reg.ReferenceNumber,
		CommunityID:      reg.CommunityID,
		FullName:         reg.FullName(),
		Barangay:         reg.PresentBarangay,
		Status:           string(reg.Status),
		DuplicateFlag:    reg.DuplicateFlag,
		DuplicateReasons: reasons,
		UpdatedBy:        actor,
		Timestamp:        time.Now(),
	}
}

// NopNotifier is a no-op implementation for when SSE is not needed.
type NopNotifier struct{}

func (n *NopNotifier) NotifyRegistrationSubmitted(reg *models.Registration)                   {}
func (n *NopNotifier) NotifyRegistrationStatusChanged(reg *models.Registration, actor string) {}
