package sse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/registry_api/internal/models"
)

func TestHubNotifier_FlaggedSubmissionUsesFlaggedEvent(t *testing.T) {
	hub := NewHub()
	client := hub.Register("admin-1")
	defer hub.Unregister("admin-1")

	reg := &models.Registration{
		ID:               "reg-1",
		FirstName:        "Maria",
		LastName:         "Santos",
		CommunityID:      "1121-00001-01-01",
		Status:           models.StatusFlaggedDuplicate,
		DuplicateFlag:    true,
		DuplicateReasons: models.MatchReasons{models.MatchSameAddressBirthDate},
	}
	NewHubNotifier(hub).NotifyRegistrationSubmitted(reg)

	var got RegistrationEvent
	require.NoError(t, json.Unmarshal(<-client.Events, &got))
	assert.Equal(t, EventRegistrationFlagged, got.Event)
	assert.Equal(t, "Maria Santos", got.FullName)
	assert.Equal(t, []string{"SAME_ADDRESS_BIRTH_DATE"}, got.DuplicateReasons)
}

func TestHub_BroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub()
	client := hub.Register("slow")
	defer hub.Unregister("slow")

	for i := 0; i < cap(client.Events)+5; i++ {
		hub.Broadcast(&RegistrationEvent{Event: EventRegistrationSubmitted})
	}
	assert.Len(t, client.Events, cap(client.Events))
}
