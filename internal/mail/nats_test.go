package mail_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/logger"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/mail"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/metrics"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/testnats"
)

func TestNATSGateway_Shared(t *testing.T) {
	nc := testnats.SetupSharedNATS(t)
	defer nc.Cleanup(t)

	log := logger.New()
	const subject = "emails.send"

	gateway, err := mail.NewNATSGateway(nc.URL, subject, log)
	require.NoError(t, err)
	defer gateway.Close()

	subscriber := nc.Connect(t)

	t.Run("PublishesMessageAsJSON", func(t *testing.T) {
		sub, err := subscriber.SubscribeSync(subject)
		require.NoError(t, err)
		defer sub.Unsubscribe()
		require.NoError(t, subscriber.Flush())

		sent := mail.Message{
			Template:  mail.TemplateProjectCreated,
			Recipient: "owner@test.com",
			Locale:    "en",
			Context:   map[string]interface{}{"project": "Test Project", "slug": "test-project"},
		}
		require.NoError(t, gateway.Send(context.Background(), sent))

		raw, err := sub.NextMsg(5 * time.Second)
		require.NoError(t, err)

		var received mail.Message
		require.NoError(t, json.Unmarshal(raw.Data, &received))
		assert.Equal(t, sent.Template, received.Template)
		assert.Equal(t, sent.Recipient, received.Recipient)
		assert.Equal(t, sent.Locale, received.Locale)
		assert.Equal(t, "test-project", received.Context["slug"])
	})

	t.Run("DispatcherDeliversThroughGateway", func(t *testing.T) {
		sub, err := subscriber.SubscribeSync(subject)
		require.NoError(t, err)
		defer sub.Unsubscribe()
		require.NoError(t, subscriber.Flush())

		dispatcher := mail.NewDispatcher(gateway, "pt-BR", log, metrics.NewMock())
		dispatcher.Send(context.Background(), mail.TemplateAppliedToOwner, "owner@test.com",
			map[string]interface{}{"applicant": "Jane"})

		raw, err := sub.NextMsg(5 * time.Second)
		require.NoError(t, err)

		var received mail.Message
		require.NoError(t, json.Unmarshal(raw.Data, &received))
		assert.Equal(t, mail.TemplateAppliedToOwner, received.Template)
		assert.Equal(t, "pt-BR", received.Locale)
	})

	t.Run("DispatcherSkipsEmptyRecipient", func(t *testing.T) {
		sub, err := subscriber.SubscribeSync(subject)
		require.NoError(t, err)
		defer sub.Unsubscribe()
		require.NoError(t, subscriber.Flush())

		dispatcher := mail.NewDispatcher(gateway, "en", log, metrics.NewMock())
		dispatcher.Send(context.Background(), mail.TemplateAppliedToOwner, "", nil)

		_, err = sub.NextMsg(500 * time.Millisecond)
		assert.Error(t, err)
	})
}
