package push

import (
	"context"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/marketline/api/internal/domain"
)

type fakeMessaging struct {
	errs  []error
	sent  []*messaging.Message
	calls int
}

func (f *fakeMessaging) Send(_ context.Context, msg *messaging.Message) (string, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	f.sent = append(f.sent, msg)
	return "projects/test/messages/1", nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestSendTargetsUserTopic(t *testing.T) {
	client := &fakeMessaging{}
	notifier := newFCMNotifier(client)
	notifier.sleep = noSleep

	err := notifier.Send(context.Background(), "buyer-1", domain.Notification{
		Title:   "Order placed",
		Message: "Your order MK-2025-000001 has been placed.",
		Type:    "order_placed",
		Data:    map[string]string{"orderId": "ord_1"},
	})
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	msg := client.sent[0]
	assert.Equal(t, "user-buyer-1", msg.Topic)
	assert.Equal(t, "Order placed", msg.Notification.Title)
	assert.Equal(t, map[string]string{"orderId": "ord_1", "type": "order_placed"}, msg.Data)
}

func TestSendRequiresUser(t *testing.T) {
	notifier := newFCMNotifier(&fakeMessaging{})
	assert.Error(t, notifier.Send(context.Background(), " ", domain.Notification{}))
}

func TestSendDoesNotRetryPermanentErrors(t *testing.T) {
	client := &fakeMessaging{errs: []error{errors.New("invalid argument")}}
	notifier := newFCMNotifier(client, WithMaxRetries(5))
	notifier.sleep = noSleep

	err := notifier.Send(context.Background(), "buyer-1", domain.Notification{Title: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestSendStopsWhenContextCancelled(t *testing.T) {
	client := &fakeMessaging{errs: []error{context.Canceled}}
	notifier := newFCMNotifier(client)

	err := notifier.Send(context.Background(), "buyer-1", domain.Notification{Title: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.calls)
}

func TestTopicForUserReplacesUnsupportedCharacters(t *testing.T) {
	assert.Equal(t, "user-abc_DEF-1", TopicForUser("abc DEF-1"))
	assert.Equal(t, "user-uid_example.com", TopicForUser("uid@example.com"))
}

func TestNewFCMNotifierRequiresClient(t *testing.T) {
	_, err := NewFCMNotifier(nil)
	assert.Error(t, err)
}
