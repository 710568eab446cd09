package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealvista/engagement-backend/internal/models"
)

type recordingSink struct {
	deliveries []Delivery
}

func (r *recordingSink) Send(_ context.Context, d Delivery) (string, error) {
	r.deliveries = append(r.deliveries, d)
	return "rec-1", nil
}

func TestSurfaceRouter(t *testing.T) {
	email := &recordingSink{}
	fallback := &recordingSink{}
	router := NewSurfaceRouter(map[models.NudgeSurface]Notifier{
		models.SurfaceEmail: email,
	}, fallback)

	_, err := router.Send(context.Background(), Delivery{UserID: "u1", Surface: models.SurfaceEmail})
	require.NoError(t, err)
	_, err = router.Send(context.Background(), Delivery{UserID: "u1", Surface: models.SurfacePush})
	require.NoError(t, err)

	assert.Len(t, email.deliveries, 1)
	assert.Len(t, fallback.deliveries, 1)
	assert.Equal(t, models.SurfacePush, fallback.deliveries[0].Surface)
}

func TestSurfaceRouter_NoDefault(t *testing.T) {
	router := NewSurfaceRouter(nil, nil)
	_, err := router.Send(context.Background(), Delivery{Surface: models.SurfaceToast})
	assert.Error(t, err)
}

func TestWebhookNotifier_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/deliveries", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"messageId":"msg-42"}`))
	}))
	defer server.Close()

	sink := NewWebhookNotifier(server.URL, "secret")
	id, err := sink.Send(context.Background(), Delivery{UserID: "u1", Surface: models.SurfaceEmail, Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "msg-42", id)
}

func TestWebhookNotifier_Send_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "relay down", http.StatusBadGateway)
	}))
	defer server.Close()

	sink := NewWebhookNotifier(server.URL, "secret")
	_, err := sink.Send(context.Background(), Delivery{UserID: "u1"})
	assert.Error(t, err)
}
