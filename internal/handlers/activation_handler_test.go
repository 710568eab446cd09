package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealvista/engagement-backend/internal/models"
	"github.com/dealvista/engagement-backend/internal/repositories"
	"github.com/dealvista/engagement-backend/internal/services"
)

type stubClassifier struct {
	state *models.ActivationState
	err   error
}

func (s *stubClassifier) ClassifyPath(_ context.Context, _ string, _ bool) (*models.ActivationState, error) {
	return s.state, s.err
}

type stubMilestones struct {
	state *models.ActivationState
	err   error
}

func (s *stubMilestones) RecordEvent(_ context.Context, _, _ string, _ map[string]any) (*models.ActivationState, error) {
	return s.state, s.err
}

func (s *stubMilestones) GetState(_ context.Context, _ string) (*models.ActivationState, error) {
	return s.state, s.err
}

func newActivationRouter(classifier services.ClassifierService, milestones services.MilestoneService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewActivationHandler(classifier, milestones)
	r := gin.New()
	r.POST("/users/:userId/classify-path", h.ClassifyPath)
	r.POST("/users/:userId/events", h.RecordEvent)
	r.GET("/users/:userId/activation", h.GetActivation)
	return r
}

func TestClassifyPathEndpoint(t *testing.T) {
	state := models.NewActivationState("u1", models.PathDealFirst, "test", time.Now())
	r := newActivationRouter(&stubClassifier{state: state}, &stubMilestones{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/users/u1/classify-path", strings.NewReader(`{"retake":false}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "deal_first")
}

func TestRecordEventEndpoint(t *testing.T) {
	state := models.NewActivationState("u1", models.PathDealFirst, "test", time.Now())

	tests := []struct {
		name string
		stub *stubMilestones
		body string
		want int
	}{
		{name: "ok", stub: &stubMilestones{state: state}, body: `{"eventType":"deal_viewed"}`, want: http.StatusOK},
		{name: "missing event type", stub: &stubMilestones{state: state}, body: `{}`, want: http.StatusBadRequest},
		{name: "unknown user", stub: &stubMilestones{err: repositories.ErrNotFound}, body: `{"eventType":"deal_viewed"}`, want: http.StatusNotFound},
		{name: "write contention", stub: &stubMilestones{err: services.ErrRetriesExhausted}, body: `{"eventType":"deal_viewed"}`, want: http.StatusServiceUnavailable},
		{name: "store failure", stub: &stubMilestones{err: assert.AnError}, body: `{"eventType":"deal_viewed"}`, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newActivationRouter(&stubClassifier{}, tt.stub)
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/users/u1/events", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestGetActivationEndpoint(t *testing.T) {
	r := newActivationRouter(&stubClassifier{}, &stubMilestones{err: repositories.ErrNotFound})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/users/ghost/activation", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
