package billing

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testSigningSecret = "whsec_test_secret"

func signedRequest(t *testing.T, payload []byte, secret string) *http.Request {
	t.Helper()
	now := time.Now()
	signature := webhook.ComputeSignature(now, payload, secret)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%x", now.Unix(), signature))
	return req
}

func webhookRouter(processor *Processor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook", NewWebhookHandler(testSigningSecret, processor))
	return router
}

func TestWebhook_ValidSignatureProcessesEvent(t *testing.T) {
	p, events, _, _ := newTestProcessor()

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"api_version": %q,
		"type": "charge.refunded",
		"data": {"object": {}}
	}`, stripe.APIVersion))

	events.On("Record", mock.Anything, mock.MatchedBy(func(event *Event) bool {
		return event.Provider == "stripe" && event.ID == "evt_1" && event.Type == "charge.refunded"
	})).Return(false, nil)
	events.On("MarkProcessed", mock.Anything, "stripe", "evt_1").Return(nil)

	recorder := httptest.NewRecorder()
	webhookRouter(p).ServeHTTP(recorder, signedRequest(t, payload, testSigningSecret))

	require.Equal(t, http.StatusOK, recorder.Code)
	events.AssertExpectations(t)
}

func TestWebhook_BadSignatureIsRejectedWithoutStateChange(t *testing.T) {
	p, events, _, _ := newTestProcessor()

	payload := []byte(`{"id": "evt_1", "type": "invoice.paid", "data": {"object": {}}}`)

	recorder := httptest.NewRecorder()
	webhookRouter(p).ServeHTTP(recorder, signedRequest(t, payload, "whsec_wrong_secret"))

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	events.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestWebhook_ProcessingFailureReturns500ForRedelivery(t *testing.T) {
	p, events, _, _ := newTestProcessor()

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_2",
		"api_version": %q,
		"type": "charge.refunded",
		"data": {"object": {}}
	}`, stripe.APIVersion))

	events.On("Record", mock.Anything, mock.Anything).Return(false, nil)
	events.On("MarkProcessed", mock.Anything, "stripe", "evt_2").Return(fmt.Errorf("db down"))

	recorder := httptest.NewRecorder()
	webhookRouter(p).ServeHTTP(recorder, signedRequest(t, payload, testSigningSecret))

	require.Equal(t, http.StatusInternalServerError, recorder.Code)
}
