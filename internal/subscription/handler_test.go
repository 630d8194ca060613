package subscription

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/makerspace/makeradmin-sub000/internal/span"
)

type MockSubscriptionService struct{ mock.Mock }

func (m *MockSubscriptionService) Start(ctx context.Context, memberID int, accessType span.AccessType, earliestStart time.Time, expected ExpectedPrices) (*StartResult, error) {
	args := m.Called(ctx, memberID, accessType, earliestStart, expected)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StartResult), args.Error(1)
}

func (m *MockSubscriptionService) Pause(ctx context.Context, memberID int, accessType span.AccessType) error {
	return m.Called(ctx, memberID, accessType).Error(0)
}

func (m *MockSubscriptionService) Resume(ctx context.Context, memberID int, accessType span.AccessType, earliestStart time.Time) (*StartResult, error) {
	args := m.Called(ctx, memberID, accessType, earliestStart)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StartResult), args.Error(1)
}

func (m *MockSubscriptionService) Cancel(ctx context.Context, memberID int, accessType span.AccessType) error {
	return m.Called(ctx, memberID, accessType).Error(0)
}

func (m *MockSubscriptionService) List(ctx context.Context, memberID int) ([]Status, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Status), args.Error(1)
}

func subscriptionRouter(svc Service, asMember int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if asMember > 0 {
		router.Use(func(c *gin.Context) { c.Set("user_id", asMember) })
	}
	h := NewHandler(svc)
	router.POST("/subscriptions/:type/start", h.Start)
	router.POST("/subscriptions/:type/cancel", h.Cancel)
	router.GET("/subscriptions", h.ListMy)
	router.POST("/admin/members/:memberID/subscriptions/:type/pause", h.Pause)
	router.POST("/admin/members/:memberID/subscriptions/:type/resume", h.Resume)
	return router
}

func post(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStartHandler_PassesExpectedPrices(t *testing.T) {
	svc := new(MockSubscriptionService)
	svc.On("Start", mock.Anything, 7, span.TypeLabaccess, mock.Anything,
		mock.MatchedBy(func(expected ExpectedPrices) bool {
			return expected.NowCents != nil && *expected.NowCents == 75000 &&
				expected.RecurringCents != nil && *expected.RecurringCents == 37500
		})).
		Return(&StartResult{AccessType: span.TypeLabaccess, ScheduleID: "sched_1"}, nil)

	w := post(subscriptionRouter(svc, 7), "/subscriptions/labaccess/start",
		`{"expected_now_cents": 75000, "expected_recurring_cents": 37500}`)

	require.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestStartHandler_PriceMismatchIsConflict(t *testing.T) {
	svc := new(MockSubscriptionService)
	svc.On("Start", mock.Anything, 7, span.TypeLabaccess, mock.Anything, mock.Anything).
		Return(nil, ErrPriceMismatch)

	w := post(subscriptionRouter(svc, 7), "/subscriptions/labaccess/start", "")
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestStartHandler_InvalidAccessType(t *testing.T) {
	svc := new(MockSubscriptionService)
	svc.On("Start", mock.Anything, 7, span.AccessType("vipaccess"), mock.Anything, mock.Anything).
		Return(nil, ErrInvalidAccessType)

	w := post(subscriptionRouter(svc, 7), "/subscriptions/vipaccess/start", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelHandler_Unauthorized(t *testing.T) {
	svc := new(MockSubscriptionService)
	w := post(subscriptionRouter(svc, 0), "/subscriptions/labaccess/cancel", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	svc.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything, mock.Anything)
}

func TestPauseHandler_NotLiveIsConflict(t *testing.T) {
	svc := new(MockSubscriptionService)
	svc.On("Pause", mock.Anything, 7, span.TypeLabaccess).Return(ErrNotLive)

	w := post(subscriptionRouter(svc, 0), "/admin/members/7/subscriptions/labaccess/pause", "")
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestResumeHandler_Success(t *testing.T) {
	svc := new(MockSubscriptionService)
	svc.On("Resume", mock.Anything, 7, span.TypeMembership, mock.Anything).
		Return(&StartResult{AccessType: span.TypeMembership, ScheduleID: "sched_2"}, nil)

	w := post(subscriptionRouter(svc, 0), "/admin/members/7/subscriptions/membership/resume", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestListMyHandler(t *testing.T) {
	svc := new(MockSubscriptionService)
	svc.On("List", mock.Anything, 7).Return([]Status{
		{AccessType: span.TypeMembership, State: StateLive, ExternalID: "sub_1"},
		{AccessType: span.TypeLabaccess, State: StateNone},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/subscriptions", nil)
	w := httptest.NewRecorder()
	subscriptionRouter(svc, 7).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"sub_1"`)
}
