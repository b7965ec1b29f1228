package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"accounting/internal/core"
	"accounting/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *core.Validator {
	return core.NewValidator(testLogger())
}

// mockBillingService implements BillingService with overridable functions.
type mockBillingService struct {
	subscribeFn   func(ctx context.Context, userEmail, planID, origin string) (*types.Profile, error)
	addIntervalFn func(ctx context.Context, userEmail, planID string, duration time.Duration, origin string) (*types.PlanInterval, error)
}

func (m *mockBillingService) Subscribe(ctx context.Context, userEmail, planID, origin string) (*types.Profile, error) {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, userEmail, planID, origin)
	}
	return &types.Profile{UserID: 1, SubscribedPlanID: planID}, nil
}

func (m *mockBillingService) AddInterval(ctx context.Context, userEmail, planID string, duration time.Duration, origin string) (*types.PlanInterval, error) {
	if m.addIntervalFn != nil {
		return m.addIntervalFn(ctx, userEmail, planID, duration, origin)
	}
	return &types.PlanInterval{ID: 10, ProfileID: 1, PlanID: planID, Duration: duration, State: types.IntervalPristine}, nil
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any, actor *types.Actor) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	if actor != nil {
		req = req.WithContext(types.WithActor(req.Context(), *actor))
	}
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp core.APIErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse error body: %v\nbody: %s", err, rr.Body.String())
	}
	return resp.Error.Code
}

func TestSubscribe_Success(t *testing.T) {
	var gotOrigin string
	svc := &mockBillingService{
		subscribeFn: func(ctx context.Context, email, plan, origin string) (*types.Profile, error) {
			gotOrigin = origin
			return &types.Profile{UserID: 7, SubscribedPlanID: plan}, nil
		},
	}
	h := NewBillingHandler(svc, testValidator(), testLogger())

	actor := &types.Actor{Type: types.ActorTypeInternal, Source: "billing-system"}
	rr := postJSON(t, h.Subscribe, "/api/v0/plan/subscription",
		SubscriptionRequest{UserEmail: "alice@example.net", Plan: "best"}, actor)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp SubscriptionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.UserID != 7 || resp.SubscribedPlan != "best" {
		t.Errorf("response = %+v", resp)
	}
	if gotOrigin != "billing-system" {
		t.Errorf("origin = %q, want caller name from actor", gotOrigin)
	}
}

func TestSubscribe_UnknownPlanPropagates(t *testing.T) {
	svc := &mockBillingService{
		subscribeFn: func(ctx context.Context, email, plan, origin string) (*types.Profile, error) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "unknown plan", nil)
		},
	}
	h := NewBillingHandler(svc, testValidator(), testLogger())

	rr := postJSON(t, h.Subscribe, "/api/v0/plan/subscription",
		SubscriptionRequest{UserEmail: "alice@example.net", Plan: "nope"}, nil)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if code := decodeErrorCode(t, rr); code != string(types.ErrCodeNotFoundPlan) {
		t.Errorf("code = %q", code)
	}
}

func TestSubscribe_InvalidEmail(t *testing.T) {
	h := NewBillingHandler(&mockBillingService{}, testValidator(), testLogger())

	rr := postJSON(t, h.Subscribe, "/api/v0/plan/subscription",
		SubscriptionRequest{UserEmail: "not-an-email", Plan: "best"}, nil)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSubscribe_MalformedJSON(t *testing.T) {
	h := NewBillingHandler(&mockBillingService{}, testValidator(), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v0/plan/subscription",
		bytes.NewBufferString("{invalid"))
	rr := httptest.NewRecorder()
	h.Subscribe(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != string(types.ErrCodeValidationInvalidJSON) {
		t.Errorf("code = %q", code)
	}
}

func TestAddInterval_Success(t *testing.T) {
	var gotDuration time.Duration
	svc := &mockBillingService{
		addIntervalFn: func(ctx context.Context, email, plan string, duration time.Duration, origin string) (*types.PlanInterval, error) {
			gotDuration = duration
			return &types.PlanInterval{ID: 33, PlanID: plan, Duration: duration, State: types.IntervalPristine}, nil
		},
	}
	h := NewBillingHandler(svc, testValidator(), testLogger())

	rr := postJSON(t, h.AddInterval, "/api/v0/plan/interval",
		AddIntervalRequest{UserEmail: "alice@example.net", Plan: "best", Duration: "30 00:00:00"}, nil)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if want := 30 * 24 * time.Hour; gotDuration != want {
		t.Errorf("duration = %v, want %v", gotDuration, want)
	}
	var resp AddIntervalResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.IntervalID != 33 || resp.State != string(types.IntervalPristine) {
		t.Errorf("response = %+v", resp)
	}
}

func TestAddInterval_BadDuration(t *testing.T) {
	h := NewBillingHandler(&mockBillingService{}, testValidator(), testLogger())

	rr := postJSON(t, h.AddInterval, "/api/v0/plan/interval",
		AddIntervalRequest{UserEmail: "alice@example.net", Plan: "best", Duration: "tomorrow"}, nil)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if code := decodeErrorCode(t, rr); code != string(types.ErrCodeValidationInvalidDuration) {
		t.Errorf("code = %q", code)
	}
}
