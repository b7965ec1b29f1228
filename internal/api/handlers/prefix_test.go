package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"accounting/internal/types"
)

type mockPrefixAllocator struct {
	prefixes  []*types.Prefix
	created   int
	createErr error
}

func (m *mockPrefixAllocator) Create(ctx context.Context, userID int64) (*types.Prefix, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created++
	p := &types.Prefix{ID: uuid.New(), UserID: userID}
	m.prefixes = append(m.prefixes, p)
	return p, nil
}

func (m *mockPrefixAllocator) ListByUser(ctx context.Context, userID int64) ([]*types.Prefix, error) {
	var out []*types.Prefix
	for _, p := range m.prefixes {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestPrefixList_ReturnsOwnIDs(t *testing.T) {
	alloc := &mockPrefixAllocator{}
	mine, _ := alloc.Create(context.Background(), 1)
	_, _ = alloc.Create(context.Background(), 2)
	h := NewPrefixHandler(alloc, testLogger())

	req := userCtx(httptest.NewRequest(http.MethodGet, "/api/v0/prefix", nil), 1)
	rr := httptest.NewRecorder()
	h.List(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(rr.Body.Bytes(), &ids); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(ids) != 1 || ids[0] != mine.ID {
		t.Errorf("ids = %v, want [%v]", ids, mine.ID)
	}
}

func TestPrefixList_EmptyIsArray(t *testing.T) {
	h := NewPrefixHandler(&mockPrefixAllocator{}, testLogger())

	req := userCtx(httptest.NewRequest(http.MethodGet, "/api/v0/prefix", nil), 1)
	rr := httptest.NewRecorder()
	h.List(rr, req)

	if body := rr.Body.String(); body != "[]" {
		t.Errorf("body = %q, want empty JSON array", body)
	}
}

func TestPrefixAllocate_CreatesForActor(t *testing.T) {
	alloc := &mockPrefixAllocator{}
	h := NewPrefixHandler(alloc, testLogger())

	req := userCtx(httptest.NewRequest(http.MethodPost, "/api/v0/prefix", nil), 42)
	rr := httptest.NewRecorder()
	h.Allocate(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if alloc.created != 1 || alloc.prefixes[0].UserID != 42 {
		t.Errorf("allocated = %+v", alloc.prefixes)
	}
	var id uuid.UUID
	if err := json.Unmarshal(rr.Body.Bytes(), &id); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if id != alloc.prefixes[0].ID {
		t.Errorf("returned id = %v", id)
	}
}

func TestPrefix_RequiresUserActor(t *testing.T) {
	h := NewPrefixHandler(&mockPrefixAllocator{}, testLogger())

	rr := httptest.NewRecorder()
	h.Allocate(rr, httptest.NewRequest(http.MethodPost, "/api/v0/prefix", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}
