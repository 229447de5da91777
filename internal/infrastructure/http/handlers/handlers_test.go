package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func TestReadiness(t *testing.T) {
	ok := Check{Name: "postgres", Ping: func(context.Context) error { return nil }}
	down := Check{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }}

	cases := []struct {
		name   string
		checks []Check
		code   int
		status string
	}{
		{"all up", []Check{ok}, http.StatusOK, "ok"},
		{"one down", []Check{ok, down}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tc := range cases {
		e := newEcho()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/ready", nil), rec)

		if err := NewHealthDependenciesHandler(tc.checks...).Readiness(c); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if rec.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.code, rec.Code)
		}
		var resp readinessResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: invalid json: %v", tc.name, err)
		}
		if resp.Status != tc.status || len(resp.Dependencies) != len(tc.checks) {
			t.Fatalf("%s: got %+v", tc.name, resp)
		}
	}
}

type stubAuditReader struct {
	limit  int64
	events []domain.AuditEvent
}

func (s *stubAuditReader) Recent(_ context.Context, limit int64) ([]domain.AuditEvent, error) {
	s.limit = limit
	return s.events, nil
}

func TestAuditHandler_Recent(t *testing.T) {
	reader := &stubAuditReader{events: []domain.AuditEvent{{ID: "a", ActorID: "1", Action: domain.ActionReboot, Success: true}}}
	h := NewAuditHandler(reader)

	e := newEcho()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/audit?limit=10", nil), rec)
	if err := h.Recent(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || reader.limit != 10 {
		t.Fatalf("code=%d limit=%d", rec.Code, reader.limit)
	}
	var resp auditResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].Action != domain.ActionReboot {
		t.Fatalf("events = %+v", resp.Events)
	}
}

func TestAuditHandler_DefaultAndBadLimit(t *testing.T) {
	reader := &stubAuditReader{}
	h := NewAuditHandler(reader)
	e := newEcho()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/audit", nil), rec)
	if err := h.Recent(c); err != nil {
		t.Fatal(err)
	}
	if reader.limit != defaultAuditLimit || !strings.Contains(rec.Body.String(), `"events":[]`) {
		t.Fatalf("limit=%d body=%s", reader.limit, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/audit?limit=100000", nil), rec)
	err := h.Recent(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}

type stubDispatcher struct {
	events []ports.Event
}

func (d *stubDispatcher) Enqueue(_ context.Context, ev ports.Event) {
	d.events = append(d.events, ev)
}

const updateJSON = `{"update_id":11,"message":{"message_id":2,"from":{"id":77,"first_name":"Ops"},"chat":{"id":77,"type":"private"},"text":"123456"}}`

func postUpdate(t *testing.T, h *WebhookHandler, secret, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := newEcho()
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if secret != "" {
		req.Header.Set(secretHeader, secret)
	}
	rec := httptest.NewRecorder()
	return rec, h.Receive(e.NewContext(req, rec))
}

func TestWebhook_Enqueues(t *testing.T) {
	d := &stubDispatcher{}
	h := NewWebhookHandler(d, "s3cret")

	rec, err := postUpdate(t, h, "s3cret", updateJSON)
	if err != nil || rec.Code != http.StatusOK {
		t.Fatalf("code=%d err=%v", rec.Code, err)
	}
	if len(d.events) != 1 || d.events[0].UpdateID != 11 || d.events[0].Principal.ID != "77" {
		t.Fatalf("events = %+v", d.events)
	}
}

func TestWebhook_RejectsWrongSecret(t *testing.T) {
	d := &stubDispatcher{}
	h := NewWebhookHandler(d, "s3cret")

	_, err := postUpdate(t, h, "guess", updateJSON)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if len(d.events) != 0 {
		t.Fatal("nothing must be enqueued")
	}
}

func TestWebhook_AcknowledgesIgnoredUpdates(t *testing.T) {
	d := &stubDispatcher{}
	h := NewWebhookHandler(d, "")

	rec, err := postUpdate(t, h, "", `{"update_id":12,"channel_post":{"message_id":1,"chat":{"id":-1,"type":"channel"},"text":"x"}}`)
	if err != nil || rec.Code != http.StatusOK || len(d.events) != 0 {
		t.Fatalf("code=%d err=%v events=%d", rec.Code, err, len(d.events))
	}

	if _, err := postUpdate(t, h, "", "{not json"); err == nil {
		t.Fatal("expected bad request")
	}
}
