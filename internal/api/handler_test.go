//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/iamibadd/survey-agent/internal/agent"
	"github.com/iamibadd/survey-agent/internal/domain"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

// fakeService is an in-memory agent.SessionService.
type fakeService struct {
	sessions  map[int64]*domain.Session
	interests map[int64][]domain.Interest
	messages  map[int64][]domain.Message
	nextID    int64
	failModel bool
	lastLimit int
}

var _ agent.SessionService = (*fakeService)(nil)

func newFakeService() *fakeService {
	return &fakeService{
		sessions:  make(map[int64]*domain.Session),
		interests: make(map[int64][]domain.Interest),
		messages:  make(map[int64][]domain.Message),
	}
}

func (f *fakeService) Start(_ context.Context, req agent.StartRequest) (agent.StartResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return agent.StartResult{}, fmt.Errorf("%w: prompt is required", agent.ErrInvalidInput)
	}
	f.nextID++
	s := &domain.Session{ID: f.nextID, Prompt: req.Prompt, Consent: req.Consent}
	f.sessions[s.ID] = s
	if f.failModel {
		return agent.StartResult{Session: s}, agent.ErrModelUnavailable
	}
	return agent.StartResult{Session: s, InitialMessage: "Hi! " + req.Prompt}, nil
}

func (f *fakeService) Send(_ context.Context, id int64, in agent.UserInput) (agent.SendResult, error) {
	if err := in.Validate(); err != nil {
		return agent.SendResult{}, err
	}
	s, ok := f.sessions[id]
	if !ok || !s.AcceptsMessages() {
		return agent.SendResult{}, agent.ErrSessionUnavailable
	}
	if f.failModel {
		return agent.SendResult{}, fmt.Errorf("%w: boom", agent.ErrModelUnavailable)
	}
	f.messages[id] = append(f.messages[id],
		domain.Message{Role: domain.RoleUser, Content: in.Text},
		domain.Message{Role: domain.RoleAgent, Content: "echo: " + in.Text},
	)
	f.interests[id] = []domain.Interest{{Name: "outdoors", Confidence: 0.8, Rationale: "hiking"}}
	return agent.SendResult{AgentMessage: "echo: " + in.Text, Interests: f.interests[id]}, nil
}

func (f *fakeService) Get(_ context.Context, id int64) (*domain.Session, error) {
	s, ok := f.sessions[id]
	if !ok || s.Deleted {
		return nil, agent.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeService) List(context.Context) ([]*domain.Session, error) {
	var out []*domain.Session
	for _, s := range f.sessions {
		if !s.Deleted {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeService) Pause(ctx context.Context, id int64) error {
	s, err := f.Get(ctx, id)
	if err != nil {
		return err
	}
	s.Paused = true
	return nil
}

func (f *fakeService) Resume(ctx context.Context, id int64) error {
	s, err := f.Get(ctx, id)
	if err != nil {
		return err
	}
	s.Paused = false
	return nil
}

func (f *fakeService) Delete(_ context.Context, id int64) error {
	s, ok := f.sessions[id]
	if !ok {
		return agent.ErrSessionNotFound
	}
	if s.Deleted {
		return agent.ErrAlreadyDeleted
	}
	s.Deleted = true
	return nil
}

func (f *fakeService) Interests(ctx context.Context, id int64) ([]domain.Interest, error) {
	if _, err := f.Get(ctx, id); err != nil {
		return nil, err
	}
	return f.interests[id], nil
}

func (f *fakeService) ReplaceInterests(ctx context.Context, id int64, interests []domain.Interest) error {
	for _, i := range interests {
		if err := i.Validate(); err != nil {
			return fmt.Errorf("%w: %v", agent.ErrInvalidInput, err)
		}
	}
	if _, err := f.Get(ctx, id); err != nil {
		return err
	}
	f.interests[id] = interests
	return nil
}

func (f *fakeService) Messages(ctx context.Context, id int64, limit int) ([]domain.Message, error) {
	if _, err := f.Get(ctx, id); err != nil {
		return nil, err
	}
	f.lastLimit = limit
	msgs := f.messages[id]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

type recordingCloser struct{ closed []int64 }

func (c *recordingCloser) CloseSession(id int64) { c.closed = append(c.closed, id) }

func newTestRouter(svc agent.SessionService, closer SessionCloser) http.Handler {
	r := chi.NewRouter()
	NewSessionHandler(svc, closer, nil).RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var got map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return got
}

func TestStartSession(t *testing.T) {
	h := newTestRouter(newFakeService(), nil)

	rec := do(t, h, http.MethodPost, "/start-session", `{"prompt":"hobbies","consent":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode(t, rec)
	if got["sessionId"] != float64(1) || got["initialMessage"] != "Hi! hobbies" {
		t.Errorf("Unexpected response: %v", got)
	}
}

func TestStartSessionRejectsBadBodies(t *testing.T) {
	h := newTestRouter(newFakeService(), nil)

	for _, body := range []string{
		`{"prompt":""}`,
		`{"prompt":"x","extra":1}`,
		`not json`,
		`{"prompt":"x"}{"prompt":"y"}`,
	} {
		rec := do(t, h, http.MethodPost, "/start-session", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestStartSessionModelFailureReturnsSessionID(t *testing.T) {
	svc := newFakeService()
	svc.failModel = true
	h := newTestRouter(svc, nil)

	rec := do(t, h, http.MethodPost, "/start-session", `{"prompt":"hobbies","consent":true}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", rec.Code)
	}
	if got := decode(t, rec); got["sessionId"] != float64(1) {
		t.Errorf("Expected sessionId in error body, got %v", got)
	}
}

func TestSendMessage(t *testing.T) {
	svc := newFakeService()
	h := newTestRouter(svc, nil)
	do(t, h, http.MethodPost, "/start-session", `{"prompt":"hobbies","consent":true}`)

	rec := do(t, h, http.MethodPost, "/send-message", `{"sessionId":1,"message":"I like hiking"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec); got["agentMessage"] != "echo: I like hiking" {
		t.Errorf("Unexpected response: %v", got)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing message", `{"sessionId":1}`, http.StatusBadRequest},
		{"missing session id", `{"message":"hi"}`, http.StatusBadRequest},
		{"wrong shape", `{"sessionId":1,"text":"hi"}`, http.StatusBadRequest},
		{"unknown session", `{"sessionId":99,"message":"hi"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPost, "/send-message", tt.body); rec.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, rec.Code)
			}
		})
	}

	svc.failModel = true
	if rec := do(t, h, http.MethodPost, "/send-message", `{"sessionId":1,"message":"again"}`); rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 on model failure, got %d", rec.Code)
	}
}

func TestPauseResumeAndSend(t *testing.T) {
	h := newTestRouter(newFakeService(), nil)
	do(t, h, http.MethodPost, "/start-session", `{"prompt":"hobbies"}`)

	if rec := do(t, h, http.MethodPost, "/pause/1", ""); rec.Code != http.StatusOK || decode(t, rec)["status"] != "paused" {
		t.Fatalf("pause failed: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/send-message", `{"sessionId":1,"message":"hi"}`); rec.Code != http.StatusNotFound {
		t.Errorf("Expected paused session to reject sends, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/resume/1", ""); rec.Code != http.StatusOK || decode(t, rec)["status"] != "resumed" {
		t.Fatalf("resume failed: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/send-message", `{"sessionId":1,"message":"hi"}`); rec.Code != http.StatusOK {
		t.Errorf("Expected resumed session to accept sends, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/pause/42", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown session, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/pause/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad id, got %d", rec.Code)
	}
}

func TestGetAndDeleteSession(t *testing.T) {
	closer := &recordingCloser{}
	h := newTestRouter(newFakeService(), closer)
	do(t, h, http.MethodPost, "/start-session", `{"prompt":"hobbies","consent":true}`)

	rec := do(t, h, http.MethodGet, "/session/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	got := decode(t, rec)
	if got["consent"] != true || got["paused"] != false {
		t.Errorf("Unexpected session view: %v", got)
	}

	if rec := do(t, h, http.MethodDelete, "/session/1", ""); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on delete, got %d", rec.Code)
	}
	if len(closer.closed) != 1 || closer.closed[0] != 1 {
		t.Errorf("Expected live connections of session 1 to be closed, got %v", closer.closed)
	}
	if rec := do(t, h, http.MethodDelete, "/session/1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/session/1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
	if len(closer.closed) != 1 {
		t.Errorf("Failed delete must not close connections, got %v", closer.closed)
	}
}

func TestInterestsRoundTrip(t *testing.T) {
	h := newTestRouter(newFakeService(), nil)
	do(t, h, http.MethodPost, "/start-session", `{"prompt":"hobbies"}`)

	rec := do(t, h, http.MethodGet, "/interests/1", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("Expected empty list, got %d %q", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPut, "/interests/1", `[{"name":"music","confidence":0.5,"rationale":"guitar"}]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var interests []domain.Interest
	if err := json.NewDecoder(rec.Body).Decode(&interests); err != nil {
		t.Fatal(err)
	}
	if len(interests) != 1 || interests[0].Name != "music" {
		t.Errorf("Unexpected interests: %v", interests)
	}

	if rec := do(t, h, http.MethodPut, "/interests/1", `[{"name":"x","confidence":7}]`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid confidence, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPut, "/interests/9", `[]`); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown session, got %d", rec.Code)
	}
}

func TestListSessionsEmpty(t *testing.T) {
	h := newTestRouter(newFakeService(), nil)

	rec := do(t, h, http.MethodGet, "/sessions", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("Expected empty array, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestGetMessages(t *testing.T) {
	svc := newFakeService()
	h := newTestRouter(svc, nil)
	do(t, h, http.MethodPost, "/start-session", `{"prompt":"hobbies"}`)
	do(t, h, http.MethodPost, "/send-message", `{"sessionId":1,"message":"I like hiking"}`)

	rec := do(t, h, http.MethodGet, "/sessions/1/messages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if svc.lastLimit != agent.DefaultMessageLimit {
		t.Errorf("Expected default limit, got %d", svc.lastLimit)
	}
	var body struct {
		SessionID int64            `json:"session_id"`
		Messages  []domain.Message `json:"messages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.SessionID != 1 || len(body.Messages) != 2 || body.Messages[0].Role != domain.RoleUser {
		t.Errorf("Unexpected body: %+v", body)
	}

	if rec := do(t, h, http.MethodGet, "/sessions/1/messages?limit=1", ""); rec.Code != http.StatusOK || svc.lastLimit != 1 {
		t.Errorf("Expected limit=1 to be honored, got %d limit %d", rec.Code, svc.lastLimit)
	}
	if rec := do(t, h, http.MethodGet, "/sessions/1/messages?limit=-3", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestGetMessagesAfterDelete(t *testing.T) {
	h := newTestRouter(newFakeService(), nil)
	do(t, h, http.MethodPost, "/start-session", `{"prompt":"hobbies"}`)
	do(t, h, http.MethodPost, "/send-message", `{"sessionId":1,"message":"I like hiking"}`)

	if rec := do(t, h, http.MethodDelete, "/session/1", ""); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on delete, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/sessions/1/messages", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for deleted session, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/sessions/42/messages", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown session, got %d", rec.Code)
	}
}
