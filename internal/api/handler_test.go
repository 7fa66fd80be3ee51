package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	smsadapter "github.com/ajayykmr/persona-dispatch/internal/adapters/sms"
	"github.com/ajayykmr/persona-dispatch/internal/api"
	"github.com/ajayykmr/persona-dispatch/internal/config"
	"github.com/ajayykmr/persona-dispatch/internal/dispatch"
	"github.com/ajayykmr/persona-dispatch/internal/models"
	smsprovider "github.com/ajayykmr/persona-dispatch/internal/providers/sms"
)

const sendBody = `{
  "batchId": "b-1",
  "profile": {"name": "Jordan Lee", "opener": "Hey {firstName}! It's {agentName}.", "signature": "Talk soon, {agentName}"},
  "template": "Checking in about {company}.",
  "contacts": [
    {"id": "c1", "name": "Alex Kim", "phone": "+15550000001", "company": "Acme"},
    {"id": "c2", "name": "Sam Rivera", "phone": "+15550000002"},
    {"id": "c3", "name": "Pat", "phone": "+15550000003", "company": "Globex"}
  ]
}`

type eventRecorder struct {
	mu     sync.Mutex
	events []models.BatchEvent
	err    error
}

func (e *eventRecorder) PublishBatchEvent(_ context.Context, event models.BatchEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return e.err
}

type failingDispatcher struct{ err error }

func (f failingDispatcher) Dispatch(context.Context, models.Batch) ([]models.DispatchOutcome, error) {
	return nil, f.err
}

func (f failingDispatcher) Ready() error { return nil }

func newServer(t *testing.T, d api.Dispatcher, opts ...api.HandlerOption) http.Handler {
	t.Helper()
	h, err := api.NewHandler(d, zerolog.Nop(), opts...)
	require.NoError(t, err)
	return api.NewRouter(h, api.RouterOptions{}, zerolog.Nop())
}

func mockDispatcher(t *testing.T, sender smsprovider.Sender, providerOpts ...smsprovider.Option) *dispatch.Dispatcher {
	t.Helper()
	providerOpts = append([]smsprovider.Option{smsprovider.WithLatency(0)}, providerOpts...)
	adapter, err := smsadapter.NewAdapter(smsprovider.NewMockProvider(zerolog.Nop(), providerOpts...), zerolog.Nop())
	require.NoError(t, err)
	return dispatch.New(adapter, sender, zerolog.Nop())
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestSendReturnsOrderedResults(t *testing.T) {
	events := &eventRecorder{}
	d := mockDispatcher(t, smsprovider.Sender{ServiceID: "MG123"},
		smsprovider.WithRecipientScenario("+15550000002", smsprovider.ScenarioTransient))
	srv := newServer(t, d, api.WithPublisher(events))

	rec := do(t, srv, http.MethodPost, "/api/send", sendBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp api.SendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "b-1", resp.BatchID)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, "c1", resp.Results[0].RecipientID)
	assert.Equal(t, models.OutcomeSent, resp.Results[0].Status)
	assert.True(t, strings.HasPrefix(resp.Results[0].Detail, "Message SID "))

	assert.Equal(t, models.DispatchOutcome{RecipientID: "c2", Status: models.OutcomeError, Detail: "Too Many Requests"}, resp.Results[1])
	assert.Equal(t, models.OutcomeSent, resp.Results[2].Status)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	first := raw["results"].([]any)[0].(map[string]any)
	assert.Equal(t, "c1", first["contactId"])

	require.Len(t, events.events, 1)
	assert.Equal(t, models.BatchEventCompleted, events.events[0].Status)
	assert.Equal(t, 2, events.events[0].Sent)
	assert.Equal(t, 1, events.events[0].Failed)
}

func TestSendInvalidPayload(t *testing.T) {
	srv := newServer(t, mockDispatcher(t, smsprovider.Sender{FromNumber: "+15005550006"}))

	for _, body := range []string{
		`not json`,
		`{"profile":{"name":"J"},"template":"hi","contacts":[]}`,
		`{"profile":{"name":""},"template":"hi","contacts":[{"id":"1","name":"A","phone":"1"}]}`,
	} {
		rec := do(t, srv, http.MethodPost, "/api/send", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid request payload."}`, rec.Body.String())
	}
}

func TestSendBodyTooLarge(t *testing.T) {
	srv := newServer(t, mockDispatcher(t, smsprovider.Sender{FromNumber: "+15005550006"}), api.WithMaxBodyBytes(32))

	rec := do(t, srv, http.MethodPost, "/api/send", sendBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid request payload."}`, rec.Body.String())
}

func TestSendMissingConfiguration(t *testing.T) {
	events := &eventRecorder{}
	srv := newServer(t, mockDispatcher(t, smsprovider.Sender{}), api.WithPublisher(events))

	rec := do(t, srv, http.MethodPost, "/api/send", sendBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, config.ErrMissingTwilio.Error(), resp.Error)

	require.Len(t, events.events, 1)
	assert.Equal(t, models.BatchEventFailed, events.events[0].Status)
	assert.Equal(t, "b-1", events.events[0].BatchID)
}

func TestSendUnexpectedError(t *testing.T) {
	srv := newServer(t, failingDispatcher{err: errors.New("database on fire")})

	rec := do(t, srv, http.MethodPost, "/api/send", sendBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Unexpected error."}`, rec.Body.String())
}

func TestSendIgnoresPublishFailure(t *testing.T) {
	events := &eventRecorder{err: errors.New("broker down")}
	srv := newServer(t, mockDispatcher(t, smsprovider.Sender{FromNumber: "+15005550006"}), api.WithPublisher(events))

	rec := do(t, srv, http.MethodPost, "/api/send", sendBody)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPreviewRendersWithoutProvider(t *testing.T) {
	srv := newServer(t, dispatch.New(nil, smsprovider.Sender{}, zerolog.Nop()))

	rec := do(t, srv, http.MethodPost, "/api/preview", sendBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Previews, 3)
	assert.Equal(t, api.Preview{
		ContactID: "c1",
		Body:      "Hey Alex! It's Jordan Lee.\n\nChecking in about Acme.\n\nTalk soon, Jordan Lee",
	}, resp.Previews[0])
	assert.Equal(t, "Hey Sam! It's Jordan Lee.\n\nChecking in about .\n\nTalk soon, Jordan Lee", resp.Previews[1].Body)
}

func TestHealth(t *testing.T) {
	srv := newServer(t, dispatch.New(nil, smsprovider.Sender{}, zerolog.Nop()), api.WithBackend("twilio"))

	rec := do(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","backend":"twilio","configured":false,"events":false}`, rec.Body.String())

	srv = newServer(t, mockDispatcher(t, smsprovider.Sender{FromNumber: "+1"}), api.WithBackend("mock"), api.WithPublisher(&eventRecorder{}))
	rec = do(t, srv, http.MethodGet, "/healthz", "")
	assert.JSONEq(t, `{"status":"ok","backend":"mock","configured":true,"events":true}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newServer(t, mockDispatcher(t, smsprovider.Sender{FromNumber: "+1"}))
	_ = do(t, srv, http.MethodPost, "/api/send", sendBody)

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dispatch_batch_total")
	assert.Contains(t, rec.Body.String(), "dispatch_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	srv := newServer(t, mockDispatcher(t, smsprovider.Sender{FromNumber: "+1"}))

	req := httptest.NewRequest(http.MethodOptions, "/api/send", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverMiddleware(t *testing.T) {
	h := api.RecoverMiddleware(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Unexpected error."}`, rec.Body.String())
}
