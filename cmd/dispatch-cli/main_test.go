package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajayykmr/persona-dispatch/internal/api"
	"github.com/ajayykmr/persona-dispatch/internal/message"
	"github.com/ajayykmr/persona-dispatch/internal/models"
)

const requestJSON = `{
  "profile": {"name": "Jordan", "opener": "Hi {firstName},", "signature": "{agentName}"},
  "template": "news for {company}",
  "contacts": [
    {"id": "c1", "name": "Alex Kim", "phone": "+15550000001", "company": "Acme"},
    {"id": "c2", "name": "Sam", "phone": "+15550000002", "company": "Globex"}
  ]
}`

func writeRequest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunPreviewTable(t *testing.T) {
	req, err := readRequest(writeRequest(t, requestJSON))
	require.NoError(t, err)

	outputFmt = "table"
	var buf bytes.Buffer
	require.NoError(t, runPreview(&buf, req, message.Format{Separator: " / "}))

	out := buf.String()
	assert.Contains(t, out, "--- c1 (+15550000001)\nHi Alex, / news for Acme / Jordan\n")
	assert.Contains(t, out, "--- c2 (+15550000002)\nHi Sam, / news for Globex / Jordan\n")
}

func TestRunPreviewJSON(t *testing.T) {
	req, err := readRequest(writeRequest(t, requestJSON))
	require.NoError(t, err)

	outputFmt = "json"
	defer func() { outputFmt = "table" }()
	var buf bytes.Buffer
	require.NoError(t, runPreview(&buf, req, message.DefaultFormat()))

	var resp api.PreviewResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Len(t, resp.Previews, 2)
	assert.Equal(t, "Hi Alex,\n\nnews for Acme\n\nJordan", resp.Previews[0].Body)
}

func TestReadRequestReportsInvalidFields(t *testing.T) {
	_, err := readRequest(writeRequest(t, `{"profile":{"name":"J"},"template":"hi","contacts":[{"id":"c1","name":"A","phone":""}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid request payload.")
	assert.Contains(t, err.Error(), "phone=required")

	_, err = readRequest("")
	assert.Error(t, err)
}

func TestClientSendAndPrint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/send", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.SendResponse{
			BatchID: "b-9",
			Results: []models.DispatchOutcome{
				{RecipientID: "c1", Status: models.OutcomeSent, Detail: "Message SID SM1"},
				{RecipientID: "c2", Status: models.OutcomeError, Detail: "Too Many Requests"},
			},
		})
	}))
	defer srv.Close()

	req, err := readRequest(writeRequest(t, requestJSON))
	require.NoError(t, err)

	resp, err := NewClient(srv.URL).Send(context.Background(), req)
	require.NoError(t, err)

	outputFmt = "table"
	var buf bytes.Buffer
	require.NoError(t, printResults(&buf, resp))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "CONTACT"))
	assert.Contains(t, out, "Message SID SM1")
	assert.Contains(t, out, "Batch b-9: 1 sent, 1 failed")
}

func TestClientSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Missing Twilio configuration."}`))
	}))
	defer srv.Close()

	req, err := readRequest(writeRequest(t, requestJSON))
	require.NoError(t, err)

	_, err = NewClient(srv.URL).Send(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, "API error (500): Missing Twilio configuration.", err.Error())
}
