package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"medvise-backend/internal/core"
	"medvise-backend/internal/store"
	"medvise-backend/pkg"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// queueLLM returns queued replies in order, then fails.
type queueLLM struct {
	mu      sync.Mutex
	replies []string
}

func (q *queueLLM) Complete(context.Context, string, string, float32) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.replies) == 0 {
		return "", errors.New("provider unavailable")
	}
	out := q.replies[0]
	q.replies = q.replies[1:]
	return out, nil
}

type stubExtractor struct{}

func (stubExtractor) ExtractText(data []byte, _ string) (string, error) {
	return "Glukoz 110 mg/dL", nil
}

func newTestServer(t *testing.T, replies ...string) *Server {
	t.Helper()
	svc, err := core.NewIntakeService(core.Options{
		Store:          store.New(store.Options{}),
		LLM:            &queueLLM{replies: replies},
		Extractor:      stubExtractor{},
		Logger:         zerolog.Nop(),
		MaxUploadBytes: 64,
	})
	if err != nil {
		t.Fatal(err)
	}
	srv, err := NewServer(svc, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return srv
}

func do(t *testing.T, srv *Server, method, path, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(headerSessionID, sessionID)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, srv *Server) string {
	t.Helper()
	w := do(t, srv, http.MethodPost, "/sessions", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("POST /sessions = %d", w.Code)
	}
	var resp pkg.CreateSessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.SessionID) != 32 {
		t.Fatalf("session_id = %q, want 32 hex chars", resp.SessionID)
	}
	return resp.SessionID
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestRootAndHealth(t *testing.T) {
	srv := newTestServer(t)
	if w := do(t, srv, http.MethodGet, "/", "", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"service":"medvise-backend"`) {
		t.Errorf("GET / = %d %s", w.Code, w.Body.String())
	}
	if w := do(t, srv, http.MethodGet, "/health", "", ""); w.Code != http.StatusOK || w.Body.String() != `{"ok":true}` {
		t.Errorf("GET /health = %d %s", w.Code, w.Body.String())
	}
}

func TestNewServerRequiresIntake(t *testing.T) {
	if _, err := NewServer(nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error")
	}
}

func TestInitialAssessmentEndToEnd(t *testing.T) {
	srv := newTestServer(t, "[GO_EXPERT]", "Muhtemelen viral bir enfeksiyon.")
	id := createSession(t, srv)

	w := do(t, srv, http.MethodPost, "/assessment/initial", id, `{"name":"Ayşe","symptoms":"ateş"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var content pkg.ContentResponse
	decodeBody(t, w, &content)
	if content.Content != "Muhtemelen viral bir enfeksiyon." {
		t.Errorf("content = %q", content.Content)
	}

	w = do(t, srv, http.MethodGet, "/sessions/"+id, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET session = %d", w.Code)
	}
	var sess pkg.Session
	decodeBody(t, w, &sess)
	if sess.Stage != pkg.StageExpertEvaluation || sess.Patient.Name != "Ayşe" || len(sess.History) != 2 {
		t.Errorf("session = %+v", sess)
	}
}

func TestChatSend(t *testing.T) {
	srv := newTestServer(t, "1. Ne zamandan beri?")
	id := createSession(t, srv)

	w := do(t, srv, http.MethodPost, "/chat/send", id, `{"message":"başım ağrıyor"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != `{"content":"1. Ne zamandan beri?","auto_expert":false}` {
		t.Errorf("body = %s", got)
	}
}

func TestChatSend_MissingMessage(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	w := do(t, srv, http.MethodPost, "/chat/send", id, `{"mode":"auto"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	if !strings.Contains(w.Body.String(), `{"loc":"message","msg":"field required"}`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestSessionResolution(t *testing.T) {
	srv := newTestServer(t)
	paths := []string{
		"/assessment/initial", "/assessment/follow-up", "/assessment/expert",
		"/chat/send", "/labs/analyze", "/labs/follow-up", "/labs/final", "/labs/upload-pdf",
	}
	for _, p := range paths {
		for _, sid := range []string{"", "unknown"} {
			w := do(t, srv, http.MethodPost, p, sid, `{}`)
			if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), notFoundDetail) {
				t.Errorf("POST %s (session %q) = %d %s", p, sid, w.Code, w.Body.String())
			}
		}
	}
	if w := do(t, srv, http.MethodGet, "/sessions/unknown", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET /sessions/unknown = %d", w.Code)
	}
}

func TestValidationFailure(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	w := do(t, srv, http.MethodPost, "/assessment/follow-up", id, `{"patientData":{"age":"otuz"}}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	var resp struct {
		Detail []struct {
			Loc string `json:"loc"`
			Msg string `json:"msg"`
		} `json:"detail"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Detail) != 1 || resp.Detail[0].Loc != "age" {
		t.Errorf("detail = %+v", resp.Detail)
	}

	if w := do(t, srv, http.MethodPost, "/assessment/follow-up", id, `[1,2]`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("array body = %d, want 422", w.Code)
	}
}

func TestUpstreamFailure(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	w := do(t, srv, http.MethodPost, "/labs/final", id, ``)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if !strings.Contains(w.Body.String(), core.OpLabFinal) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestLabEndpoints(t *testing.T) {
	srv := newTestServer(t, "Değerler normal.", "1. Aç mıydınız?", "Risk düşük.")
	id := createSession(t, srv)

	w := do(t, srv, http.MethodPost, "/labs/analyze", id,
		`{"stage":"lab_analysis","patientData":{"labResults":[{"name":"Glukoz","value":"110","normalRange":"70-100"}]}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("analyze = %d %s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != `{"content":"Değerler normal.","requiresFollowUp":false,"questions":[],"criticalAlerts":[]}` {
		t.Errorf("analyze body = %s", got)
	}

	w = do(t, srv, http.MethodPost, "/labs/follow-up", id, `{"stage":"lab_follow_up","patientData":{}}`)
	var follow pkg.LabFollowUpResponse
	decodeBody(t, w, &follow)
	if len(follow.Questions) != 1 || follow.Questions[0] != "Aç mıydınız?" {
		t.Errorf("follow-up = %+v", follow)
	}

	w = do(t, srv, http.MethodPost, "/labs/final", id, `{"stage":"lab_final","patientData":{}}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Risk düşük.") {
		t.Errorf("final = %d %s", w.Code, w.Body.String())
	}
}

func upload(t *testing.T, srv *Server, id, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/labs/upload-pdf", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(headerSessionID, id)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestUploadPDF(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	w := upload(t, srv, id, "tahlil.pdf", []byte("%PDF-1.4 small"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	var resp pkg.UploadResponse
	decodeBody(t, w, &resp)
	if !resp.Success || resp.Filename != "tahlil.pdf" || resp.ExtractedText != "Glukoz 110 mg/dL" || resp.TextLength != 16 {
		t.Errorf("upload = %+v", resp)
	}

	if w := upload(t, srv, id, "scan.png", []byte("png")); w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("png = %d, want 415", w.Code)
	}
	if w := upload(t, srv, id, "big.pdf", bytes.Repeat([]byte("x"), 65)); w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized = %d, want 413", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/labs/upload-pdf", id, `{}`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing file = %d, want 422", w.Code)
	}
}

// countingReader records how many bytes the server pulled from the body.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func TestUploadPDF_BodyCappedBeforeParsing(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "huge.pdf")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(bytes.Repeat([]byte("x"), 4<<20))
	mw.Close()

	body := &countingReader{r: &buf}
	req := httptest.NewRequest(http.MethodPost, "/labs/upload-pdf", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(headerSessionID, id)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d %s, want 413", w.Code, w.Body.String())
	}
	if limit := int64(multipartSlack + 64 + 1); body.n > limit {
		t.Errorf("read %d bytes of the body, want at most %d", body.n, limit)
	}
}
