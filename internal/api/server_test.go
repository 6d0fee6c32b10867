package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"printgate/internal/config"
	"printgate/internal/printer"
	"printgate/internal/queue"
)

func testApp(t *testing.T) (*App, http.Handler) {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Printers: []config.PrinterConfig{
			{ID: "label", Name: "Label", Type: "mock"},
			{ID: "office", Name: "Office", Type: "mock-document"},
		},
		Resilience: printer.DefaultResilienceConfig(),
		Queue:      config.QueueConfig{MaxSize: 10, HistorySize: 10},
	}
	cfg.Routing.DefaultLabelPrinter = "label"
	cfg.Routing.DefaultDocumentPrinter = "office"

	app, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { app.Close() })

	for _, id := range []string{"label", "office"} {
		p, _ := app.Registry.Get(id)
		p.(*printer.MockPrinter).SetPrintDelay(5 * time.Millisecond)
	}

	srv := NewServer(app)
	return app, srv.Handler
}

func pngUpload(t *testing.T, field map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var img bytes.Buffer
	if err := png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", "label.png")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(img.Bytes())
	for k, v := range field {
		w.WriteField(k, v)
	}
	w.Close()
	return &body, w.FormDataContentType()
}

func doRequest(h http.Handler, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func waitForStatus(t *testing.T, q *queue.Queue, jobID string, want queue.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if qj, ok := q.GetJob(jobID); ok && qj.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	qj, _ := q.GetJob(jobID)
	t.Fatalf("job %s never reached %s (last %s)", jobID, want, qj.Status)
}

func TestSubmitPrintJob(t *testing.T) {
	app, h := testApp(t)

	body, ct := pngUpload(t, nil)
	rec := doRequest(h, http.MethodPost, "/api/v1/print", body, ct)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		JobID     string `json:"job_id"`
		PrinterID string `json:"printer_id"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.PrinterID != "label" {
		t.Errorf("routed to %q, want label", resp.PrinterID)
	}
	if resp.Status != string(queue.StatusQueued) {
		t.Errorf("status = %q", resp.Status)
	}

	q, _ := app.Queues.Get("label")
	waitForStatus(t, q, resp.JobID, queue.StatusCompleted)

	// Job remains visible through the API after completion.
	rec = doRequest(h, http.MethodGet, "/api/v1/jobs/"+resp.JobID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET job = %d", rec.Code)
	}
}

func TestSubmitUnknownPrinter(t *testing.T) {
	_, h := testApp(t)
	body, ct := pngUpload(t, map[string]string{"printer": "nope"})
	rec := doRequest(h, http.MethodPost, "/api/v1/print", body, ct)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSubmitRejectsGarbage(t *testing.T) {
	_, h := testApp(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, _ := w.CreateFormFile("file", "junk.png")
	fw.Write([]byte("not an image"))
	w.Close()

	rec := doRequest(h, http.MethodPost, "/api/v1/print", &body, w.FormDataContentType())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestOfflineHoldAndRelease(t *testing.T) {
	app, h := testApp(t)

	p, _ := app.Registry.Get("label")
	mock := p.(*printer.MockPrinter)
	mock.SetStatus(printer.StatusOffline)
	app.Monitor.CheckNow(context.Background())

	body, ct := pngUpload(t, nil)
	rec := doRequest(h, http.MethodPost, "/api/v1/print", body, ct)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != string(queue.StatusQueuedOffline) {
		t.Fatalf("status = %q, want queued_offline", resp.Status)
	}

	mock.SetStatus(printer.StatusReady)
	app.Monitor.CheckNow(context.Background())

	q, _ := app.Queues.Get("label")
	waitForStatus(t, q, resp.JobID, queue.StatusCompleted)
}

func TestOfflineRejectedWhenHoldsDisabled(t *testing.T) {
	cfg := &config.Config{
		Server:     config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Printers:   []config.PrinterConfig{{ID: "label", Name: "Label", Type: "mock"}},
		Resilience: printer.DefaultResilienceConfig(),
		Queue:      config.QueueConfig{MaxSize: 10},
	}
	cfg.Resilience.OfflineQueueEnabled = false
	cfg.Routing.DefaultLabelPrinter = "label"

	app, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	h := NewServer(app).Handler

	p, _ := app.Registry.Get("label")
	p.(*printer.MockPrinter).SetStatus(printer.StatusOffline)

	body, ct := pngUpload(t, nil)
	rec := doRequest(h, http.MethodPost, "/api/v1/print", body, ct)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestCancelHeldJob(t *testing.T) {
	app, h := testApp(t)

	p, _ := app.Registry.Get("label")
	p.(*printer.MockPrinter).SetStatus(printer.StatusOffline)
	app.Monitor.CheckNow(context.Background())

	body, ct := pngUpload(t, nil)
	rec := doRequest(h, http.MethodPost, "/api/v1/print", body, ct)
	var resp struct {
		JobID string `json:"job_id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)

	rec = doRequest(h, http.MethodDelete, "/api/v1/jobs/"+resp.JobID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel = %d, body %s", rec.Code, rec.Body)
	}

	q, _ := app.Queues.Get("label")
	qj, ok := q.GetJob(resp.JobID)
	if !ok || qj.Status != queue.StatusCancelled {
		t.Fatalf("job status = %v", qj.Status)
	}
}

func TestQueueListing(t *testing.T) {
	_, h := testApp(t)
	rec := doRequest(h, http.MethodGet, "/api/v1/queues", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Queues []queue.Stats `json:"queues"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Queues) != 2 {
		t.Fatalf("got %d queues, want 2", len(resp.Queues))
	}
}

func TestAuthProtectsRoutes(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Auth: config.AuthConfig{
			Enabled:      true,
			JWTSecret:    "test-secret",
			Username:     "operator",
			PasswordHash: string(hash),
			TokenTTL:     time.Hour,
		},
		Printers:   []config.PrinterConfig{{ID: "label", Name: "Label", Type: "mock"}},
		Resilience: printer.DefaultResilienceConfig(),
		Queue:      config.QueueConfig{MaxSize: 10},
	}
	app, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	h := NewServer(app).Handler

	rec := doRequest(h, http.MethodGet, "/api/v1/printers", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated = %d, want 401", rec.Code)
	}

	login, _ := json.Marshal(map[string]string{"username": "operator", "password": "hunter2"})
	rec = doRequest(h, http.MethodPost, "/api/v1/auth/login", bytes.NewBuffer(login), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d, body %s", rec.Code, rec.Body)
	}
	var loginResp struct {
		Token string `json:"token"`
	}
	json.Unmarshal(rec.Body.Bytes(), &loginResp)
	if loginResp.Token == "" {
		t.Fatal("no token returned")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/printers", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated = %d, body %s", rec.Code, rec.Body)
	}

	badLogin, _ := json.Marshal(map[string]string{"username": "operator", "password": "wrong"})
	rec = doRequest(h, http.MethodPost, "/api/v1/auth/login", bytes.NewBuffer(badLogin), "application/json")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login = %d, want 401", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	_, h := testApp(t)
	rec := doRequest(h, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}
