package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/KaramelBytes/nca-cli/internal/report"
)

const sampleCSV = "ID,TIME,DOSE,CONC\n" +
	"1,0,100,10\n1,1,0,5\n1,2,0,2.5\n" +
	"2,0,100,20\n2,1,0,10\n2,2,0,5\n"

func newTestServer(t *testing.T) (*Server, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	s, err := New(Config{}, zerolog.New(&logs))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, &logs
}

func do(t *testing.T, s *Server, method, target, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndRequestID(t *testing.T) {
	s, logs := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}
	if !strings.Contains(logs.String(), `"path":"/healthz"`) {
		t.Fatalf("request not logged: %s", logs.String())
	}
}

func TestSummaryRawBody(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/v1/summary", "text/csv", strings.NewReader(sampleCSV))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var out struct {
		Rows []report.TimeRowDoc `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Rows) != 3 || out.Rows[0].Count != 2 || float64(out.Rows[0].Mean) != 15 {
		t.Fatalf("rows = %+v", out.Rows)
	}
}

func TestNCAMultipart(t *testing.T) {
	s, _ := newTestServer(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "pk.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(sampleCSV)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	rec := do(t, s, http.MethodPost, "/api/v1/nca?start=0&end=2&stats=mean,sd", mw.FormDataContentType(), &body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var doc report.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Name != "pk.csv" || len(doc.Sections) != 7 {
		t.Fatalf("doc = %+v", doc)
	}
	auc := doc.Sections[4]
	if auc.Label != "AUC(0-2)" || len(auc.Stats) != 2 || float64(auc.Stats[0].Value) != 16.875 {
		t.Fatalf("auc section = %+v", auc)
	}
}

func TestNCAErrors(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/v1/nca?stats=bogus", "text/csv", strings.NewReader(sampleCSV))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "bogus") {
		t.Fatalf("bogus stat = %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s, http.MethodPost, "/api/v1/nca", "text/csv", strings.NewReader("ID,TIME,DOSE,CONC\n1,0,1,-1\n"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative conc = %d", rec.Code)
	}
	noZero := "ID,TIME,DOSE,CONC\n1,1,100,5\n1,2,0,2\n"
	rec = do(t, s, http.MethodPost, "/api/v1/nca?strict=true", "text/csv", strings.NewReader(noZero))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("strict precondition = %d %s", rec.Code, rec.Body.String())
	}
}

func TestProfiles(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/v1/profiles", "text/csv", strings.NewReader(sampleCSV))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc report.PlotDoc
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Series) != 2 || doc.Series[1].Conc[0] != 20 {
		t.Fatalf("series = %+v", doc.Series)
	}
}

func TestGenerate(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"subjects":2,"times":[0,1,2,4],"dose":[100],"half_life":4,"seed":5}`
	rec := do(t, s, http.MethodPost, "/api/v1/generate?format=csv", echo.MIMEApplicationJSON, strings.NewReader(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if lines[0] != "ID,TIME,DOSE,TREND,CONC" || len(lines) != 9 {
		t.Fatalf("csv = %q", rec.Body.String())
	}

	bad := `{"subjects":2,"times":[0,1],"dose":[100,50],"half_life":4}`
	rec = do(t, s, http.MethodPost, "/api/v1/generate", echo.MIMEApplicationJSON, strings.NewReader(bad))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "single dose") {
		t.Fatalf("multi-dose = %d %s", rec.Code, rec.Body.String())
	}
}

func TestGenerateRowCap(t *testing.T) {
	s, _ := newTestServer(t)
	huge := `{"subjects":1099511627776,"times":[0],"dose":[100],"half_life":4}`
	rec := do(t, s, http.MethodPost, "/api/v1/generate", echo.MIMEApplicationJSON, strings.NewReader(huge))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "exceeds the limit") {
		t.Fatalf("huge request = %d %s", rec.Code, rec.Body.String())
	}
	overflow := `{"subjects":4611686018427387904,"times":[0,1,2,4],"dose":[100],"half_life":4}`
	rec = do(t, s, http.MethodPost, "/api/v1/generate", echo.MIMEApplicationJSON, strings.NewReader(overflow))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("overflowing request = %d %s", rec.Code, rec.Body.String())
	}

	capped, err := New(Config{MaxGenerateRows: 5}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	body := `{"subjects":2,"times":[0,1,2],"dose":[100],"half_life":4,"seed":1}`
	rec = do(t, capped, http.MethodPost, "/api/v1/generate", echo.MIMEApplicationJSON, strings.NewReader(body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("configured cap = %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/api/v1/summary", "text/csv", strings.NewReader(sampleCSV))
	rec := do(t, s, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "nca_analyses_total") {
		t.Fatalf("metrics = %d %s", rec.Code, rec.Body.String())
	}
}

func TestRecovery(t *testing.T) {
	var logs bytes.Buffer
	e := echo.New()
	e.Use(Recovery(zerolog.New(&logs)))
	e.GET("/boom", func(echo.Context) error { panic("boom") })
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(logs.String(), "panic recovered") {
		t.Fatalf("recovery = %d logs=%s", rec.Code, logs.String())
	}
}
