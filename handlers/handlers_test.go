package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tempmon/config"
	"tempmon/models"
	"tempmon/services"
	"tempmon/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var baseTime = time.Date(2025, 3, 15, 14, 0, 0, 0, time.UTC)

// tickingClock advances one minute per call.
func tickingClock() func() time.Time {
	next := baseTime
	return func() time.Time {
		t := next
		next = next.Add(time.Minute)
		return t
	}
}

func newTestRouter(s *store.MemoryStore) *gin.Engine {
	cache := services.NewDisabledCache()
	auth := services.NewAuthService(config.JWTConfig{Secret: "test-secret", ExpiryHours: 1})
	r := gin.New()
	RegisterRoutes(r,
		NewSampleHandler(s, cache),
		NewPredictHandler(services.NewForecaster(s, s, cache)),
		LiveWebSocket(cache, auth),
	)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateSample(t *testing.T) {
	s := store.NewMemoryStore()
	r := newTestRouter(s)

	submitted := time.Now().UTC().Add(-time.Millisecond)
	w := do(r, http.MethodPost, "/samples",
		`{"cpu_temp": 55.5, "battery_temp": 41.2, "timestamp": "1999-01-01T00:00:00Z"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	var got models.Sample
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.CPUTemp != 55.5 || got.BatteryTemp != 41.2 {
		t.Errorf("got %+v", got)
	}
	if got.Timestamp.Before(submitted) {
		t.Errorf("timestamp %v is before submission %v; client timestamp must be ignored", got.Timestamp, submitted)
	}
	if s.SampleCount() != 1 {
		t.Errorf("SampleCount() = %d, want 1", s.SampleCount())
	}

	w = do(r, http.MethodGet, "/samples", "")
	var listed []models.Sample
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || !listed[0].Timestamp.Equal(got.Timestamp) {
		t.Errorf("listed = %+v, want the created sample", listed)
	}
}

func TestCreateSampleAcceptsZero(t *testing.T) {
	s := store.NewMemoryStore()
	w := do(newTestRouter(s), http.MethodPost, "/samples", `{"cpu_temp": 0, "battery_temp": -3.5}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
}

func TestCreateSampleValidation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
		wantMsg   string
	}{
		{"cpu is a word", `{"cpu_temp": "hot", "battery_temp": 40}`, "cpu_temp", msgNumber},
		{"battery is a word in quotes", `{"cpu_temp": 50, "battery_temp": "forty"}`, "battery_temp", msgNumber},
		{"cpu is an object", `{"cpu_temp": {"v": 1}, "battery_temp": 40}`, "cpu_temp", msgNumber},
		{"cpu is NaN text", `{"cpu_temp": "NaN", "battery_temp": 40}`, "cpu_temp", msgNumber},
		{"cpu is a bool", `{"cpu_temp": true, "battery_temp": 40}`, "cpu_temp", msgNumber},
		{"cpu missing", `{"battery_temp": 40}`, "cpu_temp", msgRequired},
		{"battery null", `{"cpu_temp": 50, "battery_temp": null}`, "battery_temp", msgRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			w := do(newTestRouter(s), http.MethodPost, "/samples", tt.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			var got map[string][]string
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v (%s)", err, w.Body.String())
			}
			msgs := got[tt.wantField]
			if len(msgs) != 1 || msgs[0] != tt.wantMsg {
				t.Errorf("errors = %v, want %s: [%s]", got, tt.wantField, tt.wantMsg)
			}
			if s.SampleCount() != 0 {
				t.Errorf("SampleCount() = %d, want 0", s.SampleCount())
			}
		})
	}
}

func TestCreateSampleAcceptsNumericStrings(t *testing.T) {
	s := store.NewMemoryStore()
	w := do(newTestRouter(s), http.MethodPost, "/samples", `{"cpu_temp": "55.5", "battery_temp": " 40 "}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	var got models.Sample
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.CPUTemp != 55.5 || got.BatteryTemp != 40 {
		t.Errorf("got %+v, want cpu 55.5 battery 40", got)
	}
}

func TestCreateSampleReportsEveryField(t *testing.T) {
	tests := []struct {
		name string
		body string
		want map[string]string
	}{
		{
			"both non-numeric",
			`{"cpu_temp": "hot", "battery_temp": "warm"}`,
			map[string]string{"cpu_temp": msgNumber, "battery_temp": msgNumber},
		},
		{
			"one non-numeric, one missing",
			`{"cpu_temp": "hot"}`,
			map[string]string{"cpu_temp": msgNumber, "battery_temp": msgRequired},
		},
		{
			"one null, one bool",
			`{"cpu_temp": null, "battery_temp": false}`,
			map[string]string{"cpu_temp": msgRequired, "battery_temp": msgNumber},
		},
		{
			"empty object",
			`{}`,
			map[string]string{"cpu_temp": msgRequired, "battery_temp": msgRequired},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			w := do(newTestRouter(s), http.MethodPost, "/samples", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			var got map[string][]string
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v (%s)", err, w.Body.String())
			}
			if len(got) != len(tt.want) {
				t.Errorf("errors = %v, want %d fields", got, len(tt.want))
			}
			for field, msg := range tt.want {
				if msgs := got[field]; len(msgs) != 1 || msgs[0] != msg {
					t.Errorf("%s = %v, want [%s]", field, msgs, msg)
				}
			}
			if s.SampleCount() != 0 {
				t.Errorf("SampleCount() = %d, want 0", s.SampleCount())
			}
		})
	}
}

func TestCreateSampleRejectsMalformedBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"truncated", `{"cpu_temp": 50,`},
		{"trailing text", `{"cpu_temp": 40, "battery_temp": 41} trailing`},
		{"two objects", `{"cpu_temp": 40, "battery_temp": 41}{"cpu_temp": 1, "battery_temp": 2}`},
		{"array", `[{"cpu_temp": 40, "battery_temp": 41}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			w := do(newTestRouter(s), http.MethodPost, "/samples", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if s.SampleCount() != 0 {
				t.Errorf("SampleCount() = %d, want 0", s.SampleCount())
			}
		})
	}
}

func TestCreateSampleAllowsTrailingWhitespace(t *testing.T) {
	s := store.NewMemoryStore()
	w := do(newTestRouter(s), http.MethodPost, "/samples", "{\"cpu_temp\": 40, \"battery_temp\": 41}\n  ")
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
}

func TestListSamplesLatestTenDescending(t *testing.T) {
	s := store.NewMemoryStoreWithClock(tickingClock())
	r := newTestRouter(s)
	for i := 0; i < 15; i++ {
		if w := do(r, http.MethodPost, "/samples", `{"cpu_temp": 50, "battery_temp": 40}`); w.Code != http.StatusCreated {
			t.Fatalf("seed %d: status %d", i, w.Code)
		}
	}

	for _, path := range []string{"/samples", "/api/temperatures/", "/samples?limit=500"} {
		t.Run(path, func(t *testing.T) {
			w := do(r, http.MethodGet, path, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			var got []models.Sample
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != 10 {
				t.Fatalf("len = %d, want 10", len(got))
			}
			for i := 1; i < len(got); i++ {
				if !got[i].Timestamp.Before(got[i-1].Timestamp) {
					t.Fatalf("not strictly descending at %d", i)
				}
			}
			if want := baseTime.Add(14 * time.Minute); !got[0].Timestamp.Equal(want) {
				t.Errorf("newest = %v, want %v", got[0].Timestamp, want)
			}
		})
	}
}

func TestListSamplesEmpty(t *testing.T) {
	w := do(newTestRouter(store.NewMemoryStore()), http.MethodGet, "/samples", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestListSamplesCursor(t *testing.T) {
	s := store.NewMemoryStoreWithClock(tickingClock())
	r := newTestRouter(s)
	for i := 0; i < 5; i++ {
		do(r, http.MethodPost, "/samples", `{"cpu_temp": 50, "battery_temp": 40}`)
	}

	before := baseTime.Add(3 * time.Minute).Format(time.RFC3339)
	w := do(r, http.MethodGet, "/samples?limit=2&before="+before, "")
	var got []models.Sample
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !got[0].Timestamp.Equal(baseTime.Add(2*time.Minute)) || !got[1].Timestamp.Equal(baseTime.Add(time.Minute)) {
		t.Errorf("got %v, %v; want minutes 2 and 1", got[0].Timestamp, got[1].Timestamp)
	}
}

func TestPredict(t *testing.T) {
	s := store.NewMemoryStore()
	for i := 0; i < 4; i++ {
		s.SeedSample(baseTime.Add(time.Duration(i)*time.Minute), 40+float64(i), 35)
	}
	r := newTestRouter(s)

	for _, path := range []string{"/predict", "/api/temperature/predict/"} {
		t.Run(path, func(t *testing.T) {
			before := s.PredictionCount()
			w := do(r, http.MethodGet, path, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
			}
			var got []models.Prediction
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != before+1 {
				t.Errorf("len = %d, want %d", len(got), before+1)
			}
			if s.PredictionCount() != before+1 {
				t.Errorf("PredictionCount() = %d, want %d", s.PredictionCount(), before+1)
			}
			if want := baseTime.Add(3*time.Minute + time.Hour); !got[0].Timestamp.Equal(want) {
				t.Errorf("target = %v, want %v", got[0].Timestamp, want)
			}
		})
	}
}

func TestPredictInsufficientHistory(t *testing.T) {
	s := store.NewMemoryStore()
	s.SeedSample(baseTime, 40, 35)

	w := do(newTestRouter(s), http.MethodGet, "/predict", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["error"] != services.ErrInsufficientHistory.Error() {
		t.Errorf("error = %q, want %q", got["error"], services.ErrInsufficientHistory.Error())
	}
	if s.PredictionCount() != 0 {
		t.Errorf("PredictionCount() = %d, want 0", s.PredictionCount())
	}
}

func TestLiveWebSocketRejectsBeforeUpgrade(t *testing.T) {
	auth := services.NewAuthService(config.JWTConfig{Secret: "test-secret", ExpiryHours: 1})
	valid, err := auth.GenerateToken("dashboard")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	tests := []struct {
		name string
		path string
		want int
	}{
		{"missing token", "/ws/live", http.StatusUnauthorized},
		{"garbage token", "/ws/live?token=not-a-jwt", http.StatusUnauthorized},
		{"valid token without redis", "/ws/live?token=" + valid, http.StatusServiceUnavailable},
	}
	r := newTestRouter(store.NewMemoryStore())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodGet, tt.path, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
