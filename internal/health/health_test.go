package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPHandlerNoPool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	HTTPHandler("pulsehook-test", nil)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if !st.OK {
		t.Error("OK = false, want true")
	}
	if st.Service != "pulsehook-test" {
		t.Errorf("Service = %q", st.Service)
	}
}
