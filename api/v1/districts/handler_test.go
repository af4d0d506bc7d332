package districts

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"rostersync/internal/httpx"
	"rostersync/internal/model"
)

func postJSON(t *testing.T, handler gin.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	c.Request.Header.Set("Content-Type", "application/json")
	handler(c)
	return w
}

func assertCode(t *testing.T, w *httptest.ResponseRecorder, wantStatus, wantCode int) {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("status = %d, want %d", w.Code, wantStatus)
	}
	var resp httpx.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Code != wantCode {
		t.Errorf("business code = %d, want %d", resp.Code, wantCode)
	}
}

func TestCreateValidation(t *testing.T) {
	h := NewHandler(nil)

	t.Run("rejects missing required fields", func(t *testing.T) {
		w := postJSON(t, h.Create, map[string]interface{}{"name": "Unified District"})
		assertCode(t, w, http.StatusBadRequest, httpx.CodeParamInvalid)
	})

	t.Run("rejects unknown usernameSource", func(t *testing.T) {
		w := postJSON(t, h.Create, map[string]interface{}{
			"name":           "Unified District",
			"csvFolder":      "/feeds/unified",
			"targetBaseUrl":  "https://lms.example.com",
			"usernameSource": "shoe_size",
		})
		assertCode(t, w, http.StatusBadRequest, httpx.CodeParamIllegal)
	})

	t.Run("rejects malformed dailyProcessingTime", func(t *testing.T) {
		w := postJSON(t, h.Create, map[string]interface{}{
			"name":                "Unified District",
			"csvFolder":           "/feeds/unified",
			"targetBaseUrl":       "https://lms.example.com",
			"dailyProcessingTime": "25:00",
		})
		assertCode(t, w, http.StatusBadRequest, httpx.CodeParamIllegal)
	})
}

func TestRequestActionValidation(t *testing.T) {
	h := NewHandler(nil)
	w := postJSON(t, h.RequestAction, map[string]interface{}{"id": 1, "action": "reboot"})
	assertCode(t, w, http.StatusBadRequest, httpx.CodeParamIllegal)
}

func TestValidAction(t *testing.T) {
	valid := []model.ProcessingAction{
		model.ProcessingActionLoad, model.ProcessingActionLoadSample,
		model.ProcessingActionAnalyze, model.ProcessingActionApply,
		model.ProcessingActionFullProcess,
	}
	for _, action := range valid {
		if !validAction(action) {
			t.Errorf("validAction(%q) = false, want true", action)
		}
	}
	if validAction(model.ProcessingActionNone) {
		t.Error("validAction(none) = true, a no-op is not requestable")
	}
	if validAction(model.ProcessingAction("reboot")) {
		t.Error("validAction(reboot) = true, want false")
	}
}

func TestIsRunning(t *testing.T) {
	running := []model.ProcessingStatus{
		model.ProcessingStatusLoading, model.ProcessingStatusAnalyzing, model.ProcessingStatusApplying,
	}
	for _, status := range running {
		if !isRunning(status) {
			t.Errorf("isRunning(%q) = false, want true", status)
		}
	}
	if isRunning(model.ProcessingStatusIdle) {
		t.Error("isRunning(idle) = true, want false")
	}
	if isRunning(model.ProcessingStatusLoadingDone) {
		t.Error("isRunning(loading_done) = true, want false")
	}
}
