package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/navincodesalot/moonshot/internal/platform/apierr"
)

func TestRespondErrMapsAPIErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{"conflict", fmt.Errorf("run: %w", apierr.Conflict("analysis_in_progress", errors.New("Analysis already in progress"))), http.StatusConflict, "analysis_in_progress", "run: Analysis already in progress"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error", "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			RespondErr(c, tt.err)

			if rec.Code != tt.status {
				t.Fatalf("status: want=%d got=%d", tt.status, rec.Code)
			}
			var body ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tt.code || body.Error != tt.msg {
				t.Fatalf("body: want=(%q,%q) got=(%q,%q)", tt.msg, tt.code, body.Error, body.Code)
			}
		})
	}
}

func TestRespondErrorWithoutCauseUsesStatusText(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	RespondError(c, http.StatusNotFound, "report_not_found", nil)

	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "Not Found" {
		t.Fatalf("error: want=%q got=%q", "Not Found", body.Error)
	}
}
