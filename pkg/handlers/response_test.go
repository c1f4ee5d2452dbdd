package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		message    string
	}{
		{"bad request", http.StatusBadRequest, "invalid request body"},
		{"too many requests", http.StatusTooManyRequests, "Rate limit exceeded"},
		{"internal error", http.StatusInternalServerError, "Query processing failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			if err := ErrorResponse(rec, tt.statusCode, tt.message); err != nil {
				t.Fatalf("ErrorResponse returned error: %v", err)
			}

			if rec.Code != tt.statusCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.statusCode)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}

			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response body: %v", err)
			}
			if body["detail"] != tt.message {
				t.Errorf("detail = %q, want %q", body["detail"], tt.message)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	t.Run("implicit 200", func(t *testing.T) {
		rec := httptest.NewRecorder()

		payload := map[string]any{"answer": "Returned 3 rows.", "sql": "SELECT 1"}
		if err := WriteJSON(rec, http.StatusOK, payload); err != nil {
			t.Fatalf("WriteJSON returned error: %v", err)
		}

		if rec.Code != http.StatusOK {
			t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}

		var body map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response body: %v", err)
		}
		if body["answer"] != "Returned 3 rows." {
			t.Errorf("answer = %v, want %q", body["answer"], "Returned 3 rows.")
		}
	})

	t.Run("explicit status", func(t *testing.T) {
		rec := httptest.NewRecorder()

		if err := WriteJSON(rec, http.StatusAccepted, map[string]int{"count": 5}); err != nil {
			t.Fatalf("WriteJSON returned error: %v", err)
		}
		if rec.Code != http.StatusAccepted {
			t.Errorf("status code = %d, want %d", rec.Code, http.StatusAccepted)
		}
	})

	t.Run("unencodable payload", func(t *testing.T) {
		rec := httptest.NewRecorder()

		if err := WriteJSON(rec, http.StatusOK, make(chan int)); err == nil {
			t.Error("expected error for unencodable payload")
		}
	})
}
