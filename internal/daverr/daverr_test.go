package daverr

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCodeRecognizesEachErrorShape(t *testing.T) {
	if got := Code(WithStatus(http.StatusBadRequest, "bad")); got != http.StatusBadRequest {
		t.Fatalf("WithStatus code = %d, want %d", got, http.StatusBadRequest)
	}
	if got := Code(Forbidden(ConditionNeedPrivileges)); got != http.StatusForbidden {
		t.Fatalf("Forbidden code = %d, want %d", got, http.StatusForbidden)
	}
	if got := Code(errors.New("plain")); got != http.StatusInternalServerError {
		t.Fatalf("plain error code = %d, want %d", got, http.StatusInternalServerError)
	}
}

type fakeCarrier struct{ status int }

func (f *fakeCarrier) Error() string   { return "fake" }
func (f *fakeCarrier) HTTPStatus() int { return f.status }

func TestCodeRecognizesSiblingStatusCarrier(t *testing.T) {
	if got := Code(&fakeCarrier{status: http.StatusConflict}); got != http.StatusConflict {
		t.Fatalf("sibling carrier code = %d, want %d", got, http.StatusConflict)
	}
}

func TestToResponseWritesConditionBody(t *testing.T) {
	rec := httptest.NewRecorder()
	ToResponse(rec, Forbidden(ConditionNeedPrivileges))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml; charset=utf-8" {
		t.Fatalf("content-type = %q", ct)
	}
	if body := rec.Body.String(); !strings.Contains(body, "need-privileges") {
		t.Fatalf("body missing condition element: %s", body)
	}
}

func TestToResponsePlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	ToResponse(rec, WithStatus(http.StatusNotFound, "gone"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
