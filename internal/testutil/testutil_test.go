package testutil

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

// Failure paths use a zero-value testing.T so the helper's Errorf lands on a
// throwaway recorder instead of this test. Fatalf-based helpers only get
// success-path coverage here; their failure behavior is runtime.Goexit.

func TestAssertStatusCode(t *testing.T) {
	fakeT := &testing.T{}
	AssertStatusCode(fakeT, http.StatusOK, http.StatusOK)
	if fakeT.Failed() {
		t.Error("expected no failure for matching status codes")
	}
}

func TestAssertStatusCode_Mismatch(t *testing.T) {
	fakeT := &testing.T{}
	AssertStatusCode(fakeT, http.StatusOK, http.StatusBadRequest)
	if !fakeT.Failed() {
		t.Error("expected failure for mismatched status codes")
	}
}

func TestAssertNoError(t *testing.T) {
	fakeT := &testing.T{}
	AssertNoError(fakeT, nil)
	if fakeT.Failed() {
		t.Error("expected no failure for nil error")
	}
}

func TestAssertError(t *testing.T) {
	fakeT := &testing.T{}
	AssertError(fakeT, errors.New("something wrong"))
	if fakeT.Failed() {
		t.Error("expected no failure when error is present")
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	}
	DecodeJSON(t, strings.NewReader(`{"status":"ok","count":2}`), &out)

	if out.Status != "ok" {
		t.Errorf("status = %s, want ok", out.Status)
	}
	if out.Count != 2 {
		t.Errorf("count = %d, want 2", out.Count)
	}
}
