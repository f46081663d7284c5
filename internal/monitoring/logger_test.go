package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	Logf("report from %s", "X1")
	if got != "report from %s" {
		t.Errorf("custom logger saw %q, want %q", got, "report from %s")
	}

	got = ""
	SetLogger(nil)
	Logf("muted message")
	if got != "" {
		t.Errorf("muted logger still recorded %q", got)
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}
