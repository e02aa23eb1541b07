package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	orig := Logf
	defer SetLogger(orig)

	var captured string
	SetLogger(func(format string, v ...interface{}) {
		captured = fmt.Sprintf(format, v...)
	})

	Logf("hello %d", 42)
	if captured != "hello 42" {
		t.Errorf("captured %q, want %q", captured, "hello 42")
	}
}

func TestSetLoggerNilInstallsNoop(t *testing.T) {
	orig := Logf
	defer SetLogger(orig)

	SetLogger(nil)
	// must not panic
	Logf("dropped %s", "message")
}

func TestDebugfGatedByVerbose(t *testing.T) {
	orig := Logf
	defer func() {
		SetLogger(orig)
		SetVerbose(false)
	}()

	var calls int
	SetLogger(func(string, ...interface{}) { calls++ })

	SetVerbose(false)
	Debugf("quiet")
	if calls != 0 {
		t.Fatalf("Debugf logged while verbose off")
	}

	SetVerbose(true)
	Debugf("loud")
	if calls != 1 {
		t.Errorf("Debugf calls = %d, want 1", calls)
	}
}
