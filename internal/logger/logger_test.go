package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func reset() {
	SetLevel(LogLevelInfo)
	debugLogger.SetOutput(os.Stdout)
	infoLogger.SetOutput(os.Stdout)
	warningLogger.SetOutput(os.Stdout)
	errorLogger.SetOutput(os.Stderr)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer reset()

	SetLevel(LogLevelInfo)
	Debug("hidden %d", 1)
	Info("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message logged at info level: %q", out)
	}
	if !strings.Contains(out, "shown 2") {
		t.Errorf("info message missing: %q", out)
	}

	buf.Reset()
	SetLevel(LogLevelDebug)
	Debug("now visible")
	if !strings.Contains(buf.String(), "DEBUG: now visible") {
		t.Errorf("debug message missing at debug level: %q", buf.String())
	}
}

func TestTaggedPrefix(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer reset()

	InfoTagged([]string{"Box", "alice@example.com"}, "uploaded %s", "a.jpg")
	if !strings.Contains(buf.String(), "[Box][alice@example.com] uploaded a.jpg") {
		t.Errorf("unexpected tagged output: %q", buf.String())
	}

	buf.Reset()
	WarningTagged([]string{"Dropbox"}, "retrying")
	if !strings.Contains(buf.String(), "WARNING: [Dropbox] retrying") {
		t.Errorf("unexpected tagged warning: %q", buf.String())
	}
}
