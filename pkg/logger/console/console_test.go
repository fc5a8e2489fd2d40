package console

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestConsoleLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(ConsoleLoggerParams{JSON: true, Writer: &buf})

	l.Info("[Session] Batch committed", "session_id", "s1", "paths", 2)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if line["msg"] != "[Session] Batch committed" || line["session_id"] != "s1" {
		t.Errorf("unexpected log line: %v", line)
	}
}

func TestConsoleLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(ConsoleLoggerParams{Writer: &buf})
	l.Debug("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("debug output without Debug flag: %q", buf.String())
	}

	buf.Reset()
	l = NewConsoleLogger(ConsoleLoggerParams{Debug: true, Writer: &buf})
	l.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("missing debug output: %q", buf.String())
	}
}
