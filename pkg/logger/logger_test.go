package logger

import (
	"reflect"
	"testing"
)

type recorder struct {
	lines []string
}

func (r *recorder) record(level, message string, keyvals []any) {
	r.lines = append(r.lines, level+" "+message)
	_ = keyvals
}

func (r *recorder) Log(m string, kv ...any)   { r.record("LOG", m, kv) }
func (r *recorder) Debug(m string, kv ...any) { r.record("DEBUG", m, kv) }
func (r *recorder) Info(m string, kv ...any)  { r.record("INFO", m, kv) }
func (r *recorder) Warn(m string, kv ...any)  { r.record("WARN", m, kv) }
func (r *recorder) Error(m string, kv ...any) { r.record("ERROR", m, kv) }
func (r *recorder) Fatal(m string, kv ...any) { r.record("FATAL", m, kv) }

func TestDispatchToAllBackends(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Init(a, b)
	defer Init()

	Info("[Session] Ingesting", "batch", 1)
	Warn("[Extract] Skipping evidence", "evidence_id", "e1")
	Log("plain")

	want := []string{"INFO [Session] Ingesting", "WARN [Extract] Skipping evidence", "LOG plain"}
	for _, r := range []*recorder{a, b} {
		if !reflect.DeepEqual(r.lines, want) {
			t.Errorf("lines = %#v, want %#v", r.lines, want)
		}
	}
}

func TestNoBackendsIsNoop(t *testing.T) {
	Init()
	Error("nothing happens")
}
