package sandbox

import (
	"context"
	"encoding/json"
	"os/exec"
	"testing"
	"time"

	"github.com/fluxfaas/fluxfaas/internal/domain"
)

func TestParseOutputValidJSON(t *testing.T) {
	out := parseOutput("some log line\n{\"ok\":true}\n")
	if string(out) != `{"ok":true}` {
		t.Fatalf("expected last JSON line, got %s", out)
	}
}

func TestParseOutputWrapsNonJSON(t *testing.T) {
	out := parseOutput("plain text result")
	var decoded map[string]string
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("expected wrapped JSON, got error: %v", err)
	}
	if decoded["result"] != "plain text result" {
		t.Fatalf("unexpected wrap: %+v", decoded)
	}
}

func TestParseOutputEmpty(t *testing.T) {
	out := parseOutput("\n\n")
	if string(out) != "null" {
		t.Fatalf("expected null for empty stdout, got %s", out)
	}
}

func TestLimitedBufferCapsWrites(t *testing.T) {
	var b limitedBuffer
	b.limit = 4
	b.Write([]byte("abcdef"))
	if b.Len() != 4 {
		t.Fatalf("expected buffer capped at 4 bytes, got %d", b.Len())
	}
}

func TestBuildRecordSuccess(t *testing.T) {
	s := New(DefaultConfig(), nil)
	rec := s.buildRecord(nil, 10*time.Millisecond, `{"n":1}`, "", false, "", 0)
	if rec.Status != domain.StatusSuccess {
		t.Fatalf("expected success status, got %s", rec.Status)
	}
	if string(rec.Output) != `{"n":1}` {
		t.Fatalf("unexpected output: %s", rec.Output)
	}
}

func TestBuildRecordResourceBreach(t *testing.T) {
	s := New(DefaultConfig(), nil)
	rec := s.buildRecord(nil, 10*time.Millisecond, "", "", true, domain.ResourceMemory, 512)
	if rec.Status != domain.StatusFailed {
		t.Fatalf("expected failed status on resource breach, got %s", rec.Status)
	}
	if rec.ResourceErr != domain.ResourceMemory {
		t.Fatalf("expected ResourceErr=%s, got %s", domain.ResourceMemory, rec.ResourceErr)
	}
	if rec.PeakMemMB != 512 {
		t.Fatalf("expected PeakMemMB=512, got %v", rec.PeakMemMB)
	}
}

func TestExecuteInterpretedPython(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available in this environment")
	}
	s := New(DefaultConfig(), nil)
	artifact := &domain.Artifact{
		Interpreted: true,
		Source:      "def handler(event):\n    return {\"doubled\": event[\"n\"] * 2}\n",
	}
	rec, err := s.Execute(context.Background(), artifact, domain.ScriptPython, json.RawMessage(`{"n":21}`), 5*time.Second)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rec.Status != domain.StatusSuccess {
		t.Fatalf("expected success, got %s stderr=%s", rec.Status, rec.Stderr)
	}
	var out struct {
		Doubled int `json:"doubled"`
	}
	if err := json.Unmarshal(rec.Output, &out); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if out.Doubled != 42 {
		t.Fatalf("expected 42, got %d", out.Doubled)
	}
}
