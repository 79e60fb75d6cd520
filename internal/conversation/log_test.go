package conversation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingStartsWithSystemPrompt(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "conversation.json"), "be brief")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	msgs := l.Messages()
	if len(msgs) != 1 || msgs[0] != (Message{Role: RoleSystem, Content: "be brief"}) {
		t.Fatalf("unexpected initial log: %+v", msgs)
	}
}

func TestEntriesGrowByTwoPerExchange(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "conversation.json"), "sys")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for n := 1; n <= 3; n++ {
		l.Append("question", "answer")
		if l.Len() != 1+2*n {
			t.Fatalf("after %d exchanges expected %d entries, got %d", n, 1+2*n, l.Len())
		}
	}
	msgs := l.Messages()
	for i := 1; i < len(msgs); i += 2 {
		if msgs[i].Role != RoleUser || msgs[i+1].Role != RoleAssistant {
			t.Fatalf("unexpected role order at %d: %s, %s", i, msgs[i].Role, msgs[i+1].Role)
		}
	}
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "conversation.json")
	l, err := Load(path, "आप एक सहायक हैं")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	l.Append("नमस्ते, आप कैसे हैं?", "मैं ठीक हूँ \"धन्यवाद\"\nnew line")
	l.Append("what's <b>2+2</b> & why?", "4")
	if err := l.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !strings.Contains(string(data), "\n  {\n    \"role\": \"system\"") {
		t.Fatalf("expected two-space pretty printing, got:\n%s", data)
	}

	reloaded, err := Load(path, "ignored")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	want, got := l.Messages(), reloaded.Messages()
	if len(want) != len(got) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("entry %d mismatch: %+v vs %+v", i, want[i], got[i])
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files cleaned up, found %d entries", len(entries))
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversation.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path, "sys"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWindowKeepsSystemPrompt(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "conversation.json"), "sys")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	l.Append("q1", "a1")
	l.Append("q2", "a2")

	w := l.Window(2)
	if len(w) != 3 || w[0].Role != RoleSystem || w[1].Content != "q2" || w[2].Content != "a2" {
		t.Fatalf("unexpected window: %+v", w)
	}
	if len(l.Window(0)) != 5 || len(l.Window(10)) != 5 {
		t.Fatal("expected full history for unbounded window")
	}

	pending := l.Pending("q3", 0)
	if len(pending) != 6 || pending[5] != (Message{Role: RoleUser, Content: "q3"}) {
		t.Fatalf("unexpected pending history: %+v", pending)
	}
	if l.Len() != 5 {
		t.Fatalf("pending must not modify the log, got %d entries", l.Len())
	}
}
