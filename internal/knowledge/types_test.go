package knowledge

import (
	"encoding/json"
	"testing"
)

func TestCategoryJSON(t *testing.T) {
	var c Category
	if err := json.Unmarshal([]byte(`"dev_tool"`), &c); err != nil || c != CategoryDevTool {
		t.Fatalf("expected dev_tool, got %q err=%v", c, err)
	}
	if err := json.Unmarshal([]byte(`"Backend"`), &c); err != nil || c != CategoryBackend {
		t.Fatalf("expected case-insensitive decode, got %q err=%v", c, err)
	}
	if err := json.Unmarshal([]byte(`"robot"`), &c); err == nil {
		t.Fatal("expected error for unknown category")
	}
	if err := json.Unmarshal([]byte(`7`), &c); err == nil {
		t.Fatal("expected error for non-string category")
	}
	out, err := json.Marshal(CategoryInfrastructure)
	if err != nil || string(out) != `"infrastructure"` {
		t.Fatalf("unexpected encoding %s err=%v", out, err)
	}
}

func TestProvenanceJSON(t *testing.T) {
	var p Provenance
	if err := json.Unmarshal([]byte(`"apilearned"`), &p); err != nil || p != ProvenanceAPILearned {
		t.Fatalf("expected apilearned, got %q err=%v", p, err)
	}
	if err := json.Unmarshal([]byte(`"guess"`), &p); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestFingerprintJSONUsesNulls(t *testing.T) {
	out, err := json.Marshal(NewFingerprint("node"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"command":"node","default_port":null,"project_hash":null,"container_prefix":null}`
	if string(out) != want {
		t.Fatalf("got %s want %s", out, want)
	}
}
