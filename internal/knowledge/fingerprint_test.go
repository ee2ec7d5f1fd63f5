package knowledge

import (
	"regexp"
	"testing"
)

var hashKeyPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

func TestHashKeyIsDeterministic(t *testing.T) {
	build := func() Fingerprint {
		return NewFingerprint("node").WithPort(3000).WithProjectHash("abc").WithContainerPrefix("dss")
	}
	first := build().HashKey()
	for i := 0; i < 10; i++ {
		if got := build().HashKey(); got != first {
			t.Fatalf("hash key changed between calls: %s != %s", got, first)
		}
	}
	if !hashKeyPattern.MatchString(first) {
		t.Fatalf("hash key %q is not 16 lowercase hex digits", first)
	}
}

// Stored knowledge files are keyed by these values, so they must never move.
func TestHashKeyGoldenValues(t *testing.T) {
	tests := []struct {
		name string
		fp   Fingerprint
		want string
	}{
		{"bare command", NewFingerprint("node"), "ef9631dfd0b24676"},
		{"command and port", NewFingerprint("node").WithPort(3000), "cacf886377c5a10e"},
		{"all fields", NewFingerprint("node").WithPort(3000).WithProjectHash("abc").WithContainerPrefix("dss"), "fb01cad8efd7bdb3"},
		{"container app", NewFingerprint("dss_app").WithPort(8080).WithContainerPrefix("dss"), "a96d242af8824150"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fp.HashKey(); got != tt.want {
				t.Fatalf("HashKey() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHashKeyDistinguishesFields(t *testing.T) {
	fingerprints := map[string]Fingerprint{
		"bare":           NewFingerprint("node"),
		"port":           NewFingerprint("node").WithPort(3000),
		"other port":     NewFingerprint("node").WithPort(3001),
		"zero port":      NewFingerprint("node").WithPort(0),
		"project":        NewFingerprint("node").WithProjectHash("x"),
		"prefix":         NewFingerprint("node").WithContainerPrefix("x"),
		"empty project":  NewFingerprint("node").WithProjectHash(""),
		"other command":  NewFingerprint("nodex"),
		"split boundary": NewFingerprint("nod").WithProjectHash("ex"),
	}
	seen := make(map[string]string, len(fingerprints))
	for name, fp := range fingerprints {
		key := fp.HashKey()
		if other, ok := seen[key]; ok {
			t.Fatalf("%s and %s share hash key %s", name, other, key)
		}
		seen[key] = name
	}
}

func TestBuildersReturnCopies(t *testing.T) {
	base := NewFingerprint("python")
	withPort := base.WithPort(8000)
	if base.DefaultPort != nil {
		t.Fatal("WithPort mutated the receiver")
	}
	if withPort.DefaultPort == nil || *withPort.DefaultPort != 8000 {
		t.Fatalf("unexpected port %+v", withPort.DefaultPort)
	}
	if base.HashKey() == withPort.HashKey() {
		t.Fatal("expected port to change the hash key")
	}
}
