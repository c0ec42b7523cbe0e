package diag

import (
	"strings"
	"testing"
)

func TestLocationRendering(t *testing.T) {
	loc := NewLocation("project.yaml", 3)
	loc.Push("qemu/vm")
	loc.Push("step #1")
	if got, want := loc.String(), "project.yaml: document #3: qemu/vm/step #1"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	loc.Pop()
	loc.Pop()
	loc.Pop() // popping an empty path is a no-op
	if got := loc.String(); !strings.HasSuffix(got, "document #3: ") {
		t.Errorf("unexpected rendering after pops: %q", got)
	}
}

func TestCloneDoesNotAliasPath(t *testing.T) {
	loc := NewLocation("a.yaml", 0)
	loc.Push("x")
	clone := loc.Clone()
	loc.Push("y")
	if len(clone.Path) != 1 {
		t.Errorf("clone path mutated: %v", clone.Path)
	}
}

func TestValidateIdentifier(t *testing.T) {
	loc := NewLocation("a.yaml", 0)
	for _, ok := range []string{"alpine_317", "X", "", "a_b_c", "0leading"} {
		if err := ValidateIdentifier(ok, loc); err != nil {
			t.Errorf("ValidateIdentifier(%q) = %v, want nil", ok, err)
		}
	}
	for _, bad := range []string{"has-dash", "has space", "has/slash", "ünicode"} {
		if err := ValidateIdentifier(bad, loc); err == nil {
			t.Errorf("ValidateIdentifier(%q) must fail", bad)
		}
	}
}

func TestErrorRendering(t *testing.T) {
	loc := NewLocation("p.yaml", 1)
	tests := []struct {
		err  error
		want string
	}{
		{&DuplicateSymbolError{Location: loc, Kind: "artifact", Name: "X"}, "in `p.yaml: document #1: `: duplicate `artifact` `X`"},
		{&CircularDependencyError{Cycle: []string{"A", "B", "A"}}, "circular dependency: A → B → A"},
		{&InvalidVersionError{Expected: 1, Actual: 3}, "invalid version, expected `1` but found `3`"},
		{&PluginError{Plugin: "qemu", Message: "boot failed"}, "plugin `qemu`: boot failed"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}
