package util

import "testing"

func TestTrimHelpers(t *testing.T) {
	if got := TrimAndLower("  SQLite "); got != "sqlite" {
		t.Fatalf("TrimAndLower=%q", got)
	}
	if v, ok := TrimEmptyCheck("   "); ok || v != "" {
		t.Fatalf("TrimEmptyCheck blank => %q,%v", v, ok)
	}
	if v, ok := TrimEmptyCheck(" x "); !ok || v != "x" {
		t.Fatalf("TrimEmptyCheck x => %q,%v", v, ok)
	}
	if got := TrimWithDefault(" ", "def"); got != "def" {
		t.Fatalf("TrimWithDefault=%q", got)
	}
}

func TestPrefixedOr(t *testing.T) {
	tests := []struct {
		explicit, prefix, want string
	}{
		{"custom", "app", "custom"},
		{"", "app", "app_changelog"},
		{"", "", "dbchangelog"},
		{"  ", "  ", "dbchangelog"},
	}
	for _, tt := range tests {
		if got := PrefixedOr(tt.explicit, tt.prefix, "_changelog", "dbchangelog"); got != tt.want {
			t.Fatalf("PrefixedOr(%q,%q)=%q, want %q", tt.explicit, tt.prefix, got, tt.want)
		}
	}
}
