package internal

import "testing"

func TestNamespacedKey(t *testing.T) {
	tests := []struct {
		namespace string
		key       string
		want      string
	}{
		{namespace: "", key: "total", want: "total"},
		{namespace: "orders", key: "total", want: "ns=orders:k=total"},
		{namespace: "orders", key: "", want: "ns=orders:k="},
		{namespace: "a:k=b", key: "c", want: "ns=a:k=b:k=c"},
	}

	for _, tt := range tests {
		got := NamespacedKey(tt.namespace, tt.key)
		if got != tt.want {
			t.Errorf("NamespacedKey(%q, %q) = %q, want %q", tt.namespace, tt.key, got, tt.want)
		}
		if back := StripNamespace(tt.namespace, got); back != tt.key {
			t.Errorf("StripNamespace(%q, %q) = %q, want %q", tt.namespace, got, back, tt.key)
		}
	}
}

func TestNamespacedKey_NoCollisionAcrossNamespaces(t *testing.T) {
	if NamespacedKey("a", "b:c") == NamespacedKey("a:b", "c") {
		t.Error("different namespace/key pairs must not collide")
	}
}

func TestStripNamespace_ForeignKeyUnchanged(t *testing.T) {
	if got := StripNamespace("orders", "ns=users:k=1"); got != "ns=users:k=1" {
		t.Errorf("StripNamespace() = %q", got)
	}
}

func TestNamespacePattern_EscapesGlob(t *testing.T) {
	tests := []struct {
		namespace string
		want      string
	}{
		{namespace: "orders", want: "ns=orders:k="},
		{namespace: "team[1]", want: `ns=team\[1\]:k=`},
		{namespace: "a*b?c", want: `ns=a\*b\?c:k=`},
		{namespace: `x\y`, want: `ns=x\\y:k=`},
	}
	for _, tt := range tests {
		if got := namespacePattern(tt.namespace); got != tt.want {
			t.Errorf("namespacePattern(%q) = %q, want %q", tt.namespace, got, tt.want)
		}
	}
}
