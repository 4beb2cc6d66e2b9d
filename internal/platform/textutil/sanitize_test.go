package textutil

import "testing"

func TestPlainTextMap(t *testing.T) {
	got := PlainTextMap(map[string]string{
		" orderId ": " o-1 ",
		"":          "ignored",
		"status":    "  ",
		"note":      "<i>fragile</i>  box",
	}, 0)
	if len(got) != 2 || got["orderId"] != "o-1" || got["note"] != "fragile box" {
		t.Fatalf("unexpected map: %#v", got)
	}
	if PlainTextMap(map[string]string{" ": "x"}, 0) != nil {
		t.Fatalf("expected nil for empty result")
	}
	if got := PlainTextMap(map[string]string{"id": "abcdef"}, 3); got["id"] != "abc" {
		t.Fatalf("expected capped value, got %q", got["id"])
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{name: "strips markup", in: `Left at <b>door</b><script>alert(1)</script>`, want: "Left at door"},
		{name: "collapses whitespace", in: "ring\n\n  twice\t please", want: "ring twice please"},
		{name: "keeps entities readable", in: "Tom & Jerry", want: "Tom & Jerry"},
		{name: "caps runes", in: "配達済みです", limit: 3, want: "配達済"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := PlainText(tc.in, tc.limit); got != tc.want {
				t.Fatalf("PlainText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
