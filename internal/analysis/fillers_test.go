package analysis

import "testing"

func matchText(t *testing.T, text string) []string {
	t.Helper()
	m := NewFillerMatcher()
	surfaces, normalized := tokenize(text)
	hits := m.Match(surfaces, normalized)
	canonical := make([]string, len(hits))
	for i, h := range hits {
		canonical[i] = h.Canonical
	}
	return canonical
}

func TestFillerMatcher_Match(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single words",
			text: "um so I basically rewrote it",
			want: []string{"um", "basically"},
		},
		{
			name: "phrase consumes window",
			text: "it was kind of slow",
			want: []string{"kind of"},
		},
		{
			name: "longest phrase wins",
			text: "you know what I mean right",
			want: []string{"you know what i mean"},
		},
		{
			name: "case and punctuation insensitive",
			text: "Um, I think... Uh, yes.",
			want: []string{"um", "uh"},
		},
		{
			name: "elongated hesitations match phonetically",
			text: "ummm that would uhh work",
			want: []string{"um", "uh"},
		},
		{
			name: "content words sharing sounds do not match",
			text: "under the umbrella of errors",
			want: nil,
		},
		{
			name: "repetitions are all counted",
			text: "um um um",
			want: []string{"um", "um", "um"},
		},
		{
			name: "empty input",
			text: "",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchText(t, tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("hits = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("hit[%d] = %q, want %q (all: %v)", i, got[i], tt.want[i], got)
				}
			}
		})
	}
}

func TestFillerMatcher_SurfacePreserved(t *testing.T) {
	m := NewFillerMatcher()
	surfaces, normalized := tokenize("Ummm, right")
	hits := m.Match(surfaces, normalized)
	if len(hits) != 1 {
		t.Fatalf("hits = %v, want one", hits)
	}
	if hits[0].Surface != "Ummm," {
		t.Fatalf("Surface = %q, want original token form", hits[0].Surface)
	}
	if hits[0].Canonical != "um" {
		t.Fatalf("Canonical = %q, want um", hits[0].Canonical)
	}
}
