package engine

import "testing"

func TestParseLayout(t *testing.T) {
	tests := []struct {
		in      string
		want    LayoutMode
		wantErr bool
	}{
		{"single", SinglePage, false},
		{"", SinglePage, false},
		{"Continuous", ContinuousPages, false},
		{"multi-page", ContinuousPages, false},
		{"spread", SinglePage, true},
	}

	for _, tt := range tests {
		got, err := ParseLayout(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLayout(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLayout(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLayoutMode_String(t *testing.T) {
	if SinglePage.String() != "single" || ContinuousPages.String() != "continuous" {
		t.Errorf("unexpected names %q %q", SinglePage, ContinuousPages)
	}
}
