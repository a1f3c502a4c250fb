package workspace

import "testing"

func TestSplitFrontmatter(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantHeader string
		wantBody   string
		wantOK     bool
	}{
		{
			name:       "header and body",
			content:    "---\nname: x\n---\n\nBody text.\n",
			wantHeader: "\nname: x",
			wantBody:   "Body text.",
			wantOK:     true,
		},
		{
			name:     "no header",
			content:  "Plain body.\n",
			wantBody: "Plain body.\n",
			wantOK:   false,
		},
		{
			name:     "unterminated header",
			content:  "---\nname: x\n",
			wantBody: "---\nname: x\n",
			wantOK:   false,
		},
		{
			name:       "empty body",
			content:    "---\nname: x\n---",
			wantHeader: "\nname: x",
			wantBody:   "",
			wantOK:     true,
		},
		{
			name:       "body containing separator",
			content:    "---\nname: x\n---\nfirst\n\n---\n\nsecond\n",
			wantHeader: "\nname: x",
			wantBody:   "first\n\n---\n\nsecond",
			wantOK:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, body, ok := splitFrontmatter(tt.content)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if header != tt.wantHeader {
				t.Fatalf("header = %q, want %q", header, tt.wantHeader)
			}
			if body != tt.wantBody {
				t.Fatalf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}
