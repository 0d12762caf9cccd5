package core

import "testing"

func TestParseTargetStringGrammar(t *testing.T) {
	cases := []struct {
		in   string
		kind TargetKind
	}{
		{"", TargetSystemDefault},
		{"hwnd:0xABC", TargetWindowHandle},
		{"pid:1234", TargetProcessID},
		{"display_2", TargetDisplayID},
		{"some-opaque-device", TargetDeviceID},
	}
	for _, c := range cases {
		got, err := ParseTargetString(c.in)
		if err != nil {
			t.Fatalf("ParseTargetString(%q): %v", c.in, err)
		}
		if got.Kind != c.kind {
			t.Errorf("ParseTargetString(%q).Kind = %v, want %v", c.in, got.Kind, c.kind)
		}
	}
}

func TestParseTargetStringRejectsBadValues(t *testing.T) {
	for _, in := range []string{"pid:notanumber", "hwnd:zzz", "display_oops"} {
		if _, err := ParseTargetString(in); err == nil {
			t.Errorf("ParseTargetString(%q): expected error", in)
		}
	}
}

func TestTargetStringRoundTrip(t *testing.T) {
	for _, in := range []string{"pid:1234", "hwnd:0xabc", "display_2"} {
		parsed, err := ParseTargetString(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		out := FormatTargetString(parsed)
		reparsed, err := ParseTargetString(out)
		if err != nil {
			t.Fatalf("reparse %q: %v", out, err)
		}
		if reparsed.Kind != parsed.Kind || reparsed.PID != parsed.PID ||
			reparsed.WindowHandle != parsed.WindowHandle || reparsed.DisplayID != parsed.DisplayID {
			t.Errorf("round trip mismatch: %q -> %q -> %+v", in, out, reparsed)
		}
	}
}
