package ctm

import "testing"

func TestParseHostPort(t *testing.T) {
	addr, err := ParseHostPort("127.0.0.1", 1443)
	if err != nil {
		t.Fatalf("ParseHostPort: %v", err)
	}
	if addr.Port != 1443 || addr.IP.String() != "127.0.0.1" {
		t.Errorf("ParseHostPort = %v, want 127.0.0.1:1443", addr)
	}

	if _, err := ParseHostPort("not-an-ip", 1443); !IsKind(err, KindPton) {
		t.Errorf("ParseHostPort(bad host): got %v, want KindPton", err)
	}
}

func TestFormatAddr(t *testing.T) {
	if got := formatAddr("0.0.0.0", 8000); got != "0.0.0.0:8000" {
		t.Errorf("formatAddr = %q, want 0.0.0.0:8000", got)
	}
}
