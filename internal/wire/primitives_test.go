package wire

import (
	"net/netip"
	"testing"
)

func TestStringRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	n, err := putString(buf, "rrc00")
	if err != nil {
		t.Fatalf("putString: %v", err)
	}
	got, read, err := getString(buf[:n])
	if err != nil {
		t.Fatalf("getString: %v", err)
	}
	if got != "rrc00" || read != n {
		t.Fatalf("got %q/%d, want rrc00/%d", got, read, n)
	}
}

func TestStringShortBuffer(t *testing.T) {
	buf := make([]byte, 3)
	if _, err := putString(buf, "toolong"); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
	if _, _, err := getString(buf[:1]); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestHostAddrRoundTrip(t *testing.T) {
	for _, s := range []string{"192.0.2.1", "2001:db8::1"} {
		addr := netip.MustParseAddr(s)
		buf := make([]byte, 20)
		n, err := putHostAddr(buf, addr)
		if err != nil {
			t.Fatalf("putHostAddr(%s): %v", s, err)
		}
		got, read, err := getHostAddr(buf[:n])
		if err != nil {
			t.Fatalf("getHostAddr(%s): %v", s, err)
		}
		if got != addr || read != n {
			t.Fatalf("got %v/%d, want %v/%d", got, read, addr, n)
		}
	}
}

func TestPrefixRoundTrip(t *testing.T) {
	for _, s := range []string{"10.0.0.0/8", "192.168.1.1/32", "2001:db8::/32", "::/0"} {
		pfx := netip.MustParsePrefix(s)
		buf := make([]byte, 20)
		n, err := putPrefix(buf, pfx)
		if err != nil {
			t.Fatalf("putPrefix(%s): %v", s, err)
		}
		got, read, err := getPrefix(buf[:n])
		if err != nil {
			t.Fatalf("getPrefix(%s): %v", s, err)
		}
		if got != pfx || read != n {
			t.Fatalf("got %v/%d, want %v/%d", got, read, pfx, n)
		}
	}
}

func TestPrefixMalformedLength(t *testing.T) {
	buf := []byte{4, 33, 0, 0, 0, 0} // version 4, bits 33 > 32
	if _, _, err := getPrefix(buf); err == nil {
		t.Fatal("expected error for out-of-range prefix length")
	}
}

func TestPathIDRoundTrip(t *testing.T) {
	id := PathID{1, 2, 3, 4, 5, 6, 7, 8}
	buf := make([]byte, 8)
	n, err := putPathID(buf, id)
	if err != nil {
		t.Fatalf("putPathID: %v", err)
	}
	got, read, err := getPathID(buf[:n])
	if err != nil {
		t.Fatalf("getPathID: %v", err)
	}
	if got != id || read != 8 {
		t.Fatalf("got %v/%d, want %v/8", got, read, id)
	}
}
