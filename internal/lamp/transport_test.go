package lamp

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/Drewsername/localweb/internal/lampproto"
)

func TestClampInt(t *testing.T) {
	cases := []struct {
		v, lo, hi, want int
	}{
		{50, 1, 100, 50},
		{0, 1, 100, 1},
		{500, 1, 100, 100},
		{2000, 2000, 9000, 2000},
		{9500, 2000, 9000, 9000},
	}
	for _, c := range cases {
		if got := clampInt(c.v, c.lo, c.hi); got != c.want {
			t.Errorf("clampInt(%d, %d, %d) = %d, want %d", c.v, c.lo, c.hi, got, c.want)
		}
	}
}

// newFakeLamp listens on 127.0.0.1:controlPort and forwards each
// datagram it receives on the returned channel.
func newFakeLamp(t *testing.T) (*net.UDPConn, chan []byte) {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp4", controlAddr("127.0.0.1"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		t.Skipf("cannot bind control port for loopback test: %v", err)
	}
	received := make(chan []byte, 8)
	go func() {
		buf := make([]byte, 2048)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			cp := make([]byte, n)
			copy(cp, buf[:n])
			received <- cp
		}
	}()
	return conn, received
}

func TestSetBrightnessClampsAndSends(t *testing.T) {
	conn, received := newFakeLamp(t)
	defer conn.Close()

	tr := New("")
	tr.SetBrightness("127.0.0.1", 500)

	select {
	case b := <-received:
		var e lampproto.Envelope
		if err := json.Unmarshal(b, &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if e.Msg.Cmd != "brightness" || e.Msg.Data.Value == nil || *e.Msg.Data.Value != 100 {
			t.Fatalf("unexpected brightness datagram: %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fake lamp never received a datagram")
	}
}

func TestGetStatusTimesOutWithoutReply(t *testing.T) {
	addr, err := net.ResolveUDPAddr("udp4", controlAddr("127.0.0.1"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		t.Skipf("cannot bind control port for loopback test: %v", err)
	}
	defer conn.Close()

	tr := New("")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status, err := tr.GetStatus(ctx, "127.0.0.1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status != nil {
		t.Fatalf("expected nil status on timeout, got %+v", status)
	}
}

func TestHasCloudFallbackReflectsConfiguredKey(t *testing.T) {
	if New("").HasCloudFallback() {
		t.Fatal("expected no cloud fallback without a configured key")
	}
	if !New("secret-key").HasCloudFallback() {
		t.Fatal("expected cloud fallback once a key is configured")
	}
}
