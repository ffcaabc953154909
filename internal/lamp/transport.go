// Package lamp discovers LAN RGB lamps, caches their addresses, and
// drives them with fire-and-forget UDP control datagrams per the
// protocol in internal/lampproto.
package lamp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/Drewsername/localweb/internal/lampproto"
)

const (
	discoveryMulticastAddr = "239.255.255.250:4001"
	discoveryListenAddr    = "0.0.0.0:4002"
	controlPort            = 4003

	discoverDeadline = 3 * time.Second
	statusDeadline   = 1 * time.Second
)

// Status is a devStatus reply. Fields are pointers: a field a firmware
// variant omits decodes as nil ("unknown"), never as a zero value.
type Status struct {
	OnOff            *bool
	Brightness       *int
	Color            *[3]uint8
	ColorTemInKelvin *int
}

// CloudFallback records that a LAN control operation had no reply
// within its deadline. The cloud API itself is out of scope: an
// implementation only needs to observe the degradation, not act on it.
type CloudFallback interface {
	Configured() bool
	RecordDegraded(ip, op string)
}

// noopCloudFallback is used when no cloud API key is configured.
type noopCloudFallback struct{}

func (noopCloudFallback) Configured() bool              { return false }
func (noopCloudFallback) RecordDegraded(string, string) {}

// loggingCloudFallback is used once a cloud API key is configured. It
// never calls a cloud API; logging the degradation is as far as this
// stub goes.
type loggingCloudFallback struct{}

func (loggingCloudFallback) Configured() bool { return true }
func (loggingCloudFallback) RecordDegraded(ip, op string) {
	log.Printf("[lamp] %s on %s had no LAN reply; cloud fallback would engage here", op, ip)
}

// Transport discovers and controls lamps on the LAN.
type Transport struct {
	cache         *cache
	cloudFallback CloudFallback
}

// New returns an empty Transport with a cold cache. cloudAPIKey is the
// boot-time knob from config.Config.CloudAPIKey; an empty key leaves
// the transport with a no-op CloudFallback.
func New(cloudAPIKey string) *Transport {
	var cf CloudFallback = noopCloudFallback{}
	if cloudAPIKey != "" {
		cf = loggingCloudFallback{}
	}
	return &Transport{cache: newCache(), cloudFallback: cf}
}

// HasCloudFallback reports whether a cloud API key was configured.
func (t *Transport) HasCloudFallback() bool {
	return t.cloudFallback.Configured()
}

// reuseAddrControl sets SO_REUSEADDR on the listening socket so a
// restarted process can rebind the discovery port immediately.
func reuseAddrControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Discover returns the lamp set. If force is false and the cache is
// fresh and non-empty, the cached set is returned without touching the
// network. Concurrent callers collapse onto a single in-flight scan.
func (t *Transport) Discover(ctx context.Context, force bool) ([]Record, error) {
	t.cache.mu.Lock()
	fresh := !force && t.cache.freshLocked()
	t.cache.mu.Unlock()
	if fresh {
		return t.cache.snapshot(), nil
	}

	wait, lead := t.cache.joinOrLeadScan()
	if !lead {
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return t.cache.snapshot(), nil
	}
	defer t.cache.finishScan()

	records, err := t.scan(ctx)
	if err != nil {
		return nil, err
	}
	t.cache.replace(records)
	return records, nil
}

// scan performs one LAN discovery round: bind the listen port with
// address reuse, send a multicast scan datagram, and collect replies
// for discoverDeadline.
func (t *Transport) scan(ctx context.Context) ([]Record, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	conn, err := lc.ListenPacket(ctx, "udp4", discoveryListenAddr)
	if err != nil {
		return nil, &TransportError{Op: "listen", Err: err}
	}
	defer conn.Close()

	udpConn := conn.(*net.UDPConn)
	mcastAddr, err := net.ResolveUDPAddr("udp4", discoveryMulticastAddr)
	if err != nil {
		return nil, &TransportError{Op: "resolve multicast addr", Err: err}
	}
	if mcastAddr.IP.IsMulticast() {
		p := ipv4.NewPacketConn(udpConn)
		if err := p.JoinGroup(nil, &net.UDPAddr{IP: mcastAddr.IP}); err != nil {
			return nil, &TransportError{Op: "join multicast group", Err: err}
		}
	}

	payload, err := lampproto.Marshal(lampproto.ScanRequest())
	if err != nil {
		return nil, &TransportError{Op: "marshal scan request", Err: err}
	}
	if _, err := udpConn.WriteToUDP(payload, mcastAddr); err != nil {
		return nil, &TransportError{Op: "send scan request", Err: err}
	}

	deadline := time.Now().Add(discoverDeadline)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := udpConn.SetReadDeadline(deadline); err != nil {
		return nil, &TransportError{Op: "set read deadline", Err: err}
	}

	records := make(map[string]Record)
	buf := make([]byte, 2048)
	for {
		n, _, err := udpConn.ReadFromUDP(buf)
		if err != nil {
			break // deadline reached, or socket closed
		}
		device, ip, sku, err := lampproto.ParseDiscoveryReply(buf[:n])
		if err != nil || device == "" {
			continue
		}
		records[device] = Record{DeviceID: device, IP: ip, SKU: sku}
	}

	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, r)
	}
	return out, nil
}

// GetIP resolves a device_id to its cached IP, triggering at most one
// rescan if the cache misses.
func (t *Transport) GetIP(ctx context.Context, deviceID string) (string, bool) {
	if r, ok := t.cache.lookup(deviceID); ok {
		return r.IP, true
	}
	if _, err := t.Discover(ctx, false); err != nil {
		return "", false
	}
	r, ok := t.cache.lookup(deviceID)
	return r.IP, ok
}

func controlAddr(ip string) string {
	return net.JoinHostPort(ip, fmt.Sprintf("%d", controlPort))
}

func (t *Transport) send(ip string, e lampproto.Envelope) error {
	payload, err := lampproto.Marshal(e)
	if err != nil {
		return err
	}
	conn, err := net.Dial("udp4", controlAddr(ip))
	if err != nil {
		log.Printf("[lamp] dial %s: %v", ip, err)
		return err
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		log.Printf("[lamp] send to %s: %v", ip, err)
		return err
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Turn switches a lamp on or off. Send failures are logged, not returned
// as state-mutating errors: control ops are fire-and-forget.
func (t *Transport) Turn(ip string, on bool) {
	_ = t.send(ip, lampproto.TurnRequest(on))
}

// SetBrightness sets brightness in [1, 100], clamping out-of-range input.
func (t *Transport) SetBrightness(ip string, percent int) {
	percent = clampInt(percent, 1, 100)
	_ = t.send(ip, lampproto.BrightnessRequest(percent))
}

// SetColor sets an RGB color.
func (t *Transport) SetColor(ip string, r, g, b uint8) {
	_ = t.send(ip, lampproto.ColorRequest(r, g, b))
}

// SetColorTemp sets a color temperature in [2000, 9000] Kelvin, clamping
// out-of-range input.
func (t *Transport) SetColorTemp(ip string, kelvin int) {
	kelvin = clampInt(kelvin, 2000, 9000)
	_ = t.send(ip, lampproto.ColorTempRequest(kelvin))
}

// GetStatus queries a lamp's current state, waiting up to statusDeadline
// for a reply. It returns (nil, nil) on timeout: absence, not an error.
func (t *Transport) GetStatus(ctx context.Context, ip string) (*Status, error) {
	payload, err := lampproto.Marshal(lampproto.StatusRequest())
	if err != nil {
		return nil, err
	}
	conn, err := net.Dial("udp4", controlAddr(ip))
	if err != nil {
		return nil, &TransportError{Op: "dial status", Err: err}
	}
	defer conn.Close()

	deadline := time.Now().Add(statusDeadline)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, &TransportError{Op: "set status deadline", Err: err}
	}

	if _, err := conn.Write(payload); err != nil {
		t.cloudFallback.RecordDegraded(ip, "get_status")
		return nil, nil // send failure: treat status as unknown, not an error
	}

	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	if err != nil {
		t.cloudFallback.RecordDegraded(ip, "get_status")
		return nil, nil // timeout: absence marker
	}

	var e lampproto.Envelope
	if err := json.Unmarshal(buf[:n], &e); err != nil {
		return nil, nil
	}

	status := &Status{}
	if e.Msg.Data.OnOff != nil {
		v := *e.Msg.Data.OnOff != 0
		status.OnOff = &v
	}
	status.Brightness = e.Msg.Data.Brightness
	if e.Msg.Data.Color != nil {
		rgb := [3]uint8{e.Msg.Data.Color.R, e.Msg.Data.Color.G, e.Msg.Data.Color.B}
		status.Color = &rgb
	}
	status.ColorTemInKelvin = e.Msg.Data.ColorTemInKelvin
	return status, nil
}
