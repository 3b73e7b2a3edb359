package outlet

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Kasa speaks the TP-Link smartplug protocol: JSON commands under an
// XOR-autokey obfuscation, TCP port 9999 for commands and a UDP broadcast of
// get_sysinfo for discovery. Works with single plugs (KP115/HS110) and power
// strips (HS300), whose child outlets are addressed via a child_ids context.
type Kasa struct {
	Timeout time.Duration

	mu      sync.RWMutex
	targets map[string]Meta
}

const kasaPort = 9999

func NewKasa(timeout time.Duration) *Kasa {
	return &Kasa{
		Timeout: timeout,
		targets: make(map[string]Meta),
	}
}

// Register makes an outlet addressable by name without discovery.
func (k *Kasa) Register(m Meta) {
	k.mu.Lock()
	k.targets[m.Name] = m
	k.mu.Unlock()
}

// Outlets returns every known outlet, discovered or registered.
func (k *Kasa) Outlets() []Meta {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]Meta, 0, len(k.targets))
	for _, m := range k.targets {
		out = append(out, m)
	}
	return out
}

func (k *Kasa) ReadPower(ctx context.Context, name string) (float64, error) {
	m, err := k.target(name)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Emeter struct {
			GetRealtime struct {
				ErrCode int      `json:"err_code"`
				Power   *float64 `json:"power"`
				PowerMW *float64 `json:"power_mw"`
			} `json:"get_realtime"`
		} `json:"emeter"`
	}
	cmd := withChildContext(m, map[string]any{"emeter": map[string]any{"get_realtime": map[string]any{}}})
	if err := k.query(ctx, m.Addr, cmd, &resp); err != nil {
		return 0, fmt.Errorf("read power %s: %w", name, err)
	}
	rt := resp.Emeter.GetRealtime
	if rt.ErrCode != 0 {
		return 0, fmt.Errorf("read power %s: device err_code %d", name, rt.ErrCode)
	}
	// Newer hardware reports milliwatts, older firmware plain watts.
	if rt.PowerMW != nil {
		return *rt.PowerMW / 1000.0, nil
	}
	if rt.Power != nil {
		return *rt.Power, nil
	}
	return 0, fmt.Errorf("read power %s: no power field in emeter response", name)
}

func (k *Kasa) SetPower(ctx context.Context, name string, on bool) error {
	m, err := k.target(name)
	if err != nil {
		return err
	}

	state := 0
	if on {
		state = 1
	}
	var resp struct {
		System struct {
			SetRelayState struct {
				ErrCode int `json:"err_code"`
			} `json:"set_relay_state"`
		} `json:"system"`
	}
	cmd := withChildContext(m, map[string]any{"system": map[string]any{"set_relay_state": map[string]any{"state": state}}})
	if err := k.query(ctx, m.Addr, cmd, &resp); err != nil {
		return fmt.Errorf("set power %s: %w", name, err)
	}
	if code := resp.System.SetRelayState.ErrCode; code != 0 {
		return fmt.Errorf("set power %s: device err_code %d", name, code)
	}
	return nil
}

type sysinfo struct {
	System struct {
		GetSysinfo struct {
			Alias      string `json:"alias"`
			RelayState int    `json:"relay_state"`
			Children   []struct {
				ID    string `json:"id"`
				Alias string `json:"alias"`
				State int    `json:"state"`
			} `json:"children"`
		} `json:"get_sysinfo"`
	} `json:"system"`
}

// Discover broadcasts get_sysinfo and registers every plug and strip child
// that answers within the wait window.
func (k *Kasa) Discover(ctx context.Context, wait time.Duration) ([]Meta, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	defer conn.Close()

	payload, err := json.Marshal(map[string]any{"system": map[string]any{"get_sysinfo": map[string]any{}}})
	if err != nil {
		return nil, err
	}
	bcast := &net.UDPAddr{IP: net.IPv4bcast, Port: kasaPort}
	if _, err := conn.WriteTo(obfuscate(payload), bcast); err != nil {
		return nil, fmt.Errorf("discover broadcast: %w", err)
	}

	deadline := time.Now().Add(wait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	var found []Meta
	buf := make([]byte, 4096)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			break // deadline reached
		}
		var info sysinfo
		if err := json.Unmarshal(deobfuscate(buf[:n]), &info); err != nil {
			log.Debug().Str("addr", addr.String()).Err(err).Msg("Ignoring malformed discovery reply")
			continue
		}
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			continue
		}

		si := info.System.GetSysinfo
		if len(si.Children) == 0 {
			found = append(found, Meta{Name: si.Alias, Addr: host})
			continue
		}
		for _, child := range si.Children {
			found = append(found, Meta{Name: child.Alias, Addr: host, ChildID: child.ID})
		}
	}

	for _, m := range found {
		k.Register(m)
	}
	return found, nil
}

func (k *Kasa) target(name string) (Meta, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	m, ok := k.targets[name]
	if !ok {
		return Meta{}, fmt.Errorf("unknown outlet %q", name)
	}
	return m, nil
}

func withChildContext(m Meta, cmd map[string]any) map[string]any {
	if m.ChildID == "" {
		return cmd
	}
	cmd["context"] = map[string]any{"child_ids": []string{m.ChildID}}
	return cmd
}

// query sends one command over TCP and decodes the reply. The TCP framing is
// a 4-byte big-endian length prefix followed by the obfuscated JSON.
func (k *Kasa) query(ctx context.Context, addr string, cmd map[string]any, resp any) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: k.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, fmt.Sprint(kasaPort)))
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(k.Timeout))

	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], obfuscate(payload))
	if _, err := conn.Write(frame); err != nil {
		return err
	}

	var header [4]byte
	if _, err := readFull(conn, header[:]); err != nil {
		return err
	}
	body := make([]byte, binary.BigEndian.Uint32(header[:]))
	if _, err := readFull(conn, body); err != nil {
		return err
	}

	return json.Unmarshal(deobfuscate(body), resp)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := conn.Read(buf[read:])
		if err != nil {
			return read, err
		}
		read += n
	}
	return read, nil
}

// The protocol's XOR autokey: each byte is XORed with the previous cipher
// byte, seeded with 171.
func obfuscate(in []byte) []byte {
	out := make([]byte, len(in))
	key := byte(171)
	for i, b := range in {
		key ^= b
		out[i] = key
	}
	return out
}

func deobfuscate(in []byte) []byte {
	out := make([]byte, len(in))
	key := byte(171)
	for i, b := range in {
		out[i] = key ^ b
		key = b
	}
	return out
}
