package firmware

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// MAC is a 6-byte ESP-NOW peer address.
type MAC [6]byte

// ParseMAC accepts aa:bb:cc:dd:ee:ff, aa-bb-cc-dd-ee-ff, bare 12-digit hex
// and the header initialiser form {0xAA,0xBB,0xCC,0xDD,0xEE,0xFF}.
func ParseMAC(s string) (MAC, error) {
	var mac MAC
	raw := strings.TrimSpace(s)
	if raw == "" {
		return mac, fmt.Errorf("empty mac address")
	}

	if strings.HasPrefix(raw, "{") {
		if !strings.HasSuffix(raw, "}") {
			return mac, fmt.Errorf("invalid mac initialiser %q", s)
		}
		parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(raw, "{"), "}"), ",")
		if len(parts) != len(mac) {
			return mac, fmt.Errorf("mac initialiser %q has %d octets, want %d", s, len(parts), len(mac))
		}
		for i, part := range parts {
			v, err := strconv.ParseUint(strings.TrimSpace(part), 0, 8)
			if err != nil {
				return mac, fmt.Errorf("mac initialiser %q octet %d: %w", s, i, err)
			}
			mac[i] = byte(v)
		}
		return mac, nil
	}

	var digits string
	switch {
	case strings.ContainsAny(raw, ":-"):
		parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ':' || r == '-' })
		if len(parts) != len(mac) {
			return mac, fmt.Errorf("mac %q has %d octets, want %d", s, len(parts), len(mac))
		}
		for _, part := range parts {
			if len(part) != 2 {
				return mac, fmt.Errorf("mac %q has malformed octet %q", s, part)
			}
		}
		digits = strings.Join(parts, "")
	default:
		digits = raw
	}

	if len(digits) != 2*len(mac) {
		return mac, fmt.Errorf("mac %q must have 12 hex digits", s)
	}
	b, err := hex.DecodeString(digits)
	if err != nil {
		return mac, fmt.Errorf("mac %q: %w", s, err)
	}
	copy(mac[:], b)
	return mac, nil
}

// MustParseMAC is ParseMAC for constants and tests.
func MustParseMAC(s string) MAC {
	mac, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// CInitializer renders the address the way the peer header declares it.
func (m MAC) CInitializer() string {
	parts := make([]string, len(m))
	for i, b := range m {
		parts[i] = fmt.Sprintf("0x%02X", b)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (m MAC) IsZero() bool {
	return m == MAC{}
}

func (m MAC) IsBroadcast() bool {
	return m == MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
}

// IsMulticast reports the group bit of the first octet. Broadcast is
// multicast too.
func (m MAC) IsMulticast() bool {
	return m[0]&0x01 == 0x01
}

func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MAC) UnmarshalText(text []byte) error {
	parsed, err := ParseMAC(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Peers holds the two addresses compiled into the peer header.
type Peers struct {
	// Central is documentation only; the firmware never sends to it.
	Central MAC `json:"central"`
	// Transmitter receives setpoints from the central node.
	Transmitter MAC `json:"transmitter"`
}

func (p Peers) check(r *Report) {
	switch {
	case p.Transmitter.IsZero():
		r.add(CodeZeroMAC, SymTransmitterMAC, "transmitter address is all zero")
	case p.Transmitter.IsMulticast():
		r.add(CodeMulticastMAC, SymTransmitterMAC, "transmitter address %s is not unicast", p.Transmitter)
	}

	if p.Central.IsZero() {
		return
	}
	if p.Central.IsMulticast() {
		r.add(CodeMulticastMAC, SymCentralMAC, "central address %s is not unicast", p.Central)
	}
	if p.Central == p.Transmitter {
		r.add(CodeDuplicateMAC, SymCentralMAC, "central and transmitter share address %s", p.Central)
	}
}
