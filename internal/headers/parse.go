package headers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/joshp123/climatelink/internal/firmware"
	"github.com/joshp123/climatelink/internal/irimport"
)

var (
	definePattern   = regexp.MustCompile(`#define\s+(BLYNK_\w+)\s+"((?:[^"\\]|\\.)*)"`)
	charPtrPattern  = regexp.MustCompile(`static\s+const\s+char\s*\*\s*(WIFI_\w+)\s*=\s*"((?:[^"\\]|\\.)*)"\s*;`)
	macPattern      = regexp.MustCompile(`static\s+(?:const\s+)?uint8_t\s+(ESPNOW_\w+)\s*\[\s*6\s*\]\s*=\s*(\{[^}]*\})\s*;`)
	constIntPattern = regexp.MustCompile(`static\s+constexpr\s+int\s+(IR_\w+)\s*=\s*(\d+)\s*;`)
	arrayPattern    = regexp.MustCompile(`static\s+const\s+uint16_t\s+IR_(\w+)_(ON|OFF|UP|DOWN)\s*\[\s*\d*\s*\]\s*=\s*\{([^}]*)\}\s*;`)
)

// ParseConfigHeader reads the credential and peer settings out of a
// config.h. Settings that are absent stay empty.
func ParseConfigHeader(data []byte) (firmware.Credentials, firmware.Peers, error) {
	var (
		creds firmware.Credentials
		peers firmware.Peers
	)
	src := irimport.StripComments(string(data))

	assign := map[string]*string{
		firmware.SymTemplateID:   &creds.TemplateID,
		firmware.SymTemplateName: &creds.TemplateName,
		firmware.SymAuthToken:    &creds.AuthToken,
		firmware.SymWiFiSSID:     &creds.WiFiSSID,
		firmware.SymWiFiPassword: &creds.WiFiPassword,
	}
	for _, pattern := range []*regexp.Regexp{definePattern, charPtrPattern} {
		for _, m := range pattern.FindAllStringSubmatch(src, -1) {
			target, ok := assign[m[1]]
			if !ok {
				continue
			}
			value, err := cUnquote(m[2])
			if err != nil {
				return creds, peers, fmt.Errorf("parse %s: %w", m[1], err)
			}
			*target = value
		}
	}

	for _, m := range macPattern.FindAllStringSubmatch(src, -1) {
		mac, err := firmware.ParseMAC(m[2])
		if err != nil {
			return creds, peers, fmt.Errorf("parse %s: %w", m[1], err)
		}
		switch m[1] {
		case firmware.SymCentralMAC:
			peers.Central = mac
		case firmware.SymTransmitterMAC:
			peers.Transmitter = mac
		}
	}

	return creds, peers, nil
}

// ParseIRHeader reads the carrier frequency and code tables out of an
// ir_codes.h. Tables are returned in order of first appearance.
func ParseIRHeader(data []byte) (int, []firmware.CodeTable, error) {
	src := irimport.StripComments(string(data))

	var tables []firmware.CodeTable
	index := make(map[string]int)
	table := func(unit string) *firmware.CodeTable {
		i, ok := index[unit]
		if !ok {
			i = len(tables)
			index[unit] = i
			tables = append(tables, firmware.NewCodeTable(unit))
		}
		return &tables[i]
	}

	carrier := 0
	for _, m := range constIntPattern.FindAllStringSubmatch(src, -1) {
		v, err := strconv.Atoi(m[2])
		if err != nil {
			return 0, nil, fmt.Errorf("parse %s: %w", m[1], err)
		}
		switch {
		case m[1] == firmware.SymCarrierKHz:
			carrier = v
		case strings.HasSuffix(m[1], "_LEN"):
			unit := strings.TrimSuffix(strings.TrimPrefix(m[1], "IR_"), "_LEN")
			table(unit).Length = v
		}
	}

	for _, m := range arrayPattern.FindAllStringSubmatch(src, -1) {
		cmd, err := firmware.ParseCommand(m[2])
		if err != nil {
			return 0, nil, err
		}
		values, err := irimport.ParseList(m[3])
		if err != nil {
			return 0, nil, fmt.Errorf("parse IR_%s_%s: %w", m[1], m[2], err)
		}
		table(m[1]).SetSequence(cmd, values)
	}

	return carrier, tables, nil
}

// Import builds a profile from an existing pair of headers.
func Import(name string, configHeader, irHeader []byte) (firmware.Profile, error) {
	creds, peers, err := ParseConfigHeader(configHeader)
	if err != nil {
		return firmware.Profile{}, fmt.Errorf("import %s: %w", firmware.ConfigHeader, err)
	}
	carrier, tables, err := ParseIRHeader(irHeader)
	if err != nil {
		return firmware.Profile{}, fmt.Errorf("import %s: %w", firmware.IRHeader, err)
	}
	if carrier == 0 {
		carrier = firmware.DefaultCarrierKHz
	}
	return firmware.Profile{
		Name:        name,
		Credentials: creds,
		Peers:       peers,
		CarrierKHz:  carrier,
		Tables:      tables,
	}, nil
}

func cUnquote(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("trailing backslash")
		}
		switch e := s[i]; e {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '"', '\'', '?':
			b.WriteByte(e)
		case 'x':
			j := i + 1
			for j < len(s) && isHex(s[j]) {
				j++
			}
			if j == i+1 {
				return "", fmt.Errorf("empty hex escape")
			}
			v, err := strconv.ParseUint(s[i+1:j], 16, 8)
			if err != nil {
				return "", fmt.Errorf("hex escape: %w", err)
			}
			b.WriteByte(byte(v))
			i = j - 1
		default:
			if e < '0' || e > '7' {
				return "", fmt.Errorf("unknown escape \\%c", e)
			}
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			v, err := strconv.ParseUint(s[i:j], 8, 8)
			if err != nil {
				return "", fmt.Errorf("octal escape: %w", err)
			}
			b.WriteByte(byte(v))
			i = j - 1
		}
	}
	return b.String(), nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
