// Package headers renders firmware profiles into the C headers the climate
// relay firmware is compiled with, and reads existing headers back.
package headers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/joshp123/climatelink/internal/firmware"
)

// ErrNotReady is returned when rendering a profile that fails readiness.
var ErrNotReady = errors.New("profile not ready")

const valuesPerLine = 16

// Options controls rendering.
type Options struct {
	// AllowTemplate renders profiles that are not ready, placeholders
	// included. Useful to reproduce the copy-and-fill headers.
	AllowTemplate bool
}

// Files maps header file names to their contents.
type Files map[string][]byte

// Names returns the file names in sorted order.
func (f Files) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Checksums returns the hex sha256 of each file.
func (f Files) Checksums() map[string]string {
	out := make(map[string]string, len(f))
	for name, data := range f {
		sum := sha256.Sum256(data)
		out[name] = hex.EncodeToString(sum[:])
	}
	return out
}

// Render produces config.h and ir_codes.h for the profile.
func Render(p firmware.Profile, opts Options) (Files, error) {
	report := p.Readiness()
	if !report.Ready() && !opts.AllowTemplate {
		return nil, fmt.Errorf("render %s: %w: %w", p.Name, ErrNotReady, report.Err())
	}

	configHeader, err := RenderConfigHeader(p)
	if err != nil {
		return nil, err
	}
	irHeader, err := RenderIRHeader(p)
	if err != nil {
		return nil, err
	}

	return Files{
		firmware.ConfigHeader: configHeader,
		firmware.IRHeader:     irHeader,
	}, nil
}

var funcs = template.FuncMap{
	"cquote": cQuote,
}

var configTemplate = template.Must(template.New(firmware.ConfigHeader).Funcs(funcs).Parse(`#pragma once
{{- if .Name }}

// Generated by climatelink for profile "{{ .Name }}". Do not commit.
{{- end }}

// ---------- Blynk ----------
#define BLYNK_TEMPLATE_ID   {{ cquote .Credentials.TemplateID }}
#define BLYNK_TEMPLATE_NAME {{ cquote .Credentials.TemplateName }}
#define BLYNK_AUTH_TOKEN    {{ cquote .Credentials.AuthToken }}

// ---------- WiFi ----------
static const char* WIFI_SSID     = {{ cquote .Credentials.WiFiSSID }};
static const char* WIFI_PASSWORD = {{ cquote .Credentials.WiFiPassword }};

// ---------- ESP-NOW MACs ----------
// Central node MAC (optional, for documentation)
static uint8_t ESPNOW_CENTRAL_MAC[6] = {{ .Peers.Central.CInitializer }};

// Transmitter node MAC (the Central sends setpoint to this MAC)
static uint8_t ESPNOW_TX_MAC[6] = {{ .Peers.Transmitter.CInitializer }};
`))

// RenderConfigHeader renders config.h.
func RenderConfigHeader(p firmware.Profile) ([]byte, error) {
	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("render %s: %w", firmware.ConfigHeader, err)
	}
	return buf.Bytes(), nil
}

type irSequence struct {
	Symbol string
	Body   string
}

type irUnit struct {
	Label     string
	Sequences []irSequence
}

type irView struct {
	Name       string
	CarrierKHz int
	Lengths    []irSequence
	Units      []irUnit
}

var irTemplate = template.Must(template.New(firmware.IRHeader).Funcs(funcs).Parse(`#pragma once
#include <Arduino.h>
{{- if .Name }}

// Generated by climatelink for profile "{{ .Name }}". Do not commit.
{{- else }}

// Copy this file to ir_codes.h and paste your real codes there.
// DO NOT commit ir_codes.h (it is ignored by .gitignore).
{{- end }}

// Carrier frequency (typical: 38 kHz)
static constexpr int IR_KHZ = {{ .CarrierKHz }};

// Lengths: set these to match your real arrays
{{- range .Lengths }}
static constexpr int {{ .Symbol }} = {{ .Body }};
{{- end }}
{{- range .Units }}

// --- {{ .Label }} ---
{{- range .Sequences }}
static const uint16_t {{ .Symbol }} = {{ .Body }};
{{- end }}
{{- end }}
`))

// RenderIRHeader renders ir_codes.h.
func RenderIRHeader(p firmware.Profile) ([]byte, error) {
	view := irView{Name: p.Name, CarrierKHz: p.CarrierKHz}
	if view.CarrierKHz == 0 {
		view.CarrierKHz = firmware.DefaultCarrierKHz
	}

	for _, table := range p.Tables {
		view.Lengths = append(view.Lengths, irSequence{
			Symbol: table.LenSymbol(),
			Body:   fmt.Sprintf("%d", table.EffectiveLength()),
		})

		width := 0
		for _, cmd := range firmware.Commands() {
			if n := len(table.SequenceSymbol(cmd)); n > width {
				width = n
			}
		}

		unit := irUnit{Label: unitLabel(table)}
		for _, cmd := range firmware.Commands() {
			unit.Sequences = append(unit.Sequences, irSequence{
				Symbol: pad(table.SequenceSymbol(cmd)+"[]", width+2),
				Body:   arrayBody(table.Sequence(cmd)),
			})
		}
		view.Units = append(view.Units, unit)
	}

	var buf bytes.Buffer
	if err := irTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("render %s: %w", firmware.IRHeader, err)
	}
	return buf.Bytes(), nil
}

// unitLabel names AIRE<n> tables the way the firmware comments do.
func unitLabel(t firmware.CodeTable) string {
	label := t.Unit
	if n, ok := strings.CutPrefix(t.Unit, "AIRE"); ok && n != "" && strings.Trim(n, "0123456789") == "" {
		label = "Air conditioner #" + n
	}
	if t.IsTemplate() {
		label += " (example placeholders)"
	}
	return label
}

func arrayBody(values []uint16) string {
	if len(values) == 0 {
		return "{ /* ... */ }"
	}

	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	if len(parts) <= valuesPerLine {
		return "{ " + strings.Join(parts, ", ") + " }"
	}

	var b strings.Builder
	b.WriteString("{\n")
	for start := 0; start < len(parts); start += valuesPerLine {
		end := min(start+valuesPerLine, len(parts))
		b.WriteString("  ")
		b.WriteString(strings.Join(parts[start:end], ", "))
		b.WriteString(",\n")
	}
	b.WriteString("}")
	return b.String()
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// cQuote renders s as a C string literal. Non-printable bytes become octal
// escapes, which unlike \x cannot swallow following characters.
func cQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&b, `\%03o`, c)
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
