// Package profiles stores firmware profiles as YAML documents, one file per
// profile, with secrets and IR captures optionally kept in side files.
package profiles

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joshp123/climatelink/internal/blob"
	"github.com/joshp123/climatelink/internal/firmware"
	"github.com/joshp123/climatelink/internal/irimport"
)

const SchemaVersion = 1

// Entry is a profile plus the side-file references it was loaded from.
type Entry struct {
	Profile firmware.Profile
	Refs    References
}

// References records where values came from so they are written back as
// references rather than inlined.
type References struct {
	AuthTokenFile    string
	WiFiPasswordFile string
	// Captures maps CaptureKey(unit, cmd) to a capture file path.
	Captures map[string]string
}

// CaptureKey identifies one sequence in References.Captures.
func CaptureKey(unit string, cmd firmware.Command) string {
	return unit + "/" + strings.ToLower(cmd.String())
}

type document struct {
	SchemaVersion int            `yaml:"schema_version"`
	Name          string         `yaml:"name,omitempty"`
	Credentials   credentialsDoc `yaml:"credentials"`
	Peers         peersDoc       `yaml:"peers"`
	CarrierKHz    int            `yaml:"carrier_khz,omitempty"`
	Units         []unitDoc      `yaml:"units,omitempty"`
}

type credentialsDoc struct {
	TemplateID       string `yaml:"template_id"`
	TemplateName     string `yaml:"template_name"`
	AuthToken        string `yaml:"auth_token,omitempty"`
	AuthTokenFile    string `yaml:"auth_token_file,omitempty"`
	WiFiSSID         string `yaml:"wifi_ssid"`
	WiFiPassword     string `yaml:"wifi_password,omitempty"`
	WiFiPasswordFile string `yaml:"wifi_password_file,omitempty"`
}

type peersDoc struct {
	Central     string `yaml:"central,omitempty"`
	Transmitter string `yaml:"transmitter,omitempty"`
}

type unitDoc struct {
	Unit     string      `yaml:"unit"`
	Length   int         `yaml:"length,omitempty"`
	Commands commandsDoc `yaml:"commands,omitempty"`
}

type commandsDoc struct {
	On   *sequenceDoc `yaml:"on,omitempty"`
	Off  *sequenceDoc `yaml:"off,omitempty"`
	Up   *sequenceDoc `yaml:"up,omitempty"`
	Down *sequenceDoc `yaml:"down,omitempty"`
}

type sequenceDoc struct {
	Timings     []uint16 `yaml:"timings,omitempty,flow"`
	CaptureFile string   `yaml:"capture_file,omitempty"`
}

func (c *commandsDoc) slot(cmd firmware.Command) **sequenceDoc {
	switch cmd {
	case firmware.CommandOn:
		return &c.On
	case firmware.CommandOff:
		return &c.Off
	case firmware.CommandUp:
		return &c.Up
	default:
		return &c.Down
	}
}

// Decode parses a profile document. name is the profile name implied by the
// file; relative side-file paths resolve against baseDir.
func Decode(name string, data []byte, baseDir string) (Entry, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, fmt.Errorf("decode profile %s: empty document", name)
		}
		return Entry{}, fmt.Errorf("decode profile %s: %w", name, err)
	}

	if doc.SchemaVersion != SchemaVersion {
		return Entry{}, fmt.Errorf("profile %s: unsupported schema_version: %d", name, doc.SchemaVersion)
	}
	if doc.Name != "" && doc.Name != name {
		return Entry{}, fmt.Errorf("profile %s: document names %q", name, doc.Name)
	}
	if err := firmware.ValidateName(name); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Profile: firmware.Profile{Name: name, CarrierKHz: doc.CarrierKHz},
		Refs:    References{Captures: make(map[string]string)},
	}
	if entry.Profile.CarrierKHz == 0 {
		entry.Profile.CarrierKHz = firmware.DefaultCarrierKHz
	}

	creds := doc.Credentials
	token, err := secretValue("credentials.auth_token", creds.AuthToken, creds.AuthTokenFile, baseDir)
	if err != nil {
		return Entry{}, fmt.Errorf("profile %s: %w", name, err)
	}
	password, err := secretValue("credentials.wifi_password", creds.WiFiPassword, creds.WiFiPasswordFile, baseDir)
	if err != nil {
		return Entry{}, fmt.Errorf("profile %s: %w", name, err)
	}
	entry.Profile.Credentials = firmware.Credentials{
		TemplateID:   creds.TemplateID,
		TemplateName: creds.TemplateName,
		AuthToken:    token,
		WiFiSSID:     creds.WiFiSSID,
		WiFiPassword: password,
	}
	entry.Refs.AuthTokenFile = creds.AuthTokenFile
	entry.Refs.WiFiPasswordFile = creds.WiFiPasswordFile

	if entry.Profile.Peers.Central, err = parsePeer("peers.central", doc.Peers.Central); err != nil {
		return Entry{}, fmt.Errorf("profile %s: %w", name, err)
	}
	if entry.Profile.Peers.Transmitter, err = parsePeer("peers.transmitter", doc.Peers.Transmitter); err != nil {
		return Entry{}, fmt.Errorf("profile %s: %w", name, err)
	}

	for i, u := range doc.Units {
		if err := firmware.ValidateUnit(u.Unit); err != nil {
			return Entry{}, fmt.Errorf("profile %s: units[%d]: %w", name, i, err)
		}
		if u.Length < 0 {
			return Entry{}, fmt.Errorf("profile %s: units[%d].length must not be negative", name, i)
		}
		table := firmware.NewCodeTable(u.Unit)
		table.Length = u.Length
		for _, cmd := range firmware.Commands() {
			seq := *u.Commands.slot(cmd)
			if seq == nil {
				continue
			}
			field := fmt.Sprintf("units[%d].commands.%s", i, strings.ToLower(cmd.String()))
			switch {
			case seq.CaptureFile != "" && len(seq.Timings) > 0:
				return Entry{}, fmt.Errorf("profile %s: %s: timings and capture_file are mutually exclusive", name, field)
			case seq.CaptureFile != "":
				timings, err := irimport.ParseFile(resolve(baseDir, seq.CaptureFile))
				if err != nil {
					return Entry{}, fmt.Errorf("profile %s: %s: %w", name, field, err)
				}
				table.SetSequence(cmd, timings)
				entry.Refs.Captures[CaptureKey(u.Unit, cmd)] = seq.CaptureFile
			default:
				table.SetSequence(cmd, seq.Timings)
			}
		}
		entry.Profile.Tables = append(entry.Profile.Tables, table)
	}

	return entry, nil
}

// Encode renders an entry as a profile document. Values backed by a side
// file are written as the reference only.
func Encode(e Entry) ([]byte, error) {
	p := e.Profile
	doc := document{
		SchemaVersion: SchemaVersion,
		Name:          p.Name,
		CarrierKHz:    p.CarrierKHz,
		Credentials: credentialsDoc{
			TemplateID:   p.Credentials.TemplateID,
			TemplateName: p.Credentials.TemplateName,
			WiFiSSID:     p.Credentials.WiFiSSID,
		},
	}

	if e.Refs.AuthTokenFile != "" {
		doc.Credentials.AuthTokenFile = e.Refs.AuthTokenFile
	} else {
		doc.Credentials.AuthToken = p.Credentials.AuthToken
	}
	if e.Refs.WiFiPasswordFile != "" {
		doc.Credentials.WiFiPasswordFile = e.Refs.WiFiPasswordFile
	} else {
		doc.Credentials.WiFiPassword = p.Credentials.WiFiPassword
	}

	if !p.Peers.Central.IsZero() {
		doc.Peers.Central = p.Peers.Central.String()
	}
	if !p.Peers.Transmitter.IsZero() {
		doc.Peers.Transmitter = p.Peers.Transmitter.String()
	}

	for _, t := range p.Tables {
		u := unitDoc{Unit: t.Unit, Length: t.Length}
		for _, cmd := range firmware.Commands() {
			if path := e.Refs.Captures[CaptureKey(t.Unit, cmd)]; path != "" {
				*u.Commands.slot(cmd) = &sequenceDoc{CaptureFile: path}
				continue
			}
			if seq := t.Sequence(cmd); len(seq) > 0 {
				*u.Commands.slot(cmd) = &sequenceDoc{Timings: seq}
			}
		}
		doc.Units = append(doc.Units, u)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode profile %s: %w", p.Name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode profile %s: %w", p.Name, err)
	}
	return buf.Bytes(), nil
}

func secretValue(field, inline, file, baseDir string) (string, error) {
	if inline != "" && file != "" {
		return "", fmt.Errorf("%s and %s_file are mutually exclusive", field, field)
	}
	if file == "" {
		return inline, nil
	}
	value, err := blob.ReadSecretFile(resolve(baseDir, file))
	if err != nil {
		return "", fmt.Errorf("read %s_file: %w", field, err)
	}
	return value, nil
}

func parsePeer(field, raw string) (firmware.MAC, error) {
	if strings.TrimSpace(raw) == "" {
		return firmware.MAC{}, nil
	}
	mac, err := firmware.ParseMAC(raw)
	if err != nil {
		return firmware.MAC{}, fmt.Errorf("%s: %w", field, err)
	}
	return mac, nil
}

// relativeRefs lists the side files a document references relative to the
// profiles dir.
func relativeRefs(data []byte) []string {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil
	}
	var refs []string
	add := func(path string) {
		if path != "" && !filepath.IsAbs(path) {
			refs = append(refs, path)
		}
	}
	add(doc.Credentials.AuthTokenFile)
	add(doc.Credentials.WiFiPasswordFile)
	for _, u := range doc.Units {
		for _, cmd := range firmware.Commands() {
			if seq := *u.Commands.slot(cmd); seq != nil {
				add(seq.CaptureFile)
			}
		}
	}
	return refs
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
