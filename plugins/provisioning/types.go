package provisioning

import (
	"strings"

	"github.com/joshp123/climatelink/internal/firmware"
	"github.com/joshp123/climatelink/internal/ledger"
)

// ProfileSummary is one row of ListProfiles.
type ProfileSummary struct {
	Name     string `json:"name"`
	Ready    bool   `json:"ready"`
	Template bool   `json:"template"`
	Problems int    `json:"problems"`
	Error    string `json:"error,omitempty"`
}

// ProfileList wraps ListProfiles results.
type ProfileList struct {
	Profiles []ProfileSummary `json:"profiles"`
}

// TableView summarises a code table without the raw timings.
type TableView struct {
	Unit            string         `json:"unit"`
	Length          int            `json:"length"`
	EffectiveLength int            `json:"effective_length"`
	Sequences       map[string]int `json:"sequences"`
}

// ProfileView is a profile with secrets redacted.
type ProfileView struct {
	Name        string               `json:"name"`
	Credentials firmware.Credentials `json:"credentials"`
	CentralMAC  string               `json:"central_mac,omitempty"`
	TxMAC       string               `json:"tx_mac,omitempty"`
	CarrierKHz  int                  `json:"carrier_khz"`
	Tables      []TableView          `json:"tables"`
	Ready       bool                 `json:"ready"`
	Template    bool                 `json:"template"`
	SecretFiles []string             `json:"secret_files,omitempty"`
	LastRender  *ledger.Render       `json:"last_render,omitempty"`
}

// RenderRequest is the RenderProfile input.
type RenderRequest struct {
	Profile       string `json:"profile"`
	AllowTemplate bool   `json:"allow_template"`
}

// RenderedFile describes one written header. Contents are never returned
// since config.h carries credentials.
type RenderedFile struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Bytes  int    `json:"bytes"`
	Path   string `json:"path,omitempty"`
}

// RenderResult is the RenderProfile output.
type RenderResult struct {
	Profile  string         `json:"profile"`
	RenderID string         `json:"render_id,omitempty"`
	Ready    bool           `json:"ready"`
	Files    []RenderedFile `json:"files"`
}

func newProfileView(p firmware.Profile) ProfileView {
	view := ProfileView{
		Name:        p.Name,
		Credentials: p.Credentials.Redacted(),
		CarrierKHz:  p.CarrierKHz,
		Tables:      []TableView{},
		Ready:       p.Readiness().Ready(),
		Template:    p.IsTemplate(),
	}
	if !p.Peers.Central.IsZero() {
		view.CentralMAC = p.Peers.Central.String()
	}
	if !p.Peers.Transmitter.IsZero() {
		view.TxMAC = p.Peers.Transmitter.String()
	}
	for _, t := range p.Tables {
		tv := TableView{
			Unit:            t.Unit,
			Length:          t.Length,
			EffectiveLength: t.EffectiveLength(),
			Sequences:       make(map[string]int),
		}
		for _, cmd := range firmware.Commands() {
			tv.Sequences[strings.ToLower(cmd.String())] = len(t.Sequence(cmd))
		}
		view.Tables = append(view.Tables, tv)
	}
	return view
}
