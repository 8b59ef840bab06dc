package firmware

import (
	"fmt"
	"regexp"
)

// TemplateUnits are the air conditioners the firmware ships code tables for.
var TemplateUnits = []string{"AIRE1", "AIRE2"}

var profileNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidateName checks a profile name is usable as a file and topic segment.
func ValidateName(name string) error {
	if !profileNamePattern.MatchString(name) {
		return fmt.Errorf("profile name %q does not match %s", name, profileNamePattern.String())
	}
	return nil
}

// Profile is everything one firmware build is configured with.
type Profile struct {
	Name        string      `json:"name"`
	Credentials Credentials `json:"credentials"`
	Peers       Peers       `json:"peers"`
	CarrierKHz  int         `json:"carrier_khz"`
	Tables      []CodeTable `json:"tables"`
}

// TemplateProfile mirrors the example headers: placeholder credentials, zero
// addresses, empty code tables.
func TemplateProfile(name string) Profile {
	p := Profile{
		Name:        name,
		Credentials: TemplateCredentials(),
		CarrierKHz:  DefaultCarrierKHz,
	}
	for _, unit := range TemplateUnits {
		p.Tables = append(p.Tables, NewCodeTable(unit))
	}
	return p
}

// Table looks up a code table by unit.
func (p Profile) Table(unit string) (CodeTable, bool) {
	for _, t := range p.Tables {
		if t.Unit == unit {
			return t, true
		}
	}
	return CodeTable{}, false
}

// Readiness runs every deployment check.
func (p Profile) Readiness() Report {
	r := Report{Profile: p.Name}

	if err := ValidateName(p.Name); err != nil {
		r.add(CodeInvalidName, "name", "%v", err)
	}

	p.Credentials.check(&r)
	p.Peers.check(&r)

	if err := ValidateCarrier(p.CarrierKHz); err != nil {
		r.add(CodeCarrierRange, SymCarrierKHz, "%v", err)
	}

	if len(p.Tables) == 0 {
		r.add(CodeMissing, "tables", "no ir code tables")
	}
	seen := make(map[string]bool)
	for _, t := range p.Tables {
		if seen[t.Unit] {
			r.add(CodeDuplicateUnit, symIRPrefix+t.Unit, "unit declared twice")
			continue
		}
		seen[t.Unit] = true
		t.check(&r)
	}

	return r
}

// IsTemplate reports whether the profile is still entirely the shipped
// template.
func (p Profile) IsTemplate() bool {
	if len(p.Credentials.Placeholders()) != len(p.Credentials.settings()) {
		return false
	}
	if !p.Peers.Central.IsZero() || !p.Peers.Transmitter.IsZero() {
		return false
	}
	for _, t := range p.Tables {
		if !t.IsTemplate() {
			return false
		}
	}
	return true
}
