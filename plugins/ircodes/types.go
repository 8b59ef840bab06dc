package ircodes

// TableSummary describes one unit's table without raw timings.
type TableSummary struct {
	Unit            string         `json:"unit"`
	Length          int            `json:"length"`
	EffectiveLength int            `json:"effective_length"`
	Sequences       map[string]int `json:"sequences"`
	Valid           bool           `json:"valid"`
	Error           string         `json:"error,omitempty"`
}

// TableList is the ListTables output.
type TableList struct {
	Profile    string         `json:"profile"`
	CarrierKHz int            `json:"carrier_khz"`
	Tables     []TableSummary `json:"tables"`
}

// TableRequest is the GetTable input.
type TableRequest struct {
	Profile string `json:"profile"`
	Unit    string `json:"unit"`
}

// Table is the GetTable output, timings included.
type Table struct {
	Profile    string              `json:"profile"`
	Unit       string              `json:"unit"`
	CarrierKHz int                 `json:"carrier_khz"`
	Length     int                 `json:"length"`
	Sequences  map[string][]uint16 `json:"sequences"`
}
