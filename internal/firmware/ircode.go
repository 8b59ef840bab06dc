package firmware

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultCarrierKHz = 38
	MinCarrierKHz     = 30
	MaxCarrierKHz     = 60
)

// Command is one of the remote-control buttons the firmware replays.
type Command int

const (
	CommandOn Command = iota
	CommandOff
	CommandUp
	CommandDown
)

var commandNames = [...]string{"ON", "OFF", "UP", "DOWN"}

// Commands returns every command in header order.
func Commands() []Command {
	return []Command{CommandOn, CommandOff, CommandUp, CommandDown}
}

func (c Command) String() string {
	if c < 0 || int(c) >= len(commandNames) {
		return fmt.Sprintf("Command(%d)", int(c))
	}
	return commandNames[c]
}

// ParseCommand maps ON/OFF/UP/DOWN (any case) to a Command.
func ParseCommand(s string) (Command, error) {
	needle := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range commandNames {
		if name == needle {
			return Command(i), nil
		}
	}
	return 0, fmt.Errorf("unknown ir command %q", s)
}

var unitPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// ValidateUnit checks a unit name can be used inside header symbols.
func ValidateUnit(unit string) error {
	if !unitPattern.MatchString(unit) {
		return fmt.Errorf("unit %q does not match %s", unit, unitPattern.String())
	}
	return nil
}

// CodeTable holds the captured timings for one air conditioner.
type CodeTable struct {
	Unit string `json:"unit"`

	// Length is the declared IR_<UNIT>_LEN. Zero means undeclared.
	Length    int                  `json:"length"`
	Sequences map[Command][]uint16 `json:"-"`
}

// NewCodeTable returns an empty table, the template state.
func NewCodeTable(unit string) CodeTable {
	return CodeTable{Unit: unit, Sequences: make(map[Command][]uint16)}
}

// Sequence returns the timings for cmd, nil when unset.
func (t CodeTable) Sequence(cmd Command) []uint16 {
	return t.Sequences[cmd]
}

// SetSequence stores a copy of seq for cmd.
func (t *CodeTable) SetSequence(cmd Command, seq []uint16) {
	if t.Sequences == nil {
		t.Sequences = make(map[Command][]uint16)
	}
	t.Sequences[cmd] = append([]uint16(nil), seq...)
}

// EffectiveLength is the declared length, or the common sequence length
// when the declaration is missing and all four sequences agree.
func (t CodeTable) EffectiveLength() int {
	if t.Length > 0 {
		return t.Length
	}
	common := -1
	for _, cmd := range Commands() {
		n := len(t.Sequences[cmd])
		if common == -1 {
			common = n
			continue
		}
		if n != common {
			return 0
		}
	}
	if common < 0 {
		return 0
	}
	return common
}

// LenSymbol is the IR_<UNIT>_LEN constant name.
func (t CodeTable) LenSymbol() string {
	return symIRPrefix + t.Unit + symLenSuffix
}

// SequenceSymbol is the IR_<UNIT>_<CMD> array name.
func (t CodeTable) SequenceSymbol(cmd Command) string {
	return symIRPrefix + t.Unit + "_" + cmd.String()
}

// IsTemplate reports the copy-and-fill state: nothing captured, nothing
// declared.
func (t CodeTable) IsTemplate() bool {
	if t.Length != 0 {
		return false
	}
	for _, seq := range t.Sequences {
		if len(seq) > 0 {
			return false
		}
	}
	return true
}

func (t CodeTable) check(r *Report) {
	if err := ValidateUnit(t.Unit); err != nil {
		r.add(CodeInvalidName, symIRPrefix+t.Unit, "%v", err)
		return
	}

	length := t.EffectiveLength()
	lenSource := t.LenSymbol()
	if length == 0 {
		r.add(CodeMissing, t.LenSymbol(), "declared length is zero")
		// Undeclared and inconsistent: measure against the most common length.
		length = t.commonLength()
		lenSource = "most sequences"
	}

	for _, cmd := range Commands() {
		seq := t.Sequences[cmd]
		symbol := t.SequenceSymbol(cmd)
		if len(seq) == 0 {
			r.add(CodeEmptySequence, symbol, "no timings captured")
			continue
		}
		if length > 0 && len(seq) != length {
			r.add(CodeLengthMismatch, symbol, "has %d timings, %s is %d", len(seq), lenSource, length)
		}
		for i, v := range seq {
			if v == 0 {
				r.add(CodeZeroTiming, symbol, "timing %d is zero", i)
				break
			}
		}
	}
}

// commonLength is the most frequent non-empty sequence length, earliest
// command first on ties. It is 0 when nothing is captured.
func (t CodeTable) commonLength() int {
	counts := make(map[int]int)
	best := 0
	for _, cmd := range Commands() {
		n := len(t.Sequences[cmd])
		if n == 0 {
			continue
		}
		counts[n]++
		if best == 0 || counts[n] > counts[best] {
			best = n
		}
	}
	return best
}

// Validate checks the table can be deployed.
func (t CodeTable) Validate() error {
	var r Report
	t.check(&r)
	return r.Err()
}

// ValidateCarrier checks an IR_KHZ value.
func ValidateCarrier(khz int) error {
	if khz < MinCarrierKHz || khz > MaxCarrierKHz {
		return fmt.Errorf("carrier %d kHz outside %d-%d", khz, MinCarrierKHz, MaxCarrierKHz)
	}
	return nil
}
