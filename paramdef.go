package liveseq

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type (
	// Opcode identifies an engine-level parameter operation.
	Opcode int

	// Target tells where a parameter command is delivered.
	Target int

	// ParamDef describes one tunable parameter. ParamDefs are immutable once
	// placed in a ParamTable.
	ParamDef struct {
		Names    []string // first name is the canonical one
		Reset    Opcode
		Absolute Opcode
		Relative Opcode
		Parse    func(text string) (float64, error)
		Target   Target
		Peek     func(e Engine, h PlayerHandle) (float64, bool)
	}

	// ParamTable is an immutable name -> ParamDef lookup.
	ParamTable struct {
		defs   []*ParamDef
		byName map[string]*ParamDef
	}

	// ParamSweep is a resolved argument: which parameter, how, to what value
	// and over how many beats.
	ParamSweep struct {
		Def      *ParamDef
		Mode     ArgMode
		Value    float64
		Duration float64
	}
)

const (
	TargetInstr Target = iota
	TargetTrack
)

const (
	OpNone Opcode = iota

	OpLoudnessReset
	OpLoudnessAbs
	OpLoudnessRel
	OpPanReset
	OpPanAbs
	OpPanRel
	OpSurroundReset
	OpSurroundAbs
	OpSurroundRel
	OpDetuneReset
	OpDetuneAbs
	OpDetuneRel
	OpEarlyLateReset
	OpEarlyLateAbs
	OpEarlyLateRel
	OpDurationReset
	OpDurationAbs
	OpDurationRel
	OpPortamentoReset
	OpPortamentoAbs
	OpPortamentoRel
	OpHurryUpReset
	OpHurryUpAbs
	OpHurryUpRel

	// accent opcodes are laid out as NumAccents consecutive triples
	OpAccentBase

	OpEffectAccentBase = OpAccentBase + 3*NumAccents
)

// NumAccents is the number of note accents and track effect accents.
const NumAccents = 8

var ErrDuplicateParam = errors.New("duplicate parameter name")

// NewParamTable builds a lookup table from defs. Names are matched case
// insensitively.
func NewParamTable(defs ...ParamDef) (*ParamTable, error) {
	t := &ParamTable{byName: make(map[string]*ParamDef)}
	for i := range defs {
		d := defs[i]
		d.Names = append([]string(nil), d.Names...)
		if len(d.Names) == 0 {
			return nil, errors.New("parameter definition without a name")
		}
		if d.Parse == nil {
			d.Parse = ParseNumber
		}
		for _, n := range d.Names {
			key := strings.ToLower(n)
			if _, ok := t.byName[key]; ok {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateParam, n)
			}
			t.byName[key] = &d
		}
		t.defs = append(t.defs, &d)
	}
	return t, nil
}

// Lookup finds a parameter by any of its names.
func (t *ParamTable) Lookup(name string) (*ParamDef, bool) {
	d, ok := t.byName[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// Names returns the canonical names of all parameters, in definition order.
func (t *ParamTable) Names() []string {
	ret := make([]string, len(t.defs))
	for i, d := range t.defs {
		ret[i] = d.Names[0]
	}
	return ret
}

// Resolve parses the value and duration of arg with the matching ParamDef.
// ok is false when no parameter has the given name.
func (t *ParamTable) Resolve(arg Arg) (sweep ParamSweep, ok bool, err error) {
	def, ok := t.Lookup(arg.Key)
	if !ok {
		return ParamSweep{}, false, nil
	}
	sweep = ParamSweep{Def: def, Mode: arg.Mode}
	if arg.Mode != ResetToDefault || arg.Value != "" {
		if sweep.Value, err = def.Parse(arg.Value); err != nil {
			return ParamSweep{}, true, err
		}
	}
	if arg.Duration != "" {
		if sweep.Duration, err = ParseNumber(arg.Duration); err != nil {
			return ParamSweep{}, true, fmt.Errorf("duration: %w", err)
		}
		if sweep.Duration < 0 {
			return ParamSweep{}, true, fmt.Errorf("duration: negative value %v", sweep.Duration)
		}
	}
	return sweep, true, nil
}

// Opcode returns the opcode for the sweep mode.
func (s ParamSweep) Opcode() Opcode {
	switch s.Mode {
	case RelativeSweep:
		return s.Def.Relative
	case ResetToDefault:
		return s.Def.Reset
	default:
		return s.Def.Absolute
	}
}

func ParseNumber(text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedArgument, err)
	}
	return v, nil
}

// ParseSemitones accepts a number with an optional "st" suffix.
func ParseSemitones(text string) (float64, error) {
	return ParseNumber(strings.TrimSuffix(strings.TrimSpace(text), "st"))
}

// ParsePercent accepts a plain factor or a percentage, e.g. "0.8" or "80%".
func ParsePercent(text string) (float64, error) {
	text = strings.TrimSpace(text)
	if p, ok := strings.CutSuffix(text, "%"); ok {
		v, err := ParseNumber(p)
		return v / 100, err
	}
	return ParseNumber(text)
}

func peekOp(op Opcode) func(Engine, PlayerHandle) (float64, bool) {
	return func(e Engine, h PlayerHandle) (float64, bool) { return e.Peek(h, op) }
}

// DefaultParamTable builds the standard parameter table. Every call returns a
// fresh table.
func DefaultParamTable() *ParamTable {
	triple := func(base Opcode, target Target, parse func(string) (float64, error), names ...string) ParamDef {
		return ParamDef{
			Names:    names,
			Reset:    base,
			Absolute: base + 1,
			Relative: base + 2,
			Parse:    parse,
			Target:   target,
			Peek:     peekOp(base + 1),
		}
	}
	defs := []ParamDef{
		triple(OpLoudnessReset, TargetInstr, ParsePercent, "loudness", "volume"),
		triple(OpPanReset, TargetInstr, ParseNumber, "pan", "stereo"),
		triple(OpSurroundReset, TargetInstr, ParseNumber, "surround"),
		triple(OpDetuneReset, TargetInstr, ParseSemitones, "detune"),
		triple(OpEarlyLateReset, TargetInstr, ParseNumber, "earlylate"),
		triple(OpDurationReset, TargetInstr, ParsePercent, "duration"),
		triple(OpPortamentoReset, TargetInstr, ParseNumber, "portamento"),
		triple(OpHurryUpReset, TargetInstr, ParsePercent, "hurryup"),
	}
	for i := 0; i < NumAccents; i++ {
		defs = append(defs, triple(OpAccentBase+Opcode(3*i), TargetInstr, ParseNumber, fmt.Sprintf("accent%d", i+1)))
	}
	for i := 0; i < NumAccents; i++ {
		defs = append(defs, triple(OpEffectAccentBase+Opcode(3*i), TargetTrack, ParseNumber,
			fmt.Sprintf("fx%d", i+1), fmt.Sprintf("effectaccent%d", i+1)))
	}
	t, err := NewParamTable(defs...)
	if err != nil {
		panic(err) // the built-in names are unique
	}
	return t
}
