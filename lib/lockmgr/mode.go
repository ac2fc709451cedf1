package lockmgr

import (
	"fmt"
)

// Mode is a lock mode. Modes are bit flags, so a request may combine several
// of them with a bitwise OR; the combination is tried from the most to the
// least restrictive mode (see Expand).
type Mode uint8

// Known lock modes, ordered from the least to the most restrictive.
const (
	NL Mode = 1 << iota // Null
	CR                  // Concurrent Read
	CW                  // Concurrent Write
	PR                  // Protected Read
	PW                  // Protected Write
	EX                  // Exclusive
)

// all is the union of every known mode
const all = NL | CR | CW | PR | PW | EX

// --------------------------------------------------------------------------
// Static tables
// --------------------------------------------------------------------------

// modeInfo holds everything that is known about a single mode
type modeInfo struct {
	code       string
	name       string
	compatible Mode // modes grantable next to an existing lock of this mode
	escalation Mode // mode captured on the parent key
}

var modeTable = map[Mode]modeInfo{
	NL: {code: "NL", name: "Null", compatible: NL | CR | CW | PR | PW | EX, escalation: NL},
	CR: {code: "CR", name: "Concurrent Read", compatible: NL | CR | CW | PR | PW, escalation: CR},
	CW: {code: "CW", name: "Concurrent Write", compatible: NL | CR | CW, escalation: CW},
	PR: {code: "PR", name: "Protected Read", compatible: NL | CR | PR, escalation: CR},
	PW: {code: "PW", name: "Protected Write", compatible: NL | CR, escalation: CW},
	EX: {code: "EX", name: "Exclusive", compatible: NL, escalation: CW},
}

// Modes lists every known mode from the most to the least restrictive.
// This is the order in which a combined mode request is attempted.
var Modes = []Mode{EX, PW, PR, CW, CR, NL}

// Codes lists the two letter codes of Modes (same order).
var Codes = []string{"EX", "PW", "PR", "CW", "CR", "NL"}

// Names lists the long names of Modes (same order).
var Names = []string{"Exclusive", "Protected Write", "Protected Read", "Concurrent Write", "Concurrent Read", "Null"}

// --------------------------------------------------------------------------
// Lookups
// --------------------------------------------------------------------------

// Known reports whether m is exactly one of the six known modes.
func (m Mode) Known() bool {
	_, ok := modeTable[m]
	return ok
}

// Code returns the two letter code of the mode or "" if the mode is unknown.
func (m Mode) Code() string {
	return modeTable[m].code
}

// Name returns the long name of the mode or "" if the mode is unknown.
func (m Mode) Name() string {
	return modeTable[m].name
}

// Compatibility returns the set of modes that may be granted on a key that
// already holds a lock of mode m. Unknown modes are compatible with nothing.
func (m Mode) Compatibility() Mode {
	return modeTable[m].compatible
}

// Escalation returns the mode that a lock of mode m captures on every
// ancestor key. Unknown modes escalate to 0.
func (m Mode) Escalation() Mode {
	return modeTable[m].escalation
}

// Compatible reports whether a new lock of mode other can be granted next to
// an existing lock of mode m.
func (m Mode) Compatible(other Mode) bool {
	return other.Known() && m.Compatibility()&other != 0
}

// String returns the code of a known mode, the codes of a combination joined
// by "|" or Mode(n) for anything else.
func (m Mode) String() string {
	if code := m.Code(); code != "" {
		return code
	}
	if m != 0 && m&^all == 0 {
		s := ""
		for _, mode := range Modes {
			if m&mode != 0 {
				if s != "" {
					s += "|"
				}
				s += mode.Code()
			}
		}
		return s
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Expand decomposes a combined mode request into its known modes, most
// restrictive first. A mask without any mode bit or with unknown bits is
// rejected with ErrInvalidArgument.
func Expand(mask Mode) ([]Mode, error) {
	if mask == 0 || mask&^all != 0 {
		return nil, invalidArgument("mode", "a combination of known lock modes", mask)
	}
	modes := make([]Mode, 0, len(Modes))
	for _, mode := range Modes {
		if mask&mode != 0 {
			modes = append(modes, mode)
		}
	}
	return modes, nil
}

// Describe returns the long name of a mode or its two letter code if short is
// set. The boolean is false for unknown modes.
func Describe(mode Mode, short bool) (string, bool) {
	info, ok := modeTable[mode]
	if !ok {
		return "", false
	}
	if short {
		return info.code, true
	}
	return info.name, true
}
