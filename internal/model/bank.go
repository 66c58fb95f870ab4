package model

import (
	"fmt"
	"strings"
)

// Layout constants of an Octatrack project. These are fixed by the hardware
// and never vary between firmware versions.
const (
	// NumBanks is the number of banks per project (letters A through P).
	NumBanks = 16

	// NumParts is the number of parts per bank.
	NumParts = 4

	// NumPatternsPerPart is the maximum number of patterns a part can own.
	NumPatternsPerPart = 16

	// NumTracks is the number of sequencer tracks per pattern
	// (8 audio followed by 8 MIDI).
	NumTracks = 16

	// NumAudioTracks is the number of audio tracks per pattern.
	NumAudioTracks = 8

	// MaxSteps is the maximum number of steps per track.
	MaxSteps = 64
)

// BankIndex identifies one of the 16 banks of a project (0-based).
//
// Banks are presented to users as letters: index 0 is bank A, index 15 is
// bank P.
type BankIndex int

// Valid reports whether b is within 0..15.
func (b BankIndex) Valid() bool {
	return b >= 0 && b < NumBanks
}

// Letter returns the display letter for the bank ("A" through "P").
// Out-of-range indices return "?".
func (b BankIndex) Letter() string {
	if !b.Valid() {
		return "?"
	}
	return string(rune('A' + b))
}

// ParseBankLetter converts a bank letter ("A".."P", case-insensitive) back
// to its index.
func ParseBankLetter(s string) (BankIndex, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 1 || s[0] < 'A' || s[0] > 'P' {
		return 0, fmt.Errorf("invalid bank letter %q", s)
	}
	return BankIndex(s[0] - 'A'), nil
}

// Bank is one of the 16 top-level containers of a project.
//
// A bank owns exactly 4 parts; each part owns up to 16 patterns. Banks are
// stored in their own file on the data card, so a single bank can be missing
// or unreadable while the rest of the project loads fine.
type Bank struct {
	Index BankIndex `json:"index"`
	Name  string    `json:"name"`
	Parts [NumParts]Part `json:"parts"`
}

// Part is a sound-design preset referenced by patterns: machine assignments,
// amplitude/LFO setups and the two effect slots for each audio track.
type Part struct {
	Name     string                       `json:"name"`
	Edited   bool                         `json:"edited"`
	Machines [NumAudioTracks]MachineSetup `json:"machines"`
	Patterns []Pattern                    `json:"patterns"`
}

// MachineSetup holds the playback machine and its amplitude/LFO/effect
// configuration for one audio track within a part.
type MachineSetup struct {
	Machine   string      `json:"machine"` // e.g. "flex", "static", "thru", "pickup"
	SlotID    int         `json:"slot_id"` // sample slot assignment, -1 if unassigned
	Volume    int         `json:"volume"`
	Pitch     int         `json:"pitch"`
	LFO       LFOSettings `json:"lfo"`
	Effect1   string      `json:"effect1"`
	Effect2   string      `json:"effect2"`
}

// LFOSettings describes the three LFOs of an audio track.
type LFOSettings struct {
	Speeds [3]int    `json:"speeds"`
	Depths [3]int    `json:"depths"`
	Waves  [3]string `json:"waves"`
}

// Pattern is a per-step arrangement across the 16 tracks, referencing one
// of the owning bank's 4 parts.
type Pattern struct {
	Index     int    `json:"index"`
	Length    int    `json:"length"` // steps, 1..64
	Scale     string `json:"scale"`  // per-pattern scale setting, e.g. "1x", "3/4x"
	ChainMode string `json:"chain_mode"`
	Tracks    [NumTracks]Track `json:"tracks"`
}

// TrackKind distinguishes the 8 audio tracks from the 8 MIDI tracks.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackMIDI  TrackKind = "midi"
)

// Track is one sequencer lane of a pattern, carrying up to 64 steps.
type Track struct {
	Index int       `json:"index"`
	Kind  TrackKind `json:"kind"`
	Steps []Step    `json:"steps"`
}

// Step is a single sequencer step: its trigger flags, parameter locks,
// trig condition and micro-timing offset.
type Step struct {
	Trig        bool        `json:"trig"`
	Trigless    bool        `json:"trigless"`
	Condition   string      `json:"condition,omitempty"` // e.g. "FILL", "25%", "1:2"
	Microtiming int         `json:"microtiming"`         // -23..+23, in 1/384 note increments
	Locks       []ParamLock `json:"locks,omitempty"`
}

// ParamLock is a per-step override of a single machine parameter.
type ParamLock struct {
	Param string `json:"param"`
	Value int    `json:"value"`
}
