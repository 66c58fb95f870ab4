package model

// NumSampleSlots is the size of each of the two sample slot tables
// (Flex and Static).
const NumSampleSlots = 128

// ProjectMetadata is the project-level state stored in the project
// descriptor file: global playback settings, the currently selected
// bank/pattern/part/track, and the two 128-entry sample slot tables.
//
// There is exactly one ProjectMetadata per project path.
type ProjectMetadata struct {
	Tempo         float64 `json:"tempo"`
	TimeSigNum    int     `json:"time_sig_num"`
	TimeSigDenom  int     `json:"time_sig_denom"`
	PatternLength int     `json:"pattern_length"`
	OSVersion     string  `json:"os_version"`

	CurrentState CurrentState      `json:"current_state"`
	Mixer        MixerSettings     `json:"mixer"`
	Memory       MemorySettings    `json:"memory"`
	MIDI         MIDISettings      `json:"midi"`
	Metronome    MetronomeSettings `json:"metronome"`

	FlexSlots   [NumSampleSlots]SampleSlot `json:"flex_slots"`
	StaticSlots [NumSampleSlots]SampleSlot `json:"static_slots"`
}

// CurrentState records what the hardware had selected when the project was
// last saved. The loader uses Bank to decide which bank to fetch first.
type CurrentState struct {
	Bank    BankIndex `json:"bank"`
	Pattern int       `json:"pattern"`
	Part    int       `json:"part"`
	Track   int       `json:"track"`

	MutedTracks  []int `json:"muted_tracks,omitempty"`
	SoloedTracks []int `json:"soloed_tracks,omitempty"`
	CuedTracks   []int `json:"cued_tracks,omitempty"`

	MIDIMode string `json:"midi_mode"` // "seq" or "chromatic"
}

// MixerSettings holds the project mixer page.
type MixerSettings struct {
	MainLevel int  `json:"main_level"`
	CueLevel  int  `json:"cue_level"`
	MainToCue bool `json:"main_to_cue"`
	GainAB    int  `json:"gain_ab"`
	GainCD    int  `json:"gain_cd"`
	DirAB     int  `json:"dir_ab"`
	DirCD     int  `json:"dir_cd"`
	PhonesMix int  `json:"phones_mix"`
}

// MemorySettings holds the project memory page (recorder configuration).
type MemorySettings struct {
	Use24Bit         bool `json:"use_24bit"`
	DynamicRecorders bool `json:"dynamic_recorders"`
	RecorderCount    int  `json:"recorder_count"`
	RecorderLength   int  `json:"recorder_length"` // steps, 0 = max
}

// MIDISettings holds the project MIDI configuration.
type MIDISettings struct {
	AutoChannel      int                 `json:"auto_channel"`
	TrackChannels    [NumAudioTracks]int `json:"track_channels"`
	ClockSend        bool                `json:"clock_send"`
	ClockReceive     bool                `json:"clock_receive"`
	TransportSend    bool                `json:"transport_send"`
	TransportReceive bool                `json:"transport_receive"`
	ProgChangeIn     int                 `json:"prog_change_in"`  // channel, -1 = off
	ProgChangeOut    int                 `json:"prog_change_out"` // channel, -1 = off
}

// MetronomeSettings holds the project metronome page.
type MetronomeSettings struct {
	Active     bool `json:"active"`
	MainLevel  int  `json:"main_level"`
	CueLevel   int  `json:"cue_level"`
	TonalPitch int  `json:"tonal_pitch"`
	Pitched    bool `json:"pitched"`
}

// SlotSource identifies where a sample slot's audio lives.
type SlotSource string

const (
	SourceCard     SlotSource = "card"     // streamed from the compact flash card
	SourceRecorder SlotSource = "recorder" // a track recorder buffer
)

// SampleSlot is one entry of the Flex or Static sample table, mapping a
// slot number to an audio file and its playback settings.
//
// Exists reflects whether the referenced file was present on the card at
// parse time; Compatible whether its format is playable by the machine.
type SampleSlot struct {
	Number      int        `json:"number"` // 1..128 as shown on the hardware
	Path        string     `json:"path"`
	Gain        int        `json:"gain"` // -24..+24 dB, 0 = unity
	LoopMode    string     `json:"loop_mode"`    // "off", "on", "pingpong"
	Timestretch string     `json:"timestretch"`  // "off", "normal", "beat"
	Source      SlotSource `json:"source"`
	Exists      bool       `json:"exists"`
	Format      string     `json:"format,omitempty"` // e.g. "wav/16/44.1"
	Compatible  bool       `json:"compatible"`
}

// Empty reports whether the slot has no sample assigned.
func (s SampleSlot) Empty() bool {
	return s.Path == ""
}
