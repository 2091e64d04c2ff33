package store

import "fmt"

// Mode selects how a store, and the session that owns it, treats the cache
// file.
type Mode int

const (
	// ModeDisabled passes traffic through untouched; no store is opened.
	ModeDisabled Mode = iota
	// ModePlayback answers from an existing cache, read-only.
	ModePlayback
	// ModeCleanRecord starts from an empty cache and replaces the file on close.
	ModeCleanRecord
	// ModeSupplementalRecord starts from the existing cache, keeping rows the
	// new run does not touch.
	ModeSupplementalRecord
)

var modeNames = map[Mode]string{
	ModeDisabled:           "disabled",
	ModePlayback:           "playback",
	ModeCleanRecord:        "cleanRecord",
	ModeSupplementalRecord: "supplementalRecord",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Records reports whether the mode writes to the cache.
func (m Mode) Records() bool {
	return m == ModeCleanRecord || m == ModeSupplementalRecord
}

// ParseMode parses a mode name. Matching is case-sensitive on the canonical
// names, with kebab-case aliases.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "disabled", "off":
		return ModeDisabled, nil
	case "playback", "replay":
		return ModePlayback, nil
	case "cleanRecord", "clean-record", "record":
		return ModeCleanRecord, nil
	case "supplementalRecord", "supplemental-record":
		return ModeSupplementalRecord, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
