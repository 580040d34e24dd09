package engine

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// VoiceType selects the kind of voice used for an utterance.
type VoiceType int

const (
	// VoiceTypeAuto resolves to the default voice type at enqueue time.
	VoiceTypeAuto VoiceType = iota
	// VoiceTypeMale is a male voice.
	VoiceTypeMale
	// VoiceTypeFemale is a female voice.
	VoiceTypeFemale
	// VoiceTypeChild is a child voice.
	VoiceTypeChild
)

// String returns the string representation of the voice type.
func (t VoiceType) String() string {
	switch t {
	case VoiceTypeAuto:
		return "auto"
	case VoiceTypeMale:
		return "male"
	case VoiceTypeFemale:
		return "female"
	case VoiceTypeChild:
		return "child"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the defined voice types.
func (t VoiceType) Valid() bool {
	return t >= VoiceTypeAuto && t <= VoiceTypeChild
}

// ParseVoiceType parses a voice type name.
func ParseVoiceType(s string) (VoiceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return VoiceTypeAuto, nil
	case "male":
		return VoiceTypeMale, nil
	case "female":
		return VoiceTypeFemale, nil
	case "child":
		return VoiceTypeChild, nil
	}
	return VoiceTypeAuto, fmt.Errorf("%w: unknown voice type %q", ErrInvalidParameter, s)
}

// Speed and pitch selectors.
const (
	SpeedAuto   = 0
	SpeedMin    = 1
	SpeedNormal = 8
	SpeedMax    = 15

	PitchAuto   = 0
	PitchMin    = 1
	PitchNormal = 8
	PitchMax    = 15
)

// Voice is a (language, type) pair advertised by an engine.
type Voice struct {
	Language string // Platform language tag, e.g. "en_US"
	Type     VoiceType
}

// String returns "language/type".
func (v Voice) String() string {
	return v.Language + "/" + v.Type.String()
}

// IsZero reports whether v is the zero voice.
func (v Voice) IsZero() bool {
	return v.Language == "" && v.Type == VoiceTypeAuto
}

// ParseLanguage validates a language tag and returns it in platform form
// ("en_US"). Both "en_US" and "en-US" are accepted.
func ParseLanguage(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty language", ErrInvalidParameter)
	}
	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("%w: language %q: %v", ErrInvalidParameter, s, err)
	}
	base, _ := tag.Base()
	region, conf := tag.Region()
	if conf == language.No || !strings.ContainsAny(s, "_-") {
		return base.String(), nil
	}
	return base.String() + "_" + region.String(), nil
}

// BaseLanguage returns the ISO 639-1 part of a platform language tag.
func BaseLanguage(lang string) string {
	if i := strings.IndexAny(lang, "_-"); i >= 0 {
		return strings.ToLower(lang[:i])
	}
	return strings.ToLower(lang)
}
