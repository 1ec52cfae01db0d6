// Package aggregate holds the Voice domain object shared by the registry,
// the metadata store drivers and the transport layer.
package aggregate

import (
	"time"

	"kani-tts-server/internal/platform/errors"
)

type ConsentScope string

const (
	ConsentTTS        ConsentScope = "tts"
	ConsentCommercial ConsentScope = "commercial"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusTakenDown Status = "taken_down"
)

type SourceKind string

const (
	SourcePreset SourceKind = "preset"
	SourceCloned SourceKind = "cloned"
)

// Voice is a named, addressable synthesis identity. A nil OwnerID means the
// voice is globally shared (presets).
type Voice struct {
	ID           string
	Name         string
	ConsentScope ConsentScope
	Status       Status
	SourceKind   SourceKind
	OwnerID      *string
	Faction      string
	ArtifactRef  string
	CreatedAt    time.Time
}

func (v *Voice) IsPreset() bool {
	return v.SourceKind == SourcePreset
}

// VisibleTo reports whether a caller may see this voice. Presets are visible
// to everyone; a cloned voice with no owner is shared; otherwise the owner
// must match. An empty identity sees only unowned voices.
func (v *Voice) VisibleTo(identity string) bool {
	if v.IsPreset() || v.OwnerID == nil {
		return true
	}
	return identity != "" && *v.OwnerID == identity
}

// OwnedBy reports whether the caller holds mutation rights over the voice.
func (v *Voice) OwnedBy(identity string) bool {
	if v.OwnerID == nil {
		return false
	}
	return identity != "" && *v.OwnerID == identity
}

// ParseConsentScope validates a caller-supplied consent scope. An empty
// value defaults to tts-only.
func ParseConsentScope(s string) (ConsentScope, error) {
	switch ConsentScope(s) {
	case "":
		return ConsentTTS, nil
	case ConsentTTS:
		return ConsentTTS, nil
	case ConsentCommercial:
		return ConsentCommercial, nil
	default:
		return "", errors.Newf(errors.KindInvalidInput, "voice.consent_scope",
			"unsupported consent scope %q", s)
	}
}
