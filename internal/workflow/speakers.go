package workflow

import (
	"github.com/podforge/podforge/internal/models"
)

// Default voice assignment applied when speaker slots are regenerated.
const (
	DefaultVoiceProvider = "doubao"
	DefaultVoiceID       = "zh_female_shuangkuaisisi_moon_bigtts"
	DefaultVoiceSpeed    = 1.0
)

// syncSpeakersLocked recomputes the voice-assignment list whenever the
// script's distinct-speaker count changes. The list is regenerated wholesale
// with defaults rather than merged: a partial merge would silently pair a
// kept voice id with the wrong provider when the catalog differs by provider.
// Caller must hold s.mu.
func (s *State) syncSpeakersLocked() {
	n := s.distinctSpeakerCountLocked()
	if len(s.speakers) == n {
		return
	}

	speakers := make([]models.SpeakerAssignment, n)
	for i := range speakers {
		speakers[i] = models.SpeakerAssignment{
			ID:       i + 1,
			Provider: DefaultVoiceProvider,
			Speaker:  DefaultVoiceID,
			Speed:    DefaultVoiceSpeed,
		}
	}
	s.speakers = speakers
}
