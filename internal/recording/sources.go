package recording

import (
	"vidcall/internal/core/domain"
	"vidcall/internal/media"
)

// SourceSet names the live tracks a recording may draw from. Any field may
// be nil; mode selection works over what is present.
type SourceSet struct {
	Camera media.VideoTrack
	Screen media.VideoTrack
	Remote media.VideoTrack

	LocalAudio  media.AudioTrack
	ScreenAudio media.AudioTrack
	RemoteAudio media.AudioTrack
}

// videoLayout is the pair of sources a frame is composed from. Secondary is
// nil for single-source layouts.
type videoLayout struct {
	primary   media.VideoTrack
	secondary media.VideoTrack

	// pip renders secondary as a small overlay instead of a split.
	pip bool
}

// layoutFor resolves the mode against the available sources. Combined mode
// prefers screen+remote, then screen+camera, then remote+camera, and falls
// back to whichever single source exists.
func (s SourceSet) layoutFor(mode domain.RecordingMode) (videoLayout, bool) {
	switch mode {
	case domain.RecordCameraOnly:
		if s.Camera == nil {
			return videoLayout{}, false
		}
		return videoLayout{primary: s.Camera}, true

	case domain.RecordScreenOnly:
		if s.Screen == nil {
			return videoLayout{}, false
		}
		return videoLayout{primary: s.Screen}, true

	case domain.RecordCombined:
		switch {
		case s.Screen != nil && s.Remote != nil:
			return videoLayout{primary: s.Screen, secondary: s.Remote}, true
		case s.Screen != nil && s.Camera != nil:
			return videoLayout{primary: s.Screen, secondary: s.Camera}, true
		case s.Remote != nil && s.Camera != nil:
			return videoLayout{primary: s.Remote, secondary: s.Camera}, true
		case s.Screen != nil:
			return videoLayout{primary: s.Screen}, true
		case s.Remote != nil:
			return videoLayout{primary: s.Remote}, true
		case s.Camera != nil:
			return videoLayout{primary: s.Camera}, true
		}
		return videoLayout{}, false

	case domain.RecordPictureInPicture:
		if s.Remote == nil {
			// Nothing to show behind the overlay; degrade to camera only.
			if s.Camera == nil {
				return videoLayout{}, false
			}
			return videoLayout{primary: s.Camera}, true
		}
		local := s.Screen
		if local == nil {
			local = s.Camera
		}
		return videoLayout{primary: s.Remote, secondary: local, pip: true}, true
	}
	return videoLayout{}, false
}

// audioSources returns the non-nil audio tracks to mix.
func (s SourceSet) audioSources() []media.AudioTrack {
	var out []media.AudioTrack
	if s.LocalAudio != nil {
		out = append(out, s.LocalAudio)
	}
	if s.ScreenAudio != nil {
		out = append(out, s.ScreenAudio)
	}
	if s.RemoteAudio != nil {
		out = append(out, s.RemoteAudio)
	}
	return out
}
