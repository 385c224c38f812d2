package domain

import "fmt"

// RecordingMode selects the compositor layout.
type RecordingMode string

const (
	RecordCameraOnly       RecordingMode = "camera-only"
	RecordScreenOnly       RecordingMode = "screen-only"
	RecordCombined         RecordingMode = "combined"
	RecordPictureInPicture RecordingMode = "picture-in-picture"
)

func (m RecordingMode) Valid() bool {
	switch m {
	case RecordCameraOnly, RecordScreenOnly, RecordCombined, RecordPictureInPicture:
		return true
	}
	return false
}

// Artifact is one finalized recording ready for the save collaborator.
type Artifact struct {
	Data     []byte
	Filename string
}

func (a Artifact) String() string {
	return fmt.Sprintf("%s (%d bytes)", a.Filename, len(a.Data))
}
