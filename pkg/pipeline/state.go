package pipeline

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-visionapp/pkg/camera"
)

// State is the UI-lock dimension of the controller.
type State int

const (
	// StateIdle accepts triggers; interaction is enabled.
	StateIdle State = iota
	// StateCapturing waits for the camera.
	StateCapturing
	// StateClassifying waits for the classifier.
	StateClassifying
	// StateSpeaking waits for speech playback to finish.
	StateSpeaking
	// StateLocked is a cycle that ended without speech finishing. The lock
	// stays engaged until the next trigger resets it.
	StateLocked
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StateCapturing:   "capturing",
	StateClassifying: "classifying",
	StateSpeaking:    "speaking",
	StateLocked:      "locked",
}

// String returns the lowercase state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// InFlight reports whether a cycle has outstanding work.
func (s State) InFlight() bool {
	return s == StateCapturing || s == StateClassifying || s == StateSpeaking
}

// Flash button labels.
const (
	FlashLabelOn  = "FLASH ON"
	FlashLabelOff = "FLASH OFF"
)

// FlashLabel returns the button text for a mode.
func FlashLabel(m camera.FlashMode) string {
	if m == camera.FlashOn {
		return FlashLabelOn
	}
	return FlashLabelOff
}

// UIState is everything the screen displays. Only the controller loop
// mutates it; readers get copies.
type UIState struct {
	State State  `json:"state"`
	Cycle string `json:"cycle,omitempty"`

	// InteractionEnabled and Busy always flip together.
	InteractionEnabled bool `json:"interaction_enabled"`
	Busy               bool `json:"busy"`

	ItemName       string `json:"item_name"`
	ConfidenceText string `json:"confidence_text"`
	Spoken         string `json:"spoken,omitempty"`

	Flash      camera.FlashMode `json:"flash"`
	FlashLabel string           `json:"flash_label"`

	HasImage  bool      `json:"has_image"`
	UpdatedAt time.Time `json:"updated_at"`
}

func initialUIState() UIState {
	return UIState{
		State:              StateIdle,
		InteractionEnabled: true,
		Flash:              camera.FlashOff,
		FlashLabel:         FlashLabelOff,
		UpdatedAt:          time.Now(),
	}
}
