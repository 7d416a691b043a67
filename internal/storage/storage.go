package storage

import "time"

type Kind string

const (
	KindText  Kind = "text"
	KindVoice Kind = "voice"
)

// Event is one handled message: the user's input and what the bot answered.
// Failed completions are recorded with Error set and no response.
type Event struct {
	Timestamp         time.Time `json:"timestamp"`
	Username          string    `json:"username"`
	Kind              Kind      `json:"kind"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response,omitempty"`
	Error             string    `json:"error,omitempty"`
}

// Recorder abstracts persistence of interaction events.
// LoadInteractions returns events in chronological order.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}
