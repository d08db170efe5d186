package llm

import (
	"context"
	"errors"
)

var (
	ErrUnavailable         = errors.New("llm unavailable")
	ErrMalformedExtraction = errors.New("llm returned malformed extraction")
)

// Message is a single turn in the conversation sent to the model,
// system prompt included.
type Message struct {
	Role    string
	Content string
}

type ReplyInput struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// TrainingItem mirrors one row the extractor pulls out of a free-form
// training message. Nil metric pointers mean the user did not report
// that metric, which is distinct from reporting zero.
type TrainingItem struct {
	Exercise    string
	Sets        *int
	Reps        *int
	Weight      *float64
	TimeSeconds *int
	DistanceKM  *float64
}

// ProfileFacts carries only the fields the extractor saw evidence for.
// Empty strings mean "nothing new", never "erase".
type ProfileFacts struct {
	Name         string `json:"name,omitempty"`
	Goal         string `json:"goal,omitempty"`
	Level        string `json:"level,omitempty"`
	Injuries     string `json:"injuries,omitempty"`
	Availability string `json:"availability,omitempty"`
	Preferences  string `json:"preferences,omitempty"`
}

func (f ProfileFacts) Empty() bool {
	return f.Name == "" && f.Goal == "" && f.Level == "" &&
		f.Injuries == "" && f.Availability == "" && f.Preferences == ""
}

type Summary struct {
	Summary   string
	OpenLoops []string
}

type Responder interface {
	Reply(ctx context.Context, input ReplyInput) (string, error)
}

type TrainingExtractor interface {
	ExtractTraining(ctx context.Context, text string) ([]TrainingItem, error)
}

// ProfileExtractor sees the facts already on record so it can return
// only what the message adds.
type ProfileExtractor interface {
	ExtractProfile(ctx context.Context, existing ProfileFacts, text string) (ProfileFacts, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (Summary, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}
