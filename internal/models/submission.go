package models

// Submission is the discriminated ingestion input. Exactly one source field
// is used per request; the handler resolves collisions by fixed priority
// (video/audio > text > url > subtitle > uploaded document > linked document)
// and records the winner in Kind.
type Submission struct {
	Kind     string `json:"kind"` // "text" | "url" | "youtube" | "video" | "audio" | "pdf" | "pptx" | "subtitle"
	Title    string `json:"title"`
	NumCards int    `json:"num_cards"`
	Language string `json:"language"`

	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`

	// FilePath points into the storage root for uploaded pdf/pptx/subtitle/
	// audio/video payloads, written by the handler before the job is queued.
	FilePath string `json:"file_path,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

const (
	DefaultCardCount = 20
	MinCardCount     = 5
	MaxCardCount     = 100
)

// ClampCardCount bounds a requested count to the supported range, applying
// the default when unset.
func ClampCardCount(n int) int {
	if n == 0 {
		return DefaultCardCount
	}
	if n < MinCardCount {
		return MinCardCount
	}
	if n > MaxCardCount {
		return MaxCardCount
	}
	return n
}

type GenerateNoteRequest struct {
	Submission
	Format string `json:"format"` // "bullets" | "paragraph"
	Length string `json:"length"` // "concise" | "standard" | "detailed"
}
