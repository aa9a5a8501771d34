package domain

// Story is a generated fairy tale as returned by the backend. Immutable
// once it enters the library; AudioURL may be empty when no narration
// was synthesized for it.
type Story struct {
	StoryID  string `json:"storyId"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	AudioURL string `json:"audioUrl,omitempty"`
}

// HistoryEntry marks that a user has been shown a story. At most one
// entry may exist per (UserID, StoryID) pair.
type HistoryEntry struct {
	UserID  string `json:"userId"`
	StoryID string `json:"storyId"`
	Title   string `json:"title"`
}
