package models

import "time"

// Reference is the stored metadata of a reference recording.
type Reference struct {
	ID        string    // Database ID (UUID)
	Name      string    // Unique display name
	Channels  int       // Feature channels shared by every variant
	Variants  int       // Number of stored pitch variants
	CreatedAt time.Time // Registration time
}

// MatchResult is one ranked reference returned by a search.
type MatchResult struct {
	Rank        int     // 1-based position in the ranking
	ReferenceID string  // Database ID of the reference (UUID)
	Name        string  // Reference name
	Distance    float64 // Best distance over the reference's variants, 0 is a perfect match
	Variant     int     // Index of the best variant
	Offset      int     // Frame offset of the query inside that variant
}
