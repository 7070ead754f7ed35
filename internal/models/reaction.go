package models

import "time"

// ReactionType is one of the fixed emoji-style signals a participant can send.
type ReactionType string

const (
	ReactionApplause ReactionType = "applause"
	ReactionThumbsUp ReactionType = "thumbs_up"
	ReactionFire     ReactionType = "fire"
	ReactionHeart    ReactionType = "heart"
)

// Valid reports whether r is one of the four allowed reaction types.
func (r ReactionType) Valid() bool {
	switch r {
	case ReactionApplause, ReactionThumbsUp, ReactionFire, ReactionHeart:
		return true
	}
	return false
}

// Reaction is an ephemeral signal during a live event. It is never persisted
// and never replayed after a reconnect.
type Reaction struct {
	Type ReactionType `json:"reaction_type"`
	At   time.Time    `json:"timestamp"`
}
