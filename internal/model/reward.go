package model

import "time"

// Reward is a user's one-time reward claim. At most one row exists per user.
//
// The row's existence is what marks a user as having claimed. Claimed and
// ClaimedAt only change when an admin records the payout.
type Reward struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Email     string     `json:"email"`
	Claimed   bool       `json:"claimed"`
	ClaimedAt *time.Time `json:"claimedAt"`
	CreatedAt time.Time  `json:"createdAt"`
}

// RewardState is where a user sits in the reward journey.
type RewardState string

const (
	StateWatching  RewardState = "watching"
	StateQualified RewardState = "qualified"
	StateClaimed   RewardState = "claimed"
)

// Progress summarises a user's journey towards the reward.
type Progress struct {
	AdsWatched int         `json:"adsWatched"`
	Threshold  int         `json:"threshold"`
	Remaining  int         `json:"remaining"`
	State      RewardState `json:"state"`
	Reward     *Reward     `json:"reward,omitempty"`
}
