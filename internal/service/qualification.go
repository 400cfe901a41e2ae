package service

import "github.com/sakif/ad-rewards/internal/model"

// Qualify places a user in the reward journey.
//
//	WATCHING  --count reaches threshold-->  QUALIFIED  --claim-->  CLAIMED
//
// A reward row is the only thing that makes a user CLAIMED, so hasReward
// wins over the count. The count only ever grows, so there is no way back
// from QUALIFIED to WATCHING.
func Qualify(count, threshold int, hasReward bool) model.RewardState {
	switch {
	case hasReward:
		return model.StateClaimed
	case count >= threshold:
		return model.StateQualified
	default:
		return model.StateWatching
	}
}

// remaining is how many more views are needed, never negative.
func remaining(count, threshold int) int {
	if count >= threshold {
		return 0
	}
	return threshold - count
}
