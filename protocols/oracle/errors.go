package oracle

import "errors"

var (
	// ErrUnauthorized indicates the caller is not the reward stats submitter.
	ErrUnauthorized = errors.New("oracle: not reward stats submitter")

	// ErrRewardStatsUnmatched indicates beneficiaries and rewards differ in length.
	ErrRewardStatsUnmatched = errors.New("oracle: reward stats unmatched")

	// ErrInvalidPid indicates the stats target an unregistered pool.
	ErrInvalidPid = errors.New("oracle: invalid pid")

	// ErrNilReward indicates a missing reward value.
	ErrNilReward = errors.New("oracle: nil reward")
)
