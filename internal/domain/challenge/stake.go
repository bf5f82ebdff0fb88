package challenge

import (
	"github.com/habitquest/duel-engine/internal/domain/leveling"
)

// StakeSuggestion is a low / recommended / high stake triple for a pairing.
type StakeSuggestion struct {
	Low         int64 `json:"low"`
	Recommended int64 `json:"recommended"`
	High        int64 `json:"high"`
	// Affordable is the largest stake both sides can currently cover.
	Affordable int64 `json:"affordable"`
	// Level is the lower of the two participants' levels.
	Level int `json:"level"`
}

// SuggestStake recommends a quarter of what the lower-level participant needs
// for their next level, bounded by what both can afford and by maxStake.
// All values are zero when one side has no XP.
func SuggestStake(challengerXP, opponentXP, maxStake int64) StakeSuggestion {
	level := min(leveling.LevelFor(challengerXP), leveling.LevelFor(opponentXP))

	affordable := max(min(challengerXP, opponentXP), 0)
	if maxStake > 0 {
		affordable = min(affordable, maxStake)
	}

	s := StakeSuggestion{Affordable: affordable, Level: level}
	if affordable == 0 {
		return s
	}

	rec := min(max(leveling.XPForLevel(level)/4, 1), affordable)
	s.Recommended = rec
	s.Low = max(rec/2, 1)
	s.High = min(rec*2, affordable)
	return s
}
