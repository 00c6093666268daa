package build

import (
	"math"

	"github.com/cory-johannsen/palworld-lens/internal/gamedata"
	"github.com/cory-johannsen/palworld-lens/internal/model"
)

// Level-0 stat bases shared by every species.
const (
	baseHP      = 500
	baseAttack  = 100
	baseDefense = 50
	// baseWorkSpeed is not level-scaled.
	baseWorkSpeed = 70
	// alphaHPMultiplier applies to species HP growth of alpha pals.
	alphaHPMultiplier = 1.2
)

// StatInput is everything the stat formulas read from one pal.
type StatInput struct {
	Level         int64
	TalentHP      int64
	TalentMelee   int64
	TalentShot    int64
	TalentDefense int64
	Rank          int64
	TrustLevel    int
	Alpha         bool
}

// talentBonus is the fraction a talent (IV) adds to species growth.
func talentBonus(talent int64) float64 {
	return float64(talent) * 0.3 / 100
}

// rankMultiplier is 1.0 at rank 1 and grows 5% per rank.
func rankMultiplier(rank int64) float64 {
	if rank < 1 {
		rank = 1
	}
	return 1 + float64(rank-1)*0.05
}

// CalculateStats computes a pal's HP, attack and defense.
//
// HP assembles 500 + level*5 + floor(speciesGrowth [*1.2 alpha] + talent
// bonus) + trust bonus, then applies the rank multiplier. Attack and
// defense assemble base + floor(growth*(1+talent bonus)) + trust bonus the
// same way, with growth = level*scaling*0.075 and attack using the better of
// melee and shot talent.
//
// Postcondition: Returns zero stats (work speed aside) when species is nil.
func CalculateStats(species *gamedata.Species, in StatInput) model.Stats {
	if species == nil {
		return model.Stats{WorkSpeed: baseWorkSpeed}
	}
	level := float64(in.Level)
	trust := float64(in.TrustLevel)
	rank := rankMultiplier(in.Rank)

	levelGrowth := level * 5
	hpGrowth := level * species.Scaling.HP * 0.5
	hpTalent := hpGrowth * talentBonus(in.TalentHP)
	var hpTrust float64
	if in.TrustLevel > 0 {
		hpTrust = math.Floor((hpGrowth + levelGrowth) * trust * species.Friendship.HP / 100)
	}
	applied := hpGrowth
	if in.Alpha {
		applied *= alphaHPMultiplier
	}
	hp := math.Floor((baseHP + levelGrowth + math.Floor(applied+hpTalent) + hpTrust) * rank)

	grown := func(base, scaling float64, talent int64, friendship float64) int64 {
		growth := level * scaling * 0.075
		var bonus float64
		if in.TrustLevel > 0 {
			bonus = math.Floor(growth * trust * friendship / 100)
		}
		return int64(math.Floor((base + math.Floor(growth+growth*talentBonus(talent)) + bonus) * rank))
	}

	return model.Stats{
		HP:        int64(hp),
		Attack:    grown(baseAttack, species.Scaling.Attack, max(in.TalentMelee, in.TalentShot), species.Friendship.ShotAttack),
		Defense:   grown(baseDefense, species.Scaling.Defense, in.TalentDefense, species.Friendship.Defense),
		WorkSpeed: baseWorkSpeed,
	}
}

// Hunger normalizes a raw stomach value to 0-100 against capacity.
//
// Postcondition: Result is in [0, 100].
func Hunger(fullStomach, capacity float64) float64 {
	if capacity <= 0 {
		capacity = gamedata.DefaultMaxFullStomach
	}
	return clamp(fullStomach/capacity*100, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
