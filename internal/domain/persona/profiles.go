package persona

// Profile is the fixed lookup row for an archetype.
type Profile struct {
	Strengths            []string
	Challenges           []string
	RecommendedHabits    []string
	ChurnRisks           []string
	Tone                 string
	MotivationLever      string
	DefaultChallengeDays int
}

var profiles = map[Archetype]Profile{
	ArchetypeWarrior: {
		Strengths:            []string{"drive", "discipline under pressure", "thrives on competition"},
		Challenges:           []string{"burnout", "all-or-nothing thinking"},
		RecommendedHabits:    []string{"morning workout", "daily cold shower", "deep work sprint"},
		ChurnRisks:           []string{"losing streak after a defeat", "boredom without a rival"},
		Tone:                 "direct",
		MotivationLever:      "competition",
		DefaultChallengeDays: 7,
	},
	ArchetypeMage: {
		Strengths:            []string{"curiosity", "systems thinking", "patience with long goals"},
		Challenges:           []string{"overplanning", "analysis paralysis"},
		RecommendedHabits:    []string{"read 20 pages", "practice a language", "weekly review"},
		ChurnRisks:           []string{"plan never turns into action", "loses interest once mastered"},
		Tone:                 "insightful",
		MotivationLever:      "mastery",
		DefaultChallengeDays: 21,
	},
	ArchetypeBard: {
		Strengths:            []string{"energizes others", "accountability through sharing", "consistency with friends"},
		Challenges:           []string{"depends on the group", "skips solo sessions"},
		RecommendedHabits:    []string{"call a friend", "group walk", "gratitude post"},
		ChurnRisks:           []string{"squad goes quiet", "no audience for progress"},
		Tone:                 "playful",
		MotivationLever:      "recognition",
		DefaultChallengeDays: 14,
	},
	ArchetypeRogue: {
		Strengths:            []string{"adaptability", "creative problem solving", "quick restarts"},
		Challenges:           []string{"routine fatigue", "inconsistent timing"},
		RecommendedHabits:    []string{"10-minute tidy", "new recipe each week", "spontaneous walk"},
		ChurnRisks:           []string{"habit feels like a cage", "novelty wears off"},
		Tone:                 "casual",
		MotivationLever:      "variety",
		DefaultChallengeDays: 7,
	},
	ArchetypeHealer: {
		Strengths:            []string{"self-awareness", "sustainable pace", "cares for others"},
		Challenges:           []string{"puts others first", "avoids conflict"},
		RecommendedHabits:    []string{"evening stretch", "drink water", "10-minute meditation"},
		ChurnRisks:           []string{"guilt after a missed day", "pressure from stakes"},
		Tone:                 "gentle",
		MotivationLever:      "wellbeing",
		DefaultChallengeDays: 14,
	},
	ArchetypeGuardian: {
		Strengths:            []string{"reliability", "steady routines", "protects commitments"},
		Challenges:           []string{"resists change", "slow to start new habits"},
		RecommendedHabits:    []string{"fixed bedtime", "daily planning", "weekly budget check"},
		ChurnRisks:           []string{"routine disrupted by travel", "unclear next step"},
		Tone:                 "supportive",
		MotivationLever:      "consistency",
		DefaultChallengeDays: 30,
	},
}

// ProfileOf returns the lookup row for a. Unknown archetypes get the Guardian row.
func ProfileOf(a Archetype) Profile {
	if p, ok := profiles[a]; ok {
		return p
	}
	return profiles[ArchetypeGuardian]
}
