// Package persona assigns one of six fixed archetypes from questionnaire answers.
//
// Classification is an ordered rule table: the first rule with any matching
// condition wins and Guardian is the fallback. The function is pure and total so
// it keeps working when the optional generative enrichment is unavailable.
package persona

import (
	"fmt"
	"slices"
)

// Archetype is one of the fixed behavioral personas.
type Archetype string

const (
	ArchetypeWarrior  Archetype = "warrior"
	ArchetypeMage     Archetype = "mage"
	ArchetypeBard     Archetype = "bard"
	ArchetypeRogue    Archetype = "rogue"
	ArchetypeHealer   Archetype = "healer"
	ArchetypeGuardian Archetype = "guardian"
)

// AllArchetypes lists every archetype in rule priority order.
var AllArchetypes = []Archetype{
	ArchetypeWarrior,
	ArchetypeMage,
	ArchetypeBard,
	ArchetypeRogue,
	ArchetypeHealer,
	ArchetypeGuardian,
}

// IsValid reports whether a is one of the fixed archetypes.
func (a Archetype) IsValid() bool {
	return slices.Contains(AllArchetypes, a)
}

// Condition matches when Field holds Value. List fields match on membership.
type Condition struct {
	Field Field
	Value string
}

func (c Condition) String() string {
	return fmt.Sprintf("%s=%s", c.Field, c.Value)
}

func (c Condition) matches(a Answers) bool {
	return slices.Contains(a.values(c.Field), c.Value)
}

// Rule assigns Archetype when any of its conditions match.
type Rule struct {
	Archetype Archetype
	AnyOf     []Condition
}

// Rules is evaluated top to bottom; the first matching rule wins.
// Guardian has no rule: it is what remains.
var Rules = []Rule{
	{
		Archetype: ArchetypeWarrior,
		AnyOf: []Condition{
			{FieldMotivation, "competition"},
			{FieldPushOrProtect, "push"},
			{FieldJourney, "summit"},
			{FieldSocialComparison, "fuels_me"},
		},
	},
	{
		Archetype: ArchetypeMage,
		AnyOf: []Condition{
			{FieldMotivation, "mastery"},
			{FieldTopMotivators, "learning"},
			{FieldJourney, "library"},
			{FieldMomentumLoss, "analyze_it"},
		},
	},
	{
		Archetype: ArchetypeBard,
		AnyOf: []Condition{
			{FieldMotivation, "connection"},
			{FieldTopMotivators, "community"},
			{FieldSocialComparison, "share_progress"},
			{FieldJourney, "festival"},
		},
	},
	{
		Archetype: ArchetypeRogue,
		AnyOf: []Condition{
			{FieldMotivation, "freedom"},
			{FieldMomentumLoss, "switch_it_up"},
			{FieldJourney, "open_road"},
			{FieldWeeklyFeeling, "restless"},
		},
	},
	{
		Archetype: ArchetypeHealer,
		AnyOf: []Condition{
			{FieldMotivation, "wellbeing"},
			{FieldPushOrProtect, "protect"},
			{FieldWeeklyFeeling, "drained"},
			{FieldTopMotivators, "health"},
		},
	},
}

// Contact frequencies in messages per week.
const (
	DefaultContactFrequency = 6
	QuietContactFrequency   = 3
)

// MissResponseQuietReset is the miss-response style asking for fewer check-ins.
const MissResponseQuietReset = "quiet_reset"

// Source tells whether a result was enriched by the generative backend.
type Source string

const (
	SourceRules    Source = "rules"
	SourceEnriched Source = "enriched"
)

// Result is the derived persona for one submission.
type Result struct {
	Archetype            Archetype `json:"archetype"`
	Strengths            []string  `json:"strengths"`
	Challenges           []string  `json:"challenges"`
	RecommendedHabits    []string  `json:"recommended_habits"`
	ChurnRisks           []string  `json:"churn_risks"`
	EngagementTone       string    `json:"engagement_tone"`
	ContactFrequency     int       `json:"contact_frequency"`
	MotivationLever      string    `json:"motivation_lever"`
	DefaultChallengeDays int       `json:"default_challenge_days"`
	// MatchedOn is the first condition that selected the archetype; empty for the fallback.
	MatchedOn string `json:"matched_on,omitempty"`
	Source    Source `json:"source"`
	Narrative string `json:"narrative,omitempty"`
}

// Classify maps answers to a Result.
func Classify(answers Answers) Result {
	a := answers.Normalize()

	archetype, matched := ArchetypeGuardian, ""
rules:
	for _, rule := range Rules {
		for _, c := range rule.AnyOf {
			if c.matches(a) {
				archetype, matched = rule.Archetype, c.String()
				break rules
			}
		}
	}

	p := ProfileOf(archetype)
	return Result{
		Archetype:            archetype,
		Strengths:            slices.Clone(p.Strengths),
		Challenges:           slices.Clone(p.Challenges),
		RecommendedHabits:    slices.Clone(p.RecommendedHabits),
		ChurnRisks:           slices.Clone(p.ChurnRisks),
		EngagementTone:       p.Tone,
		ContactFrequency:     ContactFrequency(a.MissResponse),
		MotivationLever:      p.MotivationLever,
		DefaultChallengeDays: p.DefaultChallengeDays,
		MatchedOn:            matched,
		Source:               SourceRules,
	}
}

// ContactFrequency derives messages per week from the miss-response style.
func ContactFrequency(missResponse string) int {
	if normalize(missResponse) == MissResponseQuietReset {
		return QuietContactFrequency
	}
	return DefaultContactFrequency
}
