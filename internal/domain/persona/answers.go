package persona

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Answers is one questionnaire submission. Every field is optional.
type Answers struct {
	Motivation       string   `json:"motivation,omitempty" yaml:"motivation"`
	Journey          []string `json:"journey,omitempty" yaml:"journey"`
	MomentumLoss     string   `json:"momentum_loss,omitempty" yaml:"momentum_loss"`
	TopMotivators    []string `json:"top_motivators,omitempty" yaml:"top_motivators"`
	WeeklyFeeling    string   `json:"weekly_feeling,omitempty" yaml:"weekly_feeling"`
	PushOrProtect    string   `json:"push_or_protect,omitempty" yaml:"push_or_protect"`
	SocialComparison string   `json:"social_comparison,omitempty" yaml:"social_comparison"`
	MissResponse     string   `json:"miss_response,omitempty" yaml:"miss_response"`
}

// Field names a questionnaire field a rule condition can test.
type Field string

const (
	FieldMotivation       Field = "motivation"
	FieldJourney          Field = "journey"
	FieldMomentumLoss     Field = "momentum_loss"
	FieldTopMotivators    Field = "top_motivators"
	FieldWeeklyFeeling    Field = "weekly_feeling"
	FieldPushOrProtect    Field = "push_or_protect"
	FieldSocialComparison Field = "social_comparison"
	FieldMissResponse     Field = "miss_response"
)

// Normalize trims and case-folds every value and drops empty list items.
func (a Answers) Normalize() Answers {
	return Answers{
		Motivation:       normalize(a.Motivation),
		Journey:          normList(a.Journey),
		MomentumLoss:     normalize(a.MomentumLoss),
		TopMotivators:    normList(a.TopMotivators),
		WeeklyFeeling:    normalize(a.WeeklyFeeling),
		PushOrProtect:    normalize(a.PushOrProtect),
		SocialComparison: normalize(a.SocialComparison),
		MissResponse:     normalize(a.MissResponse),
	}
}

// IsEmpty reports whether no field carries a value.
func (a Answers) IsEmpty() bool {
	n := a.Normalize()
	return n.Motivation == "" && len(n.Journey) == 0 && n.MomentumLoss == "" &&
		len(n.TopMotivators) == 0 && n.WeeklyFeeling == "" && n.PushOrProtect == "" &&
		n.SocialComparison == "" && n.MissResponse == ""
}

// values returns the normalized values held by field f.
func (a Answers) values(f Field) []string {
	switch f {
	case FieldMotivation:
		return single(a.Motivation)
	case FieldJourney:
		return a.Journey
	case FieldMomentumLoss:
		return single(a.MomentumLoss)
	case FieldTopMotivators:
		return a.TopMotivators
	case FieldWeeklyFeeling:
		return single(a.WeeklyFeeling)
	case FieldPushOrProtect:
		return single(a.PushOrProtect)
	case FieldSocialComparison:
		return single(a.SocialComparison)
	case FieldMissResponse:
		return single(a.MissResponse)
	default:
		return nil
	}
}

// normalize trims s and case-folds its NFC form.
func normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Fold().String(norm.NFC.String(s))
}

func normList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = normalize(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func single(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
