package diagnosis

import (
	"github.com/zulandar/uranai/internal/flow"
)

// Answers maps question id to score.
type Answers map[int]int

// Levels is a scored instinct profile. Every level is in [1,4].
type Levels struct {
	Craftsmanship int `json:"craftsmanship"`
	Hunting       int `json:"hunting"`
	Empathy       int `json:"empathy"`
	Defense       int `json:"defense"`
	Leap          int `json:"leap"`
}

// Get returns the level for axis.
func (l Levels) Get(axis Axis) int {
	switch axis {
	case AxisCraftsmanship:
		return l.Craftsmanship
	case AxisHunting:
		return l.Hunting
	case AxisEmpathy:
		return l.Empathy
	case AxisDefense:
		return l.Defense
	case AxisLeap:
		return l.Leap
	}
	return 0
}

func (l *Levels) set(axis Axis, v int) {
	switch axis {
	case AxisCraftsmanship:
		l.Craftsmanship = v
	case AxisHunting:
		l.Hunting = v
	case AxisEmpathy:
		l.Empathy = v
	case AxisDefense:
		l.Defense = v
	case AxisLeap:
		l.Leap = v
	}
}

// Score computes the instinct levels for a complete set of answers. It
// rejects a missing or out-of-range answer and an unset or unlisted gender
// rather than defaulting.
func Score(q *Questionnaire, answers Answers, gender string) (Levels, error) {
	raw, err := RawScores(q, answers, gender)
	if err != nil {
		return Levels{}, err
	}
	var lv Levels
	for _, axis := range Axes {
		lv.set(axis, level(raw[axis], q.Thresholds[axis]))
	}
	return lv, nil
}

// RawScores returns each axis's weighted sum including the gender offset.
func RawScores(q *Questionnaire, answers Answers, gender string) (map[Axis]int, error) {
	const op = "diagnosis.score"
	if q == nil {
		return nil, flow.Validation(op, "questionnaire is not loaded")
	}
	for _, qu := range q.Questions {
		v, ok := answers[qu.ID]
		if !ok {
			return nil, flow.Validation(op, "question %d is not answered", qu.ID)
		}
		if v < MinScore || v > MaxScore {
			return nil, flow.Validation(op, "answer to question %d must be between %d and %d, got %d", qu.ID, MinScore, MaxScore, v)
		}
	}
	for id := range answers {
		if _, ok := q.Question(id); !ok {
			return nil, flow.Validation(op, "unknown question %d", id)
		}
	}
	if gender == "" {
		return nil, flow.Validation(op, "gender is required")
	}
	if !q.ValidGender(gender) {
		return nil, flow.Validation(op, "unknown gender %q", gender)
	}

	raw := make(map[Axis]int, len(Axes))
	for _, qu := range q.Questions {
		for axis, w := range qu.Weights {
			raw[axis] += answers[qu.ID] * w
		}
	}
	for axis, off := range q.GenderOffsets[gender] {
		raw[axis] += off
	}
	return raw, nil
}

// level is 1 plus the number of thresholds raw reaches.
func level(raw int, thresholds []int) int {
	lv := 1
	for _, t := range thresholds {
		if raw >= t {
			lv++
		}
	}
	return lv
}
