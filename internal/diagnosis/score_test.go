package diagnosis

import (
	"strings"
	"testing"

	"github.com/zulandar/uranai/internal/flow"
)

func loadDefault(t *testing.T) *Questionnaire {
	t.Helper()
	q, err := DefaultQuestionnaire()
	if err != nil {
		t.Fatalf("DefaultQuestionnaire: %v", err)
	}
	return q
}

func uniform(score int) Answers {
	a := make(Answers, QuestionCount)
	for id := 1; id <= QuestionCount; id++ {
		a[id] = score
	}
	return a
}

func TestDefaultQuestionnaire(t *testing.T) {
	q := loadDefault(t)
	if q.Version == "" {
		t.Error("Version is empty")
	}
	if len(q.Questions) != QuestionCount {
		t.Fatalf("len(Questions) = %d, want %d", len(q.Questions), QuestionCount)
	}
	for i, qu := range q.Questions {
		if qu.ID != i+1 {
			t.Errorf("Questions[%d].ID = %d, want %d", i, qu.ID, i+1)
		}
	}
	for _, g := range []string{"男性", "女性", "その他"} {
		if !q.ValidGender(g) {
			t.Errorf("ValidGender(%q) = false", g)
		}
	}
	if len(q.Checksum()) != 64 {
		t.Errorf("Checksum length = %d, want 64", len(q.Checksum()))
	}
	rec := q.Record()
	if rec.Version != q.Version || rec.Body == "" || rec.Checksum != q.Checksum() {
		t.Errorf("Record() = %+v", rec)
	}
}

// Golden profile: all answers 3, gender 男性.
func TestScore_Baseline(t *testing.T) {
	q := loadDefault(t)
	got, err := Score(q, uniform(3), "男性")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	want := Levels{Craftsmanship: 2, Hunting: 2, Empathy: 3, Defense: 2, Leap: 2}
	if got != want {
		t.Errorf("Score = %+v, want %+v", got, want)
	}
}

func TestScore_GenderOffsets(t *testing.T) {
	q := loadDefault(t)
	tests := []struct {
		gender string
		want   Levels
	}{
		{"男性", Levels{2, 2, 3, 2, 2}},
		{"女性", Levels{2, 3, 2, 2, 2}},
		{"その他", Levels{2, 2, 2, 2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.gender, func(t *testing.T) {
			got, err := Score(q, uniform(3), tt.gender)
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if got != tt.want {
				t.Errorf("Score = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestScore_Extremes(t *testing.T) {
	q := loadDefault(t)
	for _, g := range q.Genders {
		low, err := Score(q, uniform(MinScore), g)
		if err != nil {
			t.Fatalf("Score(min, %s): %v", g, err)
		}
		high, err := Score(q, uniform(MaxScore), g)
		if err != nil {
			t.Fatalf("Score(max, %s): %v", g, err)
		}
		for _, axis := range Axes {
			if low.Get(axis) != 1 {
				t.Errorf("%s all-min %s = %d, want 1", g, axis, low.Get(axis))
			}
			if high.Get(axis) != 4 {
				t.Errorf("%s all-max %s = %d, want 4", g, axis, high.Get(axis))
			}
		}
	}
}

// Every combination of per-question scores stays within [1,4] and is
// deterministic. Questions on the same axis share a score to keep the
// space small.
func TestScore_RangeAndDeterminism(t *testing.T) {
	q := loadDefault(t)
	axisOf := make(map[int]Axis)
	for _, qu := range q.Questions {
		for axis := range qu.Weights {
			axisOf[qu.ID] = axis
		}
	}
	var walk func(i int, scores map[Axis]int)
	walk = func(i int, scores map[Axis]int) {
		if i == len(Axes) {
			answers := make(Answers)
			for id, axis := range axisOf {
				answers[id] = scores[axis]
			}
			for _, g := range q.Genders {
				a, err := Score(q, answers, g)
				if err != nil {
					t.Fatalf("Score: %v", err)
				}
				b, _ := Score(q, answers, g)
				if a != b {
					t.Fatalf("Score not deterministic: %+v vs %+v", a, b)
				}
				for _, axis := range Axes {
					if lv := a.Get(axis); lv < 1 || lv > 4 {
						t.Fatalf("%s level = %d for %v", axis, lv, answers)
					}
				}
			}
			return
		}
		for v := MinScore; v <= MaxScore; v++ {
			scores[Axes[i]] = v
			walk(i+1, scores)
		}
	}
	walk(0, make(map[Axis]int))
}

func TestScore_Rejects(t *testing.T) {
	q := loadDefault(t)
	missing := uniform(3)
	delete(missing, 7)
	tooHigh := uniform(3)
	tooHigh[4] = 6
	tooLow := uniform(3)
	tooLow[12] = 0
	extra := uniform(3)
	extra[13] = 3

	tests := []struct {
		name    string
		q       *Questionnaire
		answers Answers
		gender  string
		msg     string
	}{
		{"nil questionnaire", nil, uniform(3), "男性", "not loaded"},
		{"missing answer", q, missing, "男性", "question 7"},
		{"score above range", q, tooHigh, "男性", "question 4"},
		{"score below range", q, tooLow, "男性", "question 12"},
		{"unknown question", q, extra, "男性", "unknown question 13"},
		{"unset gender", q, uniform(3), "", "gender is required"},
		{"unknown gender", q, uniform(3), "robot", "unknown gender"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Score(tt.q, tt.answers, tt.gender)
			if !flow.IsKind(err, flow.KindValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("err = %q, want to contain %q", err, tt.msg)
			}
		})
	}
}

func TestParseQuestionnaire_Invalid(t *testing.T) {
	base := string(defaultQuestionnaire)
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			"bad yaml",
			func(string) string { return "version: [" },
			"parse questionnaire",
		},
		{
			"no version",
			func(s string) string { return strings.Replace(s, `version: "2024-04"`, `version: ""`, 1) },
			"version is required",
		},
		{
			"missing question",
			func(s string) string {
				return strings.Replace(s, "  - id: 12\n", "  - id: 13\n", 1)
			},
			"question ids must be 1..12",
		},
		{
			"unknown axis",
			func(s string) string { return strings.Replace(s, "{ leap: 3 }", "{ luck: 3 }", 1) },
			`unknown axis "luck"`,
		},
		{
			"descending thresholds",
			func(s string) string { return strings.Replace(s, "defense: [13, 19, 25]", "defense: [13, 25, 19]", 1) },
			"defense thresholds must be strictly ascending",
		},
		{
			"offset for unlisted gender",
			func(s string) string {
				return strings.Replace(s, `"女性": { hunting: 2 }`, `"猫": { hunting: 2 }`, 1)
			},
			`"猫" is not a listed gender`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuestionnaire([]byte(tt.mutate(base)))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadQuestionnaire(t *testing.T) {
	q, err := LoadQuestionnaire("")
	if err != nil {
		t.Fatalf("LoadQuestionnaire(\"\"): %v", err)
	}
	if q.Checksum() != loadDefault(t).Checksum() {
		t.Error("empty path should load the embedded questionnaire")
	}
	if _, err := LoadQuestionnaire("/nonexistent/questionnaire.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
