// Package diagnosis implements the instinct diagnosis: a fixed twelve
// question questionnaire, the scoring engine that turns answers into five
// instinct levels, and the session controller that walks a user through it
// exactly once.
package diagnosis

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zulandar/uranai/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed questionnaire.yaml
var defaultQuestionnaire []byte

const (
	// QuestionCount is the number of scored questions.
	QuestionCount = 12
	MinScore      = 1
	MaxScore      = 5
	// LevelThresholds is the number of thresholds per axis; levels run
	// from 1 to LevelThresholds+1.
	LevelThresholds = 3
)

// Axis is one of the five instinct dimensions.
type Axis string

const (
	AxisCraftsmanship Axis = "craftsmanship"
	AxisHunting       Axis = "hunting"
	AxisEmpathy       Axis = "empathy"
	AxisDefense       Axis = "defense"
	AxisLeap          Axis = "leap"
)

// Axes lists every axis in display order.
var Axes = []Axis{AxisCraftsmanship, AxisHunting, AxisEmpathy, AxisDefense, AxisLeap}

func (a Axis) valid() bool {
	for _, x := range Axes {
		if a == x {
			return true
		}
	}
	return false
}

// Question is one scored statement.
type Question struct {
	ID      int          `yaml:"id" json:"id"`
	Text    string       `yaml:"text" json:"text"`
	Weights map[Axis]int `yaml:"weights" json:"-"`
}

// Questionnaire is the versioned question list and scoring table. It is
// read-only once loaded.
type Questionnaire struct {
	Version       string                  `yaml:"version" json:"version"`
	Genders       []string                `yaml:"genders" json:"genders"`
	Questions     []Question              `yaml:"questions" json:"questions"`
	Thresholds    map[Axis][]int          `yaml:"thresholds" json:"-"`
	GenderOffsets map[string]map[Axis]int `yaml:"gender_offsets" json:"-"`

	raw []byte
}

// DefaultQuestionnaire returns the embedded questionnaire.
func DefaultQuestionnaire() (*Questionnaire, error) {
	return ParseQuestionnaire(defaultQuestionnaire)
}

// LoadQuestionnaire reads a questionnaire from path, or returns the embedded
// default when path is empty.
func LoadQuestionnaire(path string) (*Questionnaire, error) {
	if path == "" {
		return DefaultQuestionnaire()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("diagnosis: read questionnaire %s: %w", path, err)
	}
	return ParseQuestionnaire(data)
}

// ParseQuestionnaire unmarshals and validates a questionnaire. Questions are
// returned ordered by id.
func ParseQuestionnaire(data []byte) (*Questionnaire, error) {
	var q Questionnaire
	if err := yaml.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("diagnosis: parse questionnaire: %w", err)
	}
	sort.Slice(q.Questions, func(i, j int) bool { return q.Questions[i].ID < q.Questions[j].ID })
	if err := q.validate(); err != nil {
		return nil, err
	}
	q.raw = append([]byte(nil), data...)
	return &q, nil
}

func (q *Questionnaire) validate() error {
	var errs []string
	if q.Version == "" {
		errs = append(errs, "version is required")
	}
	if len(q.Genders) == 0 {
		errs = append(errs, "at least one gender is required")
	}

	if len(q.Questions) != QuestionCount {
		errs = append(errs, fmt.Sprintf("expected %d questions, got %d", QuestionCount, len(q.Questions)))
	}
	covered := make(map[Axis]bool)
	for i, qu := range q.Questions {
		if qu.ID != i+1 {
			errs = append(errs, fmt.Sprintf("question ids must be 1..%d without gaps, found %d at position %d", QuestionCount, qu.ID, i+1))
			break
		}
	}
	for _, qu := range q.Questions {
		if strings.TrimSpace(qu.Text) == "" {
			errs = append(errs, fmt.Sprintf("question %d has no text", qu.ID))
		}
		if len(qu.Weights) == 0 {
			errs = append(errs, fmt.Sprintf("question %d has no weights", qu.ID))
		}
		for axis, w := range qu.Weights {
			if !axis.valid() {
				errs = append(errs, fmt.Sprintf("question %d: unknown axis %q", qu.ID, axis))
				continue
			}
			if w <= 0 {
				errs = append(errs, fmt.Sprintf("question %d: weight for %s must be positive", qu.ID, axis))
			}
			covered[axis] = true
		}
	}

	for _, axis := range Axes {
		if !covered[axis] {
			errs = append(errs, fmt.Sprintf("axis %s is not driven by any question", axis))
		}
		ts := q.Thresholds[axis]
		if len(ts) != LevelThresholds {
			errs = append(errs, fmt.Sprintf("axis %s needs %d thresholds, got %d", axis, LevelThresholds, len(ts)))
			continue
		}
		for i := 1; i < len(ts); i++ {
			if ts[i] <= ts[i-1] {
				errs = append(errs, fmt.Sprintf("axis %s thresholds must be strictly ascending", axis))
				break
			}
		}
	}
	for axis := range q.Thresholds {
		if !axis.valid() {
			errs = append(errs, fmt.Sprintf("thresholds: unknown axis %q", axis))
		}
	}

	for gender, offsets := range q.GenderOffsets {
		if !q.ValidGender(gender) {
			errs = append(errs, fmt.Sprintf("gender_offsets: %q is not a listed gender", gender))
		}
		for axis := range offsets {
			if !axis.valid() {
				errs = append(errs, fmt.Sprintf("gender_offsets[%s]: unknown axis %q", gender, axis))
			}
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("diagnosis: invalid questionnaire: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidGender reports whether g is one of the listed genders.
func (q *Questionnaire) ValidGender(g string) bool {
	for _, x := range q.Genders {
		if g == x {
			return true
		}
	}
	return false
}

// Question returns the question with the given id.
func (q *Questionnaire) Question(id int) (Question, bool) {
	if id < 1 || id > len(q.Questions) {
		return Question{}, false
	}
	return q.Questions[id-1], true
}

// Checksum is the hex SHA-256 of the questionnaire source.
func (q *Questionnaire) Checksum() string {
	sum := sha256.Sum256(q.raw)
	return hex.EncodeToString(sum[:])
}

// Record returns the row that pins this version in the database.
func (q *Questionnaire) Record() *models.Questionnaire {
	return &models.Questionnaire{
		Version:  q.Version,
		Checksum: q.Checksum(),
		Body:     string(q.raw),
	}
}
