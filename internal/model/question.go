package model

import (
	"fmt"
	"strings"
)

// Difficulty is one of four ordered tiers.
type Difficulty string

const (
	Recall          Difficulty = "recall"
	Comprehension   Difficulty = "comprehension"
	Application     Difficulty = "application"
	HighApplication Difficulty = "high_application"
)

// Tiers lists every difficulty in ascending order.
var Tiers = []Difficulty{Recall, Comprehension, Application, HighApplication}

// tierAliases covers the labels used by authoring prompts.
var tierAliases = map[string]Difficulty{
	"recall":           Recall,
	"comprehension":    Comprehension,
	"application":      Application,
	"high_application": HighApplication,
	"high-application": HighApplication,
	"high application": HighApplication,
	"nhận biết":        Recall,
	"thông hiểu":       Comprehension,
	"vận dụng":         Application,
	"vận dụng cao":     HighApplication,
}

func ParseDifficulty(s string) (Difficulty, error) {
	if d, ok := tierAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d, nil
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

func (d Difficulty) Valid() bool {
	return d.Rank() >= 0
}

// Rank returns the position of d in Tiers, or -1.
func (d Difficulty) Rank() int {
	for i, t := range Tiers {
		if t == d {
			return i
		}
	}
	return -1
}

const (
	OptionA = "A"
	OptionB = "B"
	OptionC = "C"
	OptionD = "D"
)

var OptionLabels = []string{OptionA, OptionB, OptionC, OptionD}

func ValidOption(label string) bool {
	switch label {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

type Options struct {
	A string `json:"A"`
	B string `json:"B"`
	C string `json:"C"`
	D string `json:"D"`
}

func (o Options) Get(label string) (string, bool) {
	switch label {
	case OptionA:
		return o.A, true
	case OptionB:
		return o.B, true
	case OptionC:
		return o.C, true
	case OptionD:
		return o.D, true
	}
	return "", false
}

// Question is immutable once created.
type Question struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Difficulty    Difficulty `json:"difficulty"`
	Content       string     `json:"content"`
	Passage       string     `json:"passage,omitempty"`
	Options       Options    `json:"options"`
	CorrectAnswer string     `json:"correctAnswer"`
	Explanation   string     `json:"explanation"`
}

// Check reports the first structural problem with q, or nil.
func (q Question) Check() error {
	if strings.TrimSpace(q.ID) == "" {
		return fmt.Errorf("question id is empty")
	}
	if strings.TrimSpace(q.Content) == "" {
		return fmt.Errorf("question %s: content is empty", q.ID)
	}
	if !q.Difficulty.Valid() {
		return fmt.Errorf("question %s: unknown difficulty %q", q.ID, q.Difficulty)
	}
	for _, l := range OptionLabels {
		if v, _ := q.Options.Get(l); strings.TrimSpace(v) == "" {
			return fmt.Errorf("question %s: option %s is empty", q.ID, l)
		}
	}
	if !ValidOption(q.CorrectAnswer) {
		return fmt.Errorf("question %s: correct answer %q is not one of A-D", q.ID, q.CorrectAnswer)
	}
	return nil
}
