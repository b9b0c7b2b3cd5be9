package dag

import (
	"strings"
)

// Metrics is the complexity score for one atom, computed by
// analyze_complexity.
type Metrics struct {
	TypeCount               int
	DepCount                int
	MethodCountEstimate     int
	DescriptionScore        float64
	Overall                 int
	EstimatedLines          int
	RequiresDecomposition   bool
	RecommendedSubtaskCount int
}

// Fixed weights: type 0.25, dep 0.20, method 0.25, description 0.30.
const (
	weightType        = 0.25
	weightDep         = 0.20
	weightMethod      = 0.25
	weightDescription = 0.30

	subScoreCap = 25.0
)

// ComplexityInput carries exactly the fields analyze_complexity needs,
// decoupling the analyzer from the full Atom shape.
type ComplexityInput struct {
	ExpectedTypeCount int
	DependencyCount   int
	Description       string
}

// AnalyzeComplexity scores one atom per the fixed formula.
// Each of the four sub-scores is capped at 25; overall is their weighted
// sum scaled by 4 (so a maximal atom scores 100).
func AnalyzeComplexity(in ComplexityInput, maxThreshold int) Metrics {
	typeScore := capScore(float64(in.ExpectedTypeCount) * 5)
	depScore := capScore(float64(in.DependencyCount) * 4)
	methodEstimate := estimateMethodCount(in.Description)
	methodScore := capScore(float64(methodEstimate) * 3)
	descScore := capScore(float64(len(strings.TrimSpace(in.Description))) / 4)

	weighted := weightType*typeScore + weightDep*depScore + weightMethod*methodScore + weightDescription*descScore
	overall := roundInt(weighted * 4)
	if overall < 0 {
		overall = 0
	}
	if overall > 100 {
		overall = 100
	}

	lines := 25*in.ExpectedTypeCount + 12*methodEstimate + 10
	switch {
	case overall > 70:
		lines = roundInt(float64(lines) * 1.5)
	case overall > 40:
		lines = roundInt(float64(lines) * 1.25)
	}
	if lines < 20 {
		lines = 20
	}

	requires := lines > maxThreshold || overall >= 80 || in.ExpectedTypeCount > 3

	subtasks := 0
	if requires {
		budget := maxThreshold - 10
		if budget < 1 {
			budget = 1
		}
		subtasks = (lines + budget - 1) / budget
		if subtasks < 2 {
			subtasks = 2
		}
		if subtasks > 6 {
			subtasks = 6
		}
	}

	return Metrics{
		TypeCount:               in.ExpectedTypeCount,
		DepCount:                in.DependencyCount,
		MethodCountEstimate:     methodEstimate,
		DescriptionScore:        descScore,
		Overall:                 overall,
		EstimatedLines:          lines,
		RequiresDecomposition:   requires,
		RecommendedSubtaskCount: subtasks,
	}
}

// estimateMethodCount is a deterministic heuristic: roughly one method
// per eight words of description, with a floor of 1.
func estimateMethodCount(description string) int {
	words := strings.Fields(description)
	n := len(words) / 8
	if n < 1 {
		n = 1
	}
	return n
}

func capScore(v float64) float64 {
	if v > subScoreCap {
		return subScoreCap
	}
	if v < 0 {
		return 0
	}
	return v
}

func roundInt(v float64) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}
