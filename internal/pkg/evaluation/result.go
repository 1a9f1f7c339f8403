package evaluation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// PassThreshold - minimal overall score counted as passed
	PassThreshold = 60

	// DimClarity dimension name
	DimClarity = "clarity"
	// DimStructure dimension name
	DimStructure = "structure"
	// DimConnection dimension name
	DimConnection = "connection"
	// DimInfluence dimension name
	DimInfluence = "influence"

	// ShortFeedback - canned explanation for sessions skipped by the sufficiency rule
	ShortFeedback = "The session was too short for a full evaluation. " +
		"Keep the conversation going a bit longer to get meaningful scores."
)

// Dimension is one scored axis of a conversation
type Dimension struct {
	Score     int            `json:"score"`
	SubScores map[string]int `json:"subScores,omitempty"`
	Comments  string         `json:"comments,omitempty"`
}

// Result is the canonical evaluation payload stored in the ledger
// and served to clients
type Result struct {
	Score           *int                 `json:"score,omitempty"`
	Passed          bool                 `json:"passed"`
	Dimensions      map[string]Dimension `json:"dimensions,omitempty"`
	Strengths       []string             `json:"strengths,omitempty"`
	Errors          []string             `json:"errors,omitempty"`
	Recommendations []string             `json:"recommendations,omitempty"`
	Feedback        string               `json:"feedback,omitempty"`
}

// Overall returns the explicit score or the rounded mean of dimension scores
func (r *Result) Overall() int {
	if r.Score != nil {
		return *r.Score
	}
	if len(r.Dimensions) == 0 {
		return 0
	}
	sum := 0
	for _, d := range r.Dimensions {
		sum += d.Score
	}
	return int(math.Round(float64(sum) / float64(len(r.Dimensions))))
}

// Passed indicates if a score counts as a pass
func Passed(score int) bool {
	return score >= PassThreshold
}

// SubScoreDisplay maps a stored 1-10 sub-score to its display value
func SubScoreDisplay(v int) int {
	return v * 10
}

// TooShort builds the canned result written for insufficient sessions
func TooShort() *Result {
	score := 0
	return &Result{Score: &score, Passed: false, Feedback: ShortFeedback}
}

var legacyDims = map[string]string{"Claridad": DimClarity, "Estructura": DimStructure,
	"Alineacion_Emocional": DimConnection, "Influencia": DimInfluence}

// Normalize maps any known scorer result shape to the canonical one.
// Accepts the canonical shape itself (dimensions or an explicit score),
// a flat dimension_scores map and the legacy shape with Spanish field
// names and 1-10 sub-scores
func Normalize(raw []byte) (*Result, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty result")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("can't unmarshal result: %w", err)
	}
	var res *Result
	var err error
	switch {
	case fields["dimensions"] != nil, fields["score"] != nil:
		res = &Result{}
		err = json.Unmarshal(raw, res)
	case fields["Evaluacion"] != nil:
		res, err = fromLegacy(fields)
	case fields["dimension_scores"] != nil:
		res, err = fromFlat(fields)
	default:
		return nil, fmt.Errorf("unknown result shape")
	}
	if err != nil {
		return nil, err
	}
	score := res.Overall()
	res.Score = &score
	res.Passed = Passed(score)
	return res, nil
}

func fromFlat(fields map[string]json.RawMessage) (*Result, error) {
	var scores map[string]float64
	if err := json.Unmarshal(fields["dimension_scores"], &scores); err != nil {
		return nil, fmt.Errorf("can't unmarshal dimension_scores: %w", err)
	}
	res := &Result{Dimensions: map[string]Dimension{}}
	for name, v := range scores {
		res.Dimensions[name] = Dimension{Score: int(math.Round(v))}
	}
	res.Feedback = asString(fields["feedback"])
	res.Strengths = asStrings(fields["strengths"])
	res.Errors = asStrings(fields["errors"])
	res.Recommendations = asStrings(fields["recommendations"])
	return res, nil
}

func fromLegacy(fields map[string]json.RawMessage) (*Result, error) {
	var dims map[string]map[string]json.RawMessage
	if err := json.Unmarshal(fields["Evaluacion"], &dims); err != nil {
		return nil, fmt.Errorf("can't unmarshal legacy result: %w", err)
	}
	res := &Result{Dimensions: map[string]Dimension{}}
	for lName, lDim := range dims {
		name, ok := legacyDims[lName]
		if !ok {
			continue
		}
		res.Dimensions[name] = legacyDimension(lDim)
	}
	res.Strengths = asStrings(fields["Fortalezas"])
	res.Errors = asStrings(fields["Errores"])
	res.Recommendations = asStrings(fields["Recomendaciones"])
	return res, nil
}

func legacyDimension(lDim map[string]json.RawMessage) Dimension {
	res := Dimension{SubScores: map[string]int{}}
	total := -1
	for k, v := range lDim {
		switch k {
		case "Puntuacion_Total":
			if f, ok := asFloat(v); ok {
				total = int(math.Round(f))
			}
		case "Comentarios":
			res.Comments = asString(v)
		default:
			if f, ok := asFloat(v); ok {
				res.SubScores[strings.ToLower(k)] = int(math.Round(f))
			}
		}
	}
	if len(res.SubScores) == 0 {
		res.SubScores = nil
	}
	switch {
	case total >= 0:
		res.Score = scaled(total)
	case res.SubScores != nil:
		sum := 0
		for _, v := range res.SubScores {
			sum += v
		}
		res.Score = scaled(int(math.Round(float64(sum) / float64(len(res.SubScores)))))
	}
	return res
}

// legacy scores come on the 1-10 scale, newer ones already on 0-100
func scaled(v int) int {
	if v <= 10 {
		return v * 10
	}
	return v
}

func asFloat(raw json.RawMessage) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func asString(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func asStrings(raw json.RawMessage) []string {
	if raw == nil {
		return nil
	}
	var res []string
	if err := json.Unmarshal(raw, &res); err == nil {
		return res
	}
	if s := asString(raw); s != "" {
		return []string{s}
	}
	return nil
}
