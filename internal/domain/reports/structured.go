package reports

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Kind tags which structured report shape a deployment produces.
type Kind string

const (
	KindActivity      Kind = "activity"
	KindWorkerCentric Kind = "worker-centric"
)

func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "activity":
		return KindActivity, nil
	case "worker-centric", "worker_centric", "workers", "worker":
		return KindWorkerCentric, nil
	default:
		return "", fmt.Errorf("unknown report schema %q (allowed: %q, %q)", raw, KindActivity, KindWorkerCentric)
	}
}

const (
	SummaryBulletCount = 5
	pieSumTolerance    = 0.5
)

// ---------- activity ----------

type ActivityReport struct {
	Metadata         ActivityMetadata `json:"Metadata"`
	RechartsPie      []PieSlice       `json:"Recharts_Pie"`
	RechartsTimeline []TimelineEvent  `json:"Recharts_Timeline"`
	Scores           Scores           `json:"Scores"`
	Descriptions     Descriptions     `json:"Descriptions"`
}

type ActivityMetadata struct {
	WorkDescription   string   `json:"Work_Description"`
	StreamDurationSec float64  `json:"Stream_Duration_Sec"`
	GenSummary        []string `json:"Gen_Summary"`
}

type PieSlice struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Seconds float64 `json:"seconds"`
}

type TimelineEvent struct {
	Category string  `json:"category"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Task     string  `json:"task"`
}

type Scores struct {
	ProdScore Score `json:"Prod_Score"`
	QualScore Score `json:"Qual_Score"`
	SafeScore Score `json:"Safe_Score"`
}

type Descriptions struct {
	ProdDesc string `json:"Prod_Desc"`
	QualDesc string `json:"Qual_Desc"`
	SafeDesc string `json:"Safe_Desc"`
}

// Score holds a 0-100 score that the model may emit as a number or a numeric string.
// The original representation is preserved on output.
type Score struct {
	raw   json.RawMessage
	Value float64
	set   bool
}

func NewScore(v float64) Score {
	raw, _ := json.Marshal(v)
	return Score{raw: raw, Value: v, set: true}
}

func (s *Score) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return errors.New("score is null")
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return fmt.Errorf("score %q is not numeric", str)
		}
		s.Value = v
	} else {
		var v float64
		if err := json.Unmarshal(b, &v); err != nil {
			return fmt.Errorf("score must be a number or numeric string: %w", err)
		}
		s.Value = v
	}
	s.raw = append(json.RawMessage(nil), b...)
	s.set = true
	return nil
}

func (s Score) MarshalJSON() ([]byte, error) {
	if len(s.raw) > 0 {
		return s.raw, nil
	}
	return json.Marshal(s.Value)
}

func (r *ActivityReport) Validate() error {
	var v violations
	m := r.Metadata
	v.check(strings.TrimSpace(m.WorkDescription) != "", "Metadata.Work_Description must not be empty")
	v.check(m.StreamDurationSec >= 0, "Metadata.Stream_Duration_Sec must be >= 0")
	v.check(len(m.GenSummary) == SummaryBulletCount,
		fmt.Sprintf("Metadata.Gen_Summary must have exactly %d entries, got %d", SummaryBulletCount, len(m.GenSummary)))
	for i, b := range m.GenSummary {
		v.check(strings.TrimSpace(b) != "", fmt.Sprintf("Metadata.Gen_Summary[%d] must not be empty", i))
	}

	v.check(len(r.RechartsPie) > 0, "Recharts_Pie must not be empty")
	seen := map[string]bool{}
	sum := 0.0
	for i, s := range r.RechartsPie {
		name := strings.TrimSpace(s.Name)
		v.check(name != "", fmt.Sprintf("Recharts_Pie[%d].name must not be empty", i))
		v.check(!seen[name], fmt.Sprintf("Recharts_Pie[%d].name %q is duplicated", i, name))
		seen[name] = true
		v.check(s.Value >= 0 && s.Value <= 100, fmt.Sprintf("Recharts_Pie[%d].value must be within 0..100", i))
		v.check(s.Seconds >= 0, fmt.Sprintf("Recharts_Pie[%d].seconds must be >= 0", i))
		sum += s.Value
	}
	if len(r.RechartsPie) > 0 {
		v.check(math.Abs(sum-100) <= pieSumTolerance, fmt.Sprintf("Recharts_Pie values must sum to 100, got %g", sum))
	}

	v.check(r.RechartsTimeline != nil, "Recharts_Timeline is required")
	for i, e := range r.RechartsTimeline {
		v.check(strings.TrimSpace(e.Category) != "", fmt.Sprintf("Recharts_Timeline[%d].category must not be empty", i))
		v.check(strings.TrimSpace(e.Task) != "", fmt.Sprintf("Recharts_Timeline[%d].task must not be empty", i))
		v.check(e.Start >= 0, fmt.Sprintf("Recharts_Timeline[%d].start must be >= 0", i))
		v.check(e.Start <= e.End, fmt.Sprintf("Recharts_Timeline[%d] start %g is after end %g", i, e.Start, e.End))
	}

	for _, sc := range []struct {
		name  string
		score Score
	}{
		{"Scores.Prod_Score", r.Scores.ProdScore},
		{"Scores.Qual_Score", r.Scores.QualScore},
		{"Scores.Safe_Score", r.Scores.SafeScore},
	} {
		v.check(sc.score.set, sc.name+" is required")
		v.check(sc.score.Value >= 0 && sc.score.Value <= 100,
			fmt.Sprintf("%s must be within 0..100, got %g", sc.name, sc.score.Value))
	}

	d := r.Descriptions
	v.check(strings.TrimSpace(d.ProdDesc) != "", "Descriptions.Prod_Desc must not be empty")
	v.check(strings.TrimSpace(d.QualDesc) != "", "Descriptions.Qual_Desc must not be empty")
	v.check(strings.TrimSpace(d.SafeDesc) != "", "Descriptions.Safe_Desc must not be empty")
	return v.err()
}

// ---------- worker-centric ----------

type WorkerReport struct {
	Summary string        `json:"summary"`
	Workers []Worker      `json:"workers"`
	Hazards []Hazard      `json:"hazards,omitempty"`
	Metrics WorkerMetrics `json:"metrics"`
}

type Worker struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Actions     []WorkerAction `json:"actions"`
}

type WorkerAction struct {
	Action    string  `json:"action"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	Duration  string  `json:"duration"`
	Notes     *string `json:"notes,omitempty"`
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

type Hazard struct {
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Timestamp   string   `json:"timestamp"`
}

type WorkerMetrics struct {
	TotalWorkers  int      `json:"totalWorkers"`
	TotalActions  int      `json:"totalActions"`
	VideoDuration string   `json:"videoDuration"`
	KeyFindings   []string `json:"keyFindings"`
}

func (r *WorkerReport) Validate() error {
	var v violations
	v.check(strings.TrimSpace(r.Summary) != "", "summary must not be empty")
	v.check(r.Workers != nil, "workers is required")
	for i, w := range r.Workers {
		v.check(strings.TrimSpace(w.ID) != "", fmt.Sprintf("workers[%d].id must not be empty", i))
		v.check(w.Actions != nil, fmt.Sprintf("workers[%d].actions is required", i))
		for j, a := range w.Actions {
			v.check(strings.TrimSpace(a.Action) != "", fmt.Sprintf("workers[%d].actions[%d].action must not be empty", i, j))
		}
	}
	for i, h := range r.Hazards {
		v.check(strings.TrimSpace(h.Description) != "", fmt.Sprintf("hazards[%d].description must not be empty", i))
		v.check(h.Severity.Valid(), fmt.Sprintf("hazards[%d].severity %q is not one of low|medium|high|critical", i, h.Severity))
	}
	v.check(r.Metrics.TotalWorkers >= 0, "metrics.totalWorkers must be >= 0")
	v.check(r.Metrics.TotalActions >= 0, "metrics.totalActions must be >= 0")
	v.check(r.Metrics.KeyFindings != nil, "metrics.keyFindings is required")
	return v.err()
}

// ---------- tagged variant ----------

// StructuredReport is exactly one of the supported shapes, tagged by Kind.
type StructuredReport struct {
	Kind     Kind
	Activity *ActivityReport
	Workers  *WorkerReport
}

func (s *StructuredReport) MarshalJSON() ([]byte, error) {
	switch {
	case s == nil:
		return []byte("null"), nil
	case s.Kind == KindActivity && s.Activity != nil:
		return json.Marshal(s.Activity)
	case s.Kind == KindWorkerCentric && s.Workers != nil:
		return json.Marshal(s.Workers)
	default:
		return nil, fmt.Errorf("structured report has no %q payload", s.Kind)
	}
}

// SchemaError means a structuring response did not conform to the report schema.
// Raw carries the offending payload for logging.
type SchemaError struct {
	Kind       Kind
	Raw        string
	Violations []string
	Err        error
}

func (e *SchemaError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return fmt.Sprintf("structured report (%s) does not match schema: %v", e.Kind, e.Err)
	case len(e.Violations) > 0:
		return fmt.Sprintf("structured report (%s) does not match schema: %s", e.Kind, strings.Join(e.Violations, "; "))
	default:
		return fmt.Sprintf("structured report (%s) does not match schema", e.Kind)
	}
}

func (e *SchemaError) Unwrap() error { return e.Err }

// DecodeStructured strictly decodes raw into the given kind and validates it.
// Unknown fields, missing or null required fields, trailing data, type
// mismatches and rule violations all fail.
func DecodeStructured(kind Kind, raw []byte) (*StructuredReport, error) {
	text := string(raw)
	out := &StructuredReport{Kind: kind}
	var target interface{ Validate() error }
	switch kind {
	case KindActivity:
		out.Activity = &ActivityReport{}
		target = out.Activity
	case KindWorkerCentric:
		out.Workers = &WorkerReport{}
		target = out.Workers
	default:
		return nil, &SchemaError{Kind: kind, Raw: text, Err: fmt.Errorf("unknown kind %q", kind)}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, &SchemaError{Kind: kind, Raw: text, Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &SchemaError{Kind: kind, Raw: text, Err: errors.New("trailing data after JSON object")}
	}
	missing, err := checkPresence(kind, raw)
	if err != nil {
		return nil, &SchemaError{Kind: kind, Raw: text, Err: err}
	}
	if err := target.Validate(); err != nil {
		var v *violationError
		if !errors.As(err, &v) {
			return nil, &SchemaError{Kind: kind, Raw: text, Err: err}
		}
		missing = append(missing, v.list...)
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Kind: kind, Raw: text, Violations: missing}
	}
	return out, nil
}

type violations struct {
	list []string
}

func (v *violations) check(ok bool, msg string) {
	if !ok {
		v.list = append(v.list, msg)
	}
}

func (v *violations) err() error {
	if len(v.list) == 0 {
		return nil
	}
	return &violationError{list: v.list}
}

type violationError struct {
	list []string
}

func (e *violationError) Error() string { return strings.Join(e.list, "; ") }
