package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// ActivityKind categorizes field work.
type ActivityKind string

// Activity kinds. Coupling, weld and rework are ledger kinds and produce status events.
const (
	KindCoupling  ActivityKind = "coupling"
	KindWeld      ActivityKind = "weld"
	KindRework    ActivityKind = "rework"
	KindSupport   ActivityKind = "support"
	KindEquipment ActivityKind = "equipment"
	KindGeneral   ActivityKind = "general"
)

var validKinds = []ActivityKind{KindCoupling, KindWeld, KindRework, KindSupport, KindEquipment, KindGeneral}

// ParseActivityKind normalizes raw into a known kind.
func ParseActivityKind(raw string) (ActivityKind, error) {
	switch FoldName(raw) {
	case "coupling", "acoplamento":
		return KindCoupling, nil
	case "weld", "welding", "solda":
		return KindWeld, nil
	case "rework", "retrabalho":
		return KindRework, nil
	case "support", "suporte":
		return KindSupport, nil
	case "equipment", "equipamento":
		return KindEquipment, nil
	case "general", "geral":
		return KindGeneral, nil
	default:
		return "", ErrInvalidActivityKind
	}
}

// Valid reports whether k is a known kind.
func (k ActivityKind) Valid() bool {
	return slices.Contains(validKinds, k)
}

// IsLedgerKind reports whether submissions of this kind are recorded against joints in the ledger.
func (k ActivityKind) IsLedgerKind() bool {
	return k == KindCoupling || k == KindWeld || k == KindRework
}

// Family returns the behavior family that decides which detail variant a submission carries.
func (k ActivityKind) Family() ActivityFamily {
	switch k {
	case KindSupport:
		return FamilySupport
	case KindEquipment:
		return FamilyEquipment
	default:
		return FamilyTubulation
	}
}

// ActivityFamily is the discriminant of ActivityDetail.
type ActivityFamily string

// Activity families.
const (
	FamilyTubulation ActivityFamily = "tubulation"
	FamilySupport    ActivityFamily = "support"
	FamilyEquipment  ActivityFamily = "equipment"
)

// ActivityDetail is the type-specific payload of a submission. Implemented only by this package.
type ActivityDetail interface {
	Family() ActivityFamily
	validate() error
}

// TubulationDetail targets joints of a line.
type TubulationDetail struct {
	JointIDs []string `json:"joint_ids"`
	FluidID  string   `json:"fluid_id,omitempty"`
}

// SupportDetail records fabricated pipe supports.
type SupportDetail struct {
	WeightKg float64 `json:"weight_kg"`
	Quantity int     `json:"quantity"`
}

// EquipmentStage is the completion percentage of one equipment staging step.
type EquipmentStage struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
}

// EquipmentDetail records staged equipment progress. Percentages are not summable.
type EquipmentDetail struct {
	Tag    string           `json:"tag,omitempty"`
	Stages []EquipmentStage `json:"stages"`
}

func (TubulationDetail) Family() ActivityFamily { return FamilyTubulation }
func (SupportDetail) Family() ActivityFamily    { return FamilySupport }
func (EquipmentDetail) Family() ActivityFamily  { return FamilyEquipment }

func (d TubulationDetail) validate() error {
	for _, id := range d.JointIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: empty joint id", ErrInvalidDetail)
		}
	}
	return nil
}

func (d SupportDetail) validate() error {
	if d.WeightKg < 0 || math.IsNaN(d.WeightKg) || d.Quantity < 0 {
		return fmt.Errorf("%w: support weight and quantity must be >= 0", ErrInvalidDetail)
	}
	return nil
}

func (d EquipmentDetail) validate() error {
	for i, stage := range d.Stages {
		if strings.TrimSpace(stage.Name) == "" {
			return fmt.Errorf("%w: stage %d has no name", ErrInvalidDetail, i)
		}
		if stage.Percent < 0 || stage.Percent > 100 || math.IsNaN(stage.Percent) {
			return fmt.Errorf("%w: stage %q percent out of range", ErrInvalidDetail, stage.Name)
		}
	}
	return nil
}

// EncodeDetail serializes a detail payload for storage alongside its family discriminant.
func EncodeDetail(d ActivityDetail) (ActivityFamily, []byte, error) {
	if d == nil {
		return "", nil, ErrInvalidDetail
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s detail: %w", d.Family(), err)
	}
	return d.Family(), raw, nil
}

// DecodeDetail rebuilds a detail payload, dispatching only on the family discriminant.
func DecodeDetail(family ActivityFamily, raw []byte) (ActivityDetail, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = []byte("{}")
	}
	switch family {
	case FamilyTubulation:
		var d TubulationDetail
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode tubulation detail: %w", err)
		}
		return d, nil
	case FamilySupport:
		var d SupportDetail
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode support detail: %w", err)
		}
		return d, nil
	case FamilyEquipment:
		var d EquipmentDetail
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode equipment detail: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: unknown family %q", ErrInvalidDetail, family)
	}
}

// Role is a crew function such as welder or pipefitter.
type Role string

// NormalizeRole canonicalizes a role name.
func NormalizeRole(raw string) Role {
	return Role(FoldName(raw))
}

// Crew maps each role to the headcount working on a submission.
type Crew map[Role]int

// Headcount returns the crew size.
func (c Crew) Headcount() int {
	total := 0
	for _, n := range c {
		if n > 0 {
			total += n
		}
	}
	return total
}

// Roles returns the roles with positive headcount, sorted.
func (c Crew) Roles() []Role {
	out := make([]Role, 0, len(c))
	for role, n := range c {
		if n > 0 {
			out = append(out, role)
		}
	}
	slices.Sort(out)
	return out
}

// normalizeCrew folds role names and merges duplicates.
func normalizeCrew(in Crew) (Crew, error) {
	out := make(Crew, len(in))
	for raw, n := range in {
		role := NormalizeRole(string(raw))
		if role == "" || n < 0 {
			return nil, ErrInvalidCrew
		}
		if n == 0 {
			continue
		}
		out[role] += n
	}
	return out, nil
}

// ActivitySubmission is one unit of work a crew entered for a day.
type ActivitySubmission struct {
	ID        string
	ParentID  string
	Kind      ActivityKind
	TypeLabel string
	Date      time.Time
	Hours     float64
	Crew      Crew
	LineID    string
	Material  MaterialClass
	Detail    ActivityDetail
	CreatedAt time.Time
}

// SubmissionInput holds values for constructing a submission.
type SubmissionInput struct {
	ID        string
	ParentID  string
	Kind      ActivityKind
	TypeLabel string
	Date      time.Time
	Hours     float64
	Crew      Crew
	LineID    string
	Material  MaterialClass
	Detail    ActivityDetail
}

// NewActivitySubmission constructs a validated submission. A missing detail defaults to the
// empty variant of the kind's family.
func NewActivitySubmission(in SubmissionInput, now time.Time) (ActivitySubmission, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ParentID = strings.TrimSpace(in.ParentID)
	in.TypeLabel = strings.TrimSpace(in.TypeLabel)
	in.LineID = strings.TrimSpace(in.LineID)
	if in.ID == "" {
		return ActivitySubmission{}, ErrInvalidID
	}
	if !in.Kind.Valid() {
		return ActivitySubmission{}, ErrInvalidActivityKind
	}
	if in.TypeLabel == "" {
		in.TypeLabel = string(in.Kind)
	}
	if in.Date.IsZero() {
		return ActivitySubmission{}, ErrInvalidDate
	}
	if in.Hours < 0 || math.IsNaN(in.Hours) || math.IsInf(in.Hours, 0) {
		return ActivitySubmission{}, ErrInvalidHours
	}
	if in.Material != "" && !in.Material.Valid() {
		return ActivitySubmission{}, ErrInvalidMaterial
	}
	crew, err := normalizeCrew(in.Crew)
	if err != nil {
		return ActivitySubmission{}, err
	}
	if in.Detail == nil {
		in.Detail = emptyDetail(in.Kind.Family())
	}
	if in.Detail.Family() != in.Kind.Family() {
		return ActivitySubmission{}, fmt.Errorf("%w: %s activity cannot carry %s detail", ErrInvalidDetail, in.Kind, in.Detail.Family())
	}
	if err := in.Detail.validate(); err != nil {
		return ActivitySubmission{}, err
	}
	if td, ok := in.Detail.(TubulationDetail); ok {
		td.JointIDs = uniqueTrimmed(td.JointIDs)
		in.Detail = td
	}

	return ActivitySubmission{
		ID:        in.ID,
		ParentID:  in.ParentID,
		Kind:      in.Kind,
		TypeLabel: in.TypeLabel,
		Date:      DateOnly(in.Date),
		Hours:     in.Hours,
		Crew:      crew,
		LineID:    in.LineID,
		Material:  in.Material,
		Detail:    in.Detail,
		CreatedAt: now.UTC(),
	}, nil
}

// Headcount returns the submission's crew size.
func (s ActivitySubmission) Headcount() int {
	return s.Crew.Headcount()
}

// PersonHours returns hours multiplied by crew size.
func (s ActivitySubmission) PersonHours() float64 {
	return s.Hours * float64(s.Headcount())
}

// JointIDs returns the joints targeted by the submission; only tubulation work targets joints.
func (s ActivitySubmission) JointIDs() []string {
	if td, ok := s.Detail.(TubulationDetail); ok {
		return td.JointIDs
	}
	return nil
}

// DateOnly truncates t to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// emptyDetail returns the zero variant for a family.
func emptyDetail(family ActivityFamily) ActivityDetail {
	switch family {
	case FamilySupport:
		return SupportDetail{}
	case FamilyEquipment:
		return EquipmentDetail{}
	default:
		return TubulationDetail{}
	}
}

// uniqueTrimmed trims and de-duplicates ids while preserving order.
func uniqueTrimmed(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, raw := range in {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
