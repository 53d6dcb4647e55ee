package app

import (
	"context"
	"time"

	"github.com/hylla/weldtrack/internal/domain"
)

// Page selects one window of a list result.
type Page struct {
	Offset int
	Limit  int
}

// StatusEventFilter narrows status event reads. Empty fields do not filter.
type StatusEventFilter struct {
	JointID string
	LineID  string
}

// SubmissionFilter narrows submission reads at the storage level. Empty fields do not filter.
type SubmissionFilter struct {
	From *time.Time
	To   *time.Time
}

// Repository represents the persistence collaborator.
// Batch writes return one error slot per input item plus a chunk-level error; a nil slot is a success.
type Repository interface {
	CreateFluid(context.Context, domain.Fluid) error
	ListFluids(context.Context) ([]domain.Fluid, error)

	CreateLine(context.Context, domain.Line) error
	CreateLines(context.Context, []domain.Line) ([]error, error)
	GetLine(context.Context, string) (domain.Line, error)
	ListLines(context.Context) ([]domain.Line, error)

	CreateJoint(context.Context, domain.Joint) error
	CreateJoints(context.Context, []domain.Joint) ([]error, error)
	UpdateJoint(context.Context, domain.Joint) error
	GetJoint(context.Context, string) (domain.Joint, error)
	ListJoints(context.Context, string, Page) ([]domain.Joint, error)

	AppendStatusEvent(context.Context, domain.StatusEvent) error
	ListStatusEvents(context.Context, StatusEventFilter, Page) ([]domain.StatusEvent, error)

	CreateSubmission(context.Context, domain.ActivitySubmission) error
	CreateSubmissions(context.Context, []domain.ActivitySubmission) ([]error, error)
	ListSubmissions(context.Context, SubmissionFilter, Page) ([]domain.ActivitySubmission, error)

	GetBaselineRate(context.Context, domain.MaterialClass) (domain.BaselineRate, error)
	UpsertBaselineRate(context.Context, domain.BaselineRate) error
}

// Logger receives structured progress events from long-running service flows.
type Logger interface {
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
}
