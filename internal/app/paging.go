package app

import (
	"context"

	"github.com/hylla/weldtrack/internal/domain"
)

// maxPages bounds collectPages against a storage layer that never returns an empty page.
const maxPages = 1 << 20

// collectPages requests successive pages until an empty one comes back. Storage may return fewer
// rows than requested without being exhausted, so a short page does not end the scan.
func collectPages[T any](ctx context.Context, pageSize int, fetch func(context.Context, Page) ([]T, error)) ([]T, error) {
	out := make([]T, 0)
	offset := 0
	for range maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, err := fetch(ctx, Page{Offset: offset, Limit: pageSize})
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}
		out = append(out, items...)
		offset += len(items)
	}
	return out, nil
}

// listAllJoints pages through the joints of one line, or all lines when lineID is empty.
func (s *Service) listAllJoints(ctx context.Context, lineID string) ([]domain.Joint, error) {
	return collectPages(ctx, s.pageSize, func(ctx context.Context, page Page) ([]domain.Joint, error) {
		return s.repo.ListJoints(ctx, lineID, page)
	})
}

// listAllEvents pages through status events matching filter.
func (s *Service) listAllEvents(ctx context.Context, filter StatusEventFilter) ([]domain.StatusEvent, error) {
	return collectPages(ctx, s.pageSize, func(ctx context.Context, page Page) ([]domain.StatusEvent, error) {
		return s.repo.ListStatusEvents(ctx, filter, page)
	})
}

// listAllSubmissions pages through submissions matching filter.
func (s *Service) listAllSubmissions(ctx context.Context, filter SubmissionFilter) ([]domain.ActivitySubmission, error) {
	return collectPages(ctx, s.pageSize, func(ctx context.Context, page Page) ([]domain.ActivitySubmission, error) {
		return s.repo.ListSubmissions(ctx, filter, page)
	})
}
