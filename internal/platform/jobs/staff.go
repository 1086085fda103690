package jobs

import (
	"context"
	"log/slog"

	"staffdesk/internal/domain/notifications"
	"staffdesk/internal/domain/reports"
	"staffdesk/internal/domain/staff"
)

// TransitionHook queues the follow-up work for a committed transition: an
// archive for removals and a notification for every move. Either dependency
// may be nil.
func (s *Service) TransitionHook(archiver *reports.Archiver, notifier *notifications.Service) staff.TransitionHook {
	return func(_ context.Context, t staff.Transition) {
		if archiver != nil && t.Event.Type == staff.EventRemoval {
			s.Enqueue(JobExitArchive, func(ctx context.Context) (any, error) {
				return archiver.Archive(ctx, t)
			})
		}
		if notifier != nil {
			s.Enqueue(JobNotify, func(ctx context.Context) (any, error) {
				id, err := notifier.Transition(ctx, t)
				return map[string]any{"notificationId": id, "staffId": t.StaffID}, err
			})
		}
	}
}

// ReconcileScan reports records present in both locations. report receives
// the count on every run, including zero.
func ReconcileScan(svc *staff.Service, notifier *notifications.Service, report func(int)) RunFunc {
	return func(ctx context.Context) (any, error) {
		ids, err := svc.Duplicates(ctx)
		if err != nil {
			return nil, err
		}
		if report != nil {
			report(len(ids))
		}
		if len(ids) > 0 {
			slog.Warn("staff records need reconciliation", "count", len(ids), "ids", ids)
			if notifier != nil {
				if _, err := notifier.Duplicates(ctx, ids); err != nil {
					slog.Warn("reconcile notification failed", "err", err)
				}
			}
		}
		return map[string]any{"duplicates": ids}, nil
	}
}
