package jobs

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"staffdesk/internal/platform/recordstore"
)

const (
	JobExitArchive = "exit_archive"
	JobNotify      = "transition_notify"
	JobReconcile   = "reconcile_scan"
)

// RunsPath holds one node per job run, keyed by push key.
const RunsPath = "jobRuns"

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type RunFunc func(context.Context) (any, error)

// Observer is notified when a run finishes. The metrics collector implements it.
type Observer interface {
	JobFinished(job, status string)
}

type Run struct {
	ID          string `json:"id,omitempty"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	StartedAt   string `json:"startedAt"`
	CompletedAt string `json:"completedAt,omitempty"`
	Details     any    `json:"details,omitempty"`
	Error       string `json:"error,omitempty"`
}

type Service struct {
	Records   recordstore.Store
	Observer  Observer
	queue     chan job
	schedules []schedule
	wg        sync.WaitGroup
	now       func() time.Time
}

type job struct {
	Type string
	Run  RunFunc
}

type schedule struct {
	jobType  string
	interval time.Duration
	run      RunFunc
}

func New(records recordstore.Store, observer Observer) *Service {
	return &Service{
		Records:  records,
		Observer: observer,
		queue:    make(chan job, 128),
		now:      time.Now,
	}
}

// Schedule registers a periodic job. Call before Start.
func (s *Service) Schedule(jobType string, interval time.Duration, run RunFunc) {
	if interval <= 0 {
		return
	}
	s.schedules = append(s.schedules, schedule{jobType: jobType, interval: interval, run: run})
}

func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
	for _, sc := range s.schedules {
		s.wg.Add(1)
		go s.tick(ctx, sc)
	}
}

// Wait blocks until the worker and schedulers have stopped after ctx ends.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Enqueue(jobType string, run RunFunc) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) tick(ctx context.Context, sc schedule) {
	defer s.wg.Done()
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(sc.jobType, sc.run)
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	run := Run{Type: j.Type, Status: StatusRunning, StartedAt: s.stamp()}
	runID, err := s.Records.Push(ctx, RunsPath)
	if err != nil {
		slog.Warn("job run insert failed", "err", err)
		runID = ""
	}
	if runID != "" {
		if err := s.Records.Update(ctx, recordstore.Updates{recordstore.Join(RunsPath, runID): run}); err != nil {
			slog.Warn("job run insert failed", "err", err)
			runID = ""
		}
	}

	details, err := j.Run(ctx)
	run.Status = StatusCompleted
	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
	}
	run.Details = details
	run.CompletedAt = s.stamp()
	if runID != "" {
		if updErr := s.Records.Update(ctx, recordstore.Updates{recordstore.Join(RunsPath, runID): run}); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	if s.Observer != nil {
		s.Observer.JobFinished(j.Type, run.Status)
	}
	return details, err
}

func (s *Service) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// Runs lists recorded runs newest first, optionally filtered by type.
func (s *Service) Runs(ctx context.Context, jobType string, limit, offset int) ([]Run, int, error) {
	node, err := s.Records.Read(ctx, RunsPath)
	if err != nil {
		return nil, 0, err
	}
	var out []Run
	for _, child := range node.Children() {
		var r Run
		if err := child.Decode(&r); err != nil {
			return nil, 0, err
		}
		if jobType != "" && r.Type != jobType {
			continue
		}
		r.ID = child.Key()
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if offset >= total {
		return []Run{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], total, nil
}
