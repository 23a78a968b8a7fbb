package poller

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-trade-client/client"
	"github.com/saiset-co/sai-trade-client/types"
)

// StatusSource tells the poller whether push updates are currently flowing.
type StatusSource interface {
	IsConnected() bool
}

type Job struct {
	Name      string
	Operation string
	Schedule  string
	Params    types.Params
	TTL       time.Duration
	Backend   types.Backend

	key string
	id  cron.EntryID
}

// Poller refreshes cached operation results on a cron schedule while the push
// channel is down.
type Poller struct {
	logger     types.Logger
	metrics    types.MetricsManager
	invoker    types.Invoker
	status     StatusSource
	cron       *cron.Cron
	jobs       map[string]*Job
	ctx        context.Context
	cancel     context.CancelFunc
	running    bool
	jobTimeout time.Duration
	mu         sync.Mutex
}

func NewPoller(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, invoker types.Invoker, status StatusSource) (*Poller, error) {
	p := &Poller{
		logger:  logger,
		metrics: metrics,
		invoker: invoker,
		status:  status,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronLogger{logger: logger})),
		),
		jobs:       make(map[string]*Job),
		ctx:        context.Background(),
		jobTimeout: 30 * time.Second,
	}

	if d := config.GetConfig().Client; d != nil && d.DefaultTimeout > 0 {
		p.jobTimeout = d.DefaultTimeout
	}

	pollerConfig := config.GetConfig().Poller
	if pollerConfig == nil {
		return p, nil
	}

	for _, jobConfig := range pollerConfig.Jobs {
		backend, err := types.ParseBackend(jobConfig.Backend)
		if err != nil {
			return nil, err
		}

		job := &Job{
			Operation: jobConfig.Operation,
			Schedule:  jobConfig.Schedule,
			Params:    types.Params(jobConfig.Params),
			TTL:       jobConfig.TTL,
			Backend:   backend,
		}
		if err := p.Add(job); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Add schedules job. The job name defaults to its cache key.
func (p *Poller) Add(job *Job) error {
	if job == nil || job.Operation == "" {
		return types.Errorf(types.ErrPollerJobInvalid, "operation is required")
	}

	key, err := client.CacheKey(job.Operation, job.Params)
	if err != nil {
		return types.Errorf(types.ErrPollerJobInvalid, "%v", err)
	}
	job.key = key
	if job.Name == "" {
		job.Name = key
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.jobs[job.Name]; exists {
		return types.Errorf(types.ErrPollerJobInvalid, "duplicate job %s", job.Name)
	}

	id, err := p.cron.AddFunc(job.Schedule, func() { p.Tick(job) })
	if err != nil {
		return types.Errorf(types.ErrPollerJobInvalid, "schedule %q: %v", job.Schedule, err)
	}
	job.id = id
	p.jobs[job.Name] = job

	p.logger.Info("Poller job added",
		zap.String("job", job.Name),
		zap.String("schedule", job.Schedule),
		zap.String("backend", job.Backend.String()))

	return nil
}

func (p *Poller) Jobs() []*Job {
	p.mu.Lock()
	defer p.mu.Unlock()

	jobs := make([]*Job, 0, len(p.jobs))
	for _, job := range p.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// NextRun reports when the named job fires next. It is zero until Start.
func (p *Poller) NextRun(name string) (time.Time, bool) {
	p.mu.Lock()
	job, ok := p.jobs[name]
	p.mu.Unlock()

	if !ok {
		return time.Time{}, false
	}
	return p.cron.Entry(job.id).Next, true
}

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return types.ErrPollerAlreadyActive
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true
	p.cron.Start()

	p.logger.Info("Poller started", zap.Int("jobs", len(p.jobs)))
	return nil
}

// Stop halts the scheduler and waits for running ticks to return.
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return types.ErrNotRunning
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	<-p.cron.Stop().Done()

	p.logger.Info("Poller stopped")
	return nil
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Tick runs one poll of job. It is a no-op while the push channel is
// connected; otherwise the operation is refetched and the cached entry
// replaced on success. A failed poll leaves the entry in place.
func (p *Poller) Tick(job *Job) {
	if p.status != nil && p.status.IsConnected() {
		p.logger.Debug("Poll skipped, channel connected", zap.String("job", job.Name))
		p.record(job, "skipped")
		return
	}

	p.mu.Lock()
	parent := p.ctx
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, p.jobTimeout)
	defer cancel()

	start := time.Now()
	_, err := p.invoker.Invoke(ctx, job.Operation, job.Params, &types.CallOptions{
		Retry: true,
		Cache: &types.CacheOptions{TTL: job.TTL, Backend: job.Backend, Key: job.key, Refresh: true},
	})
	if err != nil {
		p.logger.Error("Poll failed",
			zap.String("job", job.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		p.record(job, "error")
		return
	}

	p.logger.Debug("Poll completed",
		zap.String("job", job.Name),
		zap.Duration("duration", time.Since(start)))
	p.record(job, "success")
}

func (p *Poller) record(job *Job, result string) {
	if p.metrics == nil {
		return
	}
	p.metrics.Counter("poller_ticks_total", map[string]string{
		"operation": job.Operation,
		"result":    result,
	}).Inc()
}
