// File: internal/engine/runner.go
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lablnet/stepwright/api/schemas"
	"github.com/lablnet/stepwright/internal/config"
)

// Engine executes tab templates against browser sessions created by its
// factory. One engine may run many templates; each template exclusively
// owns its session and collector for the duration of its run.
type Engine struct {
	factory schemas.SessionFactory
	logger  *zap.Logger
	cfg     config.EngineConfig
}

// New creates an Engine.
func New(factory schemas.SessionFactory, logger *zap.Logger, cfg config.EngineConfig) *Engine {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 90 * time.Second
	}
	if cfg.SettleWait <= 0 {
		cfg.SettleWait = 1500 * time.Millisecond
	}
	return &Engine{
		factory: factory,
		logger:  logger.Named("engine"),
		cfg:     cfg,
	}
}

// run carries the per-template execution state: the session the template
// owns, its logger and the shared result sink.
type run struct {
	sess       schemas.Session
	log        *zap.Logger
	sink       *resultSink
	limiter    *rate.Limiter
	navTimeout time.Duration
	settleWait time.Duration
}

// withSession derives a run against another session (a child tab), sharing
// the sink and limits.
func (r *run) withSession(sess schemas.Session) *run {
	child := *r
	child.sess = sess
	return &child
}

// resultSink delivers records: streaming callback first, then the batch
// sequence, preserving emission order.
type resultSink struct {
	records  []schemas.Record
	onResult schemas.ResultCallback
	log      *zap.Logger
}

func (s *resultSink) emit(ctx context.Context, rec schemas.Record) error {
	if s.onResult != nil {
		if err := s.onResult(ctx, rec, len(s.records)); err != nil {
			s.log.Warn("Result callback failed.", zap.Int("index", len(s.records)), zap.Error(err))
		}
	}
	s.records = append(s.records, rec)
	return ctx.Err()
}

func (s *resultSink) count() int { return len(s.records) }

// RunTemplates executes every template in order and returns the combined
// record sequence. When opts.OnResult is set, each record is delivered to
// the callback before it is accumulated.
func (e *Engine) RunTemplates(
	ctx context.Context,
	templates []*schemas.TabTemplate,
	opts schemas.RunOptions,
) ([]schemas.Record, error) {
	var limiter *rate.Limiter
	qps := opts.RateLimit
	if qps <= 0 {
		qps = e.cfg.RateLimit
	}
	if qps > 0 {
		limiter = rate.NewLimiter(rate.Limit(qps), 1)
	}

	var all []schemas.Record
	for _, tmpl := range templates {
		records, err := e.runTemplate(ctx, tmpl, opts, limiter)
		all = append(all, records...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}

// RunTemplatesStreaming is RunTemplates with a mandatory callback and no
// interest in the batch result beyond errors.
func (e *Engine) RunTemplatesStreaming(
	ctx context.Context,
	templates []*schemas.TabTemplate,
	onResult schemas.ResultCallback,
	opts schemas.RunOptions,
) error {
	opts.OnResult = onResult
	_, err := e.RunTemplates(ctx, templates, opts)
	return err
}

// runTemplate executes one template end to end: session open, initSteps
// once, then the pagination cycle. The session is closed on every exit
// path.
func (e *Engine) runTemplate(
	ctx context.Context,
	tmpl *schemas.TabTemplate,
	opts schemas.RunOptions,
	limiter *rate.Limiter,
) (records []schemas.Record, err error) {
	runID := uuid.New().String()
	log := e.logger.With(zap.String("tab", tmpl.Tab), zap.String("run_id", runID))
	log.Info("Starting template run.")

	sess, err := e.factory.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Warn("Session close failed.", zap.Error(cerr))
		}
	}()

	r := &run{
		sess:       sess,
		log:        log,
		sink:       &resultSink{onResult: opts.OnResult, log: log},
		limiter:    limiter,
		navTimeout: e.cfg.NavigationTimeout,
		settleWait: e.cfg.SettleWait,
	}

	initSteps, perPage, pagination := normalizeTemplate(tmpl)

	// initSteps run exactly once; their keys stay visible to every page
	// and foreach iteration below them.
	base := NewCollector()
	for _, step := range initSteps {
		if err := r.executeStep(ctx, step, base, schemas.PageScope, 0); err != nil {
			return r.sink.records, err
		}
	}

	p := &paginator{r: r, cfg: pagination, steps: perPage, base: base}
	if err := p.run(ctx); err != nil {
		return r.sink.records, err
	}

	log.Info("Finished template run.", zap.Int("records", len(r.sink.records)))
	return r.sink.records, nil
}

// normalizeTemplate collapses the two legal template shapes into one:
// a flat Steps list becomes the per-page list with no pagination
// bookkeeping needed beyond a single cycle.
func normalizeTemplate(tmpl *schemas.TabTemplate) (initSteps, perPage []*schemas.Step, pagination *schemas.PaginationConfig) {
	initSteps = tmpl.InitSteps
	perPage = tmpl.PerPageSteps
	if len(perPage) == 0 {
		perPage = tmpl.Steps
	}
	return initSteps, perPage, tmpl.Pagination
}
