// Package matcher reconciles participant records from input files against
// TBA. A run collects what the match configuration needs, loads and samples
// the cached partitions, inquires TBA, evaluates the business rules and
// drives the corrective actions attached to each outcome.
package matcher

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/source-matcher/internal/internalid"
	"github.com/sells-group/source-matcher/internal/metrics"
	"github.com/sells-group/source-matcher/internal/model"
	"github.com/sells-group/source-matcher/internal/trace"
	"github.com/sells-group/source-matcher/pkg/formatter"
	"github.com/sells-group/source-matcher/pkg/objectcache"
	"github.com/sells-group/source-matcher/pkg/ruleengine"
	"github.com/sells-group/source-matcher/pkg/tbainquiry"
	"github.com/sells-group/source-matcher/pkg/tbaupdate"
)

// Engine runs reconciliation requests. It is safe for concurrent use; all
// per-request state lives in a run.
type Engine struct {
	cache     objectcache.Client
	inquiry   tbainquiry.Client
	rules     ruleengine.Client
	update    tbaupdate.Client
	formatter formatter.Client

	internalIDs func() (internalid.Mapping, error)
	tbaURL      string
	parallel    int
	now         func() time.Time
	newRand     func() *rand.Rand
}

// Option configures an Engine.
type Option func(*Engine)

// WithInternalIDs uses a fixed internal id mapping.
func WithInternalIDs(m internalid.Mapping) Option {
	return func(e *Engine) {
		e.internalIDs = func() (internalid.Mapping, error) { return m, nil }
	}
}

// WithInternalIDFile reads the internal id mapping from path on every run.
func WithInternalIDFile(path string) Option {
	return func(e *Engine) {
		e.internalIDs = func() (internalid.Mapping, error) { return internalid.Load(path) }
	}
}

// WithTBAURL sets the TBA endpoint forwarded to the inquiry service.
func WithTBAURL(u string) Option {
	return func(e *Engine) {
		e.tbaURL = u
	}
}

// WithParallelFetch fetches up to n partitions concurrently. Values below 2
// fetch sequentially.
func WithParallelFetch(n int) Option {
	return func(e *Engine) {
		e.parallel = n
	}
}

// WithClock overrides the clock used for dates and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSeed makes participant sampling deterministic.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.newRand = func() *rand.Rand { return rand.New(rand.NewSource(seed)) }
	}
}

// New creates an Engine over the remote service clients.
func New(
	cache objectcache.Client,
	inquiry tbainquiry.Client,
	rules ruleengine.Client,
	update tbaupdate.Client,
	fmtClient formatter.Client,
	opts ...Option,
) *Engine {
	e := &Engine{
		cache:       cache,
		inquiry:     inquiry,
		rules:       rules,
		update:      update,
		formatter:   fmtClient,
		internalIDs: func() (internalid.Mapping, error) { return internalid.Mapping{}, nil },
		now:         time.Now,
		newRand:     func() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// run is the state of one request.
type run struct {
	e   *Engine
	req *model.Request
	cfg *model.ConfigTables
	log *zap.Logger
	now time.Time

	reqs   *requirements
	parts  []*partition
	files  *set
	sheets *set
	types  *set
	counts model.Counts

	internalIDs map[string]string
	excelOutput string
}

// Run reconciles one request and returns its response envelope. Fatal
// errors are reported as a Failed envelope rather than returned.
func (e *Engine) Run(ctx context.Context, req *model.Request) *model.Response {
	ctx = trace.WithRequest(ctx, req.UID(), req.PJMID())
	r := &run{
		e:           e,
		req:         req,
		cfg:         &req.ConfigTables,
		log:         trace.Logger(ctx).With(zap.String("run_id", uuid.NewString())),
		now:         e.now(),
		files:       newSet(),
		sheets:      newSet(),
		types:       newSet(),
		internalIDs: map[string]string{},
	}
	if req.RedisKeys == nil {
		req.RedisKeys = map[string]any{}
	}

	start := time.Now()
	r.log.Info("matcher: starting run", zap.Int("match_fields", len(r.cfg.MatchConfig)))

	resp, err := r.execute(ctx)
	if err != nil {
		rerr := asError(err)
		r.log.Error("matcher: run failed",
			zap.String("status_message", rerr.Msg),
			zap.Error(err),
		)
		resp = r.failed(rerr)
	}

	metrics.RecordOutcome(resp.Status)
	metrics.RecordCounts(r.counts.Participants, r.counts.Verified, r.counts.Success, r.counts.Failed)
	r.log.Info("matcher: run complete",
		zap.String("status", resp.Status),
		zap.Int("participants", r.counts.Participants),
		zap.Int("verified", r.counts.Verified),
		zap.Int("failed", r.counts.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp
}

func (r *run) execute(ctx context.Context) (*model.Response, error) {
	checkMatchFiles(r.log, r.req)
	r.reqs = collectRequirements(r.cfg)
	if err := checkCacheKeys(r.log, r.req, r.reqs); err != nil {
		return nil, err
	}
	if r.reqs.problems.len() > 0 {
		return nil, newError(KindConfigInvalid, joinList(r.reqs.problems.values()))
	}

	if len(r.cfg.MatchConfig) == 0 {
		return r.noConfig(), nil
	}

	if err := r.load(ctx); err != nil {
		return nil, err
	}
	if len(r.parts) == 0 {
		e := newError(KindIdentifierMismatch, msgNoMatchFields)
		e.Name = joinNames(r.phaseFiles())
		return nil, e
	}

	notFound, err := r.inquire(ctx)
	if err != nil {
		return nil, err
	}
	if r.notInTBA() {
		return r.notInTBAResponse(notFound), nil
	}

	verdicts, err := r.evaluate(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range verdicts {
		v.InternalID = r.internalIDs[v.ParticipantSSN]
	}

	if r.needsFileUpdate(verdicts) {
		if err := r.fileUpdate(ctx, verdicts); err != nil {
			return nil, err
		}
	}
	if needsTBAUpdate(verdicts) {
		if err := r.dispatch(ctx, verdicts); err != nil {
			return nil, err
		}
	}

	return r.outcome(append(verdicts, notFound...)), nil
}
