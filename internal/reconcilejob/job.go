// Package reconcilejob periodically re-derives every company's cached token
// balance from its journal.
package reconcilejob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	obscontext "github.com/smallbiznis/tokenledger/internal/observability/context"
	obslogger "github.com/smallbiznis/tokenledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tokenledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobName = "reconcile_company_balances"

// Reconciler is the slice of the ledger the job drives.
type Reconciler interface {
	ListCompanyIDs(ctx context.Context) ([]snowflake.ID, error)
	Reconcile(ctx context.Context, companyID snowflake.ID) (ledgerdomain.ReconcileResult, error)
}

type Summary struct {
	Processed int
	Drifted   int
	Failed    int
}

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Ledger     ledgerdomain.Service
	JobMetrics *obsmetrics.JobMetrics `optional:"true"`
}

type Job struct {
	log     *zap.Logger
	genID   *snowflake.Node
	ledger  Reconciler
	metrics *obsmetrics.JobMetrics
}

func New(p Params) *Job {
	return NewJob(p.Log, p.GenID, p.Ledger, p.JobMetrics)
}

func NewJob(log *zap.Logger, genID *snowflake.Node, ledger Reconciler, metrics *obsmetrics.JobMetrics) *Job {
	return &Job{
		log:     log.Named("reconcilejob"),
		genID:   genID,
		ledger:  ledger,
		metrics: metrics,
	}
}

// RunOnce reconciles every company. A failure on one company does not stop
// the run; all failures are returned joined.
func (j *Job) RunOnce(ctx context.Context) (Summary, error) {
	start := time.Now()
	runID := j.genID.Generate().String()
	ctx = obscontext.WithRequestID(ctx, runID)
	ctx = obscontext.WithActor(ctx, obscontext.Actor{Role: "system", ID: jobName})
	log := obslogger.WithContext(ctx, j.log)

	j.metrics.IncRun(jobName)
	defer func() { j.metrics.ObserveDuration(jobName, time.Since(start)) }()

	var summary Summary
	ids, err := j.ledger.ListCompanyIDs(ctx)
	if err != nil {
		j.metrics.IncError(jobName, err)
		return summary, fmt.Errorf("list companies: %w", err)
	}

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		result, err := j.ledger.Reconcile(ctx, id)
		if err != nil {
			summary.Failed++
			j.metrics.IncError(jobName, err)
			log.Warn("reconcile failed", zap.String("company_id", id.String()), zap.Error(err))
			errs = append(errs, fmt.Errorf("company %s: %w", id, err))
			continue
		}
		summary.Processed++
		if result.Drift != 0 {
			summary.Drifted++
			j.metrics.IncDrift(jobName)
		}
	}
	j.metrics.AddProcessed(jobName, summary.Processed)

	log.Info("reconcile run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("drifted", summary.Drifted),
		zap.Int("failed", summary.Failed),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return summary, errors.Join(errs...)
}

// Schedule registers RunOnce on c under spec. Each run gets its own context
// derived from base.
func (j *Job) Schedule(base context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		if _, err := j.RunOnce(base); err != nil {
			j.log.Error("scheduled reconcile run failed", zap.Error(err))
		}
	})
}
