// Package pipeline drives a research question through the fixed stage
// sequence: classify, retrieve, fetch, analyze, format, report, validate.
// The controller owns the state machine; every stage boundary has its own
// fallback policy and no stage failure is silently dropped.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/inquiry-cli/internal/config"
	"github.com/sells-group/inquiry-cli/internal/conflict"
	"github.com/sells-group/inquiry-cli/internal/credibility"
	"github.com/sells-group/inquiry-cli/internal/fetcher"
	"github.com/sells-group/inquiry-cli/internal/model"
	"github.com/sells-group/inquiry-cli/internal/quality"
	"github.com/sells-group/inquiry-cli/internal/stage"
	"github.com/sells-group/inquiry-cli/internal/store"
	"github.com/sells-group/inquiry-cli/pkg/anthropic"
	"github.com/sells-group/inquiry-cli/pkg/jina"
	"github.com/sells-group/inquiry-cli/pkg/perplexity"
	"github.com/sells-group/inquiry-cli/pkg/serper"
)

// Deps bundles the controller's collaborators. Fallback and Shopping are
// optional; everything else is required.
type Deps struct {
	Store        store.Store
	Intelligence anthropic.Client
	Search       jina.Client
	Fallback     perplexity.Client
	Shopping     serper.Client
	Fetcher      fetcher.Fetcher
}

// Controller sequences the pipeline stages for one query at a time per run.
// Safe for concurrent runs; the only shared mutable state is the pending
// clarification checkpoints.
type Controller struct {
	cfg       *config.Config
	store     store.Store
	retriever *retriever
	fetcher   fetcher.Fetcher
	scorer    *credibility.Scorer
	detector  *conflict.Detector

	classify *stage.Intelligence[classifyInput, model.Classification]
	analyze  *stage.Intelligence[analyzeInput, analyzeOutput]
	format   *stage.Intelligence[formatInput, formatOutput]
	report   *stage.Intelligence[reportInput, reportOutput]

	// stageModel maps intelligence stage names to the model serving them,
	// for per-stage cost attribution.
	stageModel map[string]string

	mu      sync.Mutex
	pending map[string]*checkpoint
}

// checkpoint holds the state of a run paused for clarification.
type checkpoint struct {
	run       *model.Run
	sessionID string
	class     model.Classification
	records   []model.StageRecord
	usage     model.TokenUsage
}

// New wires a Controller from config and collaborators.
func New(cfg *config.Config, deps Deps) (*Controller, error) {
	if deps.Store == nil || deps.Intelligence == nil || deps.Search == nil || deps.Fetcher == nil {
		return nil, eris.New("pipeline: store, intelligence, search and fetcher are required")
	}

	credCfg := credibility.DefaultConfig()
	if cfg.Credibility.DomainTablePath != "" {
		loaded, err := credibility.LoadDomainTableFile(cfg.Credibility.DomainTablePath)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: load domain table")
		}
		credCfg = loaded
	}

	stageTimeout := time.Duration(cfg.Pipeline.StageTimeoutSecs) * time.Second
	fast := newCompleter(deps.Intelligence, cfg.Anthropic.HaikuModel, cfg.Anthropic.MaxTokens)
	deep := newCompleter(deps.Intelligence, cfg.Anthropic.SonnetModel, cfg.Anthropic.MaxTokens)

	return &Controller{
		cfg:        cfg,
		store:      deps.Store,
		retriever:  newRetriever(deps.Search, deps.Fallback, deps.Shopping),
		fetcher:    deps.Fetcher,
		scorer:     credibility.NewScorer(credCfg),
		detector:   conflict.NewDetector(cfg.Pipeline.MaterialityThreshold),
		classify:   newClassifyAdapter(fast, stageTimeout),
		analyze:    newAnalyzeAdapter(deep, stageTimeout),
		format:     newFormatAdapter(deep, stageTimeout),
		report:     newReportAdapter(deep, stageTimeout),
		stageModel: map[string]string{
			"classify": cfg.Anthropic.HaikuModel,
			"analyze":  cfg.Anthropic.SonnetModel,
			"format":   cfg.Anthropic.SonnetModel,
			"report":   cfg.Anthropic.SonnetModel,
		},
		pending: make(map[string]*checkpoint),
	}, nil
}

// Run executes the pipeline for a query. In interactive mode it may return
// an awaiting-clarification outcome; the caller resolves it with Resume.
func (c *Controller) Run(ctx context.Context, query model.Query, opts Options) (*Outcome, error) {
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// Personalization context, read-only, best-effort.
	if query.UserID != "" && len(query.History) == 0 {
		history, err := c.store.SessionHistory(ctx, query.UserID, 10)
		if err != nil {
			zap.L().Warn("pipeline: session history unavailable", zap.Error(err))
		} else {
			query.History = history
		}
	}

	run, err := c.store.CreateRun(ctx, query, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	ex := c.newExecution(ctx, run, sessionID)
	defer ex.cancel()

	ex.setStatus(model.RunStatusClassifying)
	var class model.Classification
	ex.track("classify", timed(func() *model.StageRecord {
		res := c.classify.Execute(ex.ctx, classifyInput{
			Query:       query.Text,
			History:     query.History,
			Interactive: opts.Interactive,
		})
		class = res.Output
		rec := recordResult(res)
		if res.Status == stage.StatusFailure {
			// Classification has a documented fallback; the failure is
			// recorded but never fatal.
			class = model.DefaultClassification()
			rec.Status = model.StageStatusDegraded
			rec.Reason = "classification failed; default applied"
		}
		return rec
	}), map[string]any{
		"category": string(class.Category),
		"strategy": string(class.Strategy),
	})

	if opts.Interactive && class.Clarification != "" {
		c.mu.Lock()
		c.pending[run.ID] = &checkpoint{
			run:       run,
			sessionID: sessionID,
			class:     class,
			records:   ex.records,
			usage:     ex.usage,
		}
		c.mu.Unlock()

		ex.setStatus(model.RunStatusAwaiting)
		zap.L().Info("pipeline: awaiting clarification",
			zap.String("run_id", run.ID),
			zap.String("question", class.Clarification),
		)
		return &Outcome{
			RunID:          run.ID,
			SessionID:      sessionID,
			Status:         model.RunStatusAwaiting,
			Classification: class,
			Clarification:  class.Clarification,
		}, nil
	}

	return ex.advance(class)
}

// Resume continues a run paused for clarification. The user's free-text
// answer is appended to the query before retrieval.
func (c *Controller) Resume(ctx context.Context, runID, clarification string) (*Outcome, error) {
	c.mu.Lock()
	cp, ok := c.pending[runID]
	if ok {
		delete(c.pending, runID)
	}
	c.mu.Unlock()
	if !ok {
		return nil, eris.Errorf("pipeline: no run awaiting clarification with id %s", runID)
	}

	run := cp.run
	run.Query.Text = run.Query.Text + "\n\nClarification: " + clarification

	ex := c.newExecution(ctx, run, cp.sessionID)
	defer ex.cancel()
	ex.records = cp.records
	ex.usage = cp.usage

	return ex.advance(cp.class)
}

// execution is the per-run state: append-only stage records, accumulated
// token usage, and the run deadline.
type execution struct {
	c      *Controller
	run    *model.Run
	sess   string
	ctx    context.Context
	cancel context.CancelFunc

	records []model.StageRecord
	usage   model.TokenUsage
}

func (c *Controller) newExecution(ctx context.Context, run *model.Run, sessionID string) *execution {
	cancel := func() {}
	if c.cfg.Pipeline.DeadlineSecs > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.Pipeline.DeadlineSecs)*time.Second)
	}
	return &execution{c: c, run: run, sess: sessionID, ctx: ctx, cancel: cancel}
}

func (ex *execution) setStatus(status model.RunStatus) {
	if err := ex.c.store.UpdateRunStatus(context.Background(), ex.run.ID, status); err != nil {
		zap.L().Warn("pipeline: update status failed",
			zap.String("run_id", ex.run.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// track persists one stage record and appends it to the run telemetry.
// Stages run strictly sequentially, so no locking is needed here.
func (ex *execution) track(name string, rec *model.StageRecord, metadata map[string]any) {
	rec.Name = name
	if rec.Status == "" {
		rec.Status = model.StageStatusComplete
	}
	if metadata != nil {
		rec.Metadata = metadata
	}

	if st, err := ex.c.store.CreateStage(context.Background(), ex.run.ID, name); err == nil {
		_ = ex.c.store.CompleteStage(context.Background(), st.ID, rec)
	} else {
		zap.L().Warn("pipeline: create stage failed", zap.String("stage", name), zap.Error(err))
	}

	ex.records = append(ex.records, *rec)
	ex.usage.Add(rec.TokenUsage)

	zap.L().Info("pipeline: stage finished",
		zap.String("run_id", ex.run.ID),
		zap.String("stage", name),
		zap.String("status", string(rec.Status)),
		zap.Int64("duration_ms", rec.Duration),
	)
}

// timed runs fn and stamps its duration onto the returned record.
func timed(fn func() *model.StageRecord) *model.StageRecord {
	start := time.Now()
	rec := fn()
	rec.Duration = time.Since(start).Milliseconds()
	return rec
}

// advance runs the pipeline from Retrieving to a terminal state.
func (ex *execution) advance(class model.Classification) (*Outcome, error) {
	c := ex.c
	pc := &Context{Query: ex.run.Query, Classification: class}

	// Retrieving.
	ex.setStatus(model.RunStatusRetrieving)
	var retrieved retrieveOutput
	ex.track("retrieve", timed(func() *model.StageRecord {
		res := c.retriever.Retrieve(ex.ctx, retrieveInput{
			Query:          pc.Query.Text,
			Classification: class,
			MaxURLs:        c.cfg.Pipeline.MaxURLs,
		})
		rec := recordResult(res)
		if res.Status == stage.StatusFailure {
			// Retrieval failure degrades to the empty-evidence path.
			rec.Status = model.StageStatusDegraded
			rec.Reason = "retrieval failed; continuing without sources"
		} else {
			retrieved = res.Output
		}
		return rec
	}), map[string]any{"urls": len(retrieved.URLs), "structured": len(retrieved.Structured)})
	pc.URLs = retrieved.URLs

	if ex.expired() {
		return ex.finishDegraded(pc, "pipeline deadline exceeded during retrieval")
	}

	// Fetching.
	if len(retrieved.URLs) == 0 && len(retrieved.Structured) == 0 {
		pc.NoEvidence = true
		ex.track("fetch", &model.StageRecord{
			Status: model.StageStatusSkipped,
			Reason: "no URLs retrieved",
		}, nil)
	} else {
		ex.setStatus(model.RunStatusFetching)
		ex.track("fetch", timed(func() *model.StageRecord {
			res := fetchAll(ex.ctx, c.fetcher, fetchInput{
				URLs:        retrieved.URLs,
				Structured:  retrieved.Structured,
				Concurrency: c.cfg.Pipeline.FetchConcurrency,
				Timeout:     time.Duration(c.cfg.Fetch.TimeoutSecs) * time.Second,
			})
			pc.Documents = res.Output
			return recordResult(res)
		}), map[string]any{"documents": len(pc.Documents)})

		if len(usableDocuments(pc.Documents)) == 0 {
			pc.NoEvidence = true
		}
	}

	if ex.expired() {
		return ex.finishDegraded(pc, "pipeline deadline exceeded during fetch")
	}

	// Analyzing: fact extraction, credibility scoring, conflict detection.
	if pc.NoEvidence {
		ex.track("analyze", &model.StageRecord{
			Status: model.StageStatusSkipped,
			Reason: "no usable sources",
		}, nil)
	} else {
		ex.setStatus(model.RunStatusAnalyzing)
		usable := usableDocuments(pc.Documents)
		ex.track("analyze", timed(func() *model.StageRecord {
			facts := structuredFacts(usable)

			res := c.analyze.Execute(ex.ctx, analyzeInput{
				Query:     pc.Query.Text,
				Documents: usable,
			})
			rec := recordResult(res)
			if res.Status == stage.StatusFailure {
				// Structured facts alone can still carry the report.
				rec.Status = model.StageStatusDegraded
				rec.Reason = "fact extraction failed; structured facts only"
			} else {
				facts = append(facts, res.Output.Facts...)
			}

			pc.Facts = facts
			pc.Scores = c.scorer.ScoreAll(usable, facts)
			pc.Conflicts = c.detector.Detect(facts, usable, pc.Scores)
			return rec
		}), map[string]any{"facts": len(pc.Facts), "conflicts": len(pc.Conflicts)})
	}

	if ex.expired() {
		return ex.finishDegraded(pc, "pipeline deadline exceeded during analysis")
	}

	// Formatting. The empty-evidence path produces a deterministic draft.
	ex.setStatus(model.RunStatusFormatting)
	if pc.NoEvidence {
		pc.Draft = noEvidenceDraft(pc.Query.Text)
		ex.track("format", &model.StageRecord{
			Status: model.StageStatusComplete,
			Reason: "no evidence; deterministic draft",
		}, nil)
	} else {
		ex.track("format", timed(func() *model.StageRecord {
			res := c.format.Execute(ex.ctx, formatInput{
				Query:          pc.Query.Text,
				Classification: class,
				Facts:          pc.Facts,
				Conflicts:      pc.Conflicts,
			})
			rec := recordResult(res)
			if res.Status == stage.StatusFailure {
				pc.Draft = fallbackDraft(pc.Query.Text, pc.Facts)
				rec.Status = model.StageStatusDegraded
				rec.Reason = "draft synthesis failed; assembled from facts"
			} else {
				pc.Draft = res.Output.Draft
			}
			return rec
		}), nil)
	}

	if ex.expired() {
		return ex.finishDegraded(pc, "pipeline deadline exceeded during formatting")
	}

	// Reporting. A failure falls back to the draft verbatim; the degradation
	// must survive into validation.
	ex.setStatus(model.RunStatusReporting)
	if pc.NoEvidence {
		pc.Report = &model.Report{Body: pc.Draft}
		ex.track("report", &model.StageRecord{
			Status: model.StageStatusComplete,
			Reason: "no evidence; draft promoted to report",
		}, nil)
	} else {
		ex.track("report", timed(func() *model.StageRecord {
			res := c.report.Execute(ex.ctx, reportInput{
				Query:          pc.Query.Text,
				Classification: class,
				Draft:          pc.Draft,
				Scores:         pc.Scores,
			})
			rec := recordResult(res)
			switch res.Status {
			case stage.StatusFailure:
				pc.Report = &model.Report{
					Body:           pc.Draft,
					Degraded:       true,
					DegradedReason: stage.DescribeError(res.Err),
				}
			default:
				report := buildReport(res.Output, pc.Scores)
				if res.Status == stage.StatusDegraded {
					report.Degraded = true
					report.DegradedReason = res.Reason
				}
				pc.Report = &report
			}
			return rec
		}), map[string]any{"citations": citationCount(pc.Report)})
	}

	return ex.finish(pc, model.RunStatusDone)
}

// expired reports whether the pipeline deadline has passed.
func (ex *execution) expired() bool {
	return ex.ctx.Err() != nil
}

// finishDegraded builds a best-effort report from whatever context was
// accumulated before the deadline, then finishes with a failed run status.
func (ex *execution) finishDegraded(pc *Context, reason string) (*Outcome, error) {
	zap.L().Warn("pipeline: deadline exceeded",
		zap.String("run_id", ex.run.ID),
		zap.String("at", reason),
	)
	if pc.Report == nil {
		body := pc.Draft
		if body == "" {
			body = noEvidenceDraft(pc.Query.Text)
		}
		pc.Report = &model.Report{
			Body:           body,
			Degraded:       true,
			DegradedReason: reason,
		}
	}
	return ex.finish(pc, model.RunStatusFailed)
}

// finish always validates, persists the run result, and appends the session
// entry. The user never sees an empty or exception-shaped response.
func (ex *execution) finish(pc *Context, status model.RunStatus) (*Outcome, error) {
	c := ex.c

	ex.setStatus(model.RunStatusValidating)
	ex.track("validate", timed(func() *model.StageRecord {
		q := quality.Validate(*pc.Report, pc.Classification, pc.Scores)
		pc.Quality = &q
		return &model.StageRecord{Status: model.StageStatusComplete}
	}), map[string]any{"grade": string(gradeOf(pc.Quality))})

	totalTokens := ex.usage.InputTokens + ex.usage.OutputTokens

	// Cost is priced per stage record: classification runs on the cheaper
	// model, everything else on the deep one.
	var totalCost float64
	for _, rec := range ex.records {
		m := c.stageModel[rec.Name]
		if m == "" || rec.TokenUsage == (model.TokenUsage{}) {
			continue
		}
		u := anthropic.TokenUsage{
			InputTokens:  int64(rec.TokenUsage.InputTokens),
			OutputTokens: int64(rec.TokenUsage.OutputTokens),
		}
		u.LogCost(m, rec.Name)
		totalCost += u.EstimateCost(m)
	}

	result := &model.RunResult{
		Report:      pc.Report,
		Quality:     pc.Quality,
		Credibility: pc.Scores,
		Conflicts:   pc.Conflicts,
		Stages:      ex.records,
		TotalTokens: totalTokens,
		TotalCost:   totalCost,
	}
	if err := c.store.UpdateRunResult(context.Background(), ex.run.ID, status, result); err != nil {
		zap.L().Warn("pipeline: save run result failed", zap.Error(err))
	}

	if ex.run.Query.UserID != "" {
		entry := model.SessionEntry{
			Query:     ex.run.Query.Text,
			Category:  pc.Classification.Category,
			Topics:    pc.Classification.Topics,
			CreatedAt: time.Now(),
		}
		if err := c.store.AppendSession(context.Background(), ex.run.Query.UserID, entry); err != nil {
			zap.L().Warn("pipeline: append session failed", zap.Error(err))
		}
	}

	zap.L().Info("pipeline: run finished",
		zap.String("run_id", ex.run.ID),
		zap.String("status", string(status)),
		zap.String("grade", string(gradeOf(pc.Quality))),
		zap.Int("tokens", totalTokens),
		zap.Float64("cost_usd", totalCost),
	)

	return &Outcome{
		RunID:          ex.run.ID,
		SessionID:      ex.sess,
		Status:         status,
		Classification: pc.Classification,
		Report:         pc.Report,
		Quality:        pc.Quality,
		Conflicts:      pc.Conflicts,
		TotalTokens:    totalTokens,
		TotalCost:      totalCost,
	}, nil
}

// recordResult maps a stage result onto the persisted record shape.
func recordResult[T any](res stage.Result[T]) *model.StageRecord {
	rec := &model.StageRecord{TokenUsage: res.Usage, Attempts: res.Attempts}
	switch res.Status {
	case stage.StatusSuccess:
		rec.Status = model.StageStatusComplete
	case stage.StatusDegraded:
		rec.Status = model.StageStatusDegraded
		rec.Reason = res.Reason
	case stage.StatusFailure:
		rec.Status = model.StageStatusFailed
		rec.Error = stage.DescribeError(res.Err)
	}
	return rec
}

func citationCount(r *model.Report) int {
	if r == nil {
		return 0
	}
	return len(r.Citations)
}

func gradeOf(q *model.QualityReport) model.Grade {
	if q == nil {
		return ""
	}
	return q.Grade
}
