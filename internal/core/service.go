package core

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cpgcore/internal/catalog"
	"cpgcore/internal/disease"
	"cpgcore/internal/gap"
	"cpgcore/internal/heatmap"
	"cpgcore/internal/mapping"
	"cpgcore/internal/runlog"
	"cpgcore/internal/synonym"
	"cpgcore/internal/traits"
	"cpgcore/pkg/domain"
)

// Pipeline stage names reported to metrics and tracing.
const (
	StageIndex     = "index"
	StageExpand    = "expand"
	StageGap       = "gap"
	StageAggregate = "aggregate"
	StageHeatmap   = "heatmap"
	StageCatalog   = "catalog"
)

// Service runs the annotation pipeline. Each Run is independent; the service
// holds configuration and the run ledger only.
type Service struct {
	opts serviceOptions
}

// NewService constructs a service with the supplied options.
func NewService(opts ...Option) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{opts: o}
}

// Runs returns the run ledger.
func (s *Service) Runs() runlog.Store { return s.opts.runs }

// Logger returns the configured logger.
func (s *Service) Logger() *zap.Logger { return s.opts.logger }

// Run executes every stage over in and records the run. On failure the
// returned Result still carries the run id.
func (s *Service) Run(ctx context.Context, in Inputs) (Result, error) {
	res := Result{RunID: uuid.NewString(), StartedAt: s.opts.clock.Now()}
	logger := s.opts.logger.With(zap.String("run_id", res.RunID))
	rec := runlog.Record{
		ID:        res.RunID,
		Status:    runlog.StatusRunning,
		StartedAt: res.StartedAt,
		Settings:  s.settings(),
	}
	if err := s.opts.runs.Save(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("record run start: %w", err)
	}
	logger.Info("run started",
		zap.Int("mapping_records", len(in.Mappings)),
		zap.Int("gene_records", len(in.Genes)),
		zap.Int("atlas_rows", len(in.Atlas)),
		zap.Int("disease_rows", len(in.Disease)),
	)

	runErr := s.run(ctx, logger, in, &res)

	completed := s.opts.clock.Now()
	rec.CompletedAt = &completed
	rec.Counts = res.Counts.Map()
	for _, c := range res.Conflicts {
		rec.Conflicts = append(rec.Conflicts, runlog.Conflict{Synonym: c.Synonym, Previous: c.Previous, Winner: c.Winner})
	}
	rec.Status = runlog.StatusSucceeded
	if runErr != nil {
		rec.Status = runlog.StatusFailed
		rec.Error = runErr.Error()
	}
	if err := s.opts.runs.Save(context.WithoutCancel(ctx), rec); err != nil {
		if runErr == nil {
			return res, fmt.Errorf("record run %s: %w", res.RunID, err)
		}
		logger.Error("record failed run", zap.Error(err))
	}
	if runErr != nil {
		logger.Error("run failed", zap.Error(runErr))
		return res, runErr
	}
	logger.Info("run completed",
		zap.Int("expanded_rows", res.Counts.ExpandedRows),
		zap.Int("unmapped_probes", res.Counts.UnmappedProbes),
		zap.Duration("elapsed", completed.Sub(res.StartedAt)),
	)
	return res, nil
}

func (s *Service) run(ctx context.Context, logger *zap.Logger, in Inputs, res *Result) error {
	var index *synonym.Index
	if err := s.stage(ctx, StageIndex, func(context.Context) error {
		index, res.ParseErrors = synonym.Build(in.Genes)
		res.Conflicts = index.Conflicts()
		for _, perr := range res.ParseErrors {
			logger.Warn("skipping malformed synonyms", zap.String("symbol", perr.Symbol), zap.Error(perr))
		}
		for _, c := range res.Conflicts {
			logger.Warn("synonym claimed by several symbols",
				zap.String("synonym", c.Synonym),
				zap.String("previous", c.Previous),
				zap.String("winner", c.Winner),
			)
		}
		res.Counts.CanonicalSymbols = index.Symbols().Len()
		res.Counts.Synonyms = index.Len()
		res.Counts.SynonymParseErrors = len(res.ParseErrors)
		res.Counts.SynonymConflicts = len(res.Conflicts)
		return nil
	}); err != nil {
		return err
	}

	var rawFields map[string]string
	if err := s.stage(ctx, StageExpand, func(context.Context) error {
		res.Expanded = mapping.Expand(in.Mappings)
		rawFields = mapping.RawFields(in.Mappings)
		res.Counts.MappingRecords = len(in.Mappings)
		res.Counts.ExpandedRows = len(res.Expanded)
		for _, m := range res.Expanded {
			if m.Unmapped() {
				res.Counts.UnmappedRows++
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := s.stage(ctx, StageGap, func(ctx context.Context) error {
		analyzer := gap.NewAnalyzer(index, rawFields,
			gap.WithPolicy(s.opts.policy),
			gap.WithSuggestions(s.opts.suggestions),
		)
		res.Gap = analyzer.Analyze(domain.ReportedGenesOf(in.Atlas))
		res.Counts.UnmappedProbes = len(res.Gap.Unmapped)
		res.Counts.LedgerRows = len(res.Gap.Ledger)
		res.Counts.AppendixRows = len(res.Gap.Appendix)
		if observer, ok := s.opts.metrics.(TokenObserver); ok {
			observer.ObserveTokens(ctx, tokenCounts(res.Gap))
		}
		return nil
	}); err != nil {
		return err
	}

	if err := s.stage(ctx, StageAggregate, func(ctx context.Context) error {
		traitAgg := traits.NewAggregator(in.Atlas)
		diseaseAgg := disease.NewAggregator(in.Disease, disease.WithFilterClass(s.opts.filterClass))
		if diseaseAgg.FallbackUsed() {
			res.FallbackUsed = true
			logger.Warn("no disease record carries a classification; filtered mode uses every record",
				zap.String("filter_class", diseaseAgg.FilterClass()))
		}
		res.Counts.TraitProbes = traitAgg.Len()
		res.Counts.DiseaseGenes = diseaseAgg.Genes(disease.Broad)
		res.Counts.PsychDiseaseGenes = diseaseAgg.Genes(disease.Filtered)

		a := annotator{index: index, traits: traitAgg, diseases: diseaseAgg, gap: res.Gap}
		rows, err := s.annotateAll(ctx, a, res.Expanded)
		if err != nil {
			return err
		}
		res.Rows = rows
		for _, row := range rows {
			if row.Resolution == ResolvedCanonical || row.Resolution == ResolvedSynonym {
				res.Counts.ResolvedRows++
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := s.stage(ctx, StageHeatmap, func(context.Context) error {
		res.Heatmap = BuildHeatmap(res.Rows)
		res.Counts.HeatmapGenes = len(res.Heatmap.Rows)
		res.Counts.HeatmapDiseases = len(res.Heatmap.Columns)
		return nil
	}); err != nil {
		return err
	}

	if in.Catalog == nil {
		return nil
	}
	targets := in.Catalog.Targets
	if len(targets) == 0 {
		targets = probesOf(in.Mappings)
	}
	joined, err := s.JoinCatalog(ctx, CatalogInputs{Results: in.Catalog.Results, Studies: in.Catalog.Studies, Targets: targets})
	if err != nil {
		return err
	}
	res.Catalog = &joined
	res.Counts.CatalogMatches = len(joined.Matches)
	return nil
}

// JoinCatalog keeps the catalog results for the target probes and merges
// their study metadata.
func (s *Service) JoinCatalog(ctx context.Context, in CatalogInputs) (catalog.Result, error) {
	var out catalog.Result
	err := s.stage(ctx, StageCatalog, func(context.Context) error {
		out = catalog.Join(in.Results, in.Studies, in.Targets)
		if out.MissingStudies > 0 {
			s.opts.logger.Warn("catalog results reference unknown studies", zap.Int("rows", out.MissingStudies))
		}
		return nil
	})
	return out, err
}

// RecordArtifacts appends exported artifact keys to the ledger entry of runID.
func (s *Service) RecordArtifacts(ctx context.Context, runID string, keys []string) error {
	rec, err := s.opts.runs.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	rec.Artifacts = append(rec.Artifacts, keys...)
	if err := s.opts.runs.Save(ctx, rec); err != nil {
		return fmt.Errorf("record artifacts of %s: %w", runID, err)
	}
	return nil
}

func (s *Service) annotateAll(ctx context.Context, a annotator, expanded []domain.GeneMapping) ([]AnnotatedRow, error) {
	rows := make([]AnnotatedRow, len(expanded))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.workers)
	for i, m := range expanded {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = a.annotate(m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("annotate rows: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("annotate rows: %w", err)
	}
	return rows, nil
}

func (s *Service) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	ctx, span := s.opts.tracer.Start(ctx, name)
	started := time.Now()
	err := fn(ctx)
	s.opts.metrics.Observe(ctx, name, err == nil, time.Since(started))
	span.End(err)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	s.opts.logger.Debug("stage finished", zap.String("stage", name), zap.Duration("elapsed", time.Since(started)))
	return nil
}

func (s *Service) settings() map[string]string {
	return map[string]string{
		"workers":      strconv.Itoa(s.opts.workers),
		"filter_class": s.opts.filterClass,
		"suggestions":  strconv.FormatBool(s.opts.suggestions),
	}
}

func tokenCounts(report gap.Report) TokenCounts {
	var counts TokenCounts
	for _, row := range report.Ledger {
		if row.SynonymOf != "" {
			counts.Synonym++
		}
	}
	for _, u := range report.Unmapped {
		counts.Established += len(u.Established)
		counts.Unestablished += len(u.Unestablished)
	}
	return counts
}

func probesOf(records []domain.MappingRecord) []string {
	seen := make(map[string]struct{}, len(records))
	var out []string
	for _, rec := range records {
		if rec.ProbeID == "" {
			continue
		}
		if _, ok := seen[rec.ProbeID]; ok {
			continue
		}
		seen[rec.ProbeID] = struct{}{}
		out = append(out, rec.ProbeID)
	}
	return out
}

// BuildHeatmap parses the broad disease summary of every resolved gene into
// a gene × disease matrix. Each gene contributes once.
func BuildHeatmap(rows []AnnotatedRow) heatmap.Matrix {
	seen := make(map[string]struct{})
	var cells []heatmap.Cell
	for _, row := range rows {
		gene := row.DiseaseKey()
		if gene == "" || row.Diseases == nil {
			continue
		}
		if _, ok := seen[gene]; ok {
			continue
		}
		seen[gene] = struct{}{}
		cells = append(cells, heatmap.Parse(gene, row.Diseases)...)
	}
	return heatmap.Build(cells)
}
