package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cpgcore/internal/adapters/export"
	"cpgcore/internal/blob"
	"cpgcore/internal/core"
	"cpgcore/internal/runlog"
	"cpgcore/internal/tables"
)

func (a *app) runCmd() *cobra.Command {
	var selected []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the annotation pipeline and export its tables",
		Example: `  cpgcore run --mappings mappings.csv --genes hgnc.csv --atlas atlas.csv --disease gea.csv
  cpgcore run --config cpgcore.yaml --formats csv,json --tables annotations,unmapped_genes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runPipeline(cmd.Context(), selected)
		},
	}
	f := cmd.Flags()
	f.String("mappings", "", "probe mapping table (csv)")
	f.String("genes", "", "reference gene table with synonyms (csv)")
	f.String("atlas", "", "EWAS Atlas associations (csv)")
	f.String("disease", "", "DisGeNET gene evidence associations (csv)")
	f.String("catalog-results", "", "EWAS Catalog results (tsv, optional)")
	f.String("catalog-studies", "", "EWAS Catalog studies (tsv, optional)")
	f.String("cpgs", "", "probe list restricting the catalog join (optional)")
	f.Int("workers", 1, "parallel row annotation workers")
	f.String("filter-class", "", "disease classification of the filtered columns")
	f.StringSlice("formats", nil, "export formats: csv, json, html")
	f.StringSliceVar(&selected, "tables", nil, "tables to export (default all)")
	return cmd
}

func (a *app) runPipeline(ctx context.Context, selected []string) (err error) {
	in, err := a.loadInputs()
	if err != nil {
		return err
	}
	formats, err := export.ParseFormats(a.cfg.Export.Formats)
	if err != nil {
		return err
	}

	runs, err := runlog.Open(ctx, a.cfg.Runs)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer func() { err = errors.Join(err, runs.Close()) }()
	store, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	metrics, flush, err := a.metrics()
	if err != nil {
		return err
	}
	tracer, closeTrace, err := a.tracer()
	if err != nil {
		return err
	}
	defer closeTrace()

	svc := core.NewService(
		core.WithLogger(a.logger),
		core.WithRunStore(runs),
		core.WithMetrics(metrics),
		core.WithTracer(tracer),
		core.WithWorkers(a.cfg.Pipeline.Workers),
		core.WithFilterClass(a.cfg.Disease.FilterClass),
		core.WithSuggestions(a.cfg.Pipeline.Suggestions),
	)
	res, err := svc.Run(ctx, in)
	flush()
	if err != nil {
		return fmt.Errorf("run %s: %w", res.RunID, err)
	}

	worker := export.NewWorker(store, export.WithLogger(a.logger))
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()
	queued, err := worker.Enqueue(ctx, export.Request{
		RunID:       res.RunID,
		Tables:      export.Select(export.Tables(res), selected),
		Formats:     formats,
		RequestedBy: "cli",
	})
	if err != nil {
		return fmt.Errorf("export run %s: %w", res.RunID, err)
	}
	done, err := worker.Wait(ctx, queued.ID)
	if err != nil {
		return fmt.Errorf("export run %s: %w", res.RunID, err)
	}
	if err := svc.RecordArtifacts(ctx, res.RunID, done.Keys()); err != nil {
		return err
	}
	return a.printSummary(res, done)
}

func (a *app) printSummary(res core.Result, exported export.Record) error {
	counts := res.Counts.Map()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	if _, err := fmt.Fprintf(a.out, "run %s succeeded\n", res.RunID); err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintf(a.out, "  %-22s %d\n", name, counts[name])
	}
	for _, artifact := range exported.Artifacts {
		fmt.Fprintf(a.out, "  artifact %s (%d rows)\n", artifact.Key, artifact.Rows)
	}
	return nil
}

func (a *app) loadInputs() (core.Inputs, error) {
	var in core.Inputs
	paths := a.cfg.Inputs
	var err error
	if in.Mappings, err = loadTable(a.logger, "mappings", paths.Mappings, tables.LoadMappings); err != nil {
		return in, err
	}
	if in.Genes, err = loadTable(a.logger, "genes", paths.Genes, tables.LoadGenes); err != nil {
		return in, err
	}
	if in.Atlas, err = loadTable(a.logger, "atlas", paths.Atlas, tables.LoadAtlas); err != nil {
		return in, err
	}
	if in.Disease, err = loadTable(a.logger, "disease", paths.Disease, tables.LoadDisease); err != nil {
		return in, err
	}
	if paths.CatalogResults == "" && paths.CatalogStudies == "" {
		return in, nil
	}
	catalog, err := a.loadCatalog(true)
	if err != nil {
		return in, err
	}
	in.Catalog = &catalog
	return in, nil
}

func (a *app) loadCatalog(optionalTargets bool) (core.CatalogInputs, error) {
	var out core.CatalogInputs
	paths := a.cfg.Inputs
	var err error
	if out.Results, err = readFile("catalog_results", paths.CatalogResults, tables.LoadCatalogResults); err != nil {
		return out, err
	}
	if out.Studies, err = readFile("catalog_studies", paths.CatalogStudies, tables.LoadCatalogStudies); err != nil {
		return out, err
	}
	if paths.CpGs == "" {
		if optionalTargets {
			return out, nil
		}
		return out, fmt.Errorf("inputs.cpgs is required (--cpgs or CPGCORE_INPUTS_CPGS)")
	}
	out.Targets, err = readFile("cpgs", paths.CpGs, tables.LoadProbeList)
	return out, err
}

func loadTable[T any](logger *zap.Logger, name, path string, load func(io.Reader) ([]T, []tables.RowIssue, error)) ([]T, error) {
	var issues []tables.RowIssue
	records, err := readFile(name, path, func(r io.Reader) ([]T, error) {
		records, rowIssues, err := load(r)
		issues = rowIssues
		return records, err
	})
	if err != nil {
		return nil, err
	}
	for _, issue := range issues {
		logger.Debug("row issue", zap.String("table", name), zap.Error(issue))
	}
	logger.Info("table loaded", zap.String("table", name), zap.Int("rows", len(records)), zap.Int("issues", len(issues)))
	return records, nil
}

func readFile[T any](name, path string, load func(io.Reader) (T, error)) (T, error) {
	var zero T
	if path == "" {
		return zero, fmt.Errorf("inputs.%s is required", name)
	}
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()
	out, err := load(f)
	if err != nil {
		return zero, fmt.Errorf("load %s: %w", path, err)
	}
	return out, nil
}

func (a *app) metrics() (core.MetricsRecorder, func(), error) {
	switch a.cfg.Metrics.Backend {
	case "none":
		return nil, func() {}, nil
	case "prometheus":
		reg := prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, nil, fmt.Errorf("register metrics: %w", err)
		}
		flush := func() {
			if a.cfg.Metrics.Textfile == "" {
				return
			}
			if err := prometheus.WriteToTextfile(a.cfg.Metrics.Textfile, reg); err != nil {
				a.logger.Warn("write metrics textfile", zap.Error(err))
			}
		}
		return rec, flush, nil
	default:
		rec := core.NewExpvarMetricsRecorder("")
		return rec, func() {
			a.logger.Debug("stage metrics", zap.Any("metrics", rec.Snapshot()))
		}, nil
	}
}

func (a *app) tracer() (core.Tracer, func(), error) {
	if a.cfg.Metrics.Trace == "" {
		return nil, func() {}, nil
	}
	f, err := os.Create(a.cfg.Metrics.Trace)
	if err != nil {
		return nil, nil, fmt.Errorf("open trace file: %w", err)
	}
	return core.NewJSONTracer(f), func() { _ = f.Close() }, nil
}
