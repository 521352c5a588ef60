// Command cpgcore annotates CpG probes with their genes, trait associations
// and disease evidence, and keeps a ledger of every run.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cpgcore/internal/config"
)

type app struct {
	out     io.Writer
	cfgPath string
	verbose bool

	v      *viper.Viper
	cfg    config.Config
	logger *zap.Logger

	// bindings maps flag names to config keys for the running command.
	bindings map[string]string
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, logger: zap.NewNop(), bindings: map[string]string{
		"mappings":        "inputs.mappings",
		"genes":           "inputs.genes",
		"atlas":           "inputs.atlas",
		"disease":         "inputs.disease",
		"catalog-results": "inputs.catalog_results",
		"catalog-studies": "inputs.catalog_studies",
		"cpgs":            "inputs.cpgs",
		"workers":         "pipeline.workers",
		"formats":         "export.formats",
		"filter-class":    "disease.filter_class",
	}}
	root := &cobra.Command{
		Use:   "cpgcore",
		Short: "CpG probe annotation and gap analysis",
		Long: `cpgcore expands probe-to-gene mappings, resolves gene synonyms, reports the
genes an EWAS atlas attributes to a probe that the mapping misses, and ranks
trait and disease associations per probe and gene.

Settings come from --config (or CPGCORE_CONFIG), CPGCORE_* environment
variables and command flags, in increasing precedence.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: a.teardown,
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (yaml, toml or json)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(a.runCmd(), a.runsCmd(), a.catalogCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	zcfg := zap.NewProductionConfig()
	if a.verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	a.logger = logger.Named("cpgcore")

	v, err := config.New(a.cfgPath)
	if err != nil {
		return err
	}
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := a.bindings[f.Name]; ok && bindErr == nil {
			bindErr = v.BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return fmt.Errorf("bind flags: %w", bindErr)
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	a.v, a.cfg = v, cfg
	return nil
}

func (a *app) teardown(*cobra.Command, []string) {
	_ = a.logger.Sync()
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
