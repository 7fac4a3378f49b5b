package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"edgestat/adapters/excel"
	"edgestat/adapters/matrixfile"
	"edgestat/adapters/postgres"
	"edgestat/app"
	"edgestat/domain/core"
	"edgestat/domain/run"
	"edgestat/internal/migration"
	"edgestat/internal/report"
	"edgestat/internal/testkit"
	"edgestat/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

// codeVersion is stamped into every run manifest.
const codeVersion = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "edgestat",
		Short: "Permutation testing of group-level connectome differences",
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newGenCmd(),
		newReportCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runOptions collects the run flags that select inputs rather than tune
// the test itself.
type runOptions struct {
	ftests      string
	fOnly       bool
	columns     []string
	factors     []string
	workers     int
	databaseURL string
	report      bool
}

func newRunCmd() *cobra.Command {
	var (
		cfg            = run.DefaultConfig()
		opts           runOptions
		errorsFlag     string
		exchangeWithin string
		exchangeWhole  string
	)

	cmd := &cobra.Command{
		Use:   "run [input] [algorithm] [design] [contrast] [output]",
		Short: "Run the permutation test over a cohort of connectomes",
		Long: `Run the statistical pipeline on a cohort of connectome matrices.

input is a text file listing one connectome matrix file per subject,
algorithm is one of nbs, tfce or none, design and contrast are matrix
files, and output is the prefix every result file is written under.

The design matrix may also be an .xlsx or header-carrying .csv phenotype
table; use --factor to pick and order its columns.

Example: edgestat run cohort.txt tfce design.txt contrasts.txt out/group_ --permutations 10000`,
		Args: cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			algorithm, err := run.ParseAlgorithm(args[1])
			if err != nil {
				return err
			}
			cfg.Algorithm = algorithm
			if cfg.Errors, err = run.ParseErrorModel(errorsFlag); err != nil {
				return err
			}
			cfg.ThresholdSet = cmd.Flags().Changed("threshold")
			if exchangeWithin != "" {
				if cfg.ExchangeWithin, err = matrixfile.LoadIntVector(exchangeWithin); err != nil {
					return fmt.Errorf("exchange blocks: %w", err)
				}
			}
			if exchangeWhole != "" {
				if cfg.ExchangeWhole, err = matrixfile.LoadIntVector(exchangeWhole); err != nil {
					return fmt.Errorf("exchange blocks: %w", err)
				}
			}
			return runTest(cmd.Context(), args, cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&errorsFlag, "errors", string(cfg.Errors), "Error model: ee, ise or both")
	flags.IntVar(&cfg.Permutations, "permutations", cfg.Permutations, "Number of shuffles in the permutation test")
	flags.BoolVar(&cfg.Strong, "strong", false, "Strong FWE control: pool one null distribution across hypotheses")
	flags.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed for the shuffle sequence")
	flags.Float64Var(&cfg.Threshold, "threshold", 0, "Cluster-forming statistic cut for the nbs algorithm")
	flags.Float64Var(&cfg.TFCEDH, "tfce-dh", cfg.TFCEDH, "TFCE height integration step")
	flags.Float64Var(&cfg.TFCEExtent, "tfce-e", cfg.TFCEExtent, "TFCE extent exponent")
	flags.Float64Var(&cfg.TFCEHeight, "tfce-h", cfg.TFCEHeight, "TFCE height exponent")
	flags.BoolVar(&cfg.Nonstationarity, "nonstationarity", false, "Correct the enhanced statistic for non-stationarity")
	flags.Float64Var(&cfg.Skew, "skew-nonstationarity", cfg.Skew, "Skew parameter of the empirical baseline")
	flags.IntVar(&cfg.PermutationsNonstationarity, "permutations-nonstationarity", cfg.PermutationsNonstationarity, "Shuffles used to estimate the empirical baseline")
	flags.BoolVar(&cfg.NoTest, "notest", false, "Skip permutation testing, write the model fit outputs only")
	flags.StringVar(&exchangeWithin, "exchange-within", "", "File of block labels; shuffling stays within blocks")
	flags.StringVar(&exchangeWhole, "exchange-whole", "", "File of block labels; equally sized blocks shuffle as rigid units")
	flags.StringVar(&opts.ftests, "ftests", "", "File of F-test row selections over the contrast matrix")
	flags.BoolVar(&opts.fOnly, "fonly", false, "Compute F-tests only, skip the per-row t-tests")
	flags.StringArrayVar(&opts.columns, "column", nil, "Element-wise design column as name=subject-list or a bare path (repeatable)")
	flags.StringArrayVar(&opts.factors, "factor", nil, "Design table column to use as a factor, in order (repeatable)")
	flags.IntVar(&opts.workers, "workers", 0, "Worker goroutines, 0 for one per CPU")
	flags.StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres URL for recording the run")
	flags.BoolVar(&opts.report, "report", false, "Write a markdown report next to the outputs")

	return cmd
}

func runTest(ctx context.Context, args []string, cfg run.Config, opts runOptions) error {
	input, designPath, contrastPath, output := args[0], args[2], args[3], args[4]

	cohort, err := matrixfile.NewCohortFiles(input)
	if err != nil {
		return err
	}
	columns, err := parseColumns(opts.columns)
	if err != nil {
		return err
	}
	designReader := newDesignReader(designPath, columns, opts.factors)
	hypotheses := matrixfile.NewHypothesisFile(contrastPath, opts.ftests, opts.fOnly)
	writer, err := matrixfile.NewWriter(output)
	if err != nil {
		return err
	}

	var repo ports.RunRepository
	if opts.databaseURL != "" {
		db, err := sqlx.Connect("postgres", opts.databaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		if err := migration.NewRunner().Run(ctx, db); err != nil {
			return fmt.Errorf("prepare database: %w", err)
		}
		repo = postgres.NewRunRepository(db)
	}

	svc := app.NewRunService(repo, codeVersion)
	resp, err := svc.Execute(ctx, app.RunRequest{
		Cohort:     cohort,
		Design:     designReader,
		Hypotheses: hypotheses,
		Writer:     writer,
		Config:     cfg,
		Workers:    opts.workers,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run %s: %d subjects, %d elements, %d hypotheses\n",
		resp.RunID, resp.Subjects, resp.Elements, resp.Hypotheses)
	fmt.Printf("fingerprint: %s\n", resp.Fingerprint)
	if resp.Tested {
		fmt.Printf("smallest FWE-corrected p-value: %.6g\n", resp.MinFWEP)
	} else {
		fmt.Println("permutation testing skipped, model fit outputs only")
	}
	fmt.Printf("finished in %d ms, outputs under prefix %s\n", resp.RuntimeMs, output)

	if opts.report {
		hyps, err := hypotheses.ReadHypotheses(ctx, resp.Factors)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		rep, err := report.NewBuilder(0).Build(resp.Result, hyps)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		path := output + "report.md"
		if err := os.WriteFile(path, rep.Markdown(), 0o644); err != nil {
			return fmt.Errorf("report: %w", err)
		}
		fmt.Printf("report written to %s\n", path)
	}
	return nil
}

// newDesignReader picks the reader for the design input. Spreadsheets go
// through the table adapter, as does any file when --factor selections
// require headers; plain numeric text loads directly. Element-wise
// columns apply either way.
func newDesignReader(path string, columns []matrixfile.ColumnSpec, factors []string) ports.DesignReader {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" || ext == ".xls" || len(factors) > 0 {
		return matrixfile.WithColumns(excel.NewDesignSheet(path, factors...), columns)
	}
	return matrixfile.NewDesignFile(path, columns)
}

func parseColumns(specs []string) ([]matrixfile.ColumnSpec, error) {
	cols := make([]matrixfile.ColumnSpec, 0, len(specs))
	for _, spec := range specs {
		name, path, found := strings.Cut(spec, "=")
		if !found {
			cols = append(cols, matrixfile.ColumnSpec{Path: spec})
			continue
		}
		if name == "" || path == "" {
			return nil, fmt.Errorf("invalid column %q, want name=subject-list or a bare path", spec)
		}
		cols = append(cols, matrixfile.ColumnSpec{Name: name, Path: path})
	}
	return cols, nil
}

func newGenCmd() *cobra.Command {
	cfg := testkit.DefaultCohortConfig()

	cmd := &cobra.Command{
		Use:   "gen [dir]",
		Short: "Generate a synthetic cohort with planted group effects",
		Long: `Write a complete input set for a trial run: per-subject connectome
matrices, the subject list, a design matrix with intercept, group and age
columns, and t plus F contrast files.

Example: edgestat gen ./trial --subjects 32 --nodes 8 --effect-size 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGen(args[0], cfg)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.Subjects, "subjects", cfg.Subjects, "Number of subjects")
	flags.IntVar(&cfg.Nodes, "nodes", cfg.Nodes, "Nodes per connectome matrix")
	flags.Float64Var(&cfg.GroupSplit, "group-split", cfg.GroupSplit, "Fraction of subjects in group zero")
	flags.IntVar(&cfg.EffectEdges, "effect-edges", cfg.EffectEdges, "Edges carrying the planted group effect")
	flags.Float64Var(&cfg.EffectSize, "effect-size", cfg.EffectSize, "Planted effect in units of the noise scale")
	flags.Float64Var(&cfg.Baseline, "baseline", cfg.Baseline, "Mean edge weight before noise and effects")
	flags.Float64Var(&cfg.Noise, "noise", cfg.Noise, "Noise standard deviation")
	flags.Float64Var(&cfg.MissingRate, "missing-rate", cfg.MissingRate, "Fraction of values replaced with NaN")
	flags.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")

	return cmd
}

func runGen(dir string, cfg testkit.CohortConfig) error {
	gen, err := testkit.NewCohortGenerator(cfg)
	if err != nil {
		return err
	}
	fs, err := gen.WriteFiles(dir)
	if err != nil {
		return err
	}

	fmt.Printf("cohort written to %s\n", dir)
	fmt.Printf("  subject list: %s\n", fs.CohortList)
	fmt.Printf("  design:       %s\n", fs.Design)
	fmt.Printf("  contrasts:    %s\n", fs.Contrasts)
	fmt.Printf("  f-tests:      %s\n", fs.FTests)

	for _, edge := range gen.PlantedEdges() {
		s, err := gen.Summarise(edge)
		if err != nil {
			return err
		}
		fmt.Printf("planted edge %d: group means %.3f vs %.3f, observed effect %.3f\n",
			s.Edge, s.Group0Mean, s.Group1Mean, s.ObservedEffect)
	}

	fmt.Printf("\ntry: edgestat run %s tfce %s %s %s\n",
		fs.CohortList, fs.Design, fs.Contrasts, filepath.Join(dir, "out_"))
	return nil
}

func newReportCmd() *cobra.Command {
	var (
		databaseURL string
		format      string
		topEdges    int
	)

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Render the report for a stored run",
		Long: `Load a finished run from the database and render its report to stdout.

Example: edgestat report 550e8400-e29b-41d4-a716-446655440000 --format html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), args[0], databaseURL, format, topEdges)
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres URL holding stored runs")
	cmd.Flags().StringVar(&format, "format", "md", "Output format: md, html or json")
	cmd.Flags().IntVar(&topEdges, "top", 0, "Edges listed per hypothesis, 0 for the default")

	return cmd
}

func runReport(ctx context.Context, idStr, databaseURL, format string, topEdges int) error {
	if databaseURL == "" {
		return fmt.Errorf("no database URL, set --database-url or DATABASE_URL")
	}
	id, err := core.ParseRunID(idStr)
	if err != nil {
		return err
	}

	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	res, err := postgres.NewRunRepository(db).GetResult(ctx, id)
	if err != nil {
		return err
	}
	// Stored runs keep hypothesis names only, so the report omits the
	// contrast kind and parametric columns.
	rep, err := report.NewBuilder(topEdges).Build(res, nil)
	if err != nil {
		return err
	}

	switch format {
	case "md", "markdown":
		_, err = os.Stdout.Write(rep.Markdown())
	case "html":
		_, err = os.Stdout.Write(report.ToHTML(rep.Markdown()))
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(rep)
	default:
		return fmt.Errorf("unknown format %q, want md, html or json", format)
	}
	return err
}
