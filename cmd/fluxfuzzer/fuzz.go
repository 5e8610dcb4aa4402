package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fluxfuzzer/fluxfuzzer/internal/cluster"
	"github.com/fluxfuzzer/fluxfuzzer/internal/coverage"
	"github.com/fluxfuzzer/fluxfuzzer/internal/executor"
	"github.com/fluxfuzzer/fluxfuzzer/internal/fuzzlog"
	"github.com/fluxfuzzer/fluxfuzzer/internal/mutator"
	"github.com/spf13/cobra"
)

// fuzzFlags mirrors AFL's classic single-letter flag surface: -i/-o for the
// corpus directories, -t/-m for per-run limits, -s for a PRNG seed
// (accepted but not read: mutation and scheduling draw from crypto/rand, so
// runs are not reproducible), -M/-S for parallel instance naming, -p for the
// power schedule, -x
// for a dictionary file, and a trailing "--" separating fluxfuzzer's own
// flags from the target's argv.
type fuzzFlags struct {
	inputDir   string
	outputDir  string
	timeoutStr string
	memLimitMB int
	seed       int64
	master     string
	slave      string
	schedule   string
	dictPath   string
	httpURL    string
	wsURL      string
	ignoreFinds bool
	jsonLog    bool
	syncDir    string
}

func newFuzzCmd() *cobra.Command {
	f := &fuzzFlags{}
	cmd := &cobra.Command{
		Use:   "fuzz -- target [args...]",
		Short: "Run the coverage-guided fuzzing engine against a target",
		Long: `fuzz drives the AFL-family coverage-guided feedback loop: it
schedules entries from the input corpus, mutates them through the
deterministic and havoc stages, runs the target, and retains inputs that
expose new coverage, crashes, or hangs.

The target is either a subprocess argv given after "--" (with "@@"
substituted for a per-run input file path, or stdin if no "@@" is present),
or a persistent-mode HTTP/WebSocket endpoint given via --http-url/--ws-url.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFuzz(cmd.Context(), f, args)
		},
	}

	cmd.Flags().StringVarP(&f.inputDir, "input", "i", "", "Seed corpus directory")
	cmd.Flags().StringVarP(&f.outputDir, "output", "o", "", "Output directory (queue/crashes/hangs)")
	cmd.Flags().StringVarP(&f.timeoutStr, "timeout", "t", "1000", "Per-run timeout (ms, or a Go duration like 500ms)")
	cmd.Flags().IntVarP(&f.memLimitMB, "mem-limit", "m", 256, "Per-run memory limit in MB (advisory, forwarded to forked targets as FLUXFUZZER_MEM_LIMIT)")
	cmd.Flags().Int64VarP(&f.seed, "seed", "s", 0, "PRNG seed (accepted but not used; mutation always draws from crypto/rand)")
	cmd.Flags().StringVarP(&f.master, "master", "M", "", "Run as the -M master instance of a parallel fuzzing group")
	cmd.Flags().StringVarP(&f.slave, "slave", "S", "", "Run as an -S secondary instance of a parallel fuzzing group")
	cmd.Flags().StringVarP(&f.schedule, "schedule", "p", "fast", "Power schedule: fast|coe|explore|lin|quad|exploit|kscheduler")
	cmd.Flags().StringVarP(&f.dictPath, "dict", "x", "", "Dictionary file (-x)")
	cmd.Flags().StringVar(&f.httpURL, "http-url", "", "Persistent-mode HTTP target URL, instead of a forked subprocess")
	cmd.Flags().StringVar(&f.wsURL, "ws-url", "", "Persistent-mode WebSocket target URL, instead of a forked subprocess")
	cmd.Flags().BoolVarP(&f.ignoreFinds, "ignore-finds", "d", false, "Disable the splicing stage (deterministic stages still run)")
	cmd.Flags().BoolVar(&f.jsonLog, "json-log", false, "Emit structured logs as JSON instead of text")
	cmd.Flags().StringVar(&f.syncDir, "sync-dir", "", "Shared directory for -M/-S seed exchange (defaults to <output>/sync)")

	return cmd
}

func runFuzz(ctx context.Context, f *fuzzFlags, argv []string) error {
	if f.inputDir == "" || f.outputDir == "" {
		return fmt.Errorf("fuzz: -i and -o are required")
	}
	if f.master != "" && f.slave != "" {
		return fmt.Errorf("fuzz: -M and -S are mutually exclusive")
	}

	timeout, err := executor.ParseTimeout(f.timeoutStr)
	if err != nil {
		return fmt.Errorf("fuzz: invalid -t value: %w", err)
	}

	log := fuzzlog.New(fuzzlog.Options{JSON: f.jsonLog}).WithRun(f.outputDir, targetDescription(f, argv))

	exec, err := buildExecutor(f, argv, timeout)
	if err != nil {
		return err
	}

	corpus := coverage.NewCorpus(f.outputDir)
	if err := seedCorpus(corpus, f.inputDir); err != nil {
		return fmt.Errorf("fuzz: %w", err)
	}
	if corpus.Len() == 0 {
		return fmt.Errorf("fuzz: no seeds found in %s", f.inputDir)
	}

	if instance := f.master + f.slave; instance != "" {
		syncDir := f.syncDir
		if syncDir == "" {
			syncDir = filepath.Join(f.outputDir, "sync")
		}
		sm, err := cluster.NewSyncManager(syncDir, instance, corpus, 5*time.Second)
		if err != nil {
			return fmt.Errorf("fuzz: %w", err)
		}
		go sm.Run(ctx)
	}

	registry := mutator.NewRegistry()
	mutator.RegisterAFLMutators(registry)
	log.DebugContext(ctx, "mutation primitives registered", "count", registry.Count(), "names", strings.Join(registry.Names(), ","))

	dict := mutator.NewDictionary()
	if f.dictPath != "" {
		if err := dict.LoadFile(f.dictPath); err != nil {
			return fmt.Errorf("fuzz: loading dictionary: %w", err)
		}
	}

	virgins := coverage.NewVirginMaps(coverage.MapSize)
	triager := coverage.NewTriager(f.outputDir, virgins, 30*time.Second)

	var sched coverage.Scheduler
	counters := coverage.NewCounters()
	schedule := coverage.Schedule(strings.ToLower(f.schedule))
	switch schedule {
	case coverage.ScheduleFast, coverage.ScheduleCOE, coverage.ScheduleExplore,
		coverage.ScheduleLin, coverage.ScheduleQuad, coverage.ScheduleExploit:
		sched = coverage.NewFIFOScheduler()
	case "kscheduler":
		sched = coverage.NewKScheduler(func(tc *coverage.TestCase) float64 {
			entries := corpus.Entries()
			avg := coverage.ComputeGlobalAverages(entries, counters)
			hits := int(counters.NFuzzHits(tc.NFuzzEntry))
			return coverage.DefaultWeight(tc, hits, avg, coverage.AverageTCRef(entries))
		})
		// FeedbackLoop's energy stage scales ComputeEnergy's result by
		// KSchedulerFilter.Energy for this scheduler; use the exploit factor
		// for ComputeEnergy's own scaling.
		schedule = coverage.ScheduleExploit
	default:
		return fmt.Errorf("fuzz: unknown -p schedule %q", f.schedule)
	}

	source := &mutatorSource{dict: dict, havoc: mutator.NewMOptSelector(len(mutator.GetInteresting8())+34, 5000)}

	loop := coverage.NewFeedbackLoop(corpus, sched, exec, source, triager, virgins)
	loop.Counters = counters
	loop.Schedule = schedule
	loop.IgnoreFinds = f.ignoreFinds

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		loop.Stop()
	}()

	fmt.Printf("  [*] fuzzing %s, corpus=%d seeds, schedule=%s\n", targetDescription(f, argv), corpus.Len(), schedule)

	for !loop.StopRequested() {
		ran, err := loop.RunOnce(ctx)
		if err != nil {
			log.Broken(ctx, -1)
			return fmt.Errorf("fuzz: control loop: %w", err)
		}
		if !ran {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	fmt.Printf("\n  [*] stopped. queued_paths=%d unique_crashes=%d unique_hangs=%d total_execs=%d\n",
		loop.Counters.QueuedPaths, loop.Counters.UniqueCrashes, loop.Counters.UniqueHangs, loop.Counters.TotalExecs)
	return nil
}

func targetDescription(f *fuzzFlags, argv []string) string {
	switch {
	case f.httpURL != "":
		return f.httpURL
	case f.wsURL != "":
		return f.wsURL
	case len(argv) > 0:
		return strings.Join(argv, " ")
	default:
		return "<unset>"
	}
}

func buildExecutor(f *fuzzFlags, argv []string, timeout time.Duration) (coverage.Executor, error) {
	switch {
	case f.httpURL != "":
		return executor.NewHTTPExecutor(executor.HTTPExecutorConfig{URL: f.httpURL, Timeout: timeout}), nil
	case f.wsURL != "":
		return executor.NewWebSocketExecutor(executor.WebSocketExecutorConfig{URL: f.wsURL, Timeout: timeout}), nil
	case len(argv) > 0:
		fe := executor.NewForkExecutor(argv, timeout, f.outputDir)
		fe.Env = append(fe.Env, fmt.Sprintf("FLUXFUZZER_MEM_LIMIT=%d", f.memLimitMB))
		return fe, nil
	default:
		return nil, fmt.Errorf("fuzz: no target given (pass argv after \"--\", or --http-url/--ws-url)")
	}
}

func seedCorpus(corpus *coverage.Corpus, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		corpus.AddSeed(path, data)
	}
	return nil
}

// mutatorSource adapts internal/mutator's deterministic/havoc/splice stage
// drivers to coverage.MutationSource, translating mutator.StageMutation
// into coverage.Mutation. This is the one place the two packages' otherwise
// independent dependency graphs meet.
type mutatorSource struct {
	dict  *mutator.Dictionary
	havoc mutator.HavocSelector
}

func (s *mutatorSource) Deterministic(ctx context.Context, base []byte, passedDet bool) <-chan coverage.Mutation {
	out := make(chan coverage.Mutation, 16)
	go func() {
		defer close(out)
		for m := range mutator.DeterministicStage(base, s.dict) {
			select {
			case <-ctx.Done():
				return
			case out <- adaptMutation(m):
			}
		}
	}()
	return out
}

func (s *mutatorSource) Havoc(ctx context.Context, base []byte, iterations int) <-chan coverage.Mutation {
	out := make(chan coverage.Mutation, 16)
	go func() {
		defer close(out)
		for m := range mutator.HavocStage(base, s.dict, s.havoc, iterations, true) {
			select {
			case <-ctx.Done():
				return
			case out <- adaptMutation(m):
			}
		}
	}()
	return out
}

func (s *mutatorSource) Splice(ctx context.Context, base []byte, other []byte, iterations int) <-chan coverage.Mutation {
	out := make(chan coverage.Mutation, 16)
	go func() {
		defer close(out)
		for m := range mutator.SpliceStage(base, other, s.dict, s.havoc, iterations, true) {
			select {
			case <-ctx.Done():
				return
			case out <- adaptMutation(m):
			}
		}
	}()
	return out
}

func adaptMutation(m mutator.StageMutation) coverage.Mutation {
	return coverage.Mutation{
		Data:   m.Data,
		Stage:  m.Stage,
		Pos:    m.Pos,
		HasPos: m.HasPos,
	}
}
