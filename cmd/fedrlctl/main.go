package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"fedrl/internal/storage"
	fedapi "fedrl/pkg/fedrl"
)

const exportsDir = "exports"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	case "rewards":
		return runRewards(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: fedrlctl <init|run|runs|history|rewards|export> [flags]", msg)
}

func newClient(storeKind, dbPath string) (*fedapi.Client, error) {
	return fedapi.New(fedapi.Options{
		StoreKind:  storeKind,
		DBPath:     dbPath,
		ExportsDir: exportsDir,
	})
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "fedrl.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}
	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	strategy := fs.String("strategy", "fedavg", "federation strategy: fedavg|fedavg-reward|pbt")
	agents := fs.Int("agents", 4, "population size")
	iterations := fs.Int("iterations", 50, "training iteration count")
	interval := fs.Int("interval", 5, "federation interval in iterations")
	quantile := fs.Float64("quantile", 0.25, "quantile fraction for low/high bands")
	temperature := fs.Float64("temperature", 1.0, "base softmax temperature")
	temperatureDecay := fs.Float64("temperature-decay", 0.0, "temperature decay rate (0 disables)")
	seed := fs.Int64("seed", 1, "rng seed")
	chainLength := fs.Int("chain-length", 15, "chain walk environment length")
	slip := fs.Float64("slip", 0.0, "chain walk slip probability")
	episodes := fs.Int("episodes", 8, "episodes per training iteration")
	maxSteps := fs.Int("max-steps", 50, "max steps per episode")
	learningRate := fs.Float64("lr", 0.5, "initial learning rate")
	gamma := fs.Float64("gamma", 0.95, "discount factor")
	epsilon := fs.Float64("epsilon", 0.1, "epsilon-greedy exploration rate")
	entropyCoeff := fs.Float64("entropy-coeff", 0.0, "entropy coefficient hyperparameter")
	exploreFlag := fs.Bool("explore", false, "perturb hyperparameters after federation iterations")
	resampleProbability := fs.Float64("resample-probability", 0.25, "hyperparameter resample probability")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "fedrl.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultRunRequest(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		req = fedapi.RunRequest{
			Strategy:             *strategy,
			Agents:               *agents,
			Iterations:           *iterations,
			Interval:             *interval,
			Quantile:             *quantile,
			Temperature:          *temperature,
			TemperatureDecay:     *temperatureDecay,
			Seed:                 *seed,
			ChainLength:          *chainLength,
			Slip:                 *slip,
			EpisodesPerIteration: *episodes,
			MaxStepsPerEpisode:   *maxSteps,
			LearningRate:         *learningRate,
			Gamma:                *gamma,
			Epsilon:              *epsilon,
			EntropyCoeff:         *entropyCoeff,
			Explore:              *exploreFlag,
			ResampleProbability:  *resampleProbability,
		}
	} else {
		overrideFromFlags(&req, setFlags, map[string]any{
			"strategy":             *strategy,
			"agents":               *agents,
			"iterations":           *iterations,
			"interval":             *interval,
			"quantile":             *quantile,
			"temperature":          *temperature,
			"temperature-decay":    *temperatureDecay,
			"seed":                 *seed,
			"chain-length":         *chainLength,
			"slip":                 *slip,
			"episodes":             *episodes,
			"max-steps":            *maxSteps,
			"lr":                   *learningRate,
			"gamma":                *gamma,
			"epsilon":              *epsilon,
			"entropy-coeff":        *entropyCoeff,
			"explore":              *exploreFlag,
			"resample-probability": *resampleProbability,
		})
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("run completed run_id=%s strategy=%s agents=%d iterations=%d seed=%d\n",
		summary.RunID, summary.Strategy, summary.NumAgents, summary.Iterations, req.Seed)
	for i, mean := range summary.RewardHistory {
		fmt.Printf("iteration=%d reward_mean=%.6f\n", i+1, mean)
	}
	fmt.Printf("final_reward_mean=%.6f final_reward_best=%.6f timesteps=%s\n",
		summary.FinalRewardMean, summary.FinalRewardBest, humanize.Comma(summary.TimestepsTotal))
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "fedrl.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, fedapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	for _, item := range runs {
		fmt.Printf("run_id=%s created_at=%s strategy=%s agents=%d iterations=%d final_reward_mean=%.6f final_reward_best=%.6f timesteps=%s\n",
			item.RunID,
			item.CreatedAtUTC,
			item.Strategy,
			item.NumAgents,
			item.Iterations,
			item.FinalRewardMean,
			item.FinalRewardBest,
			humanize.Comma(item.TimestepsTotal),
		)
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show history for the most recent run")
	limit := fs.Int("limit", 50, "max iterations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit history as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "fedrl.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("history requires --run-id or --latest")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.History(ctx, fedapi.HistoryRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no iteration history")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}

	for _, item := range history {
		rewardDisplay := "n/a"
		bestDisplay := "n/a"
		if item.HasRewardSignal {
			rewardDisplay = fmt.Sprintf("%.6f", item.RewardMean)
			bestDisplay = fmt.Sprintf("%.6f", item.RewardBest)
		}
		fmt.Printf("iteration=%d federated=%q reward_mean=%s reward_best=%s temperature=%.4f timesteps=%s\n",
			item.Iteration,
			item.Federated,
			rewardDisplay,
			bestDisplay,
			item.Temperature,
			humanize.Comma(item.TimestepsTotal),
		)
	}
	return nil
}

func runRewards(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rewards", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show reward history for the most recent run")
	limit := fs.Int("limit", 50, "max entries to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit reward history as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "fedrl.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("rewards requires --run-id or --latest")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.RewardHistory(ctx, fedapi.RewardHistoryRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no reward history")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}

	for i, mean := range history {
		fmt.Printf("entry=%d reward_mean=%.6f\n", i+1, mean)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out-dir", exportsDir, "output directory")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "fedrl.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, fedapi.ExportRequest{
		RunID:  *runID,
		Latest: *latest,
		OutDir: *outDir,
	})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
	return nil
}
