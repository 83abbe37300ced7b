package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/orderdesk/ttlcache/internal/cache"
	"github.com/orderdesk/ttlcache/internal/script"
	"github.com/orderdesk/ttlcache/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	replayWatch bool

	replayCmd = &cobra.Command{
		Use:   "replay [SCRIPT|-]",
		Short: "Replay a cache script against a simulated clock",
		Long: paragraph(fmt.Sprintf("\n%s a script of cache operations against a fresh store. "+
			"Time only moves on %s, so expiry and periodic sweeps are reproducible. "+
			"Files ending in .yml or .yaml are read as scenarios with their own cache settings.",
			keyword("Replay"), keyword("advance"))),
		Example: paragraph("ttlcache replay eviction.yml\nttlcache replay --max-size 2 steps.txt\nprintf 'set a 1 0\\nget a\\n' | ttlcache replay -"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runReplay,
	}
)

func init() {
	replayCmd.Flags().Int("max-size", cache.DefaultMaxSize, "maximum number of entries")
	replayCmd.Flags().String("default-ttl", cache.DefaultTTL.String(), "TTL for sets without one (duration or milliseconds)")
	replayCmd.Flags().String("cleanup-interval", cache.DefaultCleanupInterval.String(), "simulated sweep interval, 0 disables sweeps")
	replayCmd.Flags().Float64("pace", 0, "maximum operations per second (0 is unthrottled)")
	replayCmd.Flags().BoolVarP(&replayWatch, "watch", "w", false, "replay again whenever the script changes")

	_ = viper.BindPFlag("cache.max_size", replayCmd.Flags().Lookup("max-size"))
	_ = viper.BindPFlag("cache.default_ttl", replayCmd.Flags().Lookup("default-ttl"))
	_ = viper.BindPFlag("cache.cleanup_interval", replayCmd.Flags().Lookup("cleanup-interval"))
	_ = viper.BindPFlag("replay.pace", replayCmd.Flags().Lookup("pace"))
}

func runReplay(cmd *cobra.Command, args []string) error {
	path := "-"
	if len(args) == 1 && args[0] != "-" {
		path = utils.ExpandPath(args[0])
	}

	if path == "-" {
		if replayWatch {
			return errors.New("cannot watch stdin, pass a script file")
		}
		if term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec
			return errors.New("missing script: pass a file or pipe one to stdin")
		}
	}

	base, err := cacheConfig()
	if err != nil {
		return err
	}
	pace := viper.GetFloat64("replay.pace")

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	run := func() error {
		return replay(ctx, out, path, base, pace)
	}

	if replayWatch {
		log.Info("Watching script", "path", path)
		return script.Watch(ctx, path, log.Default(), run)
	}
	return run()
}

// replay loads the script at path and runs it once, writing results to w.
func replay(ctx context.Context, w io.Writer, path string, base *cache.Config, pace float64) error {
	sc, err := script.Load(path)
	if err != nil {
		return err
	}
	cfg, err := sc.Config(base)
	if err != nil {
		return fmt.Errorf("%s: %w", sc.Name, err)
	}

	runner, err := script.NewRunner(cfg, w, script.WithPace(pace), script.WithLogger(log.Default()))
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s max_size=%d default_ttl=%s cleanup_interval=%s\n",
		keyword(sc.Name), cfg.MaxSize, cfg.DefaultTTL, cfg.CleanupInterval)

	res, err := runner.Run(ctx, sc.Ops)
	if res != nil {
		fmt.Fprintf(w, "%d ops, %d rejected, %d failed expectations, simulated %s\n",
			res.Ops, res.Errors, len(res.Failures), runner.Elapsed())
		for _, f := range res.Failures {
			fmt.Fprintln(w, failure(f))
		}
	}
	if err != nil {
		return err
	}

	log.Debug("Replay finished", "script", sc.Name, "ops", res.Ops, "stats", runner.Store().Stats())
	return nil
}
