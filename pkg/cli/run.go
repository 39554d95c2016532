package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devicelab-dev/keyflow/pkg/core"
	"github.com/devicelab-dev/keyflow/pkg/logger"
	"github.com/devicelab-dev/keyflow/pkg/session"
	"github.com/devicelab-dev/keyflow/pkg/stream"
	"github.com/devicelab-dev/keyflow/pkg/suite"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run keyword suite files",
	ArgsUsage: "<suite.yaml>...",
	Description: `Run one or more suite files. Each suite gets its own session; the
entry module executes and every keyword's outcome streams to the console.

Examples:
  keyflow run checkout.yaml
  keyflow run suites/ --trace traces/run.jsonl
  keyflow run login.yaml -e USER=alice`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Extra variables (KEY=VALUE), bound before the entry module runs",
		},
		&cli.StringFlag{
			Name:  "trace",
			Usage: "Append terminal execution records to this JSONL file",
		},
	},
	Action: runSuites,
}

func runSuites(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("run requires at least one suite file or directory", 1)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer logger.Sync()

	manager, err := session.NewManager(cfg, nil, logger.L())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer manager.Shutdown()

	suites, err := validateSuites(manager, c.Args().Slice())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	extra, err := parseEnvVars(c.StringSlice("env"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	var trace *stream.TraceWriter
	if path := c.String("trace"); path != "" {
		trace, err = stream.NewTraceWriter(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("open trace file: %v", err), 1)
		}
		defer trace.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := 0
	for i, st := range suites {
		fmt.Printf("\n  %s[%d/%d]%s %s%s%s (%s)\n",
			color(colorCyan), i+1, len(suites), color(colorReset),
			color(colorBold), st.Name, color(colorReset), st.SourcePath)
		fmt.Println(strings.Repeat("─", 60))

		if err := runSuite(ctx, manager, st, extra, trace); err != nil {
			failed++
			fmt.Printf("%s✗ %s%s %s\n", color(colorRed), color(colorReset), st.Name, err)
		} else {
			fmt.Printf("%s✓ %s%s\n", color(colorGreen), color(colorReset), st.Name)
		}
		if ctx.Err() != nil {
			return cli.Exit("interrupted", 130)
		}
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d suites failed", failed, len(suites)), 1)
	}
	return nil
}

func runSuite(ctx context.Context, manager *session.Manager, st *suite.Suite, extra map[string]interface{}, trace *stream.TraceWriter) error {
	sess, err := manager.Create(ctx, nil)
	if err != nil {
		return err
	}
	defer manager.Terminate(sess.ID())

	sess.LoadSuite(st)
	sess.Vars().SetAll(extra)

	events, unsubscribe := sess.Events()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			if ev.Type != stream.EventRecord {
				continue
			}
			printRecord(ev.Record)
			trace.Observe(ev.Record)
		}
	}()

	rec, err := sess.RunEntry(ctx)
	unsubscribe()
	wg.Wait()

	if err != nil {
		return err
	}
	if rec.Status == core.StatusFail {
		logger.L().Warn("suite failed",
			zap.String("suite", st.Name),
			zap.String("error", rec.Error))
		return fmt.Errorf("%s", firstLine(rec.Error))
	}
	return nil
}

func printRecord(rec *core.ExecutionRecord) {
	durStr := rec.Duration.Round(time.Millisecond).String()
	if rec.Status == core.StatusSuccess {
		fmt.Printf("    %s✓%s %s %s(%s)%s\n",
			color(colorGreen), color(colorReset), rec.Keyword,
			color(colorGray), durStr, color(colorReset))
		return
	}
	fmt.Printf("    %s✗%s %s (%s)\n", color(colorRed), color(colorReset), rec.Keyword, durStr)
	if rec.Error != "" {
		fmt.Printf("      %s╰─%s %s\n", color(colorGray), color(colorReset), firstLine(rec.Error))
	}
}

func parseEnvVars(pairs []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("bad -e value %q, want KEY=VALUE", pair)
		}
		out[key] = value
	}
	return out, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
