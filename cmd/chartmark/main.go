package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/chartmark/internal/annotate"
	"github.com/dgnsrekt/chartmark/internal/app"
	"github.com/dgnsrekt/chartmark/internal/config"
	"github.com/dgnsrekt/chartmark/internal/controller"
)

var (
	verbose bool

	imagePath  string
	scriptPath string
	outPath    string
	outFormat  string
	width      int
	height     int

	notes string
	limit int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chartmark",
		Short: "Annotate chart images and ask for trade verdicts",
		Long: `chartmark draws trend lines and support/resistance rulers on chart images,
exports the annotated result, and sends it for a BUY/SELL/NEUTRAL verdict.

Examples:
  chartmark render --image btc.png --script lines.json --out btc_marked.png
  chartmark analyze btc_marked.png eth_marked.png
  chartmark history --limit 5`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "show debug logs")

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Replay a gesture script over an image and write the final export",
		Long: `Replays a JSON or YAML list of commands such as
  [{"op":"down","x":10,"y":200},{"op":"move","x":600,"y":80},{"op":"up"},
   {"op":"tool","tool":"snr"},{"op":"down","x":0,"y":300},{"op":"up"}]
and writes the last export.`,
		RunE: runRender,
	}
	renderCmd.Flags().StringVar(&imagePath, "image", "", "base chart image (empty for a blank surface)")
	renderCmd.Flags().StringVar(&scriptPath, "script", "", "gesture script (.json, .yaml)")
	renderCmd.Flags().StringVar(&outPath, "out", "chartmark_export.png", "output file")
	renderCmd.Flags().StringVar(&outFormat, "format", "", "export format: png, jpeg (default from CHARTMARK_EXPORT_FORMAT)")
	renderCmd.Flags().IntVar(&width, "width", 0, "surface width (0 uses the image width)")
	renderCmd.Flags().IntVar(&height, "height", 0, "surface height (0 uses the image height)")
	if err := renderCmd.MarkFlagRequired("script"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze <image>...",
		Short: "Request a verdict for each image and record it in the history",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().StringVar(&notes, "notes", "", "note stored with each snapshot")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded verdicts, newest first",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&limit, "limit", 0, "show at most n entries (0 for all)")

	rootCmd.AddCommand(renderCmd, analyzeCmd, historyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServer()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if outFormat == "" {
		outFormat = cfg.ExportFormat
	}
	format, err := annotate.ParseFormat(outFormat)
	if err != nil {
		return err
	}

	script, err := loadScript(scriptPath)
	if err != nil {
		return err
	}

	w, h := width, height
	var surface *annotate.Surface
	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		img, _, err := annotate.DecodeImage(data)
		if err != nil {
			return fmt.Errorf("decoding %s: %w", imagePath, err)
		}
		surface = annotate.NewSurface(img, w, h)
	} else {
		if w <= 0 {
			w = cfg.DefaultWidth
		}
		if h <= 0 {
			h = cfg.DefaultHeight
		}
		surface = annotate.NewSurface(nil, w, h)
	}

	exports := 0
	session := annotate.NewSession(surface,
		annotate.WithExporter(annotate.NewExporter(format, cfg.ExportQuality)),
		annotate.WithHitTolerance(cfg.HitTolerance),
		annotate.WithSink(annotate.ExportFunc(func(annotate.StillImage) { exports++ })),
	)
	for i, c := range script {
		if _, err := session.Apply(c); err != nil {
			return fmt.Errorf("script step %d: %w", i+1, err)
		}
	}

	img, err := session.LatestExport()
	if err != nil {
		return fmt.Errorf("exporting: %w", err)
	}
	if err := os.WriteFile(outPath, img.Data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}

	st := session.State()
	fmt.Printf("Wrote %s (%dx%d %s, export #%d, %d exports, %d shapes)\n\n",
		outPath, img.Width, img.Height, img.Format, img.Seq, exports, len(st.Shapes))
	if len(st.Shapes) == 0 {
		return nil
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"#", "Kind", "Start", "End", "Color"}),
	)
	for i, s := range st.Shapes {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			string(s.Kind),
			fmt.Sprintf("%.0f,%.0f", s.Points[0], s.Points[1]),
			fmt.Sprintf("%.0f,%.0f", s.Points[2], s.Points[3]),
			s.Color,
		})
	}
	table.Render()
	return nil
}

func loadScript(path string) ([]annotate.Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	var cmds []annotate.Command
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cmds)
	default:
		err = json.Unmarshal(data, &cmds)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing script %s: %w", path, err)
	}
	return cmds, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServer()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Debug("journal close failed", "error", err)
		}
	}()
	if !a.Gemini.Configured() {
		return fmt.Errorf("GEMINI_API_KEY is not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupted. Stopping analysis...")
		cancel()
	}()

	bar := progressbar.NewOptions(len(args),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Analyzing"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	type row struct {
		path string
		res  controller.AnalysisResult
		err  error
	}
	rows := make([]row, 0, len(args))
	start := time.Now()
	for i, path := range args {
		if ctx.Err() != nil {
			break
		}
		res, err := analyzeFile(ctx, a.Service, path)
		rows = append(rows, row{path: path, res: res, err: err})
		if err := bar.Set(i + 1); err != nil {
			slog.Debug("progress update failed", "error", err)
		}
	}
	if err := bar.Finish(); err != nil {
		slog.Debug("progress finish failed", "error", err)
	}
	fmt.Println()

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Image", "Signal", "Conf", "Entry", "TP", "SL", "R:R", "Note"}),
	)
	failed := 0
	for _, r := range rows {
		name := filepath.Base(r.path)
		if r.err != nil {
			failed++
			table.Append([]string{name, "-", "-", "-", "-", "-", "-", truncate(r.err.Error(), 45)})
			continue
		}
		v := r.res.Verdict
		rr := r.res.RiskReward
		if rr == "" {
			rr = "-"
		}
		table.Append([]string{
			name,
			string(v.Signal),
			fmt.Sprintf("%.0f%%", v.Confidence),
			v.Entry,
			v.TP,
			v.SL,
			rr,
			truncate(v.Reasoning, 45),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Printf("\nAnalyzed %d images in %s (%d failed)\n", len(rows), time.Since(start).Round(time.Second), failed)
	return nil
}

func analyzeFile(ctx context.Context, svc *controller.Service, path string) (controller.AnalysisResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return controller.AnalysisResult{}, err
	}
	info, err := svc.CreateCanvasFromBytes(ctx, data, 0, 0, path)
	if err != nil {
		return controller.AnalysisResult{}, err
	}
	defer func() {
		if err := svc.DeleteCanvas(ctx, info.ID); err != nil {
			slog.Debug("canvas cleanup failed", "canvas_id", info.ID, "error", err)
		}
	}()
	return svc.Analyze(ctx, info.ID, notes)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServer()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Debug("journal close failed", "error", err)
		}
	}()

	entries, err := a.Service.ListHistory(context.Background())
	if err != nil {
		return err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if len(entries) == 0 {
		fmt.Println("No analyses recorded.")
		return nil
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"When", "ID", "Signal", "Conf", "Entry", "TP", "SL", "R:R"}),
	)
	for _, e := range entries {
		rr := "-"
		if d, ok := e.Verdict.RiskReward(); ok {
			rr = d.String()
		}
		table.Append([]string{
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			shortID(e.ID),
			string(e.Verdict.Signal),
			fmt.Sprintf("%.0f%%", e.Verdict.Confidence),
			e.Verdict.Entry,
			e.Verdict.TP,
			e.Verdict.SL,
			rr,
		})
	}
	return table.Render()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
