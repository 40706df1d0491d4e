package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kubefit/kubefit/internal/collect"
	"github.com/kubefit/kubefit/internal/config"
	"github.com/kubefit/kubefit/internal/engine"
	"github.com/kubefit/kubefit/internal/export"
	"github.com/kubefit/kubefit/internal/kube"
	"github.com/kubefit/kubefit/internal/metrics"
	"github.com/kubefit/kubefit/internal/render"
	"github.com/kubefit/kubefit/internal/report"
	"github.com/kubefit/kubefit/internal/util"
	"github.com/kubefit/kubefit/internal/watch"
)

var analyzeConfig struct {
	prometheusURL     string
	prometheusService string
	prometheusNS      string
	localPort         int
	clustersFile      string
	clusterName       string
	environment       string
	project           string
	window            string
	namespaces        []string
	excludeNamespaces []string
	exportFile        string
	exportTimestamp   bool
	silent            bool
	tui               bool
	failOnFindings    bool
	workers           int
	timeout           string

	watch         bool
	watchInterval string
	maxIterations int
	alertNewOnly  bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze cluster capacity and produce recommendations",
	Long: `Analyze collects pod and node usage, sizes every workload against
its observed percentiles, judges cluster-level node capacity, attributes
fragmentation, and checks HPAs for misalignment.

With --clusters, every cluster in the inventory file is analyzed in
sequence and a report is written per cluster. Without it, a single
cluster is analyzed from the flags.

Prometheus is the preferred metrics source. When it is unreachable the
analysis degrades to a metrics-server snapshot; single samples never
satisfy the observation window, so such runs mark everything
insufficient instead of recommending from thin data.`,
	Example: `  # Single cluster against a local Prometheus
  kubefit analyze --prometheus-url http://localhost:9090

  # Whole fleet from an inventory file, reports per cluster
  kubefit analyze --clusters clusters.yaml --export-file reports/report.json

  # CI gate: non-zero exit when anything needs fixing
  kubefit analyze --prometheus-url http://prom:9090 --silent --fail-on-findings`,
	Run: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeConfig.prometheusURL, "prometheus-url", "", "Prometheus server URL (falls back to metrics-server when empty or unreachable)")
	analyzeCmd.Flags().StringVar(&analyzeConfig.prometheusService, "prometheus-service", "", "port-forward this in-cluster Prometheus service instead of using a URL")
	analyzeCmd.Flags().StringVar(&analyzeConfig.prometheusNS, "prometheus-namespace", "monitoring", "namespace of --prometheus-service")
	analyzeCmd.Flags().IntVar(&analyzeConfig.localPort, "local-port", 9090, "local port for the --prometheus-service forward")
	analyzeCmd.Flags().StringVar(&analyzeConfig.clustersFile, "clusters", "", "cluster inventory file; analyzes every cluster in sequence")
	analyzeCmd.Flags().StringVar(&analyzeConfig.clusterName, "cluster", "", "cluster name recorded in the report")
	analyzeCmd.Flags().StringVar(&analyzeConfig.environment, "environment", "", "sizing policy environment: prod or nonprod (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeConfig.project, "project", "", "project name recorded in the report")
	analyzeCmd.Flags().StringVar(&analyzeConfig.window, "window", "", "metrics window, e.g. 15m, 24h (default from config)")
	analyzeCmd.Flags().StringSliceVarP(&analyzeConfig.namespaces, "namespace", "n", nil, "restrict analysis to these namespaces")
	analyzeCmd.Flags().StringSliceVar(&analyzeConfig.excludeNamespaces, "exclude-namespace", nil, "namespaces to skip")
	analyzeCmd.Flags().StringVar(&analyzeConfig.exportFile, "export-file", "", "write the report to a file (.json or .md)")
	analyzeCmd.Flags().BoolVar(&analyzeConfig.exportTimestamp, "export-timestamp", false, "append a run timestamp to the export file name")
	analyzeCmd.Flags().BoolVar(&analyzeConfig.silent, "silent", false, "suppress terminal output; only write the export file")
	analyzeCmd.Flags().BoolVar(&analyzeConfig.tui, "tui", false, "show live progress while analyzing")
	analyzeCmd.Flags().BoolVar(&analyzeConfig.failOnFindings, "fail-on-findings", false, "exit 1 when any recommendation is produced")
	analyzeCmd.Flags().IntVar(&analyzeConfig.workers, "workers", 0, "profiling concurrency (0 = default)")
	analyzeCmd.Flags().StringVar(&analyzeConfig.timeout, "timeout", "30s", "per-query Prometheus timeout")

	analyzeCmd.Flags().BoolVar(&analyzeConfig.watch, "watch", false, "re-run the analysis on an interval and report finding changes")
	analyzeCmd.Flags().StringVar(&analyzeConfig.watchInterval, "watch-interval", "5m", "interval between watch iterations")
	analyzeCmd.Flags().IntVar(&analyzeConfig.maxIterations, "max-iterations", 0, "stop watching after this many iterations (0 = forever)")
	analyzeCmd.Flags().BoolVar(&analyzeConfig.alertNewOnly, "alert-new-only", false, "in watch mode, print only new findings")
}

func runAnalyze(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		util.ExitWithError(util.ExitInvalidInput, "Invalid configuration: %v", err)
	}
	if analyzeConfig.environment != "" {
		cfg.Environment = analyzeConfig.environment
		if err := cfg.Validate(); err != nil {
			util.ExitWithError(util.ExitInvalidInput, "Invalid configuration: %v", err)
		}
	}

	window := cfg.MetricsWindow
	if analyzeConfig.window != "" {
		window, err = metrics.ParseDuration(analyzeConfig.window)
		if err != nil {
			util.ExitWithError(util.ExitInvalidInput, "Invalid --window: %v", err)
		}
	}

	timeout, err := time.ParseDuration(analyzeConfig.timeout)
	if err != nil {
		util.ExitWithError(util.ExitInvalidInput, "Invalid --timeout: %v", err)
	}

	targets, err := analysisTargets(cfg)
	if err != nil {
		util.ExitWithError(util.ExitInvalidInput, "%v", err)
	}

	ctx := context.Background()

	if analyzeConfig.watch {
		runWatch(ctx, targets, cfg, window, timeout)
		return
	}

	findings := 0
	for _, target := range targets {
		rep, err := analyzeCluster(ctx, target, cfg, window, timeout)
		if err != nil {
			util.ExitWithError(util.ExitRuntimeError, "Analysis of %s failed: %v", target.Name, err)
		}
		findings += rep.Summary.TotalRecommendations

		if !analyzeConfig.silent && !analyzeConfig.tui {
			render.New(os.Stdout).Print(rep)
		}

		if analyzeConfig.exportFile != "" {
			path := exportPathFor(target.Name, len(targets) > 1, time.Now())
			if err := writeReport(rep, path); err != nil {
				util.ExitWithError(util.ExitRuntimeError, "Export failed: %v", err)
			}
			if !analyzeConfig.silent {
				fmt.Fprintf(os.Stderr, "Report written to %s\n", path)
			}
		}
	}

	if analyzeConfig.failOnFindings && findings > 0 {
		util.Exit(util.ExitPolicyFail)
	}
}

// runWatch loops the analysis over every target. Watch mode is terminal
// output only; exports and TUI are single-run concerns.
func runWatch(ctx context.Context, targets []target, cfg config.Config, window, timeout time.Duration) {
	interval, err := metrics.ParseDuration(analyzeConfig.watchInterval)
	if err != nil {
		util.ExitWithError(util.ExitInvalidInput, "Invalid --watch-interval: %v", err)
	}
	if len(targets) != 1 {
		util.ExitWithError(util.ExitInvalidInput, "--watch supports a single cluster target")
	}
	t := targets[0]
	// The per-run progress display does not compose with the loop.
	analyzeConfig.tui = false

	analyze := func(ctx context.Context) (report.Report, error) {
		return analyzeCluster(ctx, t, cfg, window, timeout)
	}
	wcfg := watch.Config{
		Interval:      interval,
		MaxIterations: analyzeConfig.maxIterations,
		AlertNewOnly:  analyzeConfig.alertNewOnly,
	}
	if err := watch.Run(ctx, analyze, wcfg, os.Stderr); err != nil {
		util.ExitWithError(util.ExitRuntimeError, "Watch failed: %v", err)
	}
}

// target is one cluster to analyze, resolved from flags or the inventory.
type target struct {
	Name              string
	PrometheusURL     string
	Environment       string
	Project           string
	ExcludeNamespaces []string
}

func analysisTargets(cfg config.Config) ([]target, error) {
	if analyzeConfig.clustersFile == "" {
		return []target{{
			Name:              analyzeConfig.clusterName,
			PrometheusURL:     analyzeConfig.prometheusURL,
			Environment:       cfg.Environment,
			Project:           analyzeConfig.project,
			ExcludeNamespaces: analyzeConfig.excludeNamespaces,
		}}, nil
	}

	clusters, err := config.LoadClusters(analyzeConfig.clustersFile)
	if err != nil {
		return nil, err
	}
	out := make([]target, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, target{
			Name:              c.Name,
			PrometheusURL:     c.PrometheusURL,
			Environment:       c.Environment,
			Project:           c.Project,
			ExcludeNamespaces: append(c.ExcludeNamespaces, analyzeConfig.excludeNamespaces...),
		})
	}
	return out, nil
}

func analyzeCluster(ctx context.Context, t target, cfg config.Config, window, timeout time.Duration) (report.Report, error) {
	cfg.Environment = t.Environment

	kubeClient, err := kube.BuildKubeClient(GetKubeconfig())
	if err != nil {
		return report.Report{}, err
	}

	prometheusURL := t.PrometheusURL
	if prometheusURL == "" && analyzeConfig.prometheusService != "" {
		restConfig, err := kube.BuildRestConfig(GetKubeconfig())
		if err != nil {
			return report.Report{}, err
		}
		tunnel := kube.NewTunnel(kubeClient, restConfig, analyzeConfig.prometheusNS, analyzeConfig.prometheusService, analyzeConfig.localPort, 9090)
		if err := tunnel.Open(ctx); err != nil {
			return report.Report{}, err
		}
		defer tunnel.Close()
		prometheusURL = tunnel.URL()
	}

	var provider metrics.Provider
	if prometheusURL != "" {
		client, err := metrics.NewPrometheusClient(metrics.Config{
			PrometheusURL: prometheusURL,
			Timeout:       timeout,
			Retry:         metrics.DefaultRetryPolicy(),
		})
		if err != nil {
			return report.Report{}, err
		}
		provider = client
	}

	// Snapshot fallback is best effort; without it a dead Prometheus
	// just yields an all-insufficient report.
	var snap *kube.Snapshotter
	if metricsClient, err := kube.BuildMetricsClient(GetKubeconfig()); err == nil {
		snap = kube.NewSnapshotter(metricsClient)
	}

	run := func(setPhase func(render.Phase)) (report.Report, error) {
		setPhase(render.PhaseDiscovering)
		collector := collect.New(kube.NewDiscoverer(kubeClient), provider, snap)
		in, err := collector.Assemble(ctx, cfg, collect.Options{
			Cluster:           t.Name,
			Environment:       t.Environment,
			Project:           t.Project,
			Namespaces:        analyzeConfig.namespaces,
			ExcludeNamespaces: t.ExcludeNamespaces,
			Window:            window,
			OnCollect:         func() { setPhase(render.PhaseCollecting) },
		})
		if err != nil {
			return report.Report{}, err
		}

		setPhase(render.PhaseAnalyzing)
		res := engine.Run(in, cfg, engine.Opts{Workers: analyzeConfig.workers})

		return report.Build(res, report.Meta{
			Cluster:        t.Name,
			Environment:    t.Environment,
			Project:        t.Project,
			AnalysisWindow: window.String(),
			GeneratedAt:    time.Now(),
			TotalHPAs:      len(in.HPAs),
		}), nil
	}

	if analyzeConfig.tui && !analyzeConfig.silent {
		return render.RunWithProgress(t.Name, run)
	}
	return run(func(render.Phase) {})
}

// exportPathFor derives a per-cluster file name when analyzing a fleet,
// and stamps the run time when --export-timestamp is set.
func exportPathFor(cluster string, multi bool, now time.Time) string {
	path := analyzeConfig.exportFile
	if multi && cluster != "" {
		if idx := strings.LastIndex(path, "."); idx > 0 {
			path = path[:idx] + "-" + cluster + path[idx:]
		} else {
			path = path + "-" + cluster
		}
	}
	if analyzeConfig.exportTimestamp {
		path = export.WithTimestamp(path, now)
	}
	return path
}

func writeReport(rep report.Report, path string) error {
	if export.DetectFormat(path) == export.FormatMarkdown {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		exporter := &export.Exporter{Format: export.FormatMarkdown}
		return exporter.Export(rep, f)
	}
	return report.Write(rep, path)
}
