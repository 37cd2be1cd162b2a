package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kwv/meshdiff/mesh"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *mesh.Config
	Store      *mesh.ReportStore
	MQTTClient *mesh.MQTTClient
	Publisher  *mesh.Publisher
	Out        io.Writer

	// CLI Flags (effectively dependencies)
	ConfigFile     string
	ReferenceFile  string
	QueryFile      string
	Synthetic      string
	SyntheticSize  float64
	SyntheticCells int
	Offset         string
	RotateZ        float64
	OutputFile     string
	ReportFile     string
	RenderFormat   string
	ReportCache    string
	HttpPort       int
	MqttMode       bool
	HttpMode       bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{Out: os.Stdout}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.ReferenceFile = opts.ReferenceFile
	a.QueryFile = opts.QueryFile
	a.Synthetic = opts.Synthetic
	a.SyntheticSize = opts.SyntheticSize
	a.SyntheticCells = opts.SyntheticCells
	a.Offset = opts.Offset
	a.RotateZ = opts.RotateZ
	a.OutputFile = opts.OutputFile
	a.ReportFile = opts.ReportFile
	a.RenderFormat = opts.RenderFormat
	a.ReportCache = opts.ReportCache
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadConfig reads the config file. A missing default config.yaml is not an
// error; every setting then takes its default.
func (a *App) loadConfig() error {
	if a.Config != nil {
		return nil
	}
	config, err := mesh.LoadConfig(a.ConfigFile)
	if err != nil {
		if _, statErr := os.Stat(a.ConfigFile); os.IsNotExist(statErr) && a.ConfigFile == "config.yaml" {
			log.Printf("No config.yaml found, using defaults")
			def := mesh.DefaultConfig()
			a.Config = &def
			return nil
		}
		return fmt.Errorf("failed to load config: %w", err)
	}
	log.Printf("Loaded config from %s", a.ConfigFile)
	a.Config = config
	return nil
}

// RunCompare compares the two vertex files given on the command line.
func (a *App) RunCompare() error {
	if err := a.loadConfig(); err != nil {
		return err
	}

	refFile, err := mesh.ParseVertexFile(a.ReferenceFile)
	if err != nil {
		return fmt.Errorf("reference %s: %w", a.ReferenceFile, err)
	}
	queryFile, err := mesh.ParseVertexFile(a.QueryFile)
	if err != nil {
		return fmt.Errorf("query %s: %w", a.QueryFile, err)
	}

	job := &mesh.ComparisonJob{
		Name:      fmt.Sprintf("%s vs %s", queryFile.Name, refFile.Name),
		Reference: *refFile,
		Query:     *queryFile,
	}
	report, err := job.Run(context.Background(), a.Config)
	if err != nil {
		return err
	}
	return a.writeOutputs(report)
}

// RunSynthetic tessellates a solid, displaces a copy by --rotate and
// --offset and compares the copy against the original.
func (a *App) RunSynthetic() error {
	if err := a.loadConfig(); err != nil {
		return err
	}

	offset, err := parseOffset(a.Offset)
	if err != nil {
		return err
	}
	reference, err := mesh.SyntheticMesh(mesh.Shape(a.Synthetic), a.SyntheticSize, a.SyntheticCells)
	if err != nil {
		return err
	}

	motion := mesh.RotationTransform(a.RotateZ*math.Pi/180, mesh.Point{Z: 1}).
		Then(mesh.TranslationTransform(offset))
	query := reference.Transform(motion)
	fmt.Fprintf(a.Out, "Synthetic %s: %d vertices, query displaced by %v\n", a.Synthetic, reference.Len(), motion)

	report, err := mesh.Compare(context.Background(), reference, query, a.Config)
	if err != nil {
		return err
	}
	report.Name = fmt.Sprintf("synthetic %s", a.Synthetic)
	return a.writeOutputs(report)
}

// writeOutputs prints the summary and writes the report and previews.
func (a *App) writeOutputs(report *mesh.Report) error {
	printReport(a.Out, report)

	if a.ReportFile != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling report: %w", err)
		}
		if err := os.WriteFile(a.ReportFile, data, 0644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Fprintf(a.Out, "Report written to %s\n", a.ReportFile)
	}

	if a.RenderFormat == "none" || a.RenderFormat == "" {
		return nil
	}

	pr, err := report.Preview(a.Config.Preview)
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(a.OutputFile, filepath.Ext(a.OutputFile))
	if a.RenderFormat == "raster" || a.RenderFormat == "both" {
		path := base + ".png"
		if err := pr.SavePNG(path); err != nil {
			return fmt.Errorf("writing raster preview: %w", err)
		}
		fmt.Fprintf(a.Out, "Raster preview written to %s\n", path)
	}
	if a.RenderFormat == "vector" || a.RenderFormat == "both" {
		path := base + ".svg"
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("writing vector preview: %w", err)
		}
		if err := pr.RenderSVG(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing vector preview: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Vector preview written to %s\n", path)
	}
	return nil
}

// printReport writes a human-readable report summary.
func printReport(w io.Writer, r *mesh.Report) {
	fmt.Fprintf(w, "\n=== %s ===\n", r.Name)
	fmt.Fprintf(w, "Report ID: %s\n", r.ID)
	fmt.Fprintf(w, "Points: reference=%d query=%d measured=%d\n", r.ReferenceCount, r.QueryCount, r.Stats.Count)
	fmt.Fprintf(w, "Alignment: %s after %d iterations, rms=%.6f\n", r.ICP.Termination, r.ICP.Iterations, r.ICP.Error)
	fmt.Fprintf(w, "  %v\n", r.ICP.Transform)
	fmt.Fprintf(w, "Deviation: min=%.6f max=%.6f mean=%.6f median=%.6f std=%.6f rms=%.6f\n",
		r.Stats.Min, r.Stats.Max, r.Stats.Mean, r.Stats.Median, r.Stats.StandardDeviation, r.Stats.RMS)
	fmt.Fprintf(w, "Matching: %.1f%% within %.4f\n", r.Stats.MatchingFraction*100, r.Stats.MatchingThreshold)
	fmt.Fprintf(w, "Grade: %s\n", r.Grade)
	if r.ReferenceFrame != nil && r.QueryFrame != nil {
		fmt.Fprintf(w, "Normalized: reference scale %.6g about %v, query scale %.6g about %v\n",
			r.ReferenceFrame.Scale, r.ReferenceFrame.Center, r.QueryFrame.Scale, r.QueryFrame.Center)
		fmt.Fprintf(w, "  max deviation %.6f in reference units\n", r.ReferenceFrame.RestoreDistance(r.Stats.Max))
	}
	for _, band := range r.Legend {
		fmt.Fprintf(w, "  %-9s %s  %.4f - %.4f\n", band.Label, band.Hex, band.Lower, band.Upper)
	}
	fmt.Fprintf(w, "Took %v\n\n", r.Duration)
}

// processJob runs a comparison job and records the report. Publishing is
// best effort.
func (a *App) processJob(ctx context.Context, job *mesh.ComparisonJob) (*mesh.Report, error) {
	report, err := job.Run(ctx, a.Config)
	if err != nil {
		return nil, err
	}
	a.Store.Add(report)

	if a.Publisher != nil {
		if err := a.Publisher.PublishReport(report); err != nil {
			log.Printf("Error publishing report %s: %v", report.ID, err)
		}
	}
	return report, nil
}

// handleMQTTJob is the MQTT job callback.
func (a *App) handleMQTTJob(job *mesh.ComparisonJob, err error) {
	if err != nil {
		log.Printf("Discarding comparison job: %v", err)
		return
	}
	report, err := a.processJob(context.Background(), job)
	if err != nil {
		log.Printf("Comparison job %q failed: %v", job.Name, err)
		return
	}
	log.Printf("Comparison job %q -> report %s (%s)", job.Name, report.ID, report.Grade)
}

// RunService starts MQTT job intake and/or the HTTP server and blocks until
// interrupted.
func (a *App) RunService() {
	fmt.Fprintln(a.Out, "Starting meshdiff service...")

	if err := a.loadConfig(); err != nil {
		log.Fatalf("%v (looked at %s)", err, a.ConfigFile)
	}

	cachePath := a.ReportCache
	if a.Config.ReportCache != "" && cachePath == mesh.DefaultReportCachePath {
		cachePath = a.Config.ReportCache
	}
	a.Store = mesh.NewReportStoreWithCache(a.Config.ReportHistory, cachePath)
	if a.Store.Len() > 0 {
		log.Printf("Loaded %d cached report summaries from %s", a.Store.Len(), cachePath)
	}

	if a.MqttMode {
		mqttClient, err := mesh.InitMQTT(a.Config, a.handleMQTTJob)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		if mqttClient == nil {
			log.Fatal("MQTT broker not configured (set mqtt.broker or MQTT_BROKER)")
		}
		a.MQTTClient = mqttClient
		a.Publisher = mesh.NewPublisher(mqttClient.GetClient(), a.Config)
		fmt.Fprintln(a.Out, "MQTT report publisher initialized")
	}

	if a.HttpMode {
		httpServer := newHTTPServer(a.Store, a.Config, a.processJob)
		go func() {
			addr := fmt.Sprintf("0.0.0.0:%d", a.HttpPort)
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := http.ListenAndServe(addr, httpServer); err != nil {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
			log.Printf("[HTTP] Server stopped unexpectedly")
		}()
	}

	a.printServiceInfo()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	fmt.Fprintln(a.Out, "\nShutting down service...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Fprintln(a.Out, "Service stopped")
}

func (a *App) printServiceInfo() {
	fmt.Fprintln(a.Out, "\nService Running")
	fmt.Fprintln(a.Out, "===============")

	if a.MqttMode {
		p := mesh.NewPublisher(nil, a.Config)
		fmt.Fprintln(a.Out, "\nMQTT:")
		fmt.Fprintf(a.Out, "  Jobs topic:     %s\n", p.JobsTopic())
		fmt.Fprintf(a.Out, "  Reports:        %s\n", p.ReportTopic("{id}"))
		fmt.Fprintf(a.Out, "  Latest report:  %s\n", p.LatestTopic())
	}

	if a.HttpMode {
		fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Fprintln(a.Out, "  GET  /health                   - Health check")
		fmt.Fprintln(a.Out, "  POST /analyze                  - Run a comparison job")
		fmt.Fprintln(a.Out, "  GET  /reports                  - Report summaries, newest first")
		fmt.Fprintln(a.Out, "  GET  /reports/{id}             - Full report")
		fmt.Fprintln(a.Out, "  GET  /reports/{id}/preview.png - Raster deviation preview")
		fmt.Fprintln(a.Out, "  GET  /reports/{id}/preview.svg - Vector deviation preview")
	}

	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")
}
