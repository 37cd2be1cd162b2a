package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/kwv/meshdiff/mesh"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds every command line setting.
type AppOptions struct {
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

// AppRunner is what run dispatches to. *App implements it.
type AppRunner interface {
	ApplyOptions(opts AppOptions)
	RunCompare() error
	RunSynthetic() error
	RunService()
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

// run parses args and dispatches to the selected mode.
func run(args []string, out io.Writer, app AppRunner) error {
	fs := flag.NewFlagSet("meshdiff", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.ReferenceFile, "reference", "", "Reference mesh vertex file (JSON)")
	fs.StringVar(&opts.QueryFile, "query", "", "Query mesh vertex file (JSON), aligned onto the reference")
	fs.StringVar(&opts.Synthetic, "synthetic", "", "Compare a synthetic solid against a displaced copy: box, sphere or cylinder")
	fs.Float64Var(&opts.SyntheticSize, "synthetic-size", 2.0, "Overall size of the synthetic solid")
	fs.IntVar(&opts.SyntheticCells, "synthetic-cells", mesh.DefaultSyntheticCells, "Marching cubes resolution for the synthetic solid")
	fs.StringVar(&opts.Offset, "offset", "0,0,0", "Displacement x,y,z applied to the synthetic query")
	fs.Float64Var(&opts.RotateZ, "rotate", 0, "Rotation in degrees about Z applied to the synthetic query")
	fs.StringVar(&opts.OutputFile, "output", "deviation.png", "Preview output file (extension is replaced per format)")
	fs.StringVar(&opts.ReportFile, "report", "", "Write the full report as JSON to this file")
	fs.StringVar(&opts.RenderFormat, "format", "raster", "Preview format: raster, vector, both or none")
	fs.StringVar(&opts.ReportCache, "report-cache", mesh.DefaultReportCachePath, "Report history cache for service mode (empty disables)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode (jobs in, reports out)")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server for jobs, reports and previews")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port (default 8080)")

	fmt.Fprintf(out, "meshdiff version: %s\n", Version)

	if err := fs.Parse(args); err != nil {
		return err
	}

	switch opts.RenderFormat {
	case "raster", "vector", "both", "none":
	default:
		return fmt.Errorf("unknown --format %q (want raster, vector, both or none)", opts.RenderFormat)
	}

	app.ApplyOptions(opts)

	switch {
	case opts.ReferenceFile != "" || opts.QueryFile != "":
		if opts.ReferenceFile == "" || opts.QueryFile == "" {
			return errors.New("--reference and --query must be given together")
		}
		return app.RunCompare()
	case opts.Synthetic != "":
		return app.RunSynthetic()
	case opts.MqttMode || opts.HttpMode:
		app.RunService()
		return nil
	}

	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  --reference ref.json --query scan.json   Compare two vertex files")
	fmt.Fprintln(out, "  --synthetic sphere --offset 0.05,0,0     Compare a synthetic solid against a displaced copy")
	fmt.Fprintln(out, "  --mqtt                                   Consume jobs from {prefix}/jobs and publish reports")
	fmt.Fprintln(out, "  --http                                   Serve /analyze, /reports and previews")
	fmt.Fprintln(out, "  --mqtt --http                            Run both together")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - alignment, deviation, heatmap and MQTT settings")
	return nil
}

// parseOffset parses "x,y,z".
func parseOffset(s string) (mesh.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return mesh.Point{}, fmt.Errorf("offset %q: want x,y,z", s)
	}
	var v [3]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return mesh.Point{}, fmt.Errorf("offset %q: %w", s, err)
		}
		v[i] = f
	}
	return mesh.Point{X: v[0], Y: v[1], Z: v[2]}, nil
}
