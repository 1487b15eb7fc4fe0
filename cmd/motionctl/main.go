// Command motionctl runs a step scan over a simulated beamline described by
// a JSON config, printing each point and optionally archiving snapshots and
// writing the scan as CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/positioner/internal/archive"
	"github.com/banshee-data/positioner/internal/beamline"
	"github.com/banshee-data/positioner/internal/config"
	"github.com/banshee-data/positioner/internal/monitoring"
	"github.com/banshee-data/positioner/internal/motion"
	"github.com/banshee-data/positioner/internal/scan"
	"github.com/banshee-data/positioner/internal/version"
)

// rangeFlags collects one -range per scanned field.
type rangeFlags []string

func (r *rangeFlags) String() string { return strings.Join(*r, " ") }

func (r *rangeFlags) Set(s string) error {
	*r = append(*r, s)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("motionctl: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("motionctl", flag.ContinueOnError)
	fs.SetOutput(stdout)
	var ranges rangeFlags
	configPath := fs.String("config", config.DefaultConfigPath, "Beamline config JSON file")
	target := fs.String("target", "", "Axis or group to scan (defaults to the first axis)")
	fs.Var(&ranges, "range", "Values for one input field: min:max:step or a comma-separated list (repeat per field)")
	dwell := fs.Duration("dwell", 0, "Time to wait at each point before reading back")
	archivePath := fs.String("archive", "", "SQLite file to archive a snapshot per point (disabled if empty)")
	label := fs.String("label", "", "Label for archived snapshots (defaults to scan-<timestamp>)")
	csvPath := fs.String("csv", "", "Write the scan as CSV to this file (must be under the working or temp directory)")
	quiet := fs.Bool("quiet", false, "Suppress log output")
	showVersion := fs.Bool("version", false, "Print the version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}
	if *quiet {
		monitoring.SetLogger(nil)
	}

	cfg, err := config.LoadBeamlineConfig(*configPath)
	if err != nil {
		return err
	}
	bl, _, err := beamline.Simulated(cfg)
	if err != nil {
		return err
	}

	name := *target
	if name == "" {
		name = cfg.Axes[0].Name
	}
	p, ok := bl.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown axis or group %q (have %s)", name, strings.Join(bl.Names(), ", "))
	}
	if len(ranges) != len(p.InputNames()) {
		return fmt.Errorf("%s has %d input fields %v, got %d -range flags", name, len(p.InputNames()), p.InputNames(), len(ranges))
	}
	rows, err := scan.Grid(ranges...)
	if err != nil {
		return err
	}
	if *csvPath != "" {
		if err := validateOutputPath(*csvPath); err != nil {
			return err
		}
	}

	runner := scan.NewRunner()
	runner.Dwell = *dwell
	runner.Label = *label
	if runner.Label == "" {
		runner.Label = "scan-" + time.Now().UTC().Format("20060102T150405Z")
	}
	if *archivePath != "" {
		store, err := archive.Open(*archivePath)
		if err != nil {
			return err
		}
		defer store.Close()
		runner.Archive = store
	}
	runner.OnPoint = func(row scan.Row) { printPoint(stdout, p, row) }

	res, err := runner.Run(ctx, p, scan.Points(rows))
	if err != nil {
		if stopErr := bl.StopAll(); stopErr != nil {
			monitoring.Warnf("motionctl", "stopping after failed scan: %v", stopErr)
		}
		return err
	}

	if *csvPath != "" {
		if err := writeCSV(*csvPath, res); err != nil {
			return err
		}
	}
	fmt.Fprintf(stdout, "scan %s: %d points\n", runner.Label, len(res.Rows))
	return nil
}

func printPoint(w io.Writer, p motion.Positionable, row scan.Row) {
	s, err := p.Format()
	if err != nil {
		s = fmt.Sprintf("%s : %v", p.Name(), err)
	}
	fmt.Fprintf(w, "[%d] %s\n", row.Point, s)
}

func writeCSV(path string, res *scan.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create output file %s: %w", path, err)
	}
	defer f.Close()
	if err := scan.NewCSVWriter(f).WriteResult(res); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
