// Command canopy analyses per-tree LAD profiles, writes fuel layer and
// crown base height tables, and optionally plots and stores the results.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/banshee-data/canopy.report/internal/config"
	"github.com/banshee-data/canopy.report/internal/version"
)

var (
	input       = flag.String("input", "", "Long-format LAD profile CSV (treeID,height,lad)")
	configPath  = flag.String("config", "", "Fuel analysis config JSON (defaults apply to omitted fields)")
	minHeight   = flag.Float64("min-height", 1.5, "Drop bins below this height (m); 0 keeps all and starts the profile at 0.5 m")
	minStep     = flag.Float64("min-step", 0, "Minimum layer depth and gap (m); 0 uses the bin width")
	minFraction = flag.Float64("min-fraction", 10, "Minimum LAD share (%) a layer must hold")
	hdepth1     = flag.Float64("hdepth1", 2.5, "Depth (m) at or below which a lowest max-LAD layer also reports the next layer")
	workers     = flag.Int("workers", 0, "Concurrent trees; 0 uses one per CPU")
	outDir      = flag.String("out-dir", ".", "Directory for CSV, PNG and HTML output")
	dbPath      = flag.String("db", "", "SQLite file to store the run in (optional)")
	plots       = flag.Bool("plots", false, "Write a PNG profile plot per tree")
	html        = flag.Bool("html", false, "Write an HTML summary page")
	verbose     = flag.Bool("verbose", false, "Log per-stage diagnostics")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *input == "" {
		log.Fatal("-input is required")
	}

	cfg, err := loadConfig(*configPath, setFlags())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := run(ctx, cfg, options{
		input:  *input,
		outDir: *outDir,
		dbPath: *dbPath,
		plots:  *plots,
		html:   *html,
	})
	if err != nil {
		log.Fatalf("canopy: %v", err)
	}
	log.Printf("done: %s", summary)
}

// setFlags returns the names of the flags given on the command line.
func setFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// loadConfig reads the config file (if any) and lets explicitly set
// flags override it.
func loadConfig(path string, set map[string]bool) (*config.FuelConfig, error) {
	cfg := config.EmptyFuelConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadFuelConfig(path); err != nil {
			return nil, err
		}
	}

	if set["min-height"] {
		cfg.MinHeight = minHeight
	}
	if set["min-step"] {
		cfg.MinStep = minStep
	}
	if set["min-fraction"] {
		cfg.MinFraction = minFraction
	}
	if set["hdepth1"] {
		cfg.HDepth1Height = hdepth1
	}
	if set["workers"] {
		cfg.Workers = workers
	}
	if set["verbose"] {
		cfg.Verbose = verbose
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
