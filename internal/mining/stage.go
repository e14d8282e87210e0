package mining

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emicklei/dot"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/metrics"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/naming"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/sheet"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/xes"
)

// Algorithm names used in output files.
const (
	AlphaAlgorithm      = "alpha_miner"
	HeuristicsAlgorithm = "heuristics_miner"
	InductiveAlgorithm  = "inductive_miner"
	DFGAlgorithm        = "directly_follows_graph"
)

// StageOptions locates the inputs and outputs of process discovery.
type StageOptions struct {
	XESDir           string
	OutDir           string
	DecreasingFactor float64
}

// Discovery holds the models mined from one filtered log.
type Discovery struct {
	Company  string
	Log      *Log
	Variants []Variant
	Models   map[string]*dot.Graph
}

// Discover filters the company's log to classified conversations and its
// frequent variants, then runs every discovery algorithm.
func Discover(l *Log, company string, factor float64) *Discovery {
	filtered := AutoFilterVariants(FilterClassifiedStartActivities(l, company), factor)
	d := DiscoverDFG(filtered)
	return &Discovery{
		Company:  company,
		Log:      filtered,
		Variants: Variants(filtered),
		Models: map[string]*dot.Graph{
			AlphaAlgorithm:      RenderPetriNet(AlphaMiner(filtered), d.Activities),
			HeuristicsAlgorithm: RenderPetriNet(HeuristicsMiner(filtered), d.Activities),
			InductiveAlgorithm:  RenderPetriNet(InductiveMiner(filtered), d.Activities),
			DFGAlgorithm:        RenderDFG(d),
		},
	}
}

// VariantsTable lists variants with their counts.
func VariantsTable(variants []Variant) *sheet.Table {
	t := sheet.NewTable("variant", "count")
	for _, v := range variants {
		t.Append(v.Key(), strconv.Itoa(v.Count))
	}
	return t
}

// RunStage discovers process models for every event log in opts.XESDir.
func RunStage(opts StageOptions, logger *slog.Logger) ([]string, error) {
	start := time.Now()
	defer metrics.ObserveStage("discover", start)

	entries, err := os.ReadDir(opts.XESDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", opts.XESDir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".xes") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var written []string
	for _, name := range names {
		p, err := naming.ParseEventLog(name)
		if err != nil {
			logger.Warn("Skipping event log", "file", name, "error", err)
			metrics.FilesTotal.WithLabelValues("discover", "skipped").Inc()
			continue
		}
		l, err := ReadXES(filepath.Join(opts.XESDir, name))
		if err != nil {
			metrics.FilesTotal.WithLabelValues("discover", "error").Inc()
			return written, fmt.Errorf("failed to import %s: %w", name, err)
		}
		disc := Discover(l, p.Company, opts.DecreasingFactor)
		logVariants(logger, disc)
		metrics.VariantsKept.WithLabelValues(p.Company).Set(float64(len(disc.Variants)))

		files, err := writeDiscovery(opts.OutDir, disc)
		written = append(written, files...)
		if err != nil {
			metrics.FilesTotal.WithLabelValues("discover", "error").Inc()
			return written, err
		}
		metrics.FilesTotal.WithLabelValues("discover", "ok").Inc()
	}
	return written, nil
}

func logVariants(logger *slog.Logger, d *Discovery) {
	logger.Info("Filtered event log",
		"company", d.Company,
		"traces", d.Log.Len(),
		"events", d.Log.Events(),
		"variants", len(d.Variants))
	for _, v := range d.Variants {
		logger.Debug("Variant", "company", d.Company, "variant", v.Key(), "count", v.Count)
	}
}

func writeDiscovery(dir string, d *Discovery) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	var written []string
	variants := filepath.Join(dir, naming.DiscoveryFile(d.Company, "variants", "csv"))
	if err := sheet.WriteCSV(variants, VariantsTable(d.Variants)); err != nil {
		return written, err
	}
	written = append(written, variants)

	filtered := filepath.Join(dir, naming.DiscoveryFile(d.Company, "filtered", "xes"))
	if err := xes.WriteFile(filtered, d.Log.ToXES()); err != nil {
		return written, err
	}
	written = append(written, filtered)

	for _, algorithm := range []string{AlphaAlgorithm, HeuristicsAlgorithm, InductiveAlgorithm, DFGAlgorithm} {
		path := filepath.Join(dir, naming.DiscoveryFile(d.Company, algorithm, "dot"))
		if err := os.WriteFile(path, []byte(d.Models[algorithm].String()), 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
