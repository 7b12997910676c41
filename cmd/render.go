package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ratemap/internal/assemble"
	"github.com/sells-group/ratemap/internal/catalog"
	"github.com/sells-group/ratemap/internal/classify"
	"github.com/sells-group/ratemap/internal/palette"
	"github.com/sells-group/ratemap/internal/pipeline"
	"github.com/sells-group/ratemap/internal/render"
	"github.com/sells-group/ratemap/internal/table"
)

var renderCmd = &cobra.Command{
	Use:   "render <input-file>",
	Short: "Render a choropleth map from a rate table",
	Long: `Reads a CSV or XLSX rate table, resolves each row's location identifier
against the boundary catalog, bins rates into categories, and writes a
GeoJSON feature collection.

The mapped level (state, county, tract, HSA, or registry) is inferred from
the identifiers; mixed fine levels are an error unless --coerce-levels is
set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := renderOptions(cmd)
		if err != nil {
			return err
		}

		rows, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		m, err := pipeline.New(catalog.NewCache(store)).Run(ctx, rows, opts)
		if err != nil {
			return eris.Wrap(err, "render")
		}

		out := os.Stdout
		if outPath, _ := cmd.Flags().GetString("output"); outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return eris.Wrapf(err, "render: create %s", outPath)
			}
			defer f.Close()
			out = f
		}

		indent, _ := cmd.Flags().GetBool("indent")
		if err := (&render.GeoJSON{Indent: indent}).Render(ctx, m, out); err != nil {
			return eris.Wrap(err, "render: write geojson")
		}

		for _, u := range m.Report.Entries {
			zap.L().Warn("unmatched identifier",
				zap.String("id", u.ID),
				zap.String("reason", u.Reason),
			)
		}

		zap.L().Info("render complete",
			zap.String("level", m.Level.String()),
			zap.Int("regions", len(m.Regions)),
			zap.Int("unmatched", m.Report.Len()),
		)
		return nil
	},
}

func init() {
	renderCmd.Flags().String("output", "", "output file (default stdout)")
	renderCmd.Flags().Bool("indent", false, "pretty-print the GeoJSON")
	renderCmd.Flags().Int("year", 0, "census year, 2000 or 2010 (default from config)")
	renderCmd.Flags().Int("categories", 0, "number of quantile categories, 3-11 (default from config)")
	renderCmd.Flags().String("breakpoints", "", "comma-separated explicit category breakpoints (overrides --categories)")
	renderCmd.Flags().String("palette", "", "color ramp name (default from config)")
	renderCmd.Flags().String("palette-file", "", "YAML palette file replacing the bundled ramps")
	renderCmd.Flags().Bool("hatch", false, "hatch regions whose hatch column passes the threshold test")
	renderCmd.Flags().String("hatch-op", "", `hatch comparison operator (default ">")`)
	renderCmd.Flags().Float64("hatch-threshold", 0, "hatch comparison threshold (default 0.05)")
	renderCmd.Flags().String("county-b", "", "county expansion policy: NONE, DATA, STATE, SEER, ALL")
	renderCmd.Flags().String("tract-b", "", "tract expansion policy")
	renderCmd.Flags().String("hsa-b", "", "HSA expansion policy")
	renderCmd.Flags().String("seer-b", "", "registry overlay policy")
	renderCmd.Flags().Bool("us48", false, "restrict context regions to the contiguous 48 states")
	renderCmd.Flags().Bool("coerce-levels", false, "coerce mixed fine levels to the coarsest instead of failing")
	renderCmd.Flags().String("id-column", "", "identifier column name (default from config)")
	renderCmd.Flags().String("value-column", "", "rate column name (default from config)")
	renderCmd.Flags().String("hatch-column", "", "hatch value column name (default from config)")
	renderCmd.Flags().String("sheet", "", "XLSX sheet name (default: first sheet)")
	rootCmd.AddCommand(renderCmd)
}

// renderOptions merges config defaults with command flags.
func renderOptions(cmd *cobra.Command) (pipeline.Options, error) {
	opts := pipeline.Options{
		Year:     cfg.Render.Year,
		Category: classify.CategorySpec{Count: cfg.Render.Categories},
		US48Only: cfg.Render.US48Only,
		Palette:  cfg.Render.Palette,
	}

	var err error
	if opts.CountyPolicy, err = policyFlag(cmd, "county-b", cfg.Render.CountyB); err != nil {
		return opts, err
	}
	if opts.TractPolicy, err = policyFlag(cmd, "tract-b", cfg.Render.TractB); err != nil {
		return opts, err
	}
	if opts.HSAPolicy, err = policyFlag(cmd, "hsa-b", cfg.Render.HSAB); err != nil {
		return opts, err
	}
	if opts.RegistryOverlay, err = policyFlag(cmd, "seer-b", cfg.Render.SEERB); err != nil {
		return opts, err
	}

	if year, _ := cmd.Flags().GetInt("year"); year != 0 {
		opts.Year = year
	}
	if n, _ := cmd.Flags().GetInt("categories"); n != 0 {
		opts.Category.Count = n
	}
	if bps, _ := cmd.Flags().GetString("breakpoints"); bps != "" {
		opts.Category, err = parseBreakpoints(bps)
		if err != nil {
			return opts, err
		}
	}
	if name, _ := cmd.Flags().GetString("palette"); name != "" {
		opts.Palette = name
	}

	paletteFile, _ := cmd.Flags().GetString("palette-file")
	if paletteFile == "" {
		paletteFile = cfg.Render.PaletteFile
	}
	if paletteFile != "" {
		opts.Palettes, err = palette.LoadFile(paletteFile)
		if err != nil {
			return opts, err
		}
	}

	if hatch, _ := cmd.Flags().GetBool("hatch"); hatch {
		spec := classify.DefaultHatchSpec()
		if op, _ := cmd.Flags().GetString("hatch-op"); op != "" {
			spec.Op = op
		}
		if cmd.Flags().Changed("hatch-threshold") {
			spec.Threshold, _ = cmd.Flags().GetFloat64("hatch-threshold")
		}
		opts.Hatch = &spec
	}

	if us48, _ := cmd.Flags().GetBool("us48"); us48 {
		opts.US48Only = true
	}
	opts.CoerceLevels, _ = cmd.Flags().GetBool("coerce-levels")

	return opts, nil
}

// policyFlag resolves an expansion policy from a flag, falling back to the
// config default.
func policyFlag(cmd *cobra.Command, name, fallback string) (assemble.Policy, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		s = fallback
	}
	p, err := assemble.ParsePolicy(s)
	if err != nil {
		return p, eris.Wrapf(err, "--%s", name)
	}
	return p, nil
}

func parseBreakpoints(s string) (classify.CategorySpec, error) {
	var spec classify.CategorySpec
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return spec, eris.Errorf("invalid breakpoint %q", part)
		}
		spec.Breakpoints = append(spec.Breakpoints, v)
	}
	return spec, nil
}

// readInput reads the rate table, dispatching on file extension.
func readInput(cmd *cobra.Command, path string) ([]table.Row, error) {
	cols := table.Columns{
		ID:    cfg.Input.IDColumn,
		Value: cfg.Input.ValueColumn,
		Hatch: cfg.Input.HatchColumn,
	}
	if v, _ := cmd.Flags().GetString("id-column"); v != "" {
		cols.ID = v
	}
	if v, _ := cmd.Flags().GetString("value-column"); v != "" {
		cols.Value = v
	}
	if v, _ := cmd.Flags().GetString("hatch-column"); v != "" {
		cols.Hatch = v
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		xopts := table.XLSXOptions{SheetName: cfg.Input.Sheet}
		if v, _ := cmd.Flags().GetString("sheet"); v != "" {
			xopts.SheetName = v
		}
		return table.ReadXLSX(path, cols, xopts)
	case ".csv", ".txt":
		return table.ReadCSVFile(path, cols)
	default:
		return nil, fmt.Errorf("unsupported input format %q (want .csv or .xlsx)", filepath.Ext(path))
	}
}
