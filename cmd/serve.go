package main

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
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

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the render HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		defaults, err := serverDefaults()
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(catalog.NewCache(store), defaults),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// serverDefaults builds the baseline render options from config.
func serverDefaults() (pipeline.Options, error) {
	opts := pipeline.Options{
		Year:     cfg.Render.Year,
		Category: classify.CategorySpec{Count: cfg.Render.Categories},
		US48Only: cfg.Render.US48Only,
		Palette:  cfg.Render.Palette,
	}

	var err error
	if opts.CountyPolicy, err = assemble.ParsePolicy(cfg.Render.CountyB); err != nil {
		return opts, err
	}
	if opts.TractPolicy, err = assemble.ParsePolicy(cfg.Render.TractB); err != nil {
		return opts, err
	}
	if opts.HSAPolicy, err = assemble.ParsePolicy(cfg.Render.HSAB); err != nil {
		return opts, err
	}
	if opts.RegistryOverlay, err = assemble.ParsePolicy(cfg.Render.SEERB); err != nil {
		return opts, err
	}

	if cfg.Render.PaletteFile != "" {
		if opts.Palettes, err = palette.LoadFile(cfg.Render.PaletteFile); err != nil {
			return opts, err
		}
	}

	return opts, nil
}

// renderRequest is the POST /render payload. Omitted options fall back to the
// server's configured defaults.
type renderRequest struct {
	Rows []renderRow `json:"rows"`

	Year         int       `json:"year,omitempty"`
	Categories   int       `json:"categories,omitempty"`
	Breakpoints  []float64 `json:"breakpoints,omitempty"`
	Palette      string    `json:"palette,omitempty"`
	Hatch        *hatchReq `json:"hatch,omitempty"`
	CountyB      string    `json:"county_b,omitempty"`
	TractB       string    `json:"tract_b,omitempty"`
	HSAB         string    `json:"hsa_b,omitempty"`
	SEERB        string    `json:"seer_b,omitempty"`
	US48Only     bool      `json:"us48_only,omitempty"`
	CoerceLevels bool      `json:"coerce_levels,omitempty"`
	Indent       bool      `json:"indent,omitempty"`
}

type renderRow struct {
	ID    string   `json:"id"`
	Value *float64 `json:"value"` // null = suppressed value, drawn as no-data
	Hatch *float64 `json:"hatch,omitempty"`
}

type hatchReq struct {
	Op        string   `json:"op"`
	Threshold *float64 `json:"threshold"` // nil keeps the default
}

// buildRouter assembles the HTTP API. Split out from the command for tests.
func buildRouter(cat catalog.Catalog, defaults pipeline.Options) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	p := pipeline.New(cat)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Get("/palettes", func(w http.ResponseWriter, req *http.Request) {
		palettes := defaults.Palettes
		if palettes == nil {
			palettes = palette.Default()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string][]string{"palettes": palettes.Names()})
	})

	r.Post("/render", func(w http.ResponseWriter, req *http.Request) {
		var body renderRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(body.Rows) == 0 {
			httpError(w, http.StatusBadRequest, "rows are required")
			return
		}

		opts, err := body.options(defaults)
		if err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}

		jobID := uuid.NewString()
		log := zap.L().With(
			zap.String("component", "server"),
			zap.String("job_id", jobID),
		)

		rows := make([]table.Row, len(body.Rows))
		for i, rr := range body.Rows {
			rows[i] = table.Row{ID: rr.ID, Value: math.NaN(), Hatch: rr.Hatch}
			if rr.Value != nil {
				rows[i].Value = *rr.Value
			}
		}

		start := time.Now()
		m, err := p.Run(req.Context(), rows, opts)
		if err != nil {
			log.Error("render failed", zap.Error(err))
			httpError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("X-Job-ID", jobID)
		w.WriteHeader(http.StatusOK)
		if err := (&render.GeoJSON{Indent: body.Indent}).Render(req.Context(), m, w); err != nil {
			log.Error("write geojson failed", zap.Error(err))
			return
		}

		log.Info("render complete",
			zap.String("level", m.Level.String()),
			zap.Int("regions", len(m.Regions)),
			zap.Int("unmatched", m.Report.Len()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})

	return r
}

// options merges request overrides onto the server defaults.
func (b *renderRequest) options(defaults pipeline.Options) (pipeline.Options, error) {
	opts := defaults

	if b.Year != 0 {
		opts.Year = b.Year
	}
	if b.Categories != 0 {
		opts.Category = classify.CategorySpec{Count: b.Categories}
	}
	if len(b.Breakpoints) > 0 {
		opts.Category = classify.CategorySpec{Breakpoints: b.Breakpoints}
	}
	if b.Palette != "" {
		opts.Palette = b.Palette
	}
	if b.Hatch != nil {
		spec := classify.DefaultHatchSpec()
		if b.Hatch.Op != "" {
			spec.Op = b.Hatch.Op
		}
		if b.Hatch.Threshold != nil {
			spec.Threshold = *b.Hatch.Threshold
		}
		opts.Hatch = &spec
	}
	if b.US48Only {
		opts.US48Only = true
	}
	if b.CoerceLevels {
		opts.CoerceLevels = true
	}

	var err error
	if b.CountyB != "" {
		if opts.CountyPolicy, err = assemble.ParsePolicy(b.CountyB); err != nil {
			return opts, err
		}
	}
	if b.TractB != "" {
		if opts.TractPolicy, err = assemble.ParsePolicy(b.TractB); err != nil {
			return opts, err
		}
	}
	if b.HSAB != "" {
		if opts.HSAPolicy, err = assemble.ParsePolicy(b.HSAB); err != nil {
			return opts, err
		}
	}
	if b.SEERB != "" {
		if opts.RegistryOverlay, err = assemble.ParsePolicy(b.SEERB); err != nil {
			return opts, err
		}
	}

	return opts, nil
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
