package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jonboulle/clockwork"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/frostbyte/frostrisk/internal/api"
	"github.com/frostbyte/frostrisk/internal/assess"
	"github.com/frostbyte/frostrisk/internal/cache"
	"github.com/frostbyte/frostrisk/internal/frost"
	"github.com/frostbyte/frostrisk/internal/ingest"
	"github.com/frostbyte/frostrisk/internal/models"
	"github.com/frostbyte/frostrisk/internal/store"
)

// CIMIS stations covering the San Joaquin Valley almond belt.
var defaultStations = []models.Station{
	{StationID: "145", Name: "Arvin-Edison", Latitude: 35.207, Longitude: -118.783, Elevation: 141, Active: true},
	{StationID: "170", Name: "Manteca", Latitude: 37.835, Longitude: -121.223, Elevation: 10, Active: true},
	{StationID: "2", Name: "FivePoints", Latitude: 36.336, Longitude: -120.113, Elevation: 87, Active: true},
	{StationID: "80", Name: "Fresno State", Latitude: 36.820, Longitude: -119.742, Elevation: 103, Active: true},
	{StationID: "105", Name: "Westlands", Latitude: 36.634, Longitude: -120.382, Elevation: 59, Active: true},
}

var cli struct {
	DB           string `help:"Path to SQLite database." default:"data/frostrisk.db" env:"FROSTRISK_DB"`
	Port         string `help:"HTTP server port." default:"8080" env:"FROSTRISK_PORT"`
	Timezone     string `help:"Station-network timezone." default:"America/Los_Angeles" env:"FROSTRISK_TZ"`
	CimisAppKey  string `help:"CIMIS API application key." env:"CIMIS_APP_KEY" required:""`
	CimisBaseURL string `help:"Override the CIMIS API base URL." env:"CIMIS_BASE_URL"`
	Params       string `help:"Damage-parameter YAML overriding the embedded table." env:"FROSTRISK_PARAMS"`
	Backfill     int    `help:"Days of observation history to backfill at startup." default:"0"`
	NoPoll       bool   `help:"Disable background ingestion (server only)."`
	Debug        bool   `help:"Enable debug logging."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("frostrisk"),
		kong.Description("Frost damage risk engine for almond bloom."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	logger, err := newLogger(cli.Debug)
	kctx.FatalIfErrorf(err)
	defer logger.Sync()

	loc, err := time.LoadLocation(cli.Timezone)
	if err != nil {
		logger.Fatal("load timezone", zap.String("timezone", cli.Timezone), zap.Error(err))
	}

	db, err := sql.Open("sqlite", cli.DB)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db, loc, logger)
	if err := st.Migrate(); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	for _, station := range defaultStations {
		if err := st.UpsertStation(station); err != nil {
			logger.Fatal("upsert station", zap.String("station", station.StationID), zap.Error(err))
		}
	}
	logger.Info("stations seeded", zap.Int("count", len(defaultStations)))

	params, err := loadParams(cli.Params)
	if err != nil {
		logger.Fatal("load damage parameters", zap.Error(err))
	}

	clock := clockwork.NewRealClock()
	cimis := ingest.NewCIMIS(cli.CimisAppKey, cli.CimisBaseURL, loc, logger)
	scheduler := ingest.NewScheduler(st, cimis, clock, loc, logger)
	resultCache := cache.New(clock, loc, cache.DefaultCurrentDayTTL)
	assessor := assess.New(st, cimis, params, resultCache, clock, loc, assess.DefaultConfig(), logger)
	server := api.NewServer(assessor, st, clock, cli.Port, loc, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cli.Backfill > 0 {
		logger.Info("backfilling observation history", zap.Int("days", cli.Backfill))
		if err := scheduler.Backfill(ctx, cli.Backfill); err != nil {
			logger.Fatal("backfill", zap.Error(err))
		}
	}

	if !cli.NoPoll {
		go scheduler.Run(ctx)
	} else {
		logger.Info("polling disabled")
	}

	logger.Info("starting server", zap.String("port", cli.Port))
	if err := server.Run(ctx); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadParams(path string) (*frost.ParamTable, error) {
	if path != "" {
		return frost.LoadParams(path)
	}
	return frost.DefaultParams()
}
