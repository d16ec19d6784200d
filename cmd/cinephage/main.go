package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/keonramses/Cinephage-sub002/internal/config"
	"github.com/keonramses/Cinephage-sub002/internal/database"
	"github.com/keonramses/Cinephage-sub002/internal/downloader/sabnzbd"
	"github.com/keonramses/Cinephage-sub002/internal/downloader/transmission"
	"github.com/keonramses/Cinephage-sub002/internal/grab"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/definition"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/search"
	"github.com/keonramses/Cinephage-sub002/internal/library"
	"github.com/keonramses/Cinephage-sub002/internal/logger"
	"github.com/keonramses/Cinephage-sub002/internal/metadata"
	"github.com/keonramses/Cinephage-sub002/internal/metadata/tmdb"
	"github.com/keonramses/Cinephage-sub002/internal/queue"
	"github.com/keonramses/Cinephage-sub002/internal/scoring"
	"github.com/keonramses/Cinephage-sub002/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Path:   cfg.Logging.Path,
	})
	defer log.Close()

	log.Info().
		Str("logLevel", cfg.Logging.Level).
		Str("database", cfg.Database.Path).
		Msg("starting cinephage")

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		log.Fatal().Err(err).Msg("failed to create data directory")
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	store := library.NewStore(db, log.Logger)
	importer := library.NewImporter(store, log.Logger)
	queueRepo := queue.NewRepository(db, log.Logger)

	tmdbClient := tmdb.NewClient(cfg.Metadata.TMDB, log.Logger)
	cache := metadata.NewCache(metadata.CacheConfig{
		TTL:      time.Duration(cfg.Metadata.CacheTTLHours) * time.Hour,
		MaxItems: 10000,
	})
	metaService := metadata.NewService(tmdbClient, cache, log.Logger)
	matcher := metadata.NewMatcher(metaService, log.Logger)
	if !tmdbClient.IsConfigured() {
		log.Warn().Msg("TMDB API key not configured, metadata verification disabled")
	}

	requester := search.NewHTTPRequester(time.Duration(cfg.Search.TimeoutSeconds)*time.Second, log.Logger)
	searchSvc := search.NewService(requester, search.Options{
		PerIndexTimeout: time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
	}, log.Logger)
	registerIndexes(searchSvc, cfg.Indexers, log)

	clients := buildClients(cfg.Clients, log)
	fetcher := grab.NewHTTPFetcher(60*time.Second, log.Logger)
	resolver := grab.NewResolver(fetcher, log.Logger)
	grabSvc := grab.NewService(resolver, clients, queueRepo, store, importer, log.Logger)

	enricher := scoring.NewEnricher(cfg.Search.EnrichWorkers, log.Logger)
	runner := strategy.NewRunner(searchSvc, enricher, grabSvc, log.Logger)

	profiles := scoring.DefaultProfiles()
	profile, ok := profiles[cfg.Search.Profile]
	if !ok {
		log.Warn().Str("profile", cfg.Search.Profile).Msg("unknown quality profile, using \"any\"")
		profile = profiles["any"]
	}

	scheduled, err := strategy.NewScheduledSearcher(runner, store, strategy.Options{
		Profile: profile,
		Search:  cfg.Search,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduled searcher")
	}
	if tmdbClient.IsConfigured() {
		scheduled.WithMatcherFactory(func(sc strategy.SeriesContext) scoring.ReleaseMatcher {
			return matcher.ForTarget(metadata.Hint{
				Kind:   metadata.KindSeries,
				Title:  sc.Title,
				Year:   sc.Year,
				TmdbID: sc.TmdbID,
				TvdbID: sc.TvdbID,
				ImdbID: sc.ImdbID,
			})
		})
	}

	interval := time.Duration(cfg.Search.SweepIntervalMinutes) * time.Minute
	if err := scheduled.Start(interval); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduled searcher")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	if err := scheduled.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop scheduled searcher")
	}
}

// registerIndexes loads every configured index instance from the
// definitions directory.
func registerIndexes(svc *search.Service, cfg config.IndexersConfig, log *logger.Logger) {
	for i, inst := range cfg.Instances {
		path := filepath.Join(cfg.DefinitionsDir, inst.Definition)
		if !strings.HasSuffix(path, ".yml") && !strings.HasSuffix(path, ".yaml") {
			path += ".yml"
		}

		def, err := definition.ParseFile(path)
		if err != nil {
			log.Warn().Err(err).Str("definition", inst.Definition).Msg("skipping index with unreadable definition")
			continue
		}

		svc.AddIndex(search.NewIndex(def, search.IndexOptions{
			ID:       int64(i + 1),
			Name:     inst.Name,
			Priority: inst.Priority,
			Enabled:  inst.Enabled,
			Settings: inst.Settings,
		}, log.Logger))

		log.Info().
			Str("definition", def.ID).
			Str("name", inst.Name).
			Bool("enabled", inst.Enabled).
			Msg("index registered")
	}
}

// buildClients constructs the enabled download clients, one per
// protocol.
func buildClients(cfg config.ClientsConfig, log *logger.Logger) []grab.DownloadClient {
	var clients []grab.DownloadClient

	if cfg.Transmission.Enabled {
		clients = append(clients, transmission.New(transmission.Config{
			ID:             "transmission",
			Host:           cfg.Transmission.Host,
			Port:           cfg.Transmission.Port,
			Username:       cfg.Transmission.Username,
			Password:       cfg.Transmission.Password,
			UseSSL:         cfg.Transmission.UseSSL,
			DownloadDir:    cfg.Transmission.DownloadDir,
			AddPaused:      cfg.Transmission.AddPaused,
			SeedRatioLimit: cfg.Transmission.SeedRatioLimit,
		}, log.Logger))
	}

	if cfg.Sabnzbd.Enabled {
		clients = append(clients, sabnzbd.New(sabnzbd.Config{
			ID:        "sabnzbd",
			Host:      cfg.Sabnzbd.Host,
			Port:      cfg.Sabnzbd.Port,
			APIKey:    cfg.Sabnzbd.APIKey,
			UseSSL:    cfg.Sabnzbd.UseSSL,
			AddPaused: cfg.Sabnzbd.AddPaused,
		}, log.Logger))
	}

	if len(clients) == 0 {
		log.Warn().Msg("no download clients configured, grabs will fail")
	}

	return clients
}
