// Command dashboard wires the client runtime together: it signs in (or
// revalidates a stored session), runs a symbol search through the shared
// cache and polls the news feeds until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantboard/dashboard-client/internal/api"
	"github.com/quantboard/dashboard-client/internal/config"
	"github.com/quantboard/dashboard-client/internal/credstore"
	"github.com/quantboard/dashboard-client/internal/feed"
	"github.com/quantboard/dashboard-client/internal/logging"
	"github.com/quantboard/dashboard-client/internal/querycache"
	"github.com/quantboard/dashboard-client/internal/search"
	"github.com/quantboard/dashboard-client/internal/session"
	"github.com/quantboard/dashboard-client/internal/uistate"
)

func main() {
	var (
		envFile     = flag.String("env", ".env", "Path to dotenv file (optional)")
		profileFile = flag.String("profile", "", "Path to dashboard profile YAML (optional)")
		email       = flag.String("email", "", "Email to sign in with when no stored session exists")
		password    = flag.String("password", "", "Password for -email")
		query       = flag.String("query", "AAPL", "Symbol search query to run")
	)
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatalf("load env (%s): %v", *envFile, err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	profile, err := config.LoadProfile(*profileFile)
	if err != nil {
		log.Fatalf("load profile: %v", err)
	}
	if profile.PollInterval > 0 {
		cfg.PollInterval = profile.PollInterval.Std()
	}

	logger := logging.New("dashboard", cfg.LogLevel, cfg.LogJSON, os.Stderr)

	credPath := cfg.CredentialFile
	if credPath == "" {
		credPath, err = credstore.DefaultPath()
		if err != nil {
			log.Fatalf("resolve credential path: %v", err)
		}
	}
	creds := credstore.Open(credPath, logger.WithField("component", "credstore"))

	apiClient, err := api.New(api.Config{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.HTTPTimeout,
		Token:     creds.Token,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		Logger:    logger.WithField("component", "api"),
	})
	if err != nil {
		log.Fatalf("create api client: %v", err)
	}

	sessions := session.New(apiClient, creds, logger.WithField("component", "session"))
	state := uistate.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := sessions.VerifySession(ctx)
	switch {
	case status.Authenticated:
		logger.WithField("user", status.User.Username).Info("stored session still valid")
		state.SetUser(status.User)
	case *email != "" && *password != "":
		user, err := sessions.Login(ctx, *email, *password)
		if err != nil {
			log.Fatalf("login: %v", err)
		}
		logger.WithField("user", user.Username).Info("signed in")
		state.SetUser(user)
	default:
		log.Fatalf("no valid session; pass -email and -password to sign in")
	}

	cache := querycache.New(querycache.Options{
		Freshness:    cfg.CacheFreshness,
		IdleEviction: cfg.CacheIdleEvict,
		RetryBudget:  cfg.RetryBudget,
		BackoffBase:  cfg.BackoffBase,
		BackoffCap:   cfg.BackoffCap,
		Logger:       logger.WithField("component", "querycache"),
	})
	defer cache.Close()

	watcher := api.NewHealthWatcher(apiClient, 30*time.Second, cache.NotifyOnline,
		logger.WithField("component", "health"))
	watcher.Start(ctx)
	defer watcher.Stop()

	// Searches flow through the shared cache so repeated lookups within
	// the freshness window never hit the network twice.
	searchFetch := func(ctx context.Context, q string) ([]api.SymbolHit, error) {
		entry := cache.Read(ctx, querycache.Identity{Op: "symbols", Key: q},
			func(ctx context.Context) (any, error) {
				return apiClient.SearchSymbols(ctx, q)
			})
		if entry.Err != nil {
			return nil, entry.Err
		}
		hits, _ := entry.Data.([]api.SymbolHit)
		return hits, nil
	}

	searcher := search.New(search.Config{
		Fetch:     searchFetch,
		Debounce:  cfg.SearchDebounce,
		MinLength: cfg.SearchMinLen,
		OnChange: func(st search.State) {
			if st.Loading || !st.Open {
				return
			}
			for _, hit := range st.Results {
				fmt.Printf("  %-8s %s\n", hit.Symbol, hit.Name)
			}
		},
		OnSelect: state.SetSelectedSymbol,
		Logger:   logger.WithField("component", "search"),
	})
	defer searcher.Close()
	searcher.SetQuery(*query)

	marketFeed := feed.New(feed.Config{
		Fetch: func(ctx context.Context, key string) ([]api.NewsItem, error) {
			return apiClient.MarketNews(ctx)
		},
		Interval: cfg.PollInterval,
		OnChange: func(st feed.State) {
			if st.InFlight || st.Err != nil {
				return
			}
			logger.WithField("items", len(st.Items)).Info("market news refreshed")
		},
		Logger: logger.WithField("component", "feed"),
	})
	marketFeed.Start(ctx)
	defer marketFeed.Stop()

	var symbolFeeds []*feed.Controller
	for _, symbol := range profile.Symbols {
		sf := feed.New(feed.Config{
			Key: symbol,
			Fetch: func(ctx context.Context, key string) ([]api.NewsItem, error) {
				return apiClient.SymbolNews(ctx, key)
			},
			Interval: cfg.PollInterval,
			Logger:   logger.WithField("component", "feed"),
		})
		sf.Start(ctx)
		symbolFeeds = append(symbolFeeds, sf)
	}
	defer func() {
		for _, sf := range symbolFeeds {
			sf.Stop()
		}
	}()

	if profile.ActiveTab != "" {
		state.SetActiveTab(profile.ActiveTab)
	}

	<-ctx.Done()
	stats := cache.Stats()
	logger.WithField("cache_entries", stats.Entries).
		WithField("cache_subscribed", stats.Subscribed).
		Info("shutting down")
}
