package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/config"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/db"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/eog"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/features"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/fetcher"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/resilience"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/rollout"
)

func retryPolicy(c *config.Config) resilience.Policy {
	return resilience.DefaultPolicy().WithAttempts(c.Fetch.MaxAttempts)
}

func newCache(c *config.Config) *fetcher.Cache {
	return fetcher.NewCache(fetcher.Options{
		Dir:        c.Cache.Dir,
		Timeout:    time.Duration(c.Fetch.TimeoutSecs) * time.Second,
		Retry:      retryPolicy(c),
		RatePerSec: c.Fetch.RatePerSec,
		UserAgent:  c.Fetch.UserAgent,
	})
}

// newEOGClient prompts on the terminal for missing credentials when one is attached.
func newEOGClient(c *config.Config) *eog.Client {
	return eog.NewClient(eog.Options{
		TokenURL:     c.EOG.TokenURL,
		ClientID:     c.EOG.ClientID,
		ClientSecret: c.EOG.ClientSecret,
		TokenPath:    c.EOG.TokenPath,
		Retry:        retryPolicy(c),
	}, eog.Credentials{Username: c.EOG.Username, Password: c.EOG.Password}, eog.StdinPrompter())
}

func newGenerator(c *config.Config) *features.Generator {
	return &features.Generator{
		Catalog: features.Catalog{
			POIClasses:  c.Features.POIClasses,
			RoadClasses: c.Features.RoadClasses,
		},
		MaxNearestM: c.Features.MaxNearestM,
		IndexLevel:  c.Features.IndexLevel,
	}
}

func newSources(c *config.Config) *rollout.FetchSources {
	s := &rollout.FetchSources{
		Cache:       newCache(c),
		Config:      c.Sources,
		POIClasses:  c.Features.POIClasses,
		RoadClasses: c.Features.RoadClasses,
		PadM:        c.Features.MaxNearestM,
	}
	if c.Sources.Nightlights.RequireAuth {
		s.Tokens = newEOGClient(c)
	}
	return s
}

func postgisPool(ctx context.Context, c *config.Config) (*pgxpool.Pool, error) {
	if c.PostGIS.DatabaseURL == "" {
		return nil, eris.New("postgis.database_url is required for the postgis format (set POVMAP_POSTGIS_DATABASE_URL)")
	}
	return db.Connect(ctx, c.PostGIS.DatabaseURL)
}
