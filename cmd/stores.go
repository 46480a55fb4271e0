package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wuimap/internal/db"
	"github.com/sells-group/wuimap/internal/postgis"
	"github.com/sells-group/wuimap/internal/store"
)

// initStore opens and migrates the run ledger.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initSink connects the PostGIS sink when a database URL is configured. The
// returned pool is nil when the sink is disabled.
func initSink(ctx context.Context, srid int) (*postgis.Sink, *pgxpool.Pool, error) {
	if cfg.PostGIS.DatabaseURL == "" {
		return nil, nil, nil
	}
	pool, err := db.Connect(ctx, cfg.PostGIS.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := postgis.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if cfg.PostGIS.SRID != 0 {
		srid = cfg.PostGIS.SRID
	}
	zap.L().Info("postgis sink enabled", zap.Int("srid", srid))
	return postgis.NewSink(pool, srid), pool, nil
}
