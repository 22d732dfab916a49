// Package repository provides the PostgreSQL persistence used by the
// citation discovery service.
//
// # Overview
//
// The only persisted state is the second cache tier: serialized provider
// responses keyed by cache.Key and held until their absolute expiry. Rows
// past their expiry are ignored on read and removed by PurgeExpired.
//
// # Thread Safety
//
// All implementations are safe for concurrent use. The underlying pgxpool
// handles connection pooling and synchronization.
//
// # Usage Pattern
//
//	db, _ := database.New(ctx, cfg, logger)
//	store := repository.NewPgCacheStore(db)
//	c, _ := cache.New(cache.Config{}, cache.WithStore(store))
package repository

import (
	"github.com/helixir/citation-discovery-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction
// contexts. Passing a pgx.Tx instead of the pool runs a store inside a
// caller's transaction; tests pass a pgxmock pool.
type DBTX = database.DBTX
