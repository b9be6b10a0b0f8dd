// Command ideahub-keys issues, lists and revokes IdeaHub API keys.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kiranshivaraju/ideahub/internal/config"
	"github.com/kiranshivaraju/ideahub/internal/store"
)

func main() {
	if err := newRootCmd(openStore).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore connects to the database named by DATABASE_URL.
func openStore(ctx context.Context) (store.Store, string, func(), error) {
	dbCfg, authCfg, err := config.LoadCLI()
	if err != nil {
		return nil, "", nil, fmt.Errorf("load config: %w", err)
	}
	pool, err := store.Connect(ctx, dbCfg)
	if err != nil {
		return nil, "", nil, fmt.Errorf("connect database: %w", err)
	}
	return store.NewPostgresStore(pool), authCfg.KeyPrefix, pool.Close, nil
}
