package db

import (
	"github.com/pkg/errors"

	"github.com/infoagent/infoagent/internal/profile"
	"github.com/infoagent/infoagent/store"
	"github.com/infoagent/infoagent/store/db/postgres"
	"github.com/infoagent/infoagent/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
//
// PostgreSQL is the production driver with pgvector-backed semantic
// search. SQLite is for development and testing; its vector search is a
// brute-force scan and should not be used for large corpora.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'postgres' and 'sqlite' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
