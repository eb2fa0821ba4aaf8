package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/etlabplus/internal/profile"
	"github.com/hrygo/etlabplus/store"
	"github.com/hrygo/etlabplus/store/db/memory"
	"github.com/hrygo/etlabplus/store/db/postgres"
	"github.com/hrygo/etlabplus/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
//
// sqlite is the default for a single device. postgres lets several devices
// share one cache. memory keeps nothing across restarts and backs tests.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	case "memory":
		driver = memory.NewDB()
	default:
		return nil, errors.Errorf("unknown db driver %q: supported drivers are sqlite, postgres and memory", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
