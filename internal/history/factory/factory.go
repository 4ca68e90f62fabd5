package factory

import (
	"errors"
	"strings"

	"github.com/linkfleet/fleetctl/internal/history"
	pg "github.com/linkfleet/fleetctl/internal/history/postgres"
	sq "github.com/linkfleet/fleetctl/internal/history/sqlite"
)

// NewFromDSN selects a history store implementation based on DSN.
// Supported:
//   - sqlite:   "sqlite://<path>" or a bare filesystem path
//   - postgres: DSN starting with "postgres://" or "postgresql://"
func NewFromDSN(dsn string) (history.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty history DSN")
	}
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		return pg.New(d)
	}
	if strings.HasPrefix(ld, "sqlite://") {
		return sq.New(strings.TrimPrefix(d, "sqlite://"))
	}
	// bare path defaults to sqlite
	return sq.New(d)
}
