package sheets

import (
	"context"
	"leasedash/internal/core"
)

// Ports for outbound adapters.
type (
	// TableFetcher reads a named table as a rectangular grid of text cells.
	// Row 0 is the header. Implementations never write to the source.
	TableFetcher interface {
		FetchTable(ctx context.Context, name string) ([][]string, error)
	}

	// TableLoader returns normalized tables, possibly from a cache.
	TableLoader interface {
		Load(ctx context.Context, name string) (*core.Table, error)
	}

	// Pinger checks that the data source is reachable.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
