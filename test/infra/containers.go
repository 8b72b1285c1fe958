package infra

import (
	"context"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const defaultImage = "postgres:16-alpine"

// PGContainer is a throwaway Postgres. The zero value stands for a database
// the harness does not own.
type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres returns a DSN for the test database. overrideDSN and then
// DOCKETFLOW_TEST_DSN name an existing database; otherwise a container is
// started from DOCKETFLOW_TEST_IMAGE or postgres 16.
func StartPostgres(ctx context.Context, overrideDSN string) (*PGContainer, string, error) {
	for _, dsn := range []string{overrideDSN, os.Getenv("DOCKETFLOW_TEST_DSN")} {
		if dsn != "" {
			return &PGContainer{}, dsn, nil
		}
	}

	image := os.Getenv("DOCKETFLOW_TEST_IMAGE")
	if image == "" {
		image = defaultImage
	}
	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase("docketflow"),
		postgres.WithUsername(localRole),
		postgres.WithPassword(localRole),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", err
	}

	pg := &PGContainer{C: container}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable", "application_name=docketflow-test")
	if err != nil {
		_ = pg.Terminate(ctx)
		return nil, "", err
	}
	return pg, dsn, nil
}

func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}
