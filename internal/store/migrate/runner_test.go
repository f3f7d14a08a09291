package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_RejectsBadArguments(t *testing.T) {
	assert.Error(t, Run("", "up"))
	assert.ErrorContains(t, Run("postgres://localhost/db", "sideways"), "direction must be up or down")
}

func TestPgxURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/db?sslmode=disable": "pgx5://u:p@localhost:5432/db?sslmode=disable",
		"postgresql://localhost/db":                        "pgx5://localhost/db",
		"pgx5://localhost/db":                              "pgx5://localhost/db",
	}
	for in, want := range tests {
		assert.Equal(t, want, pgxURL(in), in)
	}
}
