package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/config"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository"
	"github.com/tigerroll/go_adhoc_batch/pkg/batch/repository/memory"
)

func TestNewJobRepository_Memory(t *testing.T) {
	cfg := config.NewConfig()

	repo, err := repository.NewJobRepository(context.Background(), *cfg)
	require.NoError(t, err)
	assert.IsType(t, &memory.JobRepository{}, repo)
	assert.NoError(t, repo.Close())
}

func TestNewJobRepository_UnknownDatabaseType(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Database.Type = "oracle"

	_, err := repository.NewJobRepository(context.Background(), *cfg)
	assert.ErrorContains(t, err, "oracle")
}
