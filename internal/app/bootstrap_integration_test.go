package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentops/backend/internal/app"
	"contentops/backend/internal/testutils"
)

func TestBootstrap_Integration(t *testing.T) {
	suite := testutils.NewIntegrationSuite(t, testutils.WithNSQ())
	suite.Setup()
	defer suite.Teardown()

	cfg := suite.GetAppConfig()

	// Migrations already ran in the suite; Bootstrap must treat that as no change.
	deps, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer deps.Close()

	for _, table := range []string{"publishing_jobs", "publish_targets"} {
		var exists bool
		err = deps.DB.QueryRow("SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	assert.NoError(t, deps.NSQProducer.Ping())
}
