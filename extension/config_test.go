package extension_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanhouse123/orderflow"
	"github.com/cleanhouse123/orderflow/extension"
	"github.com/cleanhouse123/orderflow/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := extension.MergeWithDefaults(extension.Config{OverdueGrace: 5 * time.Minute})

	assert.Equal(t, "/orderflow", cfg.BasePath)
	assert.Equal(t, orderflow.DefaultScheduleInterval, cfg.ScheduleInterval)
	assert.Equal(t, 5*time.Minute, cfg.OverdueGrace)
	assert.Equal(t, orderflow.DefaultScheduledDelay, cfg.DefaultScheduledDelay)
	assert.Equal(t, extension.DriverMemory, cfg.Driver)
}

func TestMergeConfigurations(t *testing.T) {
	file := extension.Config{
		BasePath:         "/api/orders",
		ScheduleInterval: time.Minute,
	}
	programmatic := extension.Config{
		BasePath:       "/ignored",
		DisableMigrate: true,
		OverdueGrace:   time.Hour,
		Driver:         extension.DriverPostgres,
	}

	cfg := extension.MergeConfigurations(file, programmatic)

	assert.Equal(t, "/api/orders", cfg.BasePath)
	assert.Equal(t, time.Minute, cfg.ScheduleInterval)
	assert.Equal(t, time.Hour, cfg.OverdueGrace)
	assert.True(t, cfg.DisableMigrate)
	assert.False(t, cfg.DisableRoutes)
	assert.Equal(t, extension.DriverPostgres, cfg.Driver)
	assert.Equal(t, orderflow.DefaultNotificationTimeout, cfg.NotificationTimeout)
}

func TestEngineOptions(t *testing.T) {
	cfg := extension.MergeWithDefaults(extension.Config{})
	assert.Len(t, cfg.EngineOptions(), 4)

	cfg.DisableMigrate = true
	assert.Len(t, cfg.EngineOptions(), 5)
}

func TestOpenStore(t *testing.T) {
	s, err := extension.OpenStore(extension.DriverMemory, nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	s, err = extension.OpenStore("", nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	for _, driver := range []string{extension.DriverPostgres, extension.DriverSQLite, extension.DriverMongo, "cassandra"} {
		_, err := extension.OpenStore(driver, nil)
		assert.Error(t, err, driver)
	}
}
