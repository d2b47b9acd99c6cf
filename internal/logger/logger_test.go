package logger

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogAppliesLevel(t *testing.T) {
	require.NoError(t, InitLog("debug", false))
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.True(t, IsDebugEnabled())

	require.NoError(t, InitLog("WARN", false))
	assert.Equal(t, log.WarnLevel, log.GetLevel())
	assert.False(t, IsDebugEnabled())
}

func TestInitLogFallsBackOnUnknownLevel(t *testing.T) {
	err := InitLog("loud", false)
	require.Error(t, err)
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestCategoryEntriesCarryModuleAndCategory(t *testing.T) {
	require.NotNil(t, IndicationLog)
	assert.Equal(t, moduleNameXapp, IndicationLog.Data["module"])
	assert.Equal(t, "INDICATION", IndicationLog.Data["category"])
	assert.Equal(t, "SUBSCRIPTION", SubscriptionLog.Data["category"])
}
