package migrate

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGooseLogger_Printf(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	g := gooseLogger{zap.New(core).Sugar().With("component", "migrate")}
	g.Printf("OK   %s (%d ms)", "00001_capsules.sql", 12)

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	require.Equal(t, "OK   00001_capsules.sql (12 ms)", e.Message)
	require.Equal(t, "migrate", e.ContextMap()["component"])
}

func TestUp_BadDSN(t *testing.T) {
	t.Parallel()

	err := Up(t.Context(), "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1", zap.NewNop())
	require.Error(t, err)
}
