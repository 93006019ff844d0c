package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(t *testing.T) (*Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return FromZap(zap.New(core), "pepper"), logs
}

func TestLogger_HashesPersonalData(t *testing.T) {
	log, logs := observed(t)

	log.Info("redeemed", "identity", "12345678909", "channel", "5511999990000@c.us", "cost", 50)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, HashValue("pepper", "12345678909"), fields["identity"])
	assert.NotContains(t, fields["channel"], "5511")
	assert.EqualValues(t, 50, fields["cost"])
}

func TestLogger_RedactsSecrets(t *testing.T) {
	log, logs := observed(t)

	log.With("credentials", `{"private_key":"x"}`).Warn("sheets unavailable")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["credentials"])
}

func TestHashValue(t *testing.T) {
	a := HashValue("s", "111")
	assert.Len(t, a, len("hash:")+12)
	assert.Equal(t, a, HashValue("s", "111"), "stable for the same input")
	assert.NotEqual(t, a, HashValue("t", "111"), "salted")
	assert.Equal(t, "", HashValue("s", ""))
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().With("service", "x").Error("ignored", "cpf", "1") })
}
