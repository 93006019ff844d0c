package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rewards-bot/config"
	"github.com/warp/rewards-bot/store"
	"github.com/warp/rewards-bot/store/sqlite"
)

// run executes the root command with args and stdin, returning stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("STORE_DRIVER", "")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "rewards-bot", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "chat", "reload", "seed"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	config := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, config)
	assert.Equal(t, "c", config.Shorthand)
	assert.Equal(t, "", config.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("store"))
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	port := serve.Flags().Lookup("port")
	require.NotNil(t, port)
	assert.Equal(t, "p", port.Shorthand)
	assert.Equal(t, "0", port.DefValue)
	require.NotNil(t, serve.Flags().Lookup("seed"))
}

func TestChat_Redemption(t *testing.T) {
	// GIVEN: an in-memory store seeded from the fixture
	// WHEN: a requester identifies and picks the mug
	out, err := run(t, "oi\n123.456.789-09\n1\n",
		"chat", "--config", "testdata/memory.yaml", "--seed", "testdata/fixture.yaml")

	// THEN: greeting, catalog and receipt are printed in order
	require.NoError(t, err)
	greet := strings.Index(out, "🤖 Olá! Digite seu CPF:")
	menu := strings.Index(out, "1 - Caneca (50) ✅")
	receipt := strings.Index(out, "📋 NOTA DE RESGATE")
	require.True(t, greet >= 0 && menu > greet && receipt > menu, out)
	assert.Contains(t, out, "💰 Saldo restante: 50")
}

func TestChat_Exit(t *testing.T) {
	out, err := run(t, "oi\n12345678909\nsair\n",
		"chat", "--config", "testdata/memory.yaml", "--seed", "testdata/fixture.yaml")

	require.NoError(t, err)
	assert.Contains(t, out, "Conversa encerrada.")
}

func TestSeedThenReload(t *testing.T) {
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "rewards.db"))

	out, err := run(t, "", "seed", "--config", "testdata/memory.yaml", "--store", "sqlite", "testdata/fixture.yaml")
	require.NoError(t, err)
	assert.Equal(t, "seeded 2 employees, 3 rewards\n", out)

	out, err = run(t, "", "reload", "--config", "testdata/memory.yaml", "--store", "sqlite")
	require.NoError(t, err)
	assert.Equal(t, "funcionarios: 2\nrecompensas: 3\n", out)
}

func TestSeedReset(t *testing.T) {
	// GIVEN: a sqlite store seeded with the full fixture
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "rewards.db"))
	_, err := run(t, "", "seed", "--config", "testdata/memory.yaml", "--store", "sqlite", "testdata/fixture.yaml")
	require.NoError(t, err)

	small := filepath.Join(t.TempDir(), "small.yaml")
	require.NoError(t, os.WriteFile(small, []byte(`funcionarios:
  - {ID: "52998224725", Nome: Eva, Saldo: "10", Grupo: A}
recompensas:
  - {ID: "9", Nome: Adesivo, Valor: "5", Grupo: C}
`), 0o644))

	// WHEN: a smaller fixture is seeded with --reset
	out, err := run(t, "", "seed", "--config", "testdata/memory.yaml", "--store", "sqlite", "--reset", small)
	require.NoError(t, err)
	assert.Equal(t, "seeded 1 employees, 1 rewards\n", out)

	// THEN: only the new rows remain
	out, err = run(t, "", "reload", "--config", "testdata/memory.yaml", "--store", "sqlite")
	require.NoError(t, err)
	assert.Equal(t, "funcionarios: 1\nrecompensas: 1\n", out)
}

func TestAppPing(t *testing.T) {
	// GIVEN: an app over a sqlite backend
	st, err := sqlite.New(filepath.Join(t.TempDir(), "ping.db"))
	require.NoError(t, err)
	a := &app{cfg: config.Defaults(), backend: st}

	// THEN: it answers while open and fails once closed
	require.NoError(t, a.ping(context.Background()))
	require.NoError(t, st.Close())
	assert.Error(t, a.ping(context.Background()))

	// AND: stores without Ping pass
	a.backend = store.NewMemory()
	assert.NoError(t, a.ping(context.Background()))
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown driver", []string{"reload", "--config", "testdata/memory.yaml", "--store", "bogus"}, ExitCommandError},
		{"missing config", []string{"reload", "--config", "testdata/nope.yaml"}, ExitCommandError},
		{"missing fixture", []string{"seed", "--config", "testdata/memory.yaml", "testdata/nope.yaml"}, ExitCommandError},
		{"reset memory", []string{"seed", "--config", "testdata/memory.yaml", "--reset", "testdata/fixture.yaml"}, ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, "", tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
		})
	}
}

func TestLoadFixture(t *testing.T) {
	fx, err := LoadFixture("testdata/fixture.yaml")
	require.NoError(t, err)
	require.Len(t, fx.Employees, 2)
	assert.Equal(t, "Ana Silva", fx.Employees[0]["Nome"])
	assert.Equal(t, "300", fx.Employees[0]["Pontos Totais"])
	require.Len(t, fx.Rewards, 3)
}
