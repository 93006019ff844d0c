package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/warp/rewards-bot/directory"
	"github.com/warp/rewards-bot/store"
)

// Fixture is a YAML file of rows keyed by table header.
//
//	funcionarios:
//	  - {ID: "123.456.789-09", Nome: Ana, Pontos Totais: "300", Saldo: "100", Grupo: B}
//	recompensas:
//	  - {ID: "1", Nome: Caneca, Valor: "50", Grupo: C}
type Fixture struct {
	Employees []map[string]string `yaml:"funcionarios"`
	Rewards   []map[string]string `yaml:"recompensas"`
}

// LoadFixture reads a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture %s: %w", path, err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	return &fx, nil
}

// Apply appends every fixture row to rs. Tables must already exist.
func (fx *Fixture) Apply(ctx context.Context, rs store.RowStore) error {
	for i, row := range fx.Employees {
		if err := rs.AppendRow(ctx, directory.EmployeeTable, row); err != nil {
			return fmt.Errorf("employee %d: %w", i+1, err)
		}
	}
	for i, row := range fx.Rewards {
		if err := rs.AppendRow(ctx, directory.RewardTable, row); err != nil {
			return fmt.Errorf("reward %d: %w", i+1, err)
		}
	}
	return nil
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Write employees and rewards from a fixture into the store",
		Long: `Append the rows of a YAML fixture to the employee and reward tables.

Rows are appended, not merged: running seed twice duplicates them, and the
directory keeps only the first row per identity or code. With --reset the
store is emptied first (sqlite only).

Example:
  rewards-bot seed --store sqlite testdata/fixture.yaml
  rewards-bot seed --store sqlite --reset testdata/fixture.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := LoadFixture(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load fixture", err)
			}
			cfg, err := rootOpts.loadConfig(nil)
			if err != nil {
				return err
			}
			log, err := rootOpts.newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if reset {
				if err := a.reset(cmd.Context()); err != nil {
					code := ExitFailure
					if errors.Is(err, errNoReset) {
						code = ExitCommandError
					}
					return WrapExitError(code, "failed to reset store", err)
				}
			}
			if err := fx.Apply(cmd.Context(), a.store); err != nil {
				return WrapExitError(ExitFailure, "failed to seed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d employees, %d rewards\n", len(fx.Employees), len(fx.Rewards))
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "empty the store before seeding")

	return cmd
}
