package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/macrosolve/macrosolve/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <model-file>",
		Short: "Validate a model file without solving it",
		Long: `Validate a model file and its solver configuration.

This command checks:
  - YAML/CUE syntax and schema conformance
  - Matrix shapes against the declared state and shock dimensions
  - Regime references and credibility weight consistency
  - Guardrail policy compliance (OPA/rego)`,
		Example: `  # Validate a YAML model
  msolve validate ./models/ar1.yaml

  # Validate a CUE model against extra policies
  msolve validate --policy-dir ./policies ./models/policy-switch.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			mf, err := loadModel(ctx, path)
			if err != nil {
				return err
			}

			m, err := config.BuildModel(mf, config.NewStarlarkEvaluator(0))
			if err != nil {
				return fmt.Errorf("model %s is structurally invalid: %w", mf.Name, err)
			}

			cfg := m.SolverConfig()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("model %s has an invalid solver configuration: %w", m.Name(), err)
			}
			regimes := 1
			if cfg.RegimeSwitching {
				regimes = cfg.Regimes
			}
			reg := m.Registry()
			if err := reg.Validate(regimes); err != nil {
				return fmt.Errorf("model %s has an invalid policy registry: %w", m.Name(), err)
			}

			if err := checkGuardrails(ctx, log.Logger, nil, buildRequest(mf, m), "validate"); err != nil {
				return err
			}

			log.Info().
				Str("model", m.Name()).
				Int("regimes", regimes).
				Int("states", m.CoreStates()).
				Msg("Model is valid")
			fmt.Printf("model %s is valid (%d regimes, %d states)\n", m.Name(), regimes, m.CoreStates())

			return nil
		},
	}

	return cmd
}
