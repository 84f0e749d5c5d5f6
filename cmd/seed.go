package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/re-ink/intake/internal/review"
)

var seedFile string

// seedFixture is the YAML shape for seeding records.
type seedFixture struct {
	Contracts []struct {
		Contract review.ContractDraft `yaml:"contract"`
		Parties  []review.PartyDraft  `yaml:"parties"`
	} `yaml:"contracts"`
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load contracts and parties from a YAML fixture",
	Long:  "Reads a fixture file and creates each contract with its parties through the same validation as the API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(seedFile)
		if err != nil {
			return eris.Wrapf(err, "seed: read %s", seedFile)
		}
		var fixture seedFixture
		if err := yaml.Unmarshal(data, &fixture); err != nil {
			return eris.Wrap(err, "seed: parse fixture")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "seed: migrate")
		}

		engine := review.NewEngine(st, st)
		created := 0
		for _, entry := range fixture.Contracts {
			res, err := engine.CreateManualContract(ctx, entry.Contract, entry.Parties, true)
			if err != nil {
				return eris.Wrapf(err, "seed: contract %s", entry.Contract.ContractNumber)
			}
			zap.L().Info("seeded contract",
				zap.String("contract_number", entry.Contract.ContractNumber),
				zap.Int64("contract_id", res.ContractID),
				zap.Int("parties", len(res.PartyIDs)),
			)
			created++
		}

		zap.L().Info("seed complete", zap.Int("contracts", created))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "seed.yaml", "fixture file to load")
	rootCmd.AddCommand(seedCmd)
}
