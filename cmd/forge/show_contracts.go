package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"codegen-forge/forge/internal/types"
)

var showContractsCmd = &cobra.Command{
	Use:   "show-contracts",
	Short: "Print the frozen contract catalog for the output directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(outputDir, "contracts.json")
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("no frozen catalog found under %s: %w", outputDir, err)
		}
		var contracts []types.Contract
		if err := json.Unmarshal(data, &contracts); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		sort.Slice(contracts, func(i, j int) bool { return contracts[i].FQN() < contracts[j].FQN() })

		for _, c := range contracts {
			fmt.Printf("%s (%s)\n", c.FQN(), c.Kind)
			switch c.Kind {
			case types.ContractEnum:
				fmt.Printf("  members: %v\n", c.Members)
			case types.ContractInterface, types.ContractAbstract:
				for _, m := range c.Methods {
					fmt.Printf("  %s(%v) %s\n", m.Name, m.Params, m.ReturnType)
				}
				if c.IsSealed {
					fmt.Println("  sealed")
				}
			case types.ContractModel:
				for _, p := range c.Properties {
					fmt.Printf("  %s %s\n", p.Name, p.Type)
				}
			}
		}
		return nil
	},
}
