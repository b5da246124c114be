package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ridopark/decisioncore/internal/playbook"
)

var validatePlaybookCmd = &cobra.Command{
	Use:   "validate-playbook file.yaml",
	Short: "Load and validate a playbook YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pb, err := playbook.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("OK: playbook %q has %d phases, initial phase %q\n", pb.Name, len(pb.Phases), pb.InitialPhase)
		return nil
	},
}
