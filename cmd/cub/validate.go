package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lavallee/cub-sub002/internal/graph"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the dependency graph for missing references and cycles",
	Run: func(cmd *cobra.Command, args []string) {
		strict, _ := cmd.Flags().GetBool("strict")

		tasks, err := taskStore().List()
		if err != nil {
			fatalf("%v", err)
		}

		result := graph.Validate(tasks)

		if jsonOutput {
			errs := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				errs = append(errs, e.Error())
			}
			outputJSON(map[string]any{
				"valid":    result.Valid(),
				"errors":   errs,
				"warnings": result.Warnings,
			})
		} else {
			red := color.New(color.FgRed).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			green := color.New(color.FgGreen).SprintFunc()

			for _, e := range result.Errors {
				fmt.Printf("%s %v\n", red("error:"), e)
			}
			for _, w := range result.Warnings {
				fmt.Printf("%s %s\n", yellow("warning:"), w)
			}
			if result.Valid() && len(result.Warnings) == 0 {
				fmt.Printf("%s %d tasks, graph is valid\n", green("+"), len(tasks))
			}
		}

		if !result.Valid() {
			os.Exit(1)
		}
		if strict && len(result.Warnings) > 0 {
			os.Exit(1)
		}
	},
}

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Print tasks in dependency order",
	Run: func(cmd *cobra.Command, args []string) {
		st := taskStore()
		tasks, err := st.List()
		if err != nil {
			fatalf("%v", err)
		}

		order, err := graph.TopologicalOrder(tasks)
		if err != nil {
			fatalf("%v", err)
		}

		if jsonOutput {
			outputJSON(order)
			return
		}
		byID := make(map[string]string, len(tasks))
		for _, t := range tasks {
			byID[t.ID] = t.Title
		}
		for i, id := range order {
			title := byID[id]
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%d. %s: %s\n", i+1, id, title)
		}
	},
}

func init() {
	validateCmd.Flags().Bool("strict", false, "Treat warnings as errors")
	rootCmd.AddCommand(validateCmd, orderCmd)
}
