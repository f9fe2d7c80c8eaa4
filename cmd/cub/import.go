package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lavallee/cub-sub002/internal/graph"
	"github.com/lavallee/cub-sub002/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace the store with a task document (use - for stdin)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var data []byte
		var err error
		if args[0] == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			fatalf("reading document: %v", err)
		}

		var doc store.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			fatalf("parsing document: %v", err)
		}

		result := graph.Validate(doc.Tasks)
		if !result.Valid() {
			fatalf("document has an invalid dependency graph: %v", result.Err())
		}

		if err := taskStore().Import(&doc); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Imported %d tasks into %s\n", len(doc.Tasks), cfg.Store)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
