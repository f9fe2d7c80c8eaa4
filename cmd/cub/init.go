package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lavallee/cub-sub002/internal/config"
	"github.com/lavallee/cub-sub002/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a .cub directory with an empty task store and config",
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		storePath := cfg.Store
		if !confirmOverwrite(storePath, force) {
			fatalf("%s already exists (use --force to overwrite)", storePath)
		}

		st := store.NewFileStore(storePath)
		if err := st.Import(&store.Document{}); err != nil {
			fatalf("creating task store: %v", err)
		}

		for _, dir := range []string{cfg.ArtifactsDir(), cfg.StateDir()} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				fatalf("creating %s: %v", dir, err)
			}
		}

		configPath := filepath.Join(cfg.WorkDir(), "config.yaml")
		if confirmOverwrite(configPath, force) {
			if err := config.Save(cfg, configPath); err != nil {
				fatalf("writing config: %v", err)
			}
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Initialized %s\n", green("+"), cfg.WorkDir())
		fmt.Printf("  store:  %s\n", storePath)
		fmt.Printf("  config: %s\n", configPath)
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}
