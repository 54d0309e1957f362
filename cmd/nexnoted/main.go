package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nexnote/nexnote/config"
	"github.com/nexnote/nexnote/internal/knowledge"
	srv "github.com/nexnote/nexnote/internal/server"
)

func main() {
	// Optional .env next to the binary; real env always wins.
	_ = godotenv.Load()

	var cfgPath string
	var root = &cobra.Command{Use: "nexnoted"}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (JSON)")

	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return srv.Run(cfg)
		},
	}

	var kb = &cobra.Command{
		Use:   "kb",
		Short: "Inspect or reset the knowledge base",
	}

	var kbStats = &cobra.Command{
		Use:   "stats",
		Short: "Print vector index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfgPath)
			if err != nil {
				return err
			}
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("vectors: %d\ndimension: %d\n", stats.TotalVectorCount, stats.Dimension)
			files, err := store.UploadedFilesApprox(cmd.Context())
			if err != nil {
				return err
			}
			for name, chunks := range files {
				fmt.Printf("%s: %d chunks\n", name, chunks)
			}
			return nil
		},
	}

	var kbClear = &cobra.Command{
		Use:   "clear",
		Short: "Destroy and recreate the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfgPath)
			if err != nil {
				return err
			}
			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("knowledge base cleared")
			return nil
		},
	}

	kb.AddCommand(kbStats, kbClear)
	root.AddCommand(serve, kb)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func openStore(cfgPath string) (knowledge.Store, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if cfg.Pinecone.APIKey == "" {
		return nil, fmt.Errorf("pinecone.api_key not configured")
	}
	store := knowledge.NewPineconeStore(cfg.Pinecone, log.New(log.Writer(), "[PINECONE] ", log.LstdFlags))
	if err := store.EnsureIndex(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}
