package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cfcindia/sermon-rag/internal/api"
	"github.com/cfcindia/sermon-rag/internal/config"
	"github.com/cfcindia/sermon-rag/internal/core"
	"github.com/cfcindia/sermon-rag/internal/dataset"
	"github.com/cfcindia/sermon-rag/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	root := &cobra.Command{
		Use:   "sermon-rag",
		Short: "Question answering over sermon transcripts",
		Long:  "sermon-rag serves a RAG question-answering API over a pre-indexed corpus of sermon transcripts.",
	}

	root.AddCommand(serveCmd())
	root.AddCommand(initStoreCmd())
	root.AddCommand(checkStoreCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadConfig()
			if config.AppConfig.LogLevel == "DEBUG" {
				log.Println("Service starting in DEBUG mode")
			}

			ragService := core.GetRAGService()
			defer ragService.Close()

			// Initialize in the background so /api/health can report
			// "initializing" while the vectorstore loads or builds.
			go func() {
				if err := ragService.Initialize(); err != nil {
					log.Printf("RAG initialization did not complete: %v", err)
				}
			}()

			apiHandler := api.NewAPIHandler(ragService)
			router := api.NewRouter(apiHandler)

			serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)
			srv := &http.Server{
				Addr:         serverAddr,
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 60 * time.Second, // LLM calls can take time
				IdleTimeout:  120 * time.Second,
			}

			go func() {
				log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			log.Println("Shutting down server...")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			log.Println("Server exiting gracefully")
			return nil
		},
	}
}

func initStoreCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init-store",
		Short: "Build the vectorstore from the sermon dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadConfig()
			cfg := config.AppConfig

			if store.Exists(cfg.VectorstorePath) && !force {
				log.Printf("Vectorstore already exists at %s. Use --force to recreate it.", cfg.VectorstorePath)
				return nil
			}

			ctx := cmd.Context()
			llm, err := core.NewLLMService(ctx, cfg.GeminiAPIKey)
			if err != nil {
				return err
			}
			defer llm.Close()

			indexer := core.NewIndexer(llm, core.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap), cfg.EmbeddingDimension, cfg.EmbedBatchSize)
			reader := dataset.NewCSVReader(cfg.DatasetPath)

			var vs *store.VectorStore
			if force {
				vs, err = indexer.ForceRebuild(ctx, cfg.VectorstorePath, reader)
			} else {
				vs, err = indexer.LoadOrBuild(ctx, cfg.VectorstorePath, reader)
			}
			if err != nil {
				return err
			}

			log.Printf("Vectorstore initialized successfully with %d chunks.", vs.Count())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Force recreation of the vectorstore even if it exists")
	return cmd
}

func checkStoreCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check-store",
		Short: "Check the status of the vectorstore",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadConfig()
			cfg := config.AppConfig

			status := map[string]any{
				"path":   cfg.VectorstorePath,
				"exists": store.Exists(cfg.VectorstorePath),
				"loaded": false,
				"ready":  false,
			}

			if status["exists"].(bool) {
				vs, err := store.Load(cfg.VectorstorePath)
				if err != nil {
					status["error"] = err.Error()
				} else {
					status["loaded"] = true
					status["ready"] = vs.Dimension() == cfg.EmbeddingDimension
					status["document_count"] = vs.Count()
					status["dimension"] = vs.Dimension()
				}
			}

			if asJSON {
				out, err := json.MarshalIndent(status, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Println("Vectorstore Status:")
			fmt.Printf("Path: %s\n", status["path"])
			fmt.Printf("Exists: %v\n", status["exists"])
			fmt.Printf("Loaded: %v\n", status["loaded"])
			fmt.Printf("Ready: %v\n", status["ready"])
			if count, ok := status["document_count"]; ok {
				fmt.Printf("Document count: %v\n", count)
			}
			if errMsg, ok := status["error"]; ok {
				fmt.Printf("Error: %v\n", errMsg)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output status as JSON")
	return cmd
}
