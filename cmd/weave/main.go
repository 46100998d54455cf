package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"weave/pkg/config"
	"weave/pkg/federation"
	"weave/pkg/fragment"
	"weave/pkg/identity"
	"weave/pkg/match"
	"weave/pkg/registry"
	"weave/pkg/server"
	"weave/pkg/services"
	"weave/pkg/transport"
	"weave/pkg/types"
)

var version = "0.3.0"

var (
	configFile string
	verbose    bool
)

func main() {
	// Best effort; a missing .env is fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "weave",
		Short: "Privacy-preserving federated knowledge sharing",
		Long: `A federation node that shares anonymized knowledge fragments with peers.
Only concepts, themes and truncated embeddings are exchanged — raw content
never leaves the node.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(
		startCmd(),
		discoverCmd(),
		statusCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Join the federation and serve peers until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			node, cleanup, err := buildNode(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			docs, err := loadDocuments(cfg.Node.DocumentsFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := node.proto.Start(ctx, docs); err != nil {
				return fmt.Errorf("failed to start federation: %w", err)
			}
			defer node.proto.Stop()

			if err := node.archive.Save(node.store); err != nil {
				logger.Warn("could not archive fragments", zap.Error(err))
			}

			if cfg.HTTP.Address != "" {
				srv := server.New(cfg.HTTP.Address, node.proto, logger)
				go func() {
					if err := srv.ListenAndServe(ctx); err != nil {
						logger.Error("stats server failed", zap.Error(err))
					}
				}()
				logger.Info("stats surface listening", zap.String("address", cfg.HTTP.Address))
			}

			<-ctx.Done()
			logger.Info("shutting down")
			return nil
		},
	}
}

func discoverCmd() *cobra.Command {
	var method string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run one discovery round and print the peers found",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			node, cleanup, err := buildNode(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := node.proto.Start(ctx, nil); err != nil {
				return fmt.Errorf("failed to start federation: %w", err)
			}
			defer node.proto.Stop()

			peers, err := node.proto.DiscoverPeers(ctx, method)
			if err != nil {
				return err
			}
			printPeers(peers)
			return nil
		},
	}
	cmd.Flags().StringVar(&method, "method", federation.DiscoverLocalBroadcast, "discovery method (local_broadcast, dht, bootstrap)")
	return cmd
}

func statusCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running node",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(fmt.Sprintf("http://%s/stats", addr))
			if err != nil {
				return fmt.Errorf("node unreachable at %s: %w", addr, err)
			}
			defer resp.Body.Close()

			var stats types.FederationStats
			if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
				return fmt.Errorf("failed to decode stats: %w", err)
			}

			fmt.Println(renderStats(stats))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8448", "stats address of the running node")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("weave %s\n", version)
		},
	}
}

func printPeers(peers []types.FederationNode) {
	if len(peers) == 0 {
		fmt.Println("no peers found")
		return
	}
	for _, p := range peers {
		fmt.Printf("%s  %s  trust=%.2f  concepts=%d\n",
			p.NodeID, p.Address, p.TrustScore, len(p.SharedConcepts))
	}
}

// runningNode bundles the wired components behind a start/discover command.
type runningNode struct {
	proto   *federation.Protocol
	store   *fragment.Store
	archive *fragment.Archive
}

func buildNode(cfg *config.Config, logger *zap.Logger) (*runningNode, func(), error) {
	id, err := identity.LoadOrCreate(cfg.Node.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load identity: %w", err)
	}
	logger.Info("initialized federation node", zap.String("node_id", string(id.NodeID())))

	store := fragment.NewStore()

	archive, err := fragment.OpenArchive(cfg.Node.DataDir, id, logger)
	if err != nil {
		return nil, nil, err
	}
	if restored, err := archive.Load(store); err != nil {
		logger.Warn("could not restore archived fragments", zap.Error(err))
	} else if restored > 0 {
		logger.Info("restored archived fragments", zap.Int("count", restored))
	}

	var embedder services.Embedder
	var synth services.Synthesizer
	if key := cfg.Services.OpenAIAPIKey; key != "" {
		embedder = services.NewOpenAIEmbedder(key, cfg.Services.EmbeddingModel)
		synth = services.NewOpenAISynthesizer(key, cfg.Services.SynthesisModel)
	} else {
		logger.Warn("no API key configured; embedding and synthesis unavailable")
	}

	builder := fragment.NewBuilder(id.NodeID(), store, embedder, nil, nil,
		types.PrivacyLevel(cfg.Node.PrivacyLevel), logger)
	matcher := match.NewMatcher(id.NodeID(), embedder, logger)
	reg := registry.New(logger)

	tr, err := transport.NewUDP(cfg.Node.Port, logger)
	if err != nil {
		archive.Close()
		return nil, nil, err
	}

	proto := federation.New(cfg, id, store, reg, builder, matcher, tr, synth, logger)

	cleanup := func() {
		tr.Close()
		archive.Close()
	}
	return &runningNode{proto: proto, store: store, archive: archive}, cleanup, nil
}

// loadDocuments reads the ingestion pipeline's output: a JSON array of
// document records keyed here by title.
func loadDocuments(path string) (map[string]types.Document, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents file: %w", err)
	}
	var docs []types.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse documents file: %w", err)
	}
	byTitle := make(map[string]types.Document, len(docs))
	for _, d := range docs {
		byTitle[d.Title] = d
	}
	return byTitle, nil
}
