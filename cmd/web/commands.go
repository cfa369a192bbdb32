package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"finitefield.org/gamified-web/internal/catalog"
	"finitefield.org/gamified-web/internal/platform/config"
	"finitefield.org/gamified-web/internal/platform/observability"
)

func newRootCommand() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "gamified-web",
		Short:         "Gamified game storefront",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with local overrides")

	root.AddCommand(newServeCommand(&envFile))
	root.AddCommand(newCatalogCommand())
	return root
}

func newServeCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the storefront HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, *envFile)
		},
	}
}

func runServe(cmd *cobra.Command, envFile string) error {
	ctx := cmd.Context()
	cfg, err := config.Load(ctx, config.WithEnvFile(envFile))
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	baseLogger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	return serve(ctx, cfg, baseLogger.Named("web"))
}

func newCatalogCommand() *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog data tools",
	}

	catalogCmd.AddCommand(&cobra.Command{
		Use:   "import-markup <file>",
		Short: "Convert rendered catalog markup into the YAML data format",
		Long:  "Scan .card elements in an HTML file and print the equivalent catalog YAML on stdout.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			records, err := catalog.ScanMarkup(f, nil)
			if err != nil {
				return fmt.Errorf("scan %s: %w", args[0], err)
			}
			return catalog.EncodeYAML(cmd.OutOrStdout(), records)
		},
	})
	return catalogCmd
}
