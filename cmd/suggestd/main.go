// suggestd turns batches of process feedback into grounded improvement
// suggestions, and maintains the vector collections the retrieval stage
// searches.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"processlens/internal/config"
)

var (
	configFile string
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "suggestd",
	Short: "Generate grounded improvement suggestions from process feedback",
	Long: `suggestd extracts process weaknesses from feedback texts, deduplicates
them batch-wide by clustering, retrieves grounding context from indexed
feedback, scientific papers and web search, and generates one improvement
suggestion per weakness cluster plus a synthesized answer per feedback item.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file overlaying the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(indexCmd)
}

// loadConfig builds the effective configuration from the environment and the
// optional overlay file, and validates it. This is the pipeline's only fatal
// error path.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if configFile != "" {
		if err := cfg.ApplyFile(configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
