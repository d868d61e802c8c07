package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"codeberg.org/snonux/backtrans/internal"
)

// CreateRootCommand creates and configures the root cobra command
func CreateRootCommand(flags *Flags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "backtrans [text]",
		Short: "Back-translation quality checker",
		Long: `backtrans translates text into an intermediate language and back again,
then scores how much meaning survived the round trip using BLEU.

Translations are cached in a translation memory so repeated and
near-identical texts do not hit the provider again.

Examples:
  backtrans "The cat sat on the mat"          # en -> ja -> en with a quality report
  backtrans -i de "Good morning"               # use German as the intermediate language
  backtrans --translate-only -i fr "Hello"    # one-way translation
  backtrans --batch texts.txt --workers 8      # process a file, one text per line
  backtrans --stats                            # show translation memory statistics
  backtrans --serve :8080                      # run the HTTP API`,
		Args:    cobra.MaximumNArgs(1),
		Version: internal.Version,
	}

	// Set up flags
	setupFlags(rootCmd, flags)

	return rootCmd
}

func setupFlags(cmd *cobra.Command, flags *Flags) {
	// Global flags
	cmd.PersistentFlags().StringVar(&flags.CfgFile, "config", "", "config file (default is $HOME/.backtrans.yaml)")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable debug logging")

	// Translation flags
	cmd.Flags().StringVarP(&flags.SourceLang, "source", "s", flags.SourceLang, "Source language code")
	cmd.Flags().StringVarP(&flags.IntermediateLang, "intermediate", "i", flags.IntermediateLang, "Intermediate language code")
	cmd.Flags().BoolVar(&flags.TranslateOnly, "translate-only", false, "Translate source -> intermediate only, without scoring")
	cmd.Flags().BoolVar(&flags.Report, "report", false, "Print the full quality report")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Print results as JSON")
	cmd.Flags().StringVar(&flags.Export, "export", "", "Write batch results or history listings to a CSV file")
	cmd.Flags().StringVar(&flags.Provider, "provider", flags.Provider, "Translation provider: google_unofficial, google_official, local")
	cmd.Flags().StringVar(&flags.UserAgent, "user-agent", "", "User-Agent header sent to the provider")
	cmd.Flags().IntVar(&flags.MaxAttempts, "retries", flags.MaxAttempts, "Maximum attempts per provider call")

	// Cache flags
	cmd.Flags().StringVar(&flags.CachePath, "cache", "", "Translation memory file (default is $HOME/.local/state/backtrans/tm.json)")
	cmd.Flags().StringVar(&flags.CacheBackend, "cache-backend", flags.CacheBackend, "Translation memory backend: json or sqlite")
	cmd.Flags().IntVar(&flags.CacheSize, "cache-size", flags.CacheSize, "Maximum number of cached translations")
	cmd.Flags().Float64Var(&flags.Threshold, "threshold", flags.Threshold, "Fuzzy match similarity threshold (0..1]")
	cmd.Flags().BoolVar(&flags.Fuzzy, "fuzzy", flags.Fuzzy, "Reuse translations of similar cached texts")
	cmd.Flags().BoolVar(&flags.Stats, "stats", false, "Print translation memory statistics")
	cmd.Flags().BoolVar(&flags.ClearCache, "clear-cache", false, "Remove all cached translations")
	cmd.Flags().BoolVar(&flags.ArchiveCache, "archive-cache", false, "Move the cache file to an archive directory before clearing it")
	cmd.Flags().StringVar(&flags.SearchCache, "search-cache", "", "List cached translations containing a substring")

	// Batch flags
	cmd.Flags().StringVar(&flags.BatchFile, "batch", "", "Process texts from file (one per line)")
	cmd.Flags().IntVar(&flags.Workers, "workers", flags.Workers, "Concurrent batch workers")

	// History flags
	cmd.Flags().BoolVar(&flags.History, "history", false, "Record back-translations in the history database")
	cmd.Flags().StringVar(&flags.HistoryPath, "history-db", "", "History database (default is $HOME/.local/state/backtrans/history.db)")
	cmd.Flags().BoolVar(&flags.ListHistory, "list-history", false, "List recent back-translations")
	cmd.Flags().StringVar(&flags.SearchHistory, "search-history", "", "Search recorded back-translations")

	// Server flags
	cmd.Flags().StringVar(&flags.ServeAddr, "serve", "", "Serve the HTTP API on this address (e.g. :8080)")

	// Bind flags to viper
	bindFlagsToViper(cmd)
}

func bindFlagsToViper(cmd *cobra.Command) {
	viper.BindPFlag("language.source", cmd.Flags().Lookup("source"))
	viper.BindPFlag("language.intermediate", cmd.Flags().Lookup("intermediate"))
	viper.BindPFlag("provider.id", cmd.Flags().Lookup("provider"))
	viper.BindPFlag("provider.user_agent", cmd.Flags().Lookup("user-agent"))
	viper.BindPFlag("retry.max_attempts", cmd.Flags().Lookup("retries"))
	viper.BindPFlag("cache.path", cmd.Flags().Lookup("cache"))
	viper.BindPFlag("cache.backend", cmd.Flags().Lookup("cache-backend"))
	viper.BindPFlag("cache.max_size", cmd.Flags().Lookup("cache-size"))
	viper.BindPFlag("cache.threshold", cmd.Flags().Lookup("threshold"))
	viper.BindPFlag("cache.fuzzy", cmd.Flags().Lookup("fuzzy"))
	viper.BindPFlag("batch.workers", cmd.Flags().Lookup("workers"))
	viper.BindPFlag("history.path", cmd.Flags().Lookup("history-db"))
	viper.BindPFlag("serve.addr", cmd.Flags().Lookup("serve"))
}

// SetDefaults registers the default value of every configuration key
func SetDefaults() {
	viper.SetDefault("cache.backend", BackendJSON)
	viper.SetDefault("cache.max_size", 1000)
	viper.SetDefault("cache.threshold", 0.8)
	viper.SetDefault("cache.fuzzy", true)
	viper.SetDefault("retry.max_attempts", 4)
	viper.SetDefault("retry.base_delay", 300*time.Millisecond)
	viper.SetDefault("retry.max_delay", 30*time.Second)
	viper.SetDefault("provider.id", "google_unofficial")
	viper.SetDefault("provider.timeout", 20*time.Second)
	viper.SetDefault("breaker.threshold", 5)
	viper.SetDefault("breaker.timeout", 30*time.Second)
	viper.SetDefault("chunk.size", 5000)
	viper.SetDefault("chunk.delay", 200*time.Millisecond)
	viper.SetDefault("bleu.max_ngram", 4)
	viper.SetDefault("batch.workers", 4)
	viper.SetDefault("language.source", "en")
	viper.SetDefault("language.intermediate", "ja")
}

// InitConfig initializes viper configuration
func InitConfig(cfgFile string) {
	SetDefaults()

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
			return
		}

		// Search config in home directory with name ".backtrans" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".backtrans")
	}

	// Environment variables
	viper.SetEnvPrefix("BACKTRANS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// GetAPIKey retrieves the provider API key from environment or config
func GetAPIKey() string {
	// First check environment variable
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		return key
	}

	// Then check config file
	return viper.GetString("provider.api_key")
}

// StateDir is where the translation memory and history live by default
func StateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".backtrans")
	}
	return filepath.Join(home, ".local", "state", "backtrans")
}
