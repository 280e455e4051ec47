package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "noysway",
	Short: "A gradient noise image generator",
	Long: `Noysway renders multi-octave gradient noise into 8-bit grayscale images.

It writes single-strip TIFF files, renders tile pyramids into MBTiles
archives, and serves a live preview that regenerates on request.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("log-format", "text", "Log output format (text, json)")
	rootCmd.PersistentFlags().Int64("seed", 0, "Permutation seed (0 keeps the reference permutation)")
	rootCmd.PersistentFlags().String("backend", "improved", "Noise backend (improved, classic)")

	for key, name := range map[string]string{
		"verbose":       "verbose",
		"log.format":    "log-format",
		"noise.seed":    "seed",
		"noise.backend": "backend",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}
}

// initConfig layers config.yaml and NOYSWAY_* environment variables under
// the flags. A missing default config file is not an error; an unreadable
// one named by --config is.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("NOYSWAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	case errors.As(err, &notFound):
	default:
		fmt.Fprintf(os.Stderr, "Ignoring config file %s: %v\n", viper.ConfigFileUsed(), err)
	}
}
