package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajayykmr/persona-dispatch/internal/batch"
	"github.com/ajayykmr/persona-dispatch/internal/message"
)

var (
	cfgFile     string
	apiURL      string
	requestFile string
	separator   string
	outputFmt   string
	verbose     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dispatch-cli",
	Short: "Preview and send persona batches",
	Long: `dispatch-cli renders persona messages locally or submits a batch to the
dispatch API and prints the per-contact results.`,
	SilenceUsage: true,
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render every contact's message locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := readRequest(requestFile)
		if err != nil {
			return err
		}
		return runPreview(cmd.OutOrStdout(), req, message.Format{Separator: unescape(separator)})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Submit a batch to the dispatch API",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := readRequest(requestFile)
		if err != nil {
			return err
		}
		client := NewClient(apiURL)
		resp, err := client.Send(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printResults(cmd.OutOrStdout(), resp)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dispatch-cli.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "dispatch API base URL")
	rootCmd.PersistentFlags().StringVarP(&requestFile, "file", "f", "", "request JSON file (- for stdin)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "output format (table, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	previewCmd.Flags().StringVar(&separator, "separator", `\n\n`, `separator between opener, body and signature (\n and \t are expanded)`)

	_ = viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("separator", previewCmd.Flags().Lookup("separator"))

	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(sendCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".dispatch-cli")
	}

	viper.SetEnvPrefix("DISPATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.SetDefault("api_url", "http://localhost:8080")
	viper.SetDefault("output", "table")
	viper.SetDefault("separator", `\n\n`)

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}

	apiURL = strings.TrimRight(viper.GetString("api_url"), "/")
	outputFmt = viper.GetString("output")
	separator = viper.GetString("separator")
}

func readRequest(path string) (*batch.Request, error) {
	if path == "" {
		return nil, errors.New("a request file is required (--file)")
	}
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open request file: %w", err)
		}
		defer f.Close()
		r = f
	}
	req, err := batch.Decode(r)
	if err != nil {
		var invalid *batch.InvalidRequestError
		if errors.As(err, &invalid) && len(invalid.Fields) > 0 {
			return nil, fmt.Errorf("%w (fields: %s)", err, fieldList(invalid.Fields))
		}
		return nil, err
	}
	return req, nil
}

func unescape(value string) string {
	return strings.NewReplacer(`\n`, "\n", `\t`, "\t").Replace(value)
}

func logVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] "+format+"\n", args...)
	}
}
