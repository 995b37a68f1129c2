package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/utxoracle/utxoracled/blkfile"
	"github.com/utxoracle/utxoracled/common"
	"github.com/utxoracle/utxoracled/frontend"
	"github.com/utxoracle/utxoracled/oracle"
	"github.com/utxoracle/utxoracled/render"
	"github.com/utxoracle/utxoracled/storage"
)

// Exit codes, part of the CLI contract.
const (
	exitOK         = 0
	exitConfig     = 1
	exitDateRange  = 2
	exitRPCFailure = 3
	exitBlockData  = 4
)

var cfgFile string
var logger = logrus.New()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "utxoracled",
	Short: "Utxoracled estimates the daily USD/BTC price from your own node's blocks",
	Long: `Utxoracled reads the raw blocks of a chosen UTC day from a local
Bitcoin Core node and recovers the day's USD/BTC price from the
round-USD spikes in the output amount distribution, with no
external price feed.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := &common.Options{
			DataDir:         viper.GetString("data-dir"),
			BlocksDir:       viper.GetString("blocks-dir"),
			BitcoinConfPath: viper.GetString("bitcoin-conf-path"),
			RPCUser:         viper.GetString("rpcuser"),
			RPCPassword:     viper.GetString("rpcpassword"),
			RPCHost:         viper.GetString("rpchost"),
			RPCPort:         viper.GetString("rpcport"),
			LogLevel:        viper.GetUint64("log-level"),
			LogFile:         viper.GetString("log-file"),
			MetricsBindAddr: viper.GetString("metrics-addr"),
			TargetDate:      viper.GetString("date"),
			RecentBlocks:    viper.GetBool("recent-blocks"),
			NoStore:         viper.GetBool("nostore"),
			NoBrowser:       viper.GetBool("nobrowser"),
		}

		common.Log.Debugf("Options: %#v\n", opts)
		os.Exit(run(opts))
	},
}

// defaultBitcoinDir returns the platform's Bitcoin Core data directory.
func defaultBitcoinDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Bitcoin")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Bitcoin")
	default:
		return filepath.Join(home, ".bitcoin")
	}
}

func run(opts *common.Options) int {
	if opts.LogFile != "" {
		// instead write parsable logs for logstash/splunk/etc
		output, err := os.OpenFile(opts.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			common.Log.WithFields(logrus.Fields{
				"error": err,
				"path":  opts.LogFile,
			}).Error("couldn't open log file")
			return exitConfig
		}
		defer output.Close()
		logger.SetOutput(output)
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	logger.SetLevel(logrus.Level(opts.LogLevel))

	common.Log.WithFields(logrus.Fields{
		"gitCommit": common.GitCommit,
		"buildDate": common.BuildDate,
		"buildUser": common.BuildUser,
	}).Infof("Starting utxoracled version %s", common.Version)

	// Resolve the target window before touching the node.
	target := oracle.Target{Recent: opts.RecentBlocks}
	if !opts.RecentBlocks {
		var err error
		target.Date, err = parseTargetDate(opts.TargetDate)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error interpreting date. Make sure the format is YYYY/MM/DD")
			return exitConfig
		}
	}

	// RPC credentials: explicit flags win, otherwise bitcoin.conf (or
	// its cookie file).
	bitcoinDir := defaultBitcoinDir()
	confPath := opts.BitcoinConfPath
	if confPath == "" {
		confPath = filepath.Join(bitcoinDir, "bitcoin.conf")
	}
	var rpcClient *rpcclient.Client
	var err error
	if opts.RPCUser != "" && opts.RPCPassword != "" && opts.RPCHost != "" {
		rpcClient, err = frontend.NewRPCFromFlags(opts)
	} else {
		rpcClient, err = frontend.NewRPCFromConf(confPath)
	}
	if err != nil {
		common.Log.WithFields(logrus.Fields{
			"error": err,
		}).Error("setting up RPC connection to " + common.NodeName)
		return exitConfig
	}
	// Indirect function for test mocking (so unit tests can talk to stub functions).
	common.RawRequest = rpcClient.RawRequest

	// Ensure that we can communicate with bitcoind.
	common.FirstRPC()

	blocksDir := opts.BlocksDir
	if blocksDir == "" {
		if conf, err := frontend.ReadNodeConf(confPath); err == nil && conf.BlocksDir != "" {
			blocksDir = conf.BlocksDir
		} else {
			blocksDir = filepath.Join(bitcoinDir, "blocks")
		}
	}

	if opts.MetricsBindAddr != "" {
		common.StartMetricsServer(opts.MetricsBindAddr)
	}

	var db *sql.DB
	if !opts.NoStore {
		if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
			os.Stderr.WriteString(fmt.Sprintf("\n  ** Can't create data directory: %s\n\n", opts.DataDir))
			return exitConfig
		}
		dbPath := filepath.Join(opts.DataDir, "utxoracle.db")
		db, err = sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=10000", dbPath))
		if err != nil {
			common.Log.WithFields(logrus.Fields{
				"db_path": dbPath,
				"error":   err,
			}).Error("couldn't open SQL db")
			return exitConfig
		}
		defer db.Close()
		db.SetMaxOpenConns(1)
		if err := storage.CreateTables(db); err != nil {
			common.Log.WithFields(logrus.Fields{
				"error": err,
			}).Error("couldn't create SQL tables")
			return exitConfig
		}

		// A date that has been priced before needs no new run: the
		// result is consensus data and cannot change.
		if !target.Recent {
			if cached, err := storage.GetPrice(db, target.Date.Format("2006-01-02")); err == nil && cached != nil {
				printPrice(cached)
				return exitOK
			}
		}
	}

	// Signal handler for graceful stops: partial results are discarded.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var locations oracle.LocationCache
	if db != nil {
		locations = &storage.LocationStore{DB: db}
	}
	result, points, err := oracle.InferPrice(ctx, target, blocksDir, locations)
	if err != nil {
		common.Log.WithFields(logrus.Fields{
			"error": err,
		}).Error("price inference failed")
		fmt.Fprintln(os.Stderr, err)
		return classifyExit(err)
	}

	if db != nil {
		if err := storage.StorePrice(db, result); err != nil {
			common.Log.WithFields(logrus.Fields{
				"error": err,
			}).Warn("couldn't store price result")
		}
	}

	htmlPath, err := render.WriteChart(result, points, ".")
	if err != nil {
		common.Log.WithFields(logrus.Fields{
			"error": err,
		}).Warn("couldn't write chart")
	} else {
		fmt.Println("Wrote", htmlPath)
		if !opts.NoBrowser {
			openBrowser(htmlPath)
		}
	}

	printPrice(result)
	return exitOK
}

// parseTargetDate interprets -d YYYY/MM/DD as a UTC midnight; an empty
// value selects the most recent completed UTC day.
func parseTargetDate(arg string) (time.Time, error) {
	if arg == "" {
		now := common.Time.Now().UTC()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return midnight.AddDate(0, 0, -1), nil
	}
	return time.Parse("2006/01/02", arg)
}

func printPrice(result *oracle.PriceResult) {
	label := result.Window()
	if result.Date != "" {
		d, _ := time.Parse("2006-01-02", result.Date)
		label = d.Format("Jan 02, 2006")
	}
	fmt.Printf("\n\n\t\t%s price: $%s\n\n", label, formatThousands(result.Price))
}

// formatThousands renders 1234567 as "1,234,567".
func formatThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	return strings.Join(append([]string{s}, parts...), ",")
}

// classifyExit maps pipeline errors onto the CLI exit-code contract.
func classifyExit(err error) int {
	switch {
	case errors.Is(err, common.ErrDateTooRecent), errors.Is(err, common.ErrDateTooOld):
		return exitDateRange
	case errors.Is(err, blkfile.ErrBlocksNotFound), errors.Is(err, blkfile.ErrXorRequired),
		errors.Is(err, oracle.ErrEmptyHistogram):
		return exitBlockData
	}
	var rpcErr *common.RPCError
	if errors.As(err, &rpcErr) {
		return exitRPCFailure
	}
	// Anything else came out of the block-data path (parse failures,
	// unreadable files).
	return exitBlockData
}

// openBrowser serves the written chart into the local browser,
// best effort.
func openBrowser(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	url := "file://" + abs
	switch runtime.GOOS {
	case "darwin":
		_ = exec.Command("open", url).Start()
	case "windows":
		_ = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		_ = exec.Command("xdg-open", url).Start()
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(exitConfig)
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is current directory, utxoracled.yml)")
	rootCmd.Flags().StringP("date", "d", "", "UTC date to evaluate (YYYY/MM/DD, default latest completed day)")
	rootCmd.Flags().StringP("blocks-dir", "p", "", "override the Bitcoin Core blocks directory")
	rootCmd.Flags().Bool("recent-blocks", false, "use the last 144 blocks instead of a date")
	rootCmd.Flags().String("bitcoin-conf-path", "", "conf file to pull RPC creds from (default <datadir>/bitcoin.conf)")
	rootCmd.Flags().String("rpcuser", "", "RPC user name")
	rootCmd.Flags().String("rpcpassword", "", "RPC password")
	rootCmd.Flags().String("rpchost", "", "RPC host")
	rootCmd.Flags().String("rpcport", "", "RPC host port")
	rootCmd.Flags().Int("log-level", int(logrus.InfoLevel), "log level (logrus 0-6)")
	rootCmd.Flags().String("log-file", "", "log file to write to")
	rootCmd.Flags().String("metrics-addr", "", "expose prometheus /metrics on this address")
	rootCmd.Flags().String("data-dir", "./utxoracle-data", "data directory (results db)")
	rootCmd.Flags().Bool("nostore", false, "don't persist results to the local db")
	rootCmd.Flags().Bool("nobrowser", false, "don't open the chart in a browser")

	// --rb (the original tool's -rb) is accepted as --recent-blocks.
	rootCmd.Flags().SetNormalizeFunc(normalizeFlag)

	viper.BindPFlag("date", rootCmd.Flags().Lookup("date"))
	viper.BindPFlag("blocks-dir", rootCmd.Flags().Lookup("blocks-dir"))
	viper.BindPFlag("recent-blocks", rootCmd.Flags().Lookup("recent-blocks"))
	viper.SetDefault("recent-blocks", false)
	viper.BindPFlag("bitcoin-conf-path", rootCmd.Flags().Lookup("bitcoin-conf-path"))
	viper.BindPFlag("rpcuser", rootCmd.Flags().Lookup("rpcuser"))
	viper.BindPFlag("rpcpassword", rootCmd.Flags().Lookup("rpcpassword"))
	viper.BindPFlag("rpchost", rootCmd.Flags().Lookup("rpchost"))
	viper.BindPFlag("rpcport", rootCmd.Flags().Lookup("rpcport"))
	viper.BindPFlag("log-level", rootCmd.Flags().Lookup("log-level"))
	viper.SetDefault("log-level", int(logrus.InfoLevel))
	viper.BindPFlag("log-file", rootCmd.Flags().Lookup("log-file"))
	viper.BindPFlag("metrics-addr", rootCmd.Flags().Lookup("metrics-addr"))
	viper.BindPFlag("data-dir", rootCmd.Flags().Lookup("data-dir"))
	viper.SetDefault("data-dir", "./utxoracle-data")
	viper.BindPFlag("nostore", rootCmd.Flags().Lookup("nostore"))
	viper.SetDefault("nostore", false)
	viper.BindPFlag("nobrowser", rootCmd.Flags().Lookup("nobrowser"))
	viper.SetDefault("nobrowser", false)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableLevelTruncation: true,
	})

	common.Log = logger.WithFields(logrus.Fields{
		"app": "utxoracled",
	})

	// Indirect functions for test mocking (so unit tests can talk to stub functions)
	common.Time.Sleep = time.Sleep
	common.Time.Now = time.Now
}

// normalizeFlag maps the long flag name --rb onto --recent-blocks. A
// single-dash -rb is parsed as shorthand flags and is not accepted.
func normalizeFlag(f *pflag.FlagSet, name string) pflag.NormalizedName {
	if name == "rb" {
		name = "recent-blocks"
	}
	return pflag.NormalizedName(name)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Look in the current directory for a configuration file
		viper.AddConfigPath(".")
		// Viper auto appends extension to this config name
		// For example, utxoracled.yml
		viper.SetConfigName("utxoracled")
	}

	// Replace `-` in config options with `_` for ENV keys
	replacer := strings.NewReplacer("-", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv() // read in environment variables that match
	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}
