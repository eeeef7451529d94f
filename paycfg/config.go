package paycfg

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/go-playground/validator/v10"
	"github.com/jessevdk/go-flags"
	"github.com/kaleidoswap/desktop-app-sub002/bounds"
	"github.com/kaleidoswap/desktop-app-sub002/build"
	"github.com/kaleidoswap/desktop-app-sub002/feequote"
	"github.com/kaleidoswap/desktop-app-sub002/lifecycle"
	"github.com/kaleidoswap/desktop-app-sub002/rln"
	"github.com/kaleidoswap/desktop-app-sub002/units"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shopspring/decimal"
)

const (
	// DefaultConfigFilename is the name of the config file in the app
	// directory.
	DefaultConfigFilename = "paytool.conf"

	// DefaultLogFilename is the name of the log file.
	DefaultLogFilename = "paytool.log"

	defaultLogDirname  = "logs"
	defaultLogLevel    = "info"
	defaultNodeURL     = "http://localhost:3001"
	defaultNetwork     = "regtest"
	defaultPromListen  = "localhost:9120"
	defaultRatePerSec  = 10
	defaultRateBurst   = 5
	defaultMinConfs    = 1
	defaultNodeTimeout = 30 * time.Second
)

var (
	// DefaultAppDir is the default directory of config and log files.
	DefaultAppDir = btcutil.AppDataDir("paytool", false)

	// DefaultConfigFile is the default full path of the config file.
	DefaultConfigFile = filepath.Join(DefaultAppDir, DefaultConfigFilename)

	defaultLogDir = filepath.Join(DefaultAppDir, defaultLogDirname)

	validate = validator.New()
)

// Node holds the connection settings of the wallet node.
//
//nolint:lll
type Node struct {
	URL              string        `long:"url" description:"Base URL of the RGB Lightning Node API" validate:"required,url"`
	Token            string        `long:"token" description:"Bearer token of the node API"`
	Timeout          time.Duration `long:"timeout" description:"Timeout of a single node call" validate:"required"`
	MaxRetries       int           `long:"maxretries" description:"Retries of read-only node calls" validate:"gte=0,lte=10"`
	RateLimit        float64       `long:"ratelimit" description:"Sustained node calls per second" validate:"gt=0"`
	RateBurst        int           `long:"rateburst" description:"Node calls allowed at once" validate:"gte=1"`
	MinRelayFee      float64       `long:"minrelayfee" description:"Minimum relay fee in sat/vB" validate:"gt=0"`
	MinConfirmations uint8         `long:"minconfs" description:"Confirmations required of asset recipients"`
	SkipSync         bool          `long:"skipsync" description:"Skip the wallet sync before balance and send calls"`
}

// Fees holds the fee policy.
//
//nolint:lll
type Fees struct {
	LightningBase      int64 `long:"lightningbase" description:"Flat part of the Lightning routing fee estimate in sat" validate:"gte=0"`
	LightningPPM       int64 `long:"lightningppm" description:"Proportional part of the Lightning routing fee estimate in ppm" validate:"gte=0,lte=1000000"`
	LightningMax       int64 `long:"lightningmax" description:"Cap of the Lightning routing fee estimate in sat, 0 for none" validate:"gte=0"`
	OnChainVBytes      int64 `long:"onchainvbytes" description:"Virtual size used to price bitcoin sends" validate:"gt=0"`
	AssetOnChainVBytes int64 `long:"assetvbytes" description:"Virtual size used to price on-chain asset transfers" validate:"gt=0"`
	AssetCarrierSats   int64 `long:"assetcarrier" description:"Bitcoin amount carried by asset Lightning payments" validate:"gte=0"`
	WitnessSats        int64 `long:"witnesssats" description:"Bitcoin amount sent along asset transfers to witness recipients, at least 512" validate:"gte=512"`
}

// Limits holds the amount bound policy.
//
//nolint:lll
type Limits struct {
	DustLimit   int64  `long:"dust" description:"Smallest on-chain amount in sat" validate:"gte=0"`
	HTLCReserve int64  `long:"htlcreserve" description:"Satoshis kept back from the HTLC ceiling" validate:"gte=0"`
	AssetRate   string `long:"assetrate" description:"Asset base units per satoshi, caps asset Lightning payments by the HTLC ceiling"`
}

// Poll holds the Lightning status polling policy.
//
//nolint:lll
type Poll struct {
	Interval time.Duration `long:"interval" description:"Delay between two status polls" validate:"required"`
	Timeout  time.Duration `long:"timeout" description:"Time after which a pending payment is reported expired" validate:"required"`
}

// Prometheus holds the metrics exporter settings.
//
//nolint:lll
type Prometheus struct {
	Enable bool   `long:"enable" description:"Export metrics over HTTP"`
	Listen string `long:"listen" description:"Address the metrics exporter listens on" validate:"omitempty,hostname_port"`
}

// Config is the configuration of the payment tool.
//
//nolint:lll
type Config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	AppDir     string `long:"appdir" description:"The base directory that contains the config and log files"`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <global-level>,<subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	Network string `long:"network" description:"The bitcoin network addresses must belong to" choice:"mainnet" choice:"testnet" choice:"regtest" choice:"signet" validate:"oneof=mainnet testnet regtest signet"`
	Unit    string `long:"unit" description:"The bitcoin display unit" choice:"SAT" choice:"MSAT" choice:"BTC" validate:"oneof=SAT MSAT BTC"`

	Node       *Node            `group:"node" namespace:"node"`
	Fees       *Fees            `group:"fees" namespace:"fees"`
	Limits     *Limits          `group:"limits" namespace:"limits"`
	Poll       *Poll            `group:"poll" namespace:"poll"`
	Prometheus *Prometheus      `group:"prometheus" namespace:"prometheus"`
	LogConfig  *build.LogConfig `group:"logging" namespace:"logging"`
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	policy := feequote.DefaultLightningFeePolicy()
	limits := bounds.DefaultLimits()

	return Config{
		AppDir:     DefaultAppDir,
		ConfigFile: DefaultConfigFile,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		Network:    defaultNetwork,
		Unit:       string(units.UnitSat),
		Node: &Node{
			URL:              defaultNodeURL,
			Timeout:          defaultNodeTimeout,
			MaxRetries:       rln.DefaultMaxRetries,
			RateLimit:        defaultRatePerSec,
			RateBurst:        defaultRateBurst,
			MinRelayFee:      rln.DefaultMinRelayFee,
			MinConfirmations: defaultMinConfs,
		},
		Fees: &Fees{
			LightningBase:      policy.BaseSats,
			LightningPPM:       policy.PPM,
			LightningMax:       policy.MaxSats,
			OnChainVBytes:      feequote.DefaultOnChainVBytes,
			AssetOnChainVBytes: feequote.DefaultAssetOnChainVBytes,
			AssetCarrierSats:   feequote.DefaultAssetCarrierSats,
			WitnessSats:        int64(lifecycle.DefaultWitnessAmountSat),
		},
		Limits: &Limits{
			DustLimit:   limits.DustLimit,
			HTLCReserve: limits.HTLCReserve,
		},
		Poll: &Poll{
			Interval: lifecycle.DefaultPollInterval,
			Timeout:  lifecycle.DefaultPollTimeout,
		},
		Prometheus: &Prometheus{
			Listen: defaultPromListen,
		},
		LogConfig: build.DefaultLogConfig(),
	}
}

// LoadConfig builds the configuration from defaults, the config file and
// the command line, in increasing order of precedence. Options it does not
// know, such as those of subcommands, are left to the caller's parser.
func LoadConfig(args []string) (*Config, error) {
	// Pre-parse the command line options to pick up an alternative config
	// file.
	preCfg := DefaultConfig()
	if err := parseArgs(&preCfg, args); err != nil {
		return nil, err
	}

	// A config file in a custom app directory wins over the default one.
	appDir := CleanAndExpandPath(preCfg.AppDir)
	configFilePath := CleanAndExpandPath(preCfg.ConfigFile)
	if appDir != DefaultAppDir && configFilePath == DefaultConfigFile {
		configFilePath = filepath.Join(appDir, DefaultConfigFilename)
	}

	var configFileError error
	cfg := preCfg
	if err := flags.IniParse(configFilePath, &cfg); err != nil {
		// Parse errors are fatal, a missing file is not.
		var iniErr *flags.IniError
		if errors.As(err, &iniErr) {
			return nil, err
		}

		configFileError = err
	}

	// Parse the command line again so it takes precedence.
	if err := parseArgs(&cfg, args); err != nil {
		return nil, err
	}

	cleanCfg, err := ValidateConfig(cfg)
	if err != nil {
		return nil, err
	}

	if configFileError != nil {
		log.Debugf("No config file loaded: %v", configFileError)
	}

	return cleanCfg, nil
}

func parseArgs(cfg *Config, args []string) error {
	parser := flags.NewParser(cfg, flags.IgnoreUnknown)
	_, err := parser.ParseArgs(args)

	return err
}

// ValidateConfig checks the given config, expands its paths and fills the
// values derived from others.
func ValidateConfig(cfg Config) (*Config, error) {
	cfg.AppDir = CleanAndExpandPath(cfg.AppDir)
	cfg.ConfigFile = CleanAndExpandPath(cfg.ConfigFile)

	// The log directory follows a custom app directory unless it was set
	// explicitly.
	cfg.LogDir = CleanAndExpandPath(cfg.LogDir)
	if cfg.AppDir != DefaultAppDir && cfg.LogDir == defaultLogDir {
		cfg.LogDir = filepath.Join(cfg.AppDir, defaultLogDirname)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.LogConfig.Validate(); err != nil {
		return nil, err
	}

	if cfg.Prometheus.Enable && cfg.Prometheus.Listen == "" {
		return nil, errors.New("prometheus.listen must be set when " +
			"the exporter is enabled")
	}

	if cfg.Poll.Timeout < cfg.Poll.Interval {
		return nil, fmt.Errorf("poll.timeout %v is shorter than "+
			"poll.interval %v", cfg.Poll.Timeout, cfg.Poll.Interval)
	}

	if _, err := cfg.BoundLimits(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ChainParams returns the parameters of the configured network.
func (c *Config) ChainParams() *chaincfg.Params {
	switch c.Network {
	case "mainnet":
		return &chaincfg.MainNetParams
	case "testnet":
		return &chaincfg.TestNet3Params
	case "signet":
		return &chaincfg.SigNetParams
	default:
		return &chaincfg.RegressionNetParams
	}
}

// BitcoinUnit returns the configured display unit.
func (c *Config) BitcoinUnit() units.BitcoinUnit {
	unit, err := units.ParseBitcoinUnit(c.Unit)
	if err != nil {
		return units.UnitSat
	}

	return unit
}

// NodeConfig returns the settings of the node client.
func (c *Config) NodeConfig() rln.Config {
	return rln.Config{
		URL:               c.Node.URL,
		Token:             c.Node.Token,
		RequestTimeout:    c.Node.Timeout,
		MaxRetries:        c.Node.MaxRetries,
		RequestsPerSecond: c.Node.RateLimit,
		Burst:             c.Node.RateBurst,
		MinRelayFee:       c.Node.MinRelayFee,
		MinConfirmations:  c.Node.MinConfirmations,
		SkipSync:          c.Node.SkipSync,
	}
}

// LightningFeePolicy returns the routing fee estimate policy.
func (c *Config) LightningFeePolicy() feequote.LightningFeePolicy {
	return feequote.LightningFeePolicy{
		BaseSats: c.Fees.LightningBase,
		PPM:      c.Fees.LightningPPM,
		MaxSats:  c.Fees.LightningMax,
	}
}

// BoundLimits returns the amount bound policy.
func (c *Config) BoundLimits() (bounds.Limits, error) {
	limits := bounds.Limits{
		DustLimit:   c.Limits.DustLimit,
		HTLCReserve: c.Limits.HTLCReserve,
		AssetRate:   fn.None[decimal.Decimal](),
	}

	if c.Limits.AssetRate == "" {
		return limits, nil
	}

	rate, err := decimal.NewFromString(c.Limits.AssetRate)
	if err != nil {
		return limits, fmt.Errorf("invalid limits.assetrate %q: %w",
			c.Limits.AssetRate, err)
	}
	if !rate.IsPositive() {
		return limits, fmt.Errorf("limits.assetrate must be positive, "+
			"got %v", rate)
	}
	limits.AssetRate = fn.Some(rate)

	return limits, nil
}

// LogFile returns the full path of the log file.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, c.Network, DefaultLogFilename)
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}
