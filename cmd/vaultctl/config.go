package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"

	"github.com/Se7en-Seas/boring-vault-go/chain"
	"github.com/Se7en-Seas/boring-vault-go/internal/cfgutil"
	"github.com/Se7en-Seas/boring-vault-go/oracle"
	"github.com/Se7en-Seas/boring-vault-go/pubkey"
)

const (
	defaultConfigFilename  = "vaultctl.conf"
	defaultLogDirname      = "logs"
	defaultLogFilename     = "vaultctl.log"
	defaultDebugLevel      = "info"
	defaultKeyFilename     = "signing.key"
	defaultJournalFilename = "journal.db"
	defaultRPCConnect      = "http://127.0.0.1:8899"
	defaultOracleMode      = "best-effort"
)

var (
	vaultctlHomeDir   = btcutil.AppDataDir("vaultctl", false)
	defaultConfigFile = filepath.Join(vaultctlHomeDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(vaultctlHomeDir, defaultLogDirname)
)

type config struct {
	// General application behavior
	ShowVersion  bool                    `short:"V" long:"version" description:"Display version information and exit"`
	ListCommands bool                    `short:"l" long:"listcommands" description:"List all of the supported commands and exit"`
	Create       bool                    `long:"create" description:"Create a new signing key file and exit"`
	AppDataDir   *cfgutil.ExplicitString `short:"A" long:"appdata" description:"Application data directory for the key file, journal, and logs"`
	ConfigFile   *cfgutil.ExplicitString `short:"C" long:"configfile" description:"Path to configuration file"`
	DebugLevel   string                  `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	LogDir       string                  `long:"logdir" description:"Directory to log output"`

	// Node connection
	RPCConnect     string        `short:"c" long:"rpcconnect" description:"JSON-RPC endpoint of the node"`
	WSConnect      string        `long:"wsconnect" description:"Websocket endpoint for account subscriptions (derived from rpcconnect when empty)"`
	Commitment     string        `long:"commitment" description:"Commitment level for reads and submission preflight {processed, confirmed, finalized}"`
	RequestTimeout time.Duration `long:"requesttimeout" description:"Maximum time for one RPC round trip"`
	Proxy          string        `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser      string        `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass      string        `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	TLSSkipVerify  bool          `long:"skipverify" description:"Skip verifying TLS certificates"`

	// Programs and composition
	VaultProgram *cfgutil.KeyFlag `long:"vaultprogram" description:"Address of the deployed vault program"`
	QueueProgram *cfgutil.KeyFlag `long:"queueprogram" description:"Address of the deployed withdraw queue program"`
	FeePayer     *cfgutil.KeyFlag `long:"feepayer" description:"Fee paying key when it differs from the signing key"`
	LookupTables []string         `long:"lookuptable" description:"Address of an address lookup table used to fit large transactions (may be repeated)"`

	OracleMode    string        `long:"oraclemode" description:"Price feed freshness policy {disabled, best-effort, mandatory}"`
	OracleTimeout time.Duration `long:"oracletimeout" description:"Maximum time to spend collecting crank instructions"`

	// Key and journal
	KeyFile   *cfgutil.ExplicitString `long:"keyfile" description:"Path to the encrypted signing key file"`
	Journal   *cfgutil.ExplicitString `long:"journal" description:"Path to the submission journal database"`
	NoJournal bool                    `long:"nojournal" description:"Do not journal submitted transactions"`

	// policy is the freshness policy parsed from OracleMode and
	// OracleTimeout.
	policy oracle.Policy
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(vaultctlHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// websocketURL derives a websocket endpoint from the JSON-RPC endpoint
// when no explicit one is configured.
func websocketURL(rpcConnect string) (string, error) {
	u, err := url.Parse(rpcConnect)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q in rpcconnect", u.Scheme)
	}
	return u.String(), nil
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options.  Command line options always take precedence.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		AppDataDir:   cfgutil.NewExplicitString(vaultctlHomeDir),
		ConfigFile:   cfgutil.NewExplicitString(defaultConfigFile),
		DebugLevel:   defaultDebugLevel,
		LogDir:       defaultLogDir,
		RPCConnect:   defaultRPCConnect,
		Commitment:   string(chain.CommitmentConfirmed),
		VaultProgram: cfgutil.NewKeyFlag(pubkey.Key{}),
		QueueProgram: cfgutil.NewKeyFlag(pubkey.Key{}),
		FeePayer:     cfgutil.NewKeyFlag(pubkey.Key{}),
		OracleMode:   defaultOracleMode,
		KeyFile:      cfgutil.NewExplicitString(""),
		Journal:      cfgutil.NewExplicitString(""),
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		preParser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		appName := filepath.Base(os.Args[0])
		appName = strings.TrimSuffix(appName, filepath.Ext(appName))
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Load additional config from file.
	configFilePath := preCfg.ConfigFile.Value
	if preCfg.ConfigFile.ExplicitlySet() {
		configFilePath = cleanAndExpandPath(configFilePath)
	} else if preCfg.AppDataDir.ExplicitlySet() {
		configFilePath = filepath.Join(
			cleanAndExpandPath(preCfg.AppDataDir.Value),
			defaultConfigFilename)
	}
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(configFilePath)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, err
		}
		// Missing config file is only an error when one was given
		// explicitly.
		if preCfg.ConfigFile.ExplicitlySet() {
			err := fmt.Errorf("the specified config file %q does "+
				"not exist", configFilePath)
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// When the application data directory was moved, everything that
	// defaults to living inside it moves along unless explicitly placed
	// elsewhere.
	appDataDir := cleanAndExpandPath(cfg.AppDataDir.Value)
	if cfg.AppDataDir.ExplicitlySet() {
		if !preCfg.ConfigFile.ExplicitlySet() && cfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(appDataDir, defaultLogDirname)
		}
	}
	if err := checkCreateDir(appDataDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	if !cfg.KeyFile.ExplicitlySet() {
		cfg.KeyFile.Value = filepath.Join(appDataDir, defaultKeyFilename)
	} else {
		cfg.KeyFile.Value = cleanAndExpandPath(cfg.KeyFile.Value)
	}
	if !cfg.Journal.ExplicitlySet() {
		cfg.Journal.Value = filepath.Join(appDataDir, defaultJournalFilename)
	} else {
		cfg.Journal.Value = cleanAndExpandPath(cfg.Journal.Value)
	}

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", "loadConfig", err.Error())
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	switch chain.Commitment(cfg.Commitment) {
	case chain.CommitmentProcessed, chain.CommitmentConfirmed,
		chain.CommitmentFinalized:
	default:
		err := fmt.Errorf("invalid commitment %q", cfg.Commitment)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	mode, err := oracle.ParseMode(cfg.OracleMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	cfg.policy = oracle.Policy{Mode: mode, Timeout: cfg.OracleTimeout}

	if cfg.WSConnect == "" {
		cfg.WSConnect, err = websocketURL(cfg.RPCConnect)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	// Key creation and command listing run before any chain access, so
	// the program addresses are only required for actual commands.
	if !cfg.Create && !cfg.ListCommands {
		if cfg.VaultProgram.Key.IsZero() || cfg.QueueProgram.Key.IsZero() {
			err := fmt.Errorf("both vaultprogram and queueprogram " +
				"addresses must be configured")
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	return &cfg, remainingArgs, nil
}
