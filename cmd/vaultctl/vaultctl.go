package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Se7en-Seas/boring-vault-go/chain"
	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/Se7en-Seas/boring-vault-go/signer"
	"github.com/Se7en-Seas/boring-vault-go/txmgr"
	"github.com/Se7en-Seas/boring-vault-go/vault"
	"github.com/Se7en-Seas/boring-vault-go/wire"
)

const (
	showHelpMessage = "Specify -h to show available options"
	listCmdMessage  = "Specify -l to list available commands"
)

// command describes one vaultctl subcommand.  Handlers receive the
// positional arguments after the command name and return a result that is
// printed as indented JSON, or a plain string printed as-is.
type command struct {
	usage     string
	minArgs   int
	maxArgs   int
	needsSign bool
	handler   func(ctx context.Context, e *env, args []string) (interface{}, error)
}

// env bundles the collaborators a command handler may need.  The signer
// is only loaded for commands that declare needsSign.
type env struct {
	cfg     *config
	rpc     *chain.RPCClient
	client  *vault.Client
	journal *txmgr.Store
	signer  *signer.LocalSigner
}

func (e *env) close() {
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			log.Errorf("Failed to close journal: %v", err)
		}
	}
	if e.signer != nil {
		e.signer.Zero()
	}
}

// fetchLookupTables reads and parses each configured address lookup
// table so oversized transactions can route accounts through them.
func fetchLookupTables(ctx context.Context, rpc *chain.RPCClient, addrs []string) ([]wire.AddressTable, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	tables := make([]wire.AddressTable, 0, len(addrs))
	for _, s := range addrs {
		key, err := pubkey.FromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("lookup table %q: %v", s, err)
		}
		acct, err := rpc.AccountInfo(ctx, key)
		if err != nil {
			return nil, err
		}
		if acct == nil {
			return nil, fmt.Errorf("lookup table %s does not exist", key)
		}
		table, err := wire.ParseAddressTable(key, acct.Data)
		if err != nil {
			return nil, fmt.Errorf("lookup table %s: %v", key, err)
		}
		tables = append(tables, *table)
	}
	return tables, nil
}

// newEnv connects the collaborators described by the config.
func newEnv(ctx context.Context, cfg *config, needsSign bool) (*env, error) {
	rpc, err := chain.NewRPCClient(chain.ConnConfig{
		URL:           cfg.RPCConnect,
		Commitment:    chain.Commitment(cfg.Commitment),
		Proxy:         cfg.Proxy,
		ProxyUser:     cfg.ProxyUser,
		ProxyPass:     cfg.ProxyPass,
		TLSSkipVerify: cfg.TLSSkipVerify,
		Timeout:       cfg.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, rpc: rpc}
	if needsSign {
		sgn, err := loadSigner(cfg)
		if err != nil {
			return nil, err
		}
		e.signer = sgn
	}
	if !cfg.NoJournal {
		journal, err := txmgr.Open(cfg.Journal.Value, nil)
		if err != nil {
			e.close()
			return nil, fmt.Errorf("open journal: %v", err)
		}
		e.journal = journal
	}

	tables, err := fetchLookupTables(ctx, rpc, cfg.LookupTables)
	if err != nil {
		e.close()
		return nil, err
	}

	vcfg := vault.Config{
		VaultProgram: cfg.VaultProgram.Key,
		QueueProgram: cfg.QueueProgram.Key,
		Chain:        rpc,
		Submitter:    rpc,
		FeePayer:     cfg.FeePayer.Key,
		Policy:       cfg.policy,
		Tables:       tables,
		Journal:      e.journal,
	}
	if e.signer != nil {
		vcfg.Signer = e.signer
	}
	client, err := vault.NewClient(&vcfg)
	if err != nil {
		e.close()
		return nil, err
	}
	e.client = client
	return e, nil
}

// commandUsage displays the usage for a specific command.
func commandUsage(method string) {
	cmd := commands[method]
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintf(os.Stderr, "  %s [OPTIONS] %s\n", appName(), cmd.usage)
}

// usage displays the general usage when the help flag is not displayed and
// an invalid command was specified.  The commandUsage function is used
// instead when a valid command was specified.
func usage(errorMessage string) {
	fmt.Fprintln(os.Stderr, errorMessage)
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintf(os.Stderr, "  %s [OPTIONS] <command> <args...>\n\n",
		appName())
	fmt.Fprintln(os.Stderr, showHelpMessage)
	fmt.Fprintln(os.Stderr, listCmdMessage)
}

func appName() string {
	appName := filepath.Base(os.Args[0])
	return strings.TrimSuffix(appName, filepath.Ext(appName))
}

// listCommands prints all supported commands with their usages.
func listCommands() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println(commands[name].usage)
	}
}

// printResult renders a handler result: strings print verbatim,
// everything else as indented JSON.
func printResult(result interface{}) error {
	switch r := result.(type) {
	case nil:
	case string:
		fmt.Println(r)
	default:
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format result: %v", err)
		}
		fmt.Println(string(out))
	}
	return nil
}

func main() {
	if err := vaultctlMain(); err != nil {
		os.Exit(1)
	}
}

// vaultctlMain is the real main.  It is factored out so deferred cleanup
// runs before the process exits.
func vaultctlMain() error {
	cfg, args, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	if cfg.ListCommands {
		listCommands()
		return nil
	}
	if cfg.Create {
		if err := createKeyFile(cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return err
		}
		return nil
	}

	if len(args) < 1 {
		usage("No command specified")
		return fmt.Errorf("no command specified")
	}
	method := args[0]
	cmd, ok := commands[method]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unrecognized command '%s'\n", method)
		fmt.Fprintln(os.Stderr, listCmdMessage)
		return fmt.Errorf("unrecognized command %q", method)
	}
	params := args[1:]
	if len(params) < cmd.minArgs || len(params) > cmd.maxArgs {
		commandUsage(method)
		return fmt.Errorf("wrong number of arguments for %q", method)
	}

	// Commands run under a context that ends on interrupt so a hung
	// node connection cannot wedge shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupted := interruptListener()
	go func() {
		<-interrupted
		cancel()
	}()

	e, err := newEnv(ctx, cfg, cmd.needsSign)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer e.close()

	result, err := cmd.handler(ctx, e, params)
	if err != nil {
		if interruptRequested(interrupted) {
			err = fmt.Errorf("%s: interrupted", method)
		}
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	if err := printResult(result); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
