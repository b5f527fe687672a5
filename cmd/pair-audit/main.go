package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"oraclepair/config"
	"oraclepair/core/state"
	"oraclepair/native/pair"
	"oraclepair/storage"
)

func main() {
	configPath := flag.String("config", "./paird.toml", "Path to paird configuration file")
	asJSON := flag.Bool("json", false, "Emit JSON even when stdout is a terminal")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.DBBackend != config.BackendLevelDB {
		fmt.Fprintf(os.Stderr, "audit needs a persistent backend, got %q\n", cfg.DBBackend)
		os.Exit(1)
	}
	genesis, err := config.LoadGenesis(cfg.GenesisPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load genesis: %v\n", err)
		os.Exit(1)
	}
	addr, err := genesis.PairAddress()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid pair address: %v\n", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.StatePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open state: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	mgr := state.NewManager(db)
	report, err := audit(pair.NewEngine(addr, mgr, mgr), mgr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit failed: %v\n", err)
		db.Close()
		os.Exit(1)
	}

	if !*asJSON && term.IsTerminal(int(os.Stdout.Fd())) {
		err = writeTable(os.Stdout, report)
	} else {
		var output []byte
		output, err = json.MarshalIndent(report, "", "  ")
		if err == nil {
			fmt.Println(string(output))
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if !report.OK() {
		db.Close()
		os.Exit(2)
	}
}
