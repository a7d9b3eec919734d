// Command idlescape is the game's command-line front end. It owns all
// prompting and formatting; the rules live in internal/game.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"idlescape.quest/internal/game/content"
	"idlescape.quest/internal/game/resolve"
	"idlescape.quest/internal/game/rng"
	"idlescape.quest/internal/game/tuning"
	"idlescape.quest/internal/game/xp"
	"idlescape.quest/internal/persistence/journal"
	"idlescape.quest/internal/persistence/store"
)

type config struct {
	ConfigDir string `env:"IDLESCAPE_CONFIG_DIR" envDefault:"./configs"`
	DataDir   string `env:"IDLESCAPE_DATA_DIR" envDefault:"./data"`
	Seed      uint64 `env:"IDLESCAPE_SEED" envDefault:"0"`
}

var logger = log.New(os.Stderr, "[idlescape] ", log.LstdFlags|log.Lmicroseconds)

func main() {
	// Optional .env next to the binary; absence is not an error.
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fatal("parse environment: %v", err)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "init-db":
		initDBCmd(cfg, args)
	case "create-character":
		createCharacterCmd(cfg, args)
	case "list-characters":
		listCharactersCmd(cfg, args)
	case "show-character":
		showCharacterCmd(cfg, args)
	case "actions":
		actionsCmd(cfg, args)
	case "perform":
		performCmd(cfg, args)
	case "start-activity":
		startActivityCmd(cfg, args)
	case "collect":
		collectCmd(cfg, args)
	case "stop-activity":
		stopActivityCmd(cfg, args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: idlescape <command> [args]

  init-db                          initialize the save database
  create-character NAME            create a new character
  list-characters                  list all characters
  show-character NAME              show a character's skills and items
  actions [SKILL]                  list available actions
  perform NAME ACTION [-n N]       perform an action (N times)
  start-activity NAME ACTION       start a timed activity
  collect NAME                     collect a running activity
  stop-activity NAME               stop a running activity without collecting

Environment: IDLESCAPE_CONFIG_DIR, IDLESCAPE_DATA_DIR, IDLESCAPE_SEED
(also read from .env in the working directory).
`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// game bundles everything a command needs: content, tuning, curve, store.
type game struct {
	cfg      config
	cats     *content.Catalogs
	tune     tuning.Tuning
	curve    *xp.Curve
	store    *store.Store
	resolver *resolve.Resolver
	journal  *journal.ActionJournal
}

func openGame(cfg config) *game {
	cats, err := content.Load(cfg.ConfigDir)
	if err != nil {
		fatal("load content: %v", err)
	}
	tune, err := tuning.Load(filepath.Join(cfg.ConfigDir, "tuning.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			tune = tuning.Defaults()
		} else {
			fatal("load tuning: %v", err)
		}
	}
	curve, err := xp.New(tune.CurveBase, tune.CurveExponent)
	if err != nil {
		fatal("build curve: %v", err)
	}
	st, err := store.Open(filepath.Join(cfg.DataDir, "idlescape.db"))
	if err != nil {
		fatal("open save database: %v", err)
	}

	var src rng.Source
	if cfg.Seed != 0 {
		src = rng.NewPCG(cfg.Seed, cfg.Seed>>1|1)
	} else {
		src = rng.Seeded()
	}
	return &game{
		cfg:      cfg,
		cats:     cats,
		tune:     tune,
		curve:    curve,
		store:    st,
		resolver: resolve.New(src, tune.XPMultiplier),
		journal:  journal.NewActionJournal(cfg.DataDir),
	}
}

func (g *game) close() {
	// Close the journal first so its final zstd frame is flushed.
	if err := g.journal.Close(); err != nil {
		logger.Printf("close journal: %v", err)
	}
	if err := g.store.Close(); err != nil {
		logger.Printf("close store: %v", err)
	}
}

func fmtDuration(d time.Duration) string {
	return d.Truncate(time.Second).String()
}
