// Command admin lints game content before it ships: every catalog file must
// satisfy its JSON schema and pass the engine's cross-reference validation.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"idlescape.quest/internal/game/content"
	"idlescape.quest/internal/game/tuning"
)

func main() {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	configDir := fs.String("configs", "./configs", "config directory")
	_ = fs.Parse(os.Args[1:])

	failed := false

	for _, name := range []string{"skills", "items", "actions"} {
		schemaPath := filepath.Join(*configDir, "schemas", name+".schema.json")
		dataPath := filepath.Join(*configDir, name+".json")

		schema, err := jsonschema.Compile(schemaPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "compile %s: %v\n", schemaPath, err)
			failed = true
			continue
		}
		raw, err := os.ReadFile(dataPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", dataPath, err)
			failed = true
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			fmt.Fprintf(os.Stderr, "parse %s: %v\n", dataPath, err)
			failed = true
			continue
		}
		if err := schema.Validate(v); err != nil {
			fmt.Fprintf(os.Stderr, "validate %s: %v\n", dataPath, err)
			failed = true
		}
	}

	cats, err := content.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load content:", err)
		os.Exit(1)
	}
	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			tune = tuning.Defaults()
		} else {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
	}
	if failed {
		os.Exit(1)
	}

	fmt.Printf("skills   %s  (%d)\n", cats.Skills.Digest, len(cats.Skills.ByID))
	fmt.Printf("items    %s  (%d)\n", cats.Items.Digest, len(cats.Items.ByID))
	fmt.Printf("actions  %s  (%d)\n", cats.Actions.Digest, len(cats.Actions.ByID))
	fmt.Printf("tuning   curve %g^%g, xp x%g\n", tune.CurveBase, tune.CurveExponent, tune.XPMultiplier)
}
