package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sort"

	"idlescape.quest/internal/game/session"
	"idlescape.quest/internal/persistence/store"
)

func initDBCmd(cfg config, args []string) {
	fs := flag.NewFlagSet("init-db", flag.ExitOnError)
	_ = fs.Parse(args)

	g := openGame(cfg)
	defer g.close()

	if err := g.store.UpsertCatalogs(g.cats, g.tune); err != nil {
		fatal("record catalogs: %v", err)
	}
	fmt.Println("Initialized save database.")
}

func createCharacterCmd(cfg config, args []string) {
	fs := flag.NewFlagSet("create-character", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fatal("usage: idlescape create-character NAME")
	}

	g := openGame(cfg)
	defer g.close()

	c, err := g.store.CreateCharacter(context.Background(), fs.Arg(0))
	if err != nil {
		if errors.Is(err, store.ErrNameTaken) {
			fatal("a character named %q already exists", fs.Arg(0))
		}
		fatal("create character: %v", err)
	}
	fmt.Printf("Created Character: %s\n", c.Name)
}

func listCharactersCmd(cfg config, args []string) {
	fs := flag.NewFlagSet("list-characters", flag.ExitOnError)
	_ = fs.Parse(args)

	g := openGame(cfg)
	defer g.close()

	chars, err := g.store.ListCharacters(context.Background())
	if err != nil {
		fatal("list characters: %v", err)
	}
	for _, c := range chars {
		fmt.Println(c.Name)
	}
}

func showCharacterCmd(cfg config, args []string) {
	fs := flag.NewFlagSet("show-character", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fatal("usage: idlescape show-character NAME")
	}

	g := openGame(cfg)
	defer g.close()
	ctx := context.Background()

	c := g.mustCharacter(ctx, fs.Arg(0))
	sess := g.mustSession(ctx, c)
	renderCharacter(g, c, sess)
}

func actionsCmd(cfg config, args []string) {
	fs := flag.NewFlagSet("actions", flag.ExitOnError)
	_ = fs.Parse(args)

	g := openGame(cfg)
	defer g.close()

	skills := g.cats.Skills.Order
	if fs.NArg() == 1 {
		skillID := fs.Arg(0)
		if _, ok := g.cats.Skills.ByID[skillID]; !ok {
			fatal("unknown skill %q%s", skillID, suggest(skillID, g.cats.Skills.Order))
		}
		skills = []string{skillID}
	}
	for _, sid := range skills {
		s := g.cats.Skills.ByID[sid]
		fmt.Printf("%s:\n", s.Name)
		for _, aid := range s.Actions {
			a := g.cats.Actions.ByID[aid]
			fmt.Printf("  %-14s %s%s\n", a.ID, describeAction(g, a), describeRequirements(g, a))
		}
	}
}

// parsePerformArgs accepts -n before or after the positionals, so the
// documented "perform NAME ACTION [-n N]" form works; stdlib flag alone
// stops at the first positional.
func parsePerformArgs(args []string) (name, action string, n int, err error) {
	fs := flag.NewFlagSet("perform", flag.ContinueOnError)
	reps := fs.Int("n", 1, "number of repetitions")
	if err := fs.Parse(args); err != nil {
		return "", "", 0, err
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return "", "", 0, errors.New("usage: idlescape perform NAME ACTION [-n N]")
	}
	name, action = rest[0], rest[1]
	if err := fs.Parse(rest[2:]); err != nil {
		return "", "", 0, err
	}
	if fs.NArg() != 0 {
		return "", "", 0, errors.New("usage: idlescape perform NAME ACTION [-n N]")
	}
	return name, action, *reps, nil
}

func performCmd(cfg config, args []string) {
	name, action, n, err := parsePerformArgs(args)
	if err != nil {
		fatal("%v", err)
	}

	g := openGame(cfg)
	defer g.close()
	ctx := context.Background()

	c := g.mustCharacter(ctx, name)
	actionID := g.mustActionID(action)
	sess := g.mustSession(ctx, c)

	var res session.Result
	if n == 1 {
		res, err = sess.PerformAction(ctx, actionID)
	} else {
		res, err = sess.Repeat(ctx, actionID, n)
	}
	if err != nil {
		fatal("perform: %v", err)
	}
	renderResult(g, res)
}

func startActivityCmd(cfg config, args []string) {
	fs := flag.NewFlagSet("start-activity", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 2 {
		fatal("usage: idlescape start-activity NAME ACTION")
	}

	g := openGame(cfg)
	defer g.close()
	ctx := context.Background()

	c := g.mustCharacter(ctx, fs.Arg(0))
	actionID := g.mustActionID(fs.Arg(1))
	sess := g.mustSession(ctx, c)

	res, err := sess.StartActivity(ctx, actionID)
	if err != nil {
		fatal("start activity: %v", err)
	}
	if res.Rejected() {
		renderResult(g, res)
		return
	}
	fmt.Printf("%s started %s.\n", c.Name, g.actionName(actionID))
}

func collectCmd(cfg config, args []string) {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fatal("usage: idlescape collect NAME")
	}

	g := openGame(cfg)
	defer g.close()
	ctx := context.Background()

	c := g.mustCharacter(ctx, fs.Arg(0))
	sess := g.mustSession(ctx, c)

	res, err := sess.CollectActivity(ctx)
	if err != nil {
		fatal("collect: %v", err)
	}
	renderResult(g, res)
}

func stopActivityCmd(cfg config, args []string) {
	fs := flag.NewFlagSet("stop-activity", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fatal("usage: idlescape stop-activity NAME")
	}

	g := openGame(cfg)
	defer g.close()
	ctx := context.Background()

	c := g.mustCharacter(ctx, fs.Arg(0))
	sess := g.mustSession(ctx, c)

	res, err := sess.StopActivity(ctx)
	if err != nil {
		fatal("stop activity: %v", err)
	}
	if res.Rejected() {
		renderResult(g, res)
		return
	}
	fmt.Printf("%s stopped %s.\n", c.Name, g.actionName(res.Action))
}

func (g *game) mustCharacter(ctx context.Context, name string) store.Character {
	c, err := g.store.GetCharacterByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			chars, lerr := g.store.ListCharacters(ctx)
			var names []string
			if lerr == nil {
				for _, ch := range chars {
					names = append(names, ch.Name)
				}
			}
			fatal("could not find a character named %q%s", name, suggest(name, names))
		}
		fatal("look up character: %v", err)
	}
	return c
}

func (g *game) mustActionID(actionID string) string {
	if _, ok := g.cats.Actions.ByID[actionID]; ok {
		return actionID
	}
	ids := make([]string, 0, len(g.cats.Actions.ByID))
	for id := range g.cats.Actions.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fatal("unknown action %q%s", actionID, suggest(actionID, ids))
	return ""
}

func (g *game) mustSession(ctx context.Context, c store.Character) *session.Session {
	sess, err := session.New(ctx, c.ID, g.cats, g.curve, g.resolver, g.store,
		session.WithJournal(g.journal))
	if err != nil {
		fatal("open session: %v", err)
	}
	return sess
}

func (g *game) actionName(id string) string {
	if a, ok := g.cats.Actions.ByID[id]; ok && a.Name != "" {
		return a.Name
	}
	return id
}
