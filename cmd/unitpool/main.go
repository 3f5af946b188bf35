// Command unitpool builds a container pool from a YAML file and resolves
// names on one of its containers.
//
//	unitpool --config pool.yaml --from app1 --link com.acme.shared.Codec app.Main
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/chenyanchen/unitpool"
)

func main() {
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	flags := pflag.NewFlagSet("unitpool", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		configPath string
		from       string
		link       bool
		graph      string
		verbose    bool
	)
	flags.StringVarP(&configPath, "config", "c", "pool.yaml", "path to the pool YAML file")
	flags.StringVar(&from, "from", "", "container to resolve names on (default: first container)")
	flags.BoolVar(&link, "link", false, "link resolved units")
	flags.StringVar(&graph, "graph", "", "print the pool graph after resolving: dot or mermaid")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log every resolution tier")
	if err := flags.Parse(args); err != nil {
		return err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	pf, err := unitpool.LoadPoolFile(configPath)
	if err != nil {
		return err
	}
	if len(pf.Containers) == 0 {
		return fmt.Errorf("pool file %s declares no containers", configPath)
	}
	p, err := buildPool(ctx, pf, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.stop(context.Background()); err != nil {
			logger.Warn("stop pool", slog.Any("error", err))
		}
	}()

	if from == "" {
		from = pf.Containers[0].Name
	}
	c, ok := p.containers[from]
	if !ok {
		return fmt.Errorf("unknown container %s", from)
	}

	var failed []string
	for _, name := range flags.Args() {
		u, err := c.Load(ctx, name, link)
		if err != nil {
			fmt.Fprintf(stdout, "%s: %v\n", name, err)
			failed = append(failed, name)
			continue
		}
		origin := "?"
		if inst, ok := u.(*unitpool.Instance); ok {
			if v, ok := inst.Value().(*unitValue); ok {
				origin = v.Origin
			}
		}
		fmt.Fprintf(stdout, "%s: %s\n", name, origin)
	}

	switch graph {
	case "":
	case "dot":
		fmt.Fprint(stdout, p.registry.Graph().DOT())
	case "mermaid":
		fmt.Fprint(stdout, p.registry.Graph().Mermaid())
	default:
		return fmt.Errorf("unknown graph format %q", graph)
	}

	if len(failed) > 0 {
		return fmt.Errorf("unresolved: %s", strings.Join(failed, ", "))
	}
	return nil
}
