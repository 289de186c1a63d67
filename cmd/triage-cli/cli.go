package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/config"
	"github.com/NickCassab/email-buddy/internal/core"
	"github.com/NickCassab/email-buddy/internal/di"
	"github.com/NickCassab/email-buddy/internal/mimeparse"
	"github.com/NickCassab/email-buddy/internal/utils"
)

// cliEnv carries the streams and global flags shared by all commands
type cliEnv struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	flags  di.CLIFlags
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(in io.Reader, out, errOut io.Writer) *cli.App {
	env := &cliEnv{in: in, out: out, errOut: errOut}
	app := &cli.App{
		Name:      "triage-cli",
		Usage:     "Rank inbox messages by importance",
		Version:   Version,
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to config file", Destination: &env.flags.ConfigFile},
			&cli.BoolFlag{Name: "verbose", Usage: "Enable verbose logging", Destination: &env.flags.Verbose},
			&cli.BoolFlag{Name: "json-log", Usage: "Output logs in JSON format", Destination: &env.flags.JSONLog},
		},
		Commands: []*cli.Command{
			ingestCmd(env),
			recalculateCmd(env),
			listCmd(env),
			markCmd(env),
			scoreCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// invoke builds the container and runs fn with its dependencies
func (e *cliEnv) invoke(fn interface{}) error {
	container, err := di.BuildCLIContainer(&e.flags)
	if err != nil {
		return err
	}
	if err := container.Invoke(fn); err != nil {
		return dig.RootCause(err)
	}
	return nil
}

// scoringConfig loads the scoring configuration. Fallbacks are reported as warnings.
func (e *cliEnv) scoringConfig(provider core.ScoringConfigProvider) core.ScoringConfig {
	cfg, err := provider.Load()
	if err != nil {
		fmt.Fprintf(e.errOut, "warning: %v\n", err)
	}
	return cfg
}

// storeOnlyService serves List and MarkProcessed, which never touch the mail source
func storeOnlyService(store core.TriageStore, logger *zap.Logger) *core.TriageService {
	return core.NewTriageService(nil, store, logger)
}

func closeStore(store core.TriageStore) {
	_ = store.Close()
}

// ingestCmd creates the ingest command.
func ingestCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Fetch recent messages, score the new ones and store them",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max", Aliases: []string{"n"}, Usage: "Number of recent messages to list (default from mail.max_results)"},
		},
		Action: func(c *cli.Context) error {
			return env.invoke(func(cfg *config.Config, svc *core.TriageService, store core.TriageStore, provider core.ScoringConfigProvider) error {
				defer closeStore(store)

				maxResults := c.Int("max")
				if maxResults <= 0 {
					maxResults = cfg.GetMail().MaxResults
				}
				result, err := svc.Ingest(c.Context, env.scoringConfig(provider), maxResults)
				if err != nil {
					return err
				}
				return outputJSON(env.out, result)
			})
		},
	}
}

// recalculateCmd creates the recalculate command.
func recalculateCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "recalculate",
		Usage: "Re-score every stored record with the current scoring settings",
		Action: func(c *cli.Context) error {
			return env.invoke(func(svc *core.TriageService, store core.TriageStore, provider core.ScoringConfigProvider) error {
				defer closeStore(store)

				result, err := svc.Recalculate(c.Context, env.scoringConfig(provider))
				if err != nil {
					return err
				}
				return outputJSON(env.out, result)
			})
		},
	}
}

// listCmd creates the list command.
func listCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored records in ranked order",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "order", Aliases: []string{"o"}, Value: string(core.OrderLegacy), Usage: "Ranking: legacy|priority"},
			&cli.BoolFlag{Name: "json", Usage: "Output JSON"},
		},
		Action: func(c *cli.Context) error {
			order, err := core.ParseOrder(c.String("order"))
			if err != nil {
				return err
			}
			return env.invoke(func(store core.TriageStore, logger *zap.Logger) error {
				defer closeStore(store)

				records, err := storeOnlyService(store, logger).List(c.Context, core.ListOptions{Order: order})
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return outputJSON(env.out, records)
				}
				return outputTable(env.out, records)
			})
		},
	}
}

// markCmd creates the mark command.
func markCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "mark",
		Usage:     "Mark a record as processed",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("mark takes exactly one message id")
			}
			id := c.Args().First()
			return env.invoke(func(store core.TriageStore, logger *zap.Logger) error {
				defer closeStore(store)

				if err := storeOnlyService(store, logger).MarkProcessed(c.Context, id); err != nil {
					return err
				}
				fmt.Fprintf(env.out, "marked %s as processed\n", id)
				return nil
			})
		},
	}
}

// scoreCmd creates the score command.
func scoreCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "score",
		Usage: "Score a raw RFC 822 message and print the per-signal breakdown",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Message file (stdin if not specified)"},
			&cli.BoolFlag{Name: "json", Usage: "Output JSON"},
		},
		Action: func(c *cli.Context) error {
			in := env.in
			if path := c.String("file"); path != "" {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("failed to open message file: %w", err)
				}
				defer f.Close()
				in = f
			}

			parsed, err := mimeparse.Parse(in)
			if err != nil {
				return err
			}

			return env.invoke(func(tp *utils.TextProcessor, provider core.ScoringConfigProvider) error {
				body := tp.SanitizeUTF8(parsed.Text)
				item := &core.InboxItem{
					Sender:    parsed.From,
					Recipient: parsed.To,
					CC:        parsed.CC,
					Subject:   parsed.Subject,
					Date:      parsed.Date,
					Snippet:   tp.Snippet(body),
					Body:      body,
				}
				breakdown := core.Explain(item, env.scoringConfig(provider))
				total := 0
				for _, contribution := range breakdown {
					total += contribution.Points
				}

				if c.Bool("json") {
					return outputJSON(env.out, map[string]interface{}{
						"score":         total,
						"contributions": breakdown,
					})
				}

				fmt.Fprintf(env.out, "Subject: %s\nFrom: %s\n\n", item.Subject, item.Sender)
				w := tabwriter.NewWriter(env.out, 0, 4, 2, ' ', 0)
				for _, contribution := range breakdown {
					fmt.Fprintf(w, "%s\t%s\t%+d\n", contribution.Signal, contribution.Term, contribution.Points)
				}
				fmt.Fprintf(w, "total\t\t%d\n", total)
				return w.Flush()
			})
		},
	}
}

func outputJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputTable(out io.Writer, records []core.TriageRecord) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCORE\tPROCESSED\tDATE\tSENDER\tSUBJECT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%d\t%t\t%s\t%s\t%s\n",
			r.ID, r.ImportanceScore, r.Processed, r.Date,
			utils.TruncateRunes(r.Sender, 40), utils.TruncateRunes(r.Subject, 60))
	}
	return w.Flush()
}
