package app

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"mailtriage/internal/config"
	"mailtriage/internal/httpx"
	"mailtriage/internal/integrations/llm"
	slackbot "mailtriage/internal/integrations/slack"
	"mailtriage/internal/refresh"
	"mailtriage/internal/storage/sqlite"
	"mailtriage/internal/triage"
)

type command struct {
	summary string
	run     func(args []string, out io.Writer) error
}

var commands = map[string]command{
	"import-rules": {"replace the stored rules with a CSV, TSV or YAML file", runImportRules},
	"import-items": {"upsert work items from a CSV or TSV file", runImportItems},
	"add-item":     {"create or update one work item", runAddItem},
	"set-status":   {"change the status of a work item", runSetStatus},
	"triage":       {"triage one message and print the outcome", runTriage},
	"history":      {"list recent triage decisions", runHistory},
	"serve":        {"process the inbox on a schedule", runServe},
}

// Main runs the command line and exits non-zero on failure.
func Main() {
	if err := Run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("mailtriage: %v", err)
	}
}

// Run dispatches args[0] to its subcommand.
func Run(args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(out)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printUsage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.run(args[1:], out)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "usage: mailtriage <command> [flags]")
	fmt.Fprintln(out)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-13s %s\n", name, commands[name].summary)
	}
}

func newFlagSet(name string, out io.Writer) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", "", "config file (default $CONFIG_PATH or config.yaml)")
	return fs, configPath
}

// env is the loaded config plus an open database.
type env struct {
	cfg config.Config
	db  *sql.DB
}

func openEnv(configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applied := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf("Config loaded. DB=%s Rules=%s Inbox=%s Mode=%s Timezone=%s Slack=%v LLM=%v ExternalHTTPTimeout=%s",
		cfg.DBPath, cfg.RulesPath, cfg.InboxDir, cfg.ClassifierMode, cfg.Timezone,
		cfg.SlackConfigured(), cfg.LLMConfigured(), applied)

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	return &env{cfg: cfg, db: db}, nil
}

func (e *env) Close() {
	if err := e.db.Close(); err != nil {
		log.Printf("close database: %v", err)
	}
}

func (e *env) loader() refresh.Loader {
	return refresh.Loader{DB: e.db, RulesPath: e.cfg.RulesPath}
}

// engine builds a triage engine, with LLM titles when a key is configured.
func (e *env) engine(useLLM bool) *triage.Engine {
	if useLLM && e.cfg.LLMConfigured() {
		return triage.New(e.cfg.ClassifierOptions(), llm.NewSummarizer(e.cfg.AnthropicAPIKey, e.cfg.LLMModel))
	}
	return triage.New(e.cfg.ClassifierOptions(), nil)
}

// notifier returns nil when Slack is not configured.
func (e *env) notifier() *slackbot.Notifier {
	if !e.cfg.SlackConfigured() {
		return nil
	}
	api := slackbot.NewClient(e.cfg.SlackBotToken)
	return slackbot.NewNotifier(api, e.cfg.SlackChannelID).WithDirectory(slackbot.NewDirectory(api))
}

func requireArg(fs *pflag.FlagSet, what string) (string, error) {
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		return "", fmt.Errorf("%s: expected exactly one %s argument", fs.Name(), what)
	}
	return fs.Arg(0), nil
}
