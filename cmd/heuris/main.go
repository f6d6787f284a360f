// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

// Command heuris runs the skill-driven research agent: one-shot runs, an
// interactive chat loop, and skill inspection.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jllopis/heuris/pkg/agent"
	"github.com/jllopis/heuris/pkg/config"
	"github.com/jllopis/heuris/pkg/core"
	"github.com/jllopis/heuris/pkg/eventlog"
	"github.com/jllopis/heuris/pkg/llm"
	"github.com/jllopis/heuris/pkg/session"
	"github.com/jllopis/heuris/pkg/skills"
	"github.com/jllopis/heuris/pkg/telemetry"
	"github.com/jllopis/heuris/pkg/workspace"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	shutdown, err := telemetry.Init("heuris", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fatal(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	switch args[0] {
	case "run":
		if len(args) < 2 {
			fatal(fmt.Errorf("usage: heuris run \"question\""))
		}
		runOnce(ctx, cfg, strings.Join(args[1:], " "))
	case "chat":
		runChat(ctx, cfg)
	case "skills":
		listSkills(cfg)
	case "version":
		fmt.Println("heuris " + version)
	case "help":
		printUsage()
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func runOnce(ctx context.Context, cfg *config.Config, question string) {
	a, cleanup, err := buildAgent(cfg)
	if err != nil {
		fatal(err)
	}
	defer cleanup()
	fmt.Println(a.Run(ctx, question))
}

func runChat(ctx context.Context, cfg *config.Config) {
	d, root, cleanup, err := buildDeps(cfg)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	manager, err := session.NewManager(root, agentFactory(cfg, d),
		session.WithIdleTimeout(cfg.Session.IdleTimeout),
		session.WithReapInterval(cfg.Session.ReapInterval),
	)
	if err != nil {
		fatal(err)
	}
	manager.StartReaper()
	defer manager.Stop()

	// Pick up SKILL.md edits between turns.
	watcher := skills.NewWatcher(d.registry)
	watcher.Start()
	defer watcher.Stop()

	id := "default"
	fmt.Println("heuris chat. Type 'exit' to quit, '/session <id>' to switch.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("%s> ", id)
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return
		}
		if rest, ok := strings.CutPrefix(input, "/session "); ok {
			id = strings.TrimSpace(rest)
			continue
		}
		answer, err := manager.Run(ctx, id, input)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			continue
		}
		fmt.Println(answer)
		if ctx.Err() != nil {
			return
		}
	}
}

func listSkills(cfg *config.Config) {
	registry, err := buildRegistry(cfg)
	if err != nil {
		fatal(err)
	}
	defer registry.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, meta := range registry.List() {
		fmt.Fprintf(w, "%s\t%s\n", meta.Name, meta.Description)
	}
	w.Flush()
}

func buildRegistry(cfg *config.Config) (*skills.Registry, error) {
	return skills.NewRegistry(cfg.Agent.SkillsDir,
		skills.WithEnabledSkills(cfg.Agent.EnabledSkills),
		skills.WithAlwaysInclude(cfg.Agent.VerifySkill, cfg.Agent.AnswerSkill),
		skills.WithToolTimeout(cfg.Agent.ToolTimeout),
	)
}

// deps are the pieces shared by every agent the process builds: one
// registry, one provider, one transcript store, one event fan-out.
type deps struct {
	registry    *skills.Registry
	provider    llm.Provider
	transcripts *workspace.TranscriptStore
	emitter     core.EventEmitter
}

func buildDeps(cfg *config.Config) (*deps, *workspace.Workspace, func(), error) {
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	// Transcripts survive the per-run scratch reset.
	preserve := append([]string{"transcripts"}, cfg.Workspace.Preserve...)
	root, err := workspace.New(cfg.Workspace.Dir, workspace.WithPreserve(preserve...))
	if err != nil {
		registry.Close()
		return nil, nil, nil, err
	}
	transcripts, err := workspace.NewTranscriptStore(root.Path("transcripts"))
	if err != nil {
		registry.Close()
		return nil, nil, nil, err
	}

	var closers []func()
	var sinks []core.EventEmitter
	if cfg.EventLog.Path != "" {
		sink, err := eventlog.NewJSONLSink(cfg.EventLog.Path)
		if err != nil {
			registry.Close()
			return nil, nil, nil, err
		}
		closers = append(closers, func() { sink.Close() })
		sinks = append(sinks, sink)
	}
	if cfg.EventLog.SQLitePath != "" {
		store, err := eventlog.OpenSQLiteStore(cfg.EventLog.SQLitePath)
		if err != nil {
			registry.Close()
			return nil, nil, nil, err
		}
		closers = append(closers, func() { store.Close() })
		sinks = append(sinks, store)
	}

	d := &deps{
		registry: registry,
		provider: llm.NewOpenAI(
			llm.WithBaseURL(cfg.LLM.BaseURL),
			llm.WithAPIKeyEnv(cfg.LLM.APIKeyEnv),
		),
		transcripts: transcripts,
		emitter:     eventlog.NewMultiEmitter(sinks...),
	}
	cleanup := func() {
		for _, c := range closers {
			c()
		}
		registry.Close()
	}
	return d, root, cleanup, nil
}

// agentFactory builds one agent per workspace partition.
func agentFactory(cfg *config.Config, d *deps) session.Factory {
	return func(id string, ws *workspace.Workspace) (*agent.Agent, error) {
		return agent.New(d.provider, d.registry, ws,
			agent.WithModel(cfg.LLM.Model),
			agent.WithSystemMessage(cfg.LLM.System),
			agent.WithPlanningSkill(cfg.Agent.PlanningSkill),
			agent.WithAnswerSkill(cfg.Agent.AnswerSkill),
			agent.WithMaxIterations(cfg.Agent.MaxIterations),
			agent.WithRateLimitRetry(cfg.Agent.RateLimitRetries, cfg.Agent.RateLimitBackoff),
			agent.WithEmitter(d.emitter),
			agent.WithTranscripts(d.transcripts),
		)
	}
}

func buildAgent(cfg *config.Config) (*agent.Agent, func(), error) {
	d, root, cleanup, err := buildDeps(cfg)
	if err != nil {
		return nil, nil, err
	}
	a, err := agentFactory(cfg, d)("", root)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return a, cleanup, nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: heuris [-config path] <command>

Commands:
  run "question"   Answer a single question and exit
  chat             Interactive prompt loop
  skills           List discovered skills
  version          Print the version
  help             Show this help
`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
