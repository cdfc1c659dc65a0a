package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/cognicore/graphmind/pkg/graphmind"
	"github.com/cognicore/graphmind/pkg/graphmind/config"
	"github.com/cognicore/graphmind/pkg/graphmind/planner"
)

func main() {
	var (
		graphPath  = flag.String("graph", "", "Graph fixture file (required)")
		configPath = flag.String("config", "", "Engine config file (optional)")
		query      = flag.String("query", "", "One-shot query (non-interactive mode)")
		start      = flag.String("start", "", "Start entity id")
		target     = flag.String("target", "", "Target entity id")
		hops       = flag.Int("hops", 0, "Max hops (0 = config default)")
		infer      = flag.Bool("infer", false, "Run inference rules before synthesis")
		verbose    = flag.Bool("verbose", false, "Print evidence details and the reasoning trace")
	)
	flag.Parse()

	if *graphPath == "" {
		log.Fatal("--graph required")
	}

	ctx := context.Background()

	engine, cfg, cleanup, err := buildEngine(*configPath, *graphPath)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	req := graphmind.FullReasonRequest{
		Context: planner.Context{
			StartEntityID:  *start,
			TargetEntityID: *target,
		},
		MaxHops:      *hops,
		UseInference: *infer,
		Strategy:     planner.Strategy(cfg.Planner.Strategy),
	}
	if req.MaxHops == 0 {
		req.MaxHops = cfg.Limits.MaxHops
	}
	req.MaxEvidence = cfg.Limits.MaxEvidence
	req.MaxSteps = cfg.Limits.MaxSteps

	// One-shot query mode
	if *query != "" {
		req.Query = *query
		if err := executeQuery(ctx, engine, req, *verbose); err != nil {
			log.Fatal(err)
		}
		return
	}

	// Interactive mode
	fmt.Println("===========================================")
	fmt.Println("  Graphmind Reasoning CLI")
	fmt.Println("  Multi-hop Q&A over a knowledge graph")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Println("Reference entities as [id], e.g. \"how is [alice] linked to [acme]\".")
	fmt.Println("Type your question (Ctrl+D to exit):")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		r := req
		r.Query = line
		if err := executeQuery(ctx, engine, r, *verbose); err != nil {
			fmt.Println("Error:", err)
		}
	}

	fmt.Println("\nGoodbye!")
}

func executeQuery(ctx context.Context, engine *graphmind.Engine, req graphmind.FullReasonRequest, verbose bool) error {
	res, err := engine.FullReason(ctx, req)
	if err != nil {
		return fmt.Errorf("reason: %w", err)
	}

	fmt.Println()
	fmt.Println(res.Answer)
	fmt.Printf("Confidence: %.2f (%d evidence items, %dms)\n",
		res.Confidence, len(res.Evidence), res.ExecutionTimeMS)

	if !verbose {
		fmt.Println()
		return nil
	}

	for i, ev := range res.Evidence {
		fmt.Printf("\n--- Evidence %d [%s] ---\n", i+1, ev.Type)
		fmt.Printf("  %s\n", ev.Explanation)
		fmt.Printf("  confidence %.2f, relevance %.2f, source %s\n",
			ev.Confidence, ev.RelevanceScore, ev.Source)
		for _, p := range ev.Paths {
			fmt.Printf("  path (%d hops): %s\n", p.Length(), p.Render())
		}
	}

	fmt.Println("\nReasoning trace:")
	for _, line := range res.ReasoningTrace {
		fmt.Println("  -", line)
	}
	fmt.Println()
	return nil
}

func buildEngine(configPath, graphPath string) (*graphmind.Engine, *config.EngineConfig, func(), error) {
	loader := config.Loader{
		ConfigPath: configPath,
		GraphPath:  graphPath,
	}

	components, err := loader.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	engine, err := graphmind.New(graphmind.Options{
		Store:       components.Store,
		SchemaCache: components.SchemaCache,
		Planner:     components.Planner,
		Inference:   components.Inference,
		Synthesizer: components.Synthesizer,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build engine: %w", err)
	}

	cleanup := func() {
		engine.Close()
	}

	return engine, components.Config, cleanup, nil
}
