package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/permit"
	"github.com/oarkflow/permit/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "conflicts":
		handleConflicts()
	case "stats":
		handleStats()
	case "apply":
		handleApply()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("permit-config - Configuration tool for permit")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  permit-config convert <input> <output>  - Convert between formats")
	fmt.Println("  permit-config validate <file>           - Validate configuration")
	fmt.Println("  permit-config conflicts <file>          - Run static conflict analysis")
	fmt.Println("  permit-config stats <file>              - Show configuration statistics")
	fmt.Println("  permit-config apply <file>              - Apply configuration to in-memory stores")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: permit-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := loadConfig(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permit-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	findings := cfg.Validate()
	for _, f := range findings {
		fmt.Println(f)
	}
	if hasErrorFindings(findings) {
		os.Exit(1)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version: %d\n", cfg.Version)
	fmt.Printf("  Rules: %d\n", len(cfg.Rules))
	fmt.Printf("  Delegations: %d\n", len(cfg.Delegations))
}

func handleConflicts() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permit-config conflicts <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	policy := cfg.BuildPolicy()
	report := permit.NewConflictDetector().Detect(policy)
	warnings := permit.NewPolicyValidator().CheckForConflicts(policy)

	if report.Empty() && len(warnings) == 0 {
		fmt.Println("No conflicts found")
		return
	}
	for _, f := range report.AllowDenyConflicts {
		fmt.Println(f)
	}
	for _, f := range report.PriorityCollisions {
		fmt.Println(f)
	}
	for _, f := range report.UnreachableRules {
		fmt.Println(f)
	}
	for _, f := range warnings {
		fmt.Println(f)
	}
	os.Exit(1)
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permit-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	fmt.Println("Components:")
	fmt.Printf("  Rules:       %d\n", len(cfg.Rules))
	fmt.Printf("  Delegations: %d\n", len(cfg.Delegations))
	fmt.Println()

	if len(cfg.Rules) > 0 {
		allowCount := 0
		denyCount := 0
		for _, r := range cfg.Rules {
			if r.Effect == permit.EffectAllow {
				allowCount++
			} else {
				denyCount++
			}
		}
		fmt.Println("Rule Details:")
		fmt.Printf("  Allow rules: %d\n", allowCount)
		fmt.Printf("  Deny rules:  %d\n", denyCount)
		fmt.Println()
	}

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Strategy:              %s\n", cfg.Engine.Strategy)
	fmt.Printf("  Default effect:        %s\n", cfg.Engine.DefaultEffect)
	fmt.Printf("  Max delegation hours:  %d\n", cfg.Engine.MaxDurationHours)
	fmt.Printf("  Retention hours:       %d\n", cfg.Engine.RetentionHours)
	fmt.Printf("  Decision cache TTL:    %dms\n", cfg.Engine.DecisionCacheTTL)
}

func handleApply() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permit-config apply <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	policies := stores.NewMemoryPolicyRepository()
	delegations := stores.NewMemoryDelegationRepository()

	matcher, err := permit.NewRuleMatcher(cfg.Engine.Strategy, nil)
	if err != nil {
		fmt.Printf("Error building matcher: %v\n", err)
		os.Exit(1)
	}
	evaluator := permit.NewPolicyEvaluator(matcher, permit.NewEffectResolver(cfg.Engine.DefaultEffect))
	validator := permit.NewDelegationValidator(evaluator, policies, delegations, cfg.Engine.MaxDelegationDuration())
	manager := permit.NewDelegationManager(validator, delegations, permit.WithRetention(cfg.Engine.Retention()))

	ctx := context.Background()
	if err := cfg.Apply(ctx, policies, manager); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration applied successfully\n")
	fmt.Printf("  Rules loaded: %d\n", len(cfg.Rules))
	fmt.Printf("  Delegations granted: %d\n", len(cfg.Delegations))
}

func loadConfig(filename string) (*permit.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	loader := permit.NewConfigLoader()

	switch ext {
	case ".yaml", ".yml":
		return loader.LoadYAML(data)
	case ".json":
		return loader.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func saveConfig(cfg *permit.Config, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

func hasErrorFindings(findings []permit.Finding) bool {
	for _, f := range findings {
		if f.Severity == permit.SeverityError {
			return true
		}
	}
	return false
}
