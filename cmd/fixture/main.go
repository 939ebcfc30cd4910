package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/derekprior/fixture/internal/config"
	"github.com/derekprior/fixture/internal/excel"
	"github.com/derekprior/fixture/internal/logging"
	"github.com/derekprior/fixture/internal/schedule"
	"github.com/derekprior/fixture/internal/server"
	"github.com/derekprior/fixture/internal/strategy"
	"github.com/derekprior/fixture/internal/teams"
	"github.com/derekprior/fixture/internal/validator"
	"github.com/derekprior/fixture/internal/zone"
)

const defaultConfigFile = "config.yaml"

func resolveConfigPath(configFlag string) (string, error) {
	if configFlag != "" {
		return configFlag, nil
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile, nil
	}
	return "", fmt.Errorf("no config file found. Either create %s in the current directory or pass --config", defaultConfigFile)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "fixture",
		Short: "Round-robin tournament fixture generator",
	}

	var initOutputPath string
	initCmd := &cobra.Command{
		Use:          "init",
		Short:        "Create a starter config.yaml in the current directory",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(initOutputPath)
		},
	}
	initCmd.Flags().StringVarP(&initOutputPath, "output", "o", defaultConfigFile, "Output path for the config file")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Generate and validate fixtures",
	}

	var configFile string
	scheduleCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: config.yaml in current directory)")

	var outputFile string
	generateCmd := &cobra.Command{
		Use:          "generate",
		Short:        "Generate a fixture from a config file",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := resolveConfigPath(configFile)
			if err != nil {
				return err
			}
			return runGenerate(configPath, outputFile)
		},
	}
	generateCmd.Flags().StringVarP(&outputFile, "output", "o", "fixture.xlsx", "Output Excel file path")

	var partsOutputFile string
	partsCmd := &cobra.Command{
		Use:          "parts",
		Short:        "Write the match list and the slot list without assigning them",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := resolveConfigPath(configFile)
			if err != nil {
				return err
			}
			return runParts(configPath, partsOutputFile)
		},
	}
	partsCmd.Flags().StringVarP(&partsOutputFile, "output", "o", "parts.xlsx", "Output Excel file path")

	validateCmd := &cobra.Command{
		Use:          "validate <fixture.xlsx>",
		Short:        "Validate an edited fixture against config rules",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := resolveConfigPath(configFile)
			if err != nil {
				return err
			}
			return runValidate(configPath, args[0])
		},
	}

	var (
		addr        string
		environment string
		maxWorkload int
	)
	serveCmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the fixture generator over HTTP",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, environment, maxWorkload)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&environment, "env", "production", "Environment (development logs at debug level to the console)")
	serveCmd.Flags().IntVar(&maxWorkload, "max-workload", server.DefaultMaxWorkload, "Largest matches x slots a single request may schedule (0 disables)")

	scheduleCmd.AddCommand(generateCmd, partsCmd, validateCmd)
	rootCmd.AddCommand(initCmd, scheduleCmd, serveCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runInit(outputPath string) error {
	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("%s already exists; remove it first or use -o to write elsewhere", outputPath)
	}

	if err := os.WriteFile(outputPath, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("✓ Created %s\n", outputPath)
	return nil
}

const configTemplate = `# Tournament Configuration
# ========================
# This file defines the parameters for generating a round-robin fixture.

title: "Spring Tournament"

# Optional. When set, each day is also labelled with its calendar date.
start_date: "2026-11-07"

# Zone system. "rr" plays one round robin among all teams. "8x3" and "4x6"
# split exactly 24 teams, in list order, into 8 zones of 3 or 4 zones of 6.
# Any other code or team count plays a single zone.
# Teams that already carry a zone keep it.
system: rr

# Playing window.
days: 2
fields: 3
start_time: "09:00"
end_time: "18:00"
match_duration: 60

# Minimum minutes between the starts of two matches of the same team.
# Defaults to match_duration.
rest: 60

# No match may start inside this window.
midday_break: ["13:00", "14:00"]

# Play every pairing twice, the second time with home and away swapped.
home_and_away: false

# Optional cap on matches per day across all fields.
# max_matches_per_day: 20

# Teams come from a ';'-delimited CSV (Zona;Equipos) or an .xlsx sheet with
# the same headers, resolved relative to this file...
teams_file: teams.csv

# ...or are listed inline when teams_file is omitted.
# teams:
#   - name: Lions
#   - name: Tigers
#     zone: B
`

// load reads the config and its team list and assigns zones.
func load(configPath string) (*config.Config, []config.Team, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	list, err := teams.Resolve(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("loading teams: %w", err)
	}
	zoned := zone.Assign(list, cfg.System)
	if err := config.ValidateTeams(zoned); err != nil {
		return nil, nil, fmt.Errorf("invalid teams: %w", err)
	}
	return cfg, zoned, nil
}

func runGenerate(configPath, outputPath string) error {
	cfg, zoned, err := load(configPath)
	if err != nil {
		return err
	}

	games := strategy.GenerateMatchups(zoned, cfg.System, cfg.HomeAndAway)
	slots := schedule.GenerateSlots(cfg)
	breaks := schedule.GenerateBreakSlots(cfg)

	fmt.Printf("Scheduling %d matches for %d teams in %d zones into %d available slots...\n",
		len(games), len(zoned), len(zone.Group(zoned)), len(slots))

	result, err := schedule.Schedule(schedule.RulesFromConfig(cfg), slots, games)
	if err != nil {
		var infeasible *schedule.InfeasibleError
		if errors.As(err, &infeasible) {
			fmt.Fprintf(os.Stderr, "⚠ %s\n", err)
			return fmt.Errorf("no fixture written: %d of %d matches scheduled", infeasible.Scheduled, infeasible.Total)
		}
		return err
	}
	fmt.Printf("✓ All %d matches scheduled\n", len(result.Assignments))

	fmt.Println("\nPer Team Metrics:")
	fmt.Printf("  %-20s %4s %7s %7s\n", "Team", "Zone", "Matches", "MinGap")
	for _, t := range zoned {
		m, ok := result.TeamMetrics[t.Name]
		if !ok {
			fmt.Printf("  %-20s %4s %7d %7s\n", t.Name, t.Zone, 0, "-")
			continue
		}
		gap := "-"
		if m.MinGap >= 0 {
			gap = fmt.Sprintf("%d", m.MinGap)
		}
		fmt.Printf("  %-20s %4s %7d %7s\n", t.Name, m.Zone, m.Matches, gap)
	}

	f, err := excel.Generate(cfg, result, slots, breaks)
	if err != nil {
		return fmt.Errorf("generating Excel: %w", err)
	}
	defer f.Close()

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("saving file: %w", err)
	}

	fmt.Printf("\n✓ Fixture saved to %s\n", outputPath)
	return nil
}

func runParts(configPath, outputPath string) error {
	cfg, zoned, err := load(configPath)
	if err != nil {
		return err
	}

	games := strategy.GenerateMatchups(zoned, cfg.System, cfg.HomeAndAway)
	slots := schedule.GenerateSlots(cfg)

	f, err := excel.GenerateParts(games, slots)
	if err != nil {
		return fmt.Errorf("generating Excel: %w", err)
	}
	defer f.Close()

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("saving file: %w", err)
	}
	fmt.Printf("✓ %d matches and %d slots saved to %s\n", len(games), len(slots), outputPath)
	return nil
}

func runValidate(configPath, fixturePath string) error {
	cfg, zoned, err := load(configPath)
	if err != nil {
		return err
	}

	violations, err := validator.Validate(cfg, zoned, fixturePath)
	if err != nil {
		return fmt.Errorf("validating: %w", err)
	}

	errors := 0
	warnings := 0
	for _, v := range violations {
		prefix := ""
		if v.Row > 0 {
			prefix = fmt.Sprintf("row %d: ", v.Row)
		}
		switch v.Type {
		case "error":
			errors++
			fmt.Printf("✗ Rule violation: %s%s\n", prefix, v.Message)
		case "warning":
			warnings++
			fmt.Printf("⚠ Warning: %s%s\n", prefix, v.Message)
		}
	}

	fmt.Printf("\nValidation complete: %d rule violations, %d warnings\n", errors, warnings)

	// Regenerate team sheets from the fixture sheet
	if err := excel.UpdateTeamSheets(fixturePath); err != nil {
		return fmt.Errorf("updating team sheets: %w", err)
	}
	fmt.Printf("✓ Team sheets updated in %s\n", fixturePath)

	if errors > 0 {
		return fmt.Errorf("%d constraint violations found", errors)
	}
	return nil
}

func runServe(addr, environment string, maxWorkload int) error {
	logger := logging.Setup(environment)

	srv, err := server.New(logger, server.Options{MaxWorkload: maxWorkload})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx, addr)
}
