package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/socialtracker/internal/config"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/policy"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	checkUsage    []string
	checkLimits   []string
	checkSessions []string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check classification and recommendation decisions interactively",
	Long:  `Check how socialtracker would classify a URL or which recommendations it would make for a day of usage.`,
}

var checkURLCmd = &cobra.Command{
	Use:   "url URL [URL...]",
	Short: "Check which platform a URL is tracked as",
	Example: `  socialtracker check url https://www.facebook.com/groups
  socialtracker check url https://m.youtube.com/watch?v=1 https://example.com/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheckURL,
}

var checkRecommendCmd = &cobra.Command{
	Use:   "recommend [flags]",
	Short: "Check which recommendations a day of usage produces",
	Example: `  socialtracker check recommend --usage facebook=55 --limit facebook=60
  socialtracker -c config.yaml check recommend --usage youtube=130 --usage tiktok=20`,
	Args: cobra.NoArgs,
	RunE: runCheckRecommend,
}

func init() {
	checkRecommendCmd.Flags().StringArrayVar(&checkUsage, "usage", nil, "Minutes used on a platform (platform=minutes), repeatable")
	checkRecommendCmd.Flags().StringArrayVar(&checkLimits, "limit", nil, "Daily limit for a platform (platform=minutes), repeatable")
	checkRecommendCmd.Flags().StringArrayVar(&checkSessions, "sessions", nil, "Session count for a platform (platform=count), repeatable")

	checkCmd.AddCommand(checkURLCmd)
	checkCmd.AddCommand(checkRecommendCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckURL(cmd *cobra.Command, args []string) error {
	classifier, err := platform.NewClassifier(len(args))
	if err != nil {
		return fmt.Errorf("failed to initialize classifier: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	for _, rawURL := range args {
		fmt.Printf("URL:      %s\n", rawURL)
		cyan.Print("Platform: ")
		if p, ok := classifier.Classify(rawURL); ok {
			green.Println(p.Title())
			fmt.Println("          → Time on this page counts towards the daily limit")
		} else {
			yellow.Println("(not tracked)")
		}
		fmt.Println()
	}
	return nil
}

func runCheckRecommend(cmd *cobra.Command, args []string) error {
	usageMinutes, err := parsePlatformValues("usage", checkUsage)
	if err != nil {
		return err
	}
	limitMinutes, err := parsePlatformValues("limit", checkLimits)
	if err != nil {
		return err
	}
	sessionCounts, err := parsePlatformValues("sessions", checkSessions)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	engine, err := policy.NewEngine(cfg.Recommendations.PolicyDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Policy Engine: %w", err)
	}

	input := policy.Input{
		Usage:  make(map[string]policy.PlatformUsage),
		Limits: make(map[string]int),
	}
	for _, p := range platform.All() {
		input.Limits[string(p)] = cfg.Limits.DefaultMinutes
	}
	for name, minutes := range limitMinutes {
		input.Limits[name] = minutes
	}
	for name, minutes := range usageMinutes {
		sessions := sessionCounts[name]
		if sessions == 0 && minutes > 0 {
			sessions = 1
		}
		input.Usage[name] = policy.PlatformUsage{Duration: minutes, Sessions: sessions}
		input.TotalMinutes += minutes
	}

	suggestions, err := engine.Recommend(context.Background(), input)
	if err != nil {
		return fmt.Errorf("failed to evaluate policies: %w", err)
	}

	printRecommendResult(input, suggestions)
	return nil
}

// parsePlatformValues parses repeated platform=number flags
func parsePlatformValues(flag string, values []string) (map[string]int, error) {
	out := make(map[string]int, len(values))
	for _, value := range values {
		name, number, ok := strings.Cut(value, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --%s %q: expected platform=number", flag, value)
		}
		p, err := platform.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("invalid --%s %q: %w", flag, value, err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(number))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid --%s %q: expected a non-negative number", flag, value)
		}
		out[string(p)] = n
	}
	return out, nil
}

// printRecommendResult prints the recommendation check result with colors
func printRecommendResult(input policy.Input, suggestions []policy.Suggestion) {
	cyan := color.New(color.FgCyan, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("RECOMMENDATION CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	names := make([]string, 0, len(input.Usage))
	for name := range input.Usage {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		u := input.Usage[name]
		fmt.Printf("%-10s %4d / %d minutes (%d sessions)\n", name+":", u.Duration, input.Limits[name], u.Sessions)
	}
	fmt.Printf("Total:     %4d minutes\n", input.TotalMinutes)
	fmt.Println()

	if len(suggestions) == 0 {
		fmt.Println("No recommendations")
	}
	for _, s := range suggestions {
		label := yellow
		if s.Type != "break_suggestion" {
			label = green
		}
		label.Printf("[%s] ", s.Type)
		fmt.Println(s.Title)
		fmt.Printf("            → %s\n", s.Message)
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}
