// designctl runs designs through the verification pipeline from the command
// line: calculate, review violations, override, report and version.
//
// State is shared through the configured stores, so consecutive invocations
// only see each other's logs and versions with LOG_STORE=redis and
// VERSION_STORE=postgres.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/DukeRupert/designaudit/internal"
	"github.com/DukeRupert/designaudit/internal/app"
	"github.com/DukeRupert/designaudit/internal/domain"
	"github.com/DukeRupert/designaudit/internal/service"
	"github.com/DukeRupert/designaudit/internal/worker"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		usage()
		return
	}

	commands := map[string]func(context.Context, *app.App, []string) error{
		"run":      cmdRun,
		"check":    cmdCheck,
		"override": cmdOverride,
		"report":   cmdReport,
		"save":     cmdSave,
		"history":  cmdHistory,
		"diff":     cmdDiff,
		"approve":  cmdApprove,
		"rollback": cmdRollback,
		"rules":    cmdRules,
		"batch":    cmdBatch,
	}
	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err := execute(fn, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `designctl - Design verification pipeline

Usage: designctl <command> [options]

Commands:
  run        Run a design calculation from a JSON input file
  check      Show the export verdict of a calculation log
  override   Override one violation of a calculation log
  report     Print the calculation and override reports
  save       Save a calculation as the next version of a project
  history    List the versions of a project
  diff       Compare two versions
  approve    Approve a version
  rollback   Create a new version from an earlier one
  rules      Show loaded rule categories and recommended values
  batch      Run a file of design jobs concurrently

Run 'designctl <command> -h' for command options.
Configuration is read from the environment (see .env.example).`)
}

func execute(fn func(context.Context, *app.App, []string) error, args []string) error {
	ctx := context.Background()

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)

	pipeline, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	return fn(ctx, pipeline, args)
}

// =============================================================================
// Commands
// =============================================================================

func cmdRun(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	calcType := fs.String("type", "rectangular_tank", "calculation type")
	designType := fs.String("design-type", "", "design sub-type selecting type-specific limits")
	inputPath := fs.String("inputs", "", "JSON file with design inputs (- for stdin)")
	description := fs.String("description", "", "calculation description")
	asJSON := fs.Bool("json", false, "print the calculation log as JSON")
	fs.Parse(args)

	inputs, err := readInputs(*inputPath)
	if err != nil {
		return err
	}

	result, runErr := a.Designs.RunDesign(ctx, service.DesignRequest{
		CalculationType: *calcType,
		DesignType:      *designType,
		Description:     *description,
		Inputs:          inputs,
	})
	if result == nil {
		return runErr
	}

	if *asJSON {
		if err := printJSON(result.Log); err != nil {
			return err
		}
	} else {
		report, err := a.Designs.Report(ctx, result.Log.ID)
		if err != nil {
			return err
		}
		fmt.Println(report.Calculation)
		printVerdict(result.Safety)
	}
	fmt.Fprintf(os.Stderr, "Calculation log: %s\n", result.Log.ID)
	return runErr
}

func cmdCheck(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	logID := fs.String("log", "", "calculation log ID")
	asJSON := fs.Bool("json", false, "print the verdict as JSON")
	fs.Parse(args)

	id, err := parseID("log", *logID)
	if err != nil {
		return err
	}
	res, err := a.Designs.CheckSafety(ctx, id)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(res)
	}
	printVerdict(*res)
	return nil
}

func cmdOverride(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("override", flag.ExitOnError)
	logID := fs.String("log", "", "calculation log ID")
	violationID := fs.String("violation", "", "violation ID")
	reason := fs.String("reason", "", "engineering justification")
	engineerID := fs.String("engineer-id", "", "engineer identifier")
	engineerName := fs.String("engineer-name", "", "engineer name")
	reference := fs.String("reference", "", "supporting reference document")
	fs.Parse(args)

	lid, err := parseID("log", *logID)
	if err != nil {
		return err
	}
	vid, err := parseID("violation", *violationID)
	if err != nil {
		return err
	}

	resp, err := a.Designs.Override(ctx, domain.OverrideRequest{
		LogID:        lid,
		ViolationID:  vid,
		Reason:       *reason,
		EngineerID:   *engineerID,
		EngineerName: *engineerName,
		ReferenceDoc: *reference,
	})
	if err != nil {
		return err
	}
	if err := printJSON(resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("override rejected: %s", resp.Message)
	}
	return nil
}

func cmdReport(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	logID := fs.String("log", "", "calculation log ID")
	fs.Parse(args)

	id, err := parseID("log", *logID)
	if err != nil {
		return err
	}
	report, err := a.Designs.Report(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println(report.Calculation)
	if report.HasOverrides {
		fmt.Println()
		fmt.Println(report.Overrides)
	}
	return nil
}

func cmdSave(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	project := fs.String("project", "", "project ID")
	logID := fs.String("log", "", "calculation log ID")
	description := fs.String("description", "", "version description")
	tag := fs.String("tag", "", "version tag (default vN.0)")
	by := fs.String("by", "", "author")
	archive := fs.Bool("archive", true, "archive the rendered reports")
	fs.Parse(args)

	id, err := parseID("log", *logID)
	if err != nil {
		return err
	}
	v, err := a.Designs.SaveVersion(ctx, service.SaveVersionParams{
		ProjectID:      *project,
		LogID:          id,
		Description:    *description,
		Tag:            *tag,
		CreatedBy:      *by,
		ArchiveReports: *archive,
	})
	if err != nil {
		return err
	}
	return printJSON(v.Summary())
}

func cmdHistory(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	project := fs.String("project", "", "project ID")
	fs.Parse(args)

	history, err := a.Versions.GetVersionHistory(ctx, *project)
	if err != nil {
		return err
	}
	return printJSON(history)
}

func cmdDiff(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	from := fs.String("from", "", "base version ID")
	to := fs.String("to", "", "target version ID")
	full := fs.Bool("full", false, "include the step by step calculation diff")
	fs.Parse(args)

	fromID, err := parseID("from", *from)
	if err != nil {
		return err
	}
	toID, err := parseID("to", *to)
	if err != nil {
		return err
	}
	if *full {
		report, err := a.Versions.GenerateDiffReport(ctx, fromID, toID)
		if err != nil {
			return err
		}
		return printJSON(report)
	}
	diff, err := a.Versions.CompareVersions(ctx, fromID, toID)
	if err != nil {
		return err
	}
	return printJSON(diff)
}

func cmdApprove(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	versionID := fs.String("version", "", "version ID")
	by := fs.String("by", "", "approver")
	fs.Parse(args)

	id, err := parseID("version", *versionID)
	if err != nil {
		return err
	}
	ok, err := a.Versions.ApproveVersion(ctx, id, *by)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("version %s not found", id)
	}
	fmt.Printf("Version %s approved by %s\n", id, *by)
	return nil
}

func cmdRollback(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	project := fs.String("project", "", "project ID")
	versionID := fs.String("version", "", "version to roll back to")
	by := fs.String("by", "", "author")
	fs.Parse(args)

	id, err := parseID("version", *versionID)
	if err != nil {
		return err
	}
	v, err := a.Versions.RollbackToVersion(ctx, *project, id, *by)
	if err != nil {
		return err
	}
	return printJSON(v.Summary())
}

func cmdRules(_ context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("rules", flag.ExitOnError)
	category := fs.String("category", "", "rule category (default: list categories)")
	designType := fs.String("design-type", "", "design sub-type")
	fs.Parse(args)

	if *category == "" {
		for _, c := range a.Engine.Categories() {
			defs, _ := a.Engine.Rules(c)
			fmt.Printf("%-12s %d rules\n", c, len(defs))
		}
		return nil
	}

	recs := a.Engine.GetRecommendations(*category, *designType)
	names := make([]string, 0, len(recs))
	for n := range recs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Printf("%-24s %g\n", n, recs[n])
	}
	return nil
}

func cmdBatch(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	jobsPath := fs.String("jobs", "", "JSON file with an array of design jobs (- for stdin)")
	project := fs.String("project", "", "save every successful calculation as a version of this project")
	createdBy := fs.String("by", "", "engineer recorded on saved versions")
	fs.Parse(args)

	var payloads []worker.RunDesignPayload
	if err := readJSON(*jobsPath, "jobs", &payloads); err != nil {
		return err
	}

	batch := make([]worker.Job, 0, len(payloads))
	for _, p := range payloads {
		if p.ProjectID == "" {
			p.ProjectID = *project
		}
		if p.CreatedBy == "" {
			p.CreatedBy = *createdBy
		}
		job, err := worker.NewJob(worker.JobTypeRunDesign, p)
		if err != nil {
			return err
		}
		batch = append(batch, job)
	}

	failed := 0
	for i, res := range a.Jobs.Run(ctx, batch) {
		if res.Err != nil {
			failed++
			fmt.Printf("%3d  FAILED  %s (attempts %d)\n", i+1, res.Err, res.Attempts)
		}
		if len(res.Output) == 0 {
			continue
		}
		var out worker.RunDesignOutput
		if err := json.Unmarshal(res.Output, &out); err != nil {
			return fmt.Errorf("decode job output: %w", err)
		}
		verdict := "BLOCKED"
		if out.CanExport {
			verdict = "ALLOWED"
		}
		line := fmt.Sprintf("%3d  %s  %-18s export %s, %d violations, %d pending override",
			i+1, out.LogID, out.CalculationType, verdict, out.Violations, out.PendingOverride)
		if out.VersionID != nil {
			line += fmt.Sprintf(", version %d", out.VersionNumber)
		}
		fmt.Println(line)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(batch))
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func readInputs(path string) (domain.Params, error) {
	var inputs domain.Params
	if err := readJSON(path, "inputs", &inputs); err != nil {
		return nil, err
	}
	return inputs, nil
}

// readJSON decodes the file given to the named flag into v; "-" reads stdin.
func readJSON(path, name string, v any) error {
	var r io.Reader
	switch path {
	case "":
		return fmt.Errorf("-%s is required", name)
	case "-":
		r = os.Stdin
	default:
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func parseID(name, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("-%s is required", name)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid -%s: %w", name, err)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printVerdict(res domain.SafetyCheckResult) {
	fmt.Println()
	if res.CanExport {
		fmt.Println("Export: ALLOWED")
	} else {
		fmt.Println("Export: BLOCKED")
	}
	fmt.Printf("Violations: %d (critical %d, major %d, minor %d, info %d), overridden %d, pending %d\n",
		res.TotalViolations, res.CriticalCount, res.MajorCount, res.MinorCount, res.InfoCount,
		res.OverriddenCount, res.PendingOverrideCount)
	for _, v := range res.Violations {
		state := "open"
		if v.IsOverridden {
			state = "overridden"
		}
		fmt.Printf("  %s  %-8s %-10s %s\n", v.ID, v.Severity, state, v.Message)
	}
	for _, reason := range res.BlockReasons {
		fmt.Printf("  blocked: %s\n", reason)
	}
}
