package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gorewood/briefship/internal/config"
	"github.com/gorewood/briefship/internal/git"
	"github.com/gorewood/briefship/internal/output"
)

// gitignoreEntries keep deploy history and local overrides out of commits.
var gitignoreEntries = []string{".briefship/", ".env.local"}

type initFlags struct {
	instanceID string
	region     string
	branch     string
	appDir     string
	force      bool
}

// initStepResult tracks the result of a single initialization step.
type initStepResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "skipped"
	Message string `json:"message,omitempty"`
}

func newInitCmd() *cobra.Command {
	flags := &initFlags{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create briefship.yaml in the current repository",
		Long: `Create a commented briefship.yaml at the repository root and add
.briefship/ and .env.local to .gitignore.

An existing briefship.yaml is left alone unless --force is given.

Examples:
  briefship init --instance i-0abc123 --region eu-central-1
  briefship init --force          # Overwrite an existing config`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.instanceID, "instance", "", "EC2 instance ID of the bot host")
	cmd.Flags().StringVar(&flags.region, "region", "", "AWS region of the instance")
	cmd.Flags().StringVar(&flags.branch, "branch", "", "Branch to deploy (default: current branch at deploy time)")
	cmd.Flags().StringVar(&flags.appDir, "app-dir", "", "Checkout on the instance (default "+config.DefaultAppDir+")")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Overwrite an existing "+config.FileName)
	return cmd
}

func runInit(cmd *cobra.Command, flags *initFlags) error {
	printer := newPrinter(cmd)

	if !git.IsRepo() {
		return fail(printer, output.NewUserError("not in a git repository"))
	}
	root, err := git.RepoRoot()
	if err != nil {
		return fail(printer, err)
	}

	path := configPath(cmd)
	if !flags.force {
		if _, statErr := os.Stat(path); statErr == nil {
			return fail(printer, output.NewConflictError(path+" already exists (use --force to overwrite)"))
		}
	}

	steps := make([]initStepResult, 0, 2)

	data, err := config.RenderTemplate(config.TemplateParams{
		InstanceID: flags.instanceID,
		Region:     flags.region,
		Branch:     flags.branch,
		AppDir:     flags.appDir,
	})
	if err != nil {
		return fail(printer, output.NewSystemErrorWithCause(err.Error(), err))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fail(printer, output.NewSystemErrorWithCause("writing "+path+": "+err.Error(), err))
	}
	steps = append(steps, initStepResult{Name: config.FileName, Status: "ok", Message: "wrote " + path})

	added, err := ensureGitignore(filepath.Join(root, ".gitignore"), gitignoreEntries)
	if err != nil {
		return fail(printer, output.NewSystemErrorWithCause("updating .gitignore: "+err.Error(), err))
	}
	if len(added) > 0 {
		steps = append(steps, initStepResult{Name: ".gitignore", Status: "ok", Message: "added " + strings.Join(added, ", ")})
	} else {
		steps = append(steps, initStepResult{Name: ".gitignore", Status: "skipped", Message: "already ignores briefship files"})
	}

	if printer.IsJSON() {
		return printer.Success(map[string]any{
			"status": "ok",
			"config": path,
			"steps":  steps,
		})
	}

	for _, step := range steps {
		printer.Print("  %-8s %s: %s\n", step.Status, step.Name, step.Message)
	}
	if flags.instanceID == "" {
		printer.Println()
		printer.Println("Set instance_id in " + config.FileName + ", then run 'briefship doctor'.")
	}
	return nil
}

// ensureGitignore appends the entries missing from the .gitignore at path
// and returns them. The file is created if needed.
func ensureGitignore(path string, entries []string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	content := string(data)

	present := make(map[string]bool)
	for line := range strings.SplitSeq(content, "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var added []string
	for _, entry := range entries {
		if present[entry] || present["/"+entry] {
			continue
		}
		added = append(added, entry)
	}
	if len(added) == 0 {
		return nil, nil
	}

	if content != "" {
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += "\n"
	}
	content += "# briefship\n" + strings.Join(added, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}
	return added, nil
}
