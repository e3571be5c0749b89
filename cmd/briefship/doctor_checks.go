package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gorewood/briefship/internal/config"
	"github.com/gorewood/briefship/internal/envfile"
	"github.com/gorewood/briefship/internal/git"
	"github.com/gorewood/briefship/internal/ship"
)

// credentialChecker is implemented by clients that can resolve credentials
// without calling a service.
type credentialChecker interface {
	CheckCredentials(ctx context.Context) (string, error)
}

// doctorEnv is what every check group needs, loaded once.
type doctorEnv struct {
	root    string
	cfg     *config.Config
	cfgErr  error
	missing bool // no config file
}

func newDoctorEnv(cmd *cobra.Command) *doctorEnv {
	env := &doctorEnv{root: projectRoot()}
	env.cfg, env.cfgErr = loadConfig(cmd, false)
	if env.cfgErr == nil {
		env.missing = env.cfg.Path == ""
		if env.cfg.Path != "" {
			env.root = filepath.Dir(env.cfg.Path)
		}
	}
	return env
}

func runLocalChecks(env *doctorEnv) []checkResult {
	checks := make([]checkResult, 0, 5)
	checks = append(checks, checkGitAvailable())
	checks = append(checks, checkGitRepo())
	checks = append(checks, checkCleanTree())
	checks = append(checks, checkRemote(env))
	checks = append(checks, checkComposeFile(env))
	return checks
}

func checkGitAvailable() checkResult {
	if git.Available() {
		return checkResult{Name: "Git", Status: checkPass, Message: "git found in PATH"}
	}
	return checkResult{
		Name:    "Git",
		Status:  checkFail,
		Message: "git not found in PATH",
		Hint:    "Install git; deploys push with it",
	}
}

func checkGitRepo() checkResult {
	if root, err := git.RepoRoot(); err == nil {
		return checkResult{Name: "Repository", Status: checkPass, Message: root}
	}
	return checkResult{
		Name:    "Repository",
		Status:  checkFail,
		Message: "not in a git repository",
		Hint:    "Run briefship from the bot's checkout",
	}
}

func checkCleanTree() checkResult {
	if !git.IsRepo() {
		return checkResult{Name: "Working Tree", Status: checkWarn, Message: "skipped outside a repository"}
	}
	if git.HasUncommittedChanges() {
		return checkResult{
			Name:    "Working Tree",
			Status:  checkWarn,
			Message: "uncommitted changes",
			Hint:    "Commit them, or deploy with --allow-dirty",
		}
	}
	return checkResult{Name: "Working Tree", Status: checkPass, Message: "clean"}
}

func checkRemote(env *doctorEnv) checkResult {
	remote := config.DefaultRemote
	if env.cfg != nil && env.cfg.Remote != "" {
		remote = env.cfg.Remote
	}
	url, err := git.RemoteURL(remote)
	if err != nil || url == "" {
		return checkResult{
			Name:    "Remote",
			Status:  checkFail,
			Message: "remote " + remote + " is not configured",
			Hint:    "git remote add " + remote + " <url>",
		}
	}
	return checkResult{Name: "Remote", Status: checkPass, Message: remote + " -> " + url}
}

func checkComposeFile(env *doctorEnv) checkResult {
	name := config.DefaultComposeFile
	if env.cfg != nil && env.cfg.ComposeFile != "" {
		name = env.cfg.ComposeFile
	}
	if _, err := os.Stat(resolvePath(env.root, name)); err == nil {
		return checkResult{Name: "Compose File", Status: checkPass, Message: name + " present"}
	}
	return checkResult{
		Name:    "Compose File",
		Status:  checkWarn,
		Message: name + " not found locally",
		Hint:    "Set compose_file in " + config.FileName + " if it lives elsewhere",
	}
}

func runConfigChecks(env *doctorEnv) []checkResult {
	checks := make([]checkResult, 0, 3)
	checks = append(checks, checkConfig(env))
	checks = append(checks, checkEnvFile(env))
	checks = append(checks, checkNotify(env))
	return checks
}

func checkConfig(env *doctorEnv) checkResult {
	if env.cfgErr != nil {
		return checkResult{Name: "Config", Status: checkFail, Message: env.cfgErr.Error()}
	}
	if err := env.cfg.Validate(); err != nil {
		return checkResult{
			Name:    "Config",
			Status:  checkFail,
			Message: strings.ReplaceAll(err.Error(), "\n", "; "),
		}
	}
	if env.missing {
		return checkResult{
			Name:    "Config",
			Status:  checkWarn,
			Message: "no " + config.FileName + ", using defaults and environment",
			Hint:    "Run 'briefship init'",
		}
	}
	return checkResult{Name: "Config", Status: checkPass, Message: env.cfg.Path}
}

func checkEnvFile(env *doctorEnv) checkResult {
	if env.cfg == nil || len(env.cfg.RequiredEnv) == 0 {
		return checkResult{Name: "Bot Env File", Status: checkPass, Message: "no required keys"}
	}
	path := resolvePath(env.root, env.cfg.EnvFile)
	missing, err := envfile.Missing(path, env.cfg.RequiredEnv)
	if err != nil {
		return checkResult{Name: "Bot Env File", Status: checkFail, Message: err.Error()}
	}
	if len(missing) > 0 {
		return checkResult{
			Name:    "Bot Env File",
			Status:  checkFail,
			Message: env.cfg.EnvFile + " is missing " + strings.Join(missing, ", "),
			Hint:    "The bot will not start without them; the deploy script checks the instance's copy too",
		}
	}
	return checkResult{
		Name:    "Bot Env File",
		Status:  checkPass,
		Message: env.cfg.EnvFile + " defines " + strings.Join(env.cfg.RequiredEnv, ", "),
	}
}

func checkNotify(env *doctorEnv) checkResult {
	if env.cfg == nil {
		return checkResult{Name: "Notifications", Status: checkWarn, Message: "config not loaded"}
	}
	mode := ship.NotifyMode(env.cfg)
	if mode == config.NotifyNever {
		return checkResult{Name: "Notifications", Status: checkPass, Message: "disabled"}
	}
	tg := env.cfg.Notify.Telegram
	switch {
	case tg.ChatID == 0:
		return checkResult{
			Name:    "Notifications",
			Status:  checkWarn,
			Message: "no Telegram chat configured",
			Hint:    "Set notify.telegram.chat_id or BRIEFSHIP_TELEGRAM_CHAT_ID",
		}
	case tg.Token() == "":
		return checkResult{
			Name:    "Notifications",
			Status:  checkWarn,
			Message: tg.TokenEnv + " is not set",
			Hint:    "Export it or put it in " + filepath.Join(config.Dir(), "env"),
		}
	}
	return checkResult{Name: "Notifications", Status: checkPass, Message: "Telegram, on " + mode}
}

func runRemoteChecks(cmd *cobra.Command, env *doctorEnv, flags *doctorFlags) []checkResult {
	if flags.offline {
		return []checkResult{{Name: "AWS", Status: checkWarn, Message: "skipped (--offline)"}}
	}
	if env.cfg == nil || env.cfg.InstanceID == "" {
		return []checkResult{{
			Name:    "AWS",
			Status:  checkFail,
			Message: "no instance configured",
			Hint:    "Set instance_id in " + config.FileName,
		}}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	client, err := cloudFactory(ctx, env.cfg)
	if err != nil {
		return []checkResult{{
			Name:    "AWS",
			Status:  checkFail,
			Message: err.Error(),
			Hint:    "Set region/profile in " + config.FileName + " or export AWS_REGION/AWS_PROFILE",
		}}
	}

	checks := make([]checkResult, 0, 3)
	if cc, ok := client.(credentialChecker); ok {
		source, credErr := cc.CheckCredentials(ctx)
		if credErr != nil {
			return append(checks, checkResult{
				Name:    "AWS Credentials",
				Status:  checkFail,
				Message: credErr.Error(),
				Hint:    "Run 'aws configure' or 'aws sso login'",
			})
		}
		checks = append(checks, checkResult{Name: "AWS Credentials", Status: checkPass, Message: "from " + source})
	}

	inst, err := client.DescribeInstance(ctx, env.cfg.InstanceID)
	if err != nil {
		return append(checks, checkResult{Name: "Instance", Status: checkFail, Message: err.Error()})
	}
	if inst.Running() {
		checks = append(checks, checkResult{Name: "Instance", Status: checkPass, Message: inst.ID + " is running"})
	} else {
		checks = append(checks, checkResult{
			Name:    "Instance",
			Status:  checkFail,
			Message: inst.ID + " is " + inst.State,
			Hint:    "Deploy with --start to start it",
		})
	}
	if inst.Online() {
		checks = append(checks, checkResult{Name: "SSM Agent", Status: checkPass, Message: "online"})
	} else {
		checks = append(checks, checkResult{
			Name:    "SSM Agent",
			Status:  checkFail,
			Message: inst.Reason(),
			Hint:    "Check the instance profile has AmazonSSMManagedInstanceCore",
		})
	}
	return checks
}

func resolvePath(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
