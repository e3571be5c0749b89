package ship

import (
	"context"
	"strconv"

	"github.com/gorewood/briefship/internal/config"
	"github.com/gorewood/briefship/internal/deploy"
	"github.com/gorewood/briefship/internal/git"
	"github.com/gorewood/briefship/internal/history"
	"github.com/gorewood/briefship/internal/notify"
)

// DeployRequest carries per-run choices on top of the config.
type DeployRequest struct {
	Branch     string
	Services   []string
	SkipPush   bool
	AllowDirty bool
	Start      bool
	DryRun     bool
}

// Deploy runs a full deploy, records it and sends the configured
// notification. The record is nil for dry runs. History, notification and
// tracking failures are logged and never change the returned error.
func (s *Service) Deploy(ctx context.Context, req DeployRequest, obs deploy.Observer) (*deploy.Result, *history.Record, error) {
	if err := s.validate(); err != nil {
		return nil, nil, err
	}
	branch, err := s.branch(req.Branch)
	if err != nil {
		return nil, nil, err
	}
	d, err := s.deployer(ctx)
	if err != nil {
		s.tracker.CaptureError(err, map[string]string{"instance": s.cfg.InstanceID, "step": "connect"})
		return nil, nil, err
	}

	services := req.Services
	if len(services) == 0 {
		services = s.cfg.Services
	}
	res, runErr := d.Run(ctx, deploy.Options{
		InstanceID:     s.cfg.InstanceID,
		Remote:         s.cfg.Remote,
		Branch:         branch,
		AppDir:         s.cfg.AppDir,
		RunAs:          s.cfg.RunAs,
		ComposeFile:    s.cfg.ComposeFile,
		Services:       services,
		RequiredEnv:    s.cfg.RequiredEnv,
		PollInterval:   s.cfg.PollInterval,
		Timeout:        s.cfg.Timeout,
		LogTail:        s.cfg.LogTail,
		SkipPush:       req.SkipPush,
		AllowDirty:     req.AllowDirty,
		StartIfStopped: req.Start,
		DryRun:         req.DryRun,
	}, obs)
	if req.DryRun {
		return res, nil, runErr
	}

	rec := history.FromResult(res, runErr)
	s.record(rec)
	if runErr != nil {
		s.tracker.CaptureError(runErr, map[string]string{
			"instance": res.InstanceID,
			"branch":   res.Branch,
			"step":     string(res.FailedStep),
			"status":   string(res.Status),
			"record":   rec.ID,
		})
	}
	s.notify(ctx, rec)
	return res, rec, runErr
}

func (s *Service) branch(requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	if s.cfg.Branch != "" {
		return s.cfg.Branch, nil
	}
	return git.CurrentBranch()
}

// record writes rec, bumping the ID on the rare same-second collision.
func (s *Service) record(rec *history.Record) {
	base := rec.ID
	for i := 2; s.store.Exists(rec.ID) && i < 10; i++ {
		rec.ID = base + "-" + strconv.Itoa(i)
	}
	if err := s.store.Write(rec, false); err != nil {
		s.logger.Warn("could not record deploy", "id", rec.ID, "err", err)
		return
	}
	s.logger.Debug("deploy recorded", "id", rec.ID, "dir", s.store.Dir())
}

func (s *Service) notify(ctx context.Context, rec *history.Record) {
	if !notify.ShouldNotify(s.cfg.Notify.When, rec.Succeeded()) {
		return
	}
	n, err := s.getNotifier()
	if err != nil {
		s.logger.Warn("notifications disabled", "err", err)
		return
	}
	if err := n.Notify(ctx, notify.FormatDeploy(rec)); err != nil {
		s.logger.Warn("notification failed", "err", err)
		s.tracker.CaptureMessage("deploy notification failed: "+err.Error(), map[string]string{"record": rec.ID})
	}
}

// getNotifier returns the configured notifier, logging in to Telegram on
// first use. Without Telegram settings it returns notify.Nop.
func (s *Service) getNotifier() (notify.Notifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifier != nil {
		return s.notifier, nil
	}
	tg := s.cfg.Notify.Telegram
	if !tg.Enabled() {
		s.logger.Debug("no telegram chat or token configured", "token_env", tg.TokenEnv)
		s.notifier = notify.Nop{}
		return s.notifier, nil
	}
	n, err := notify.NewTelegram(notify.TelegramOptions{Token: tg.Token(), ChatID: tg.ChatID})
	if err != nil {
		return nil, err
	}
	s.notifier = n
	return n, nil
}

// NotifyMode reports the effective notification mode, "never" when no
// channel is configured.
func NotifyMode(cfg *config.Config) string {
	if !cfg.Notify.Telegram.Enabled() {
		return config.NotifyNever
	}
	return cfg.Notify.When
}
