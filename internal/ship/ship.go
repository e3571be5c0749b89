// Package ship composes configuration, the cloud client, the deployer,
// deploy history, notifications and error tracking into the operations the
// CLI and the MCP server expose.
package ship

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gorewood/briefship/internal/cloud"
	"github.com/gorewood/briefship/internal/config"
	"github.com/gorewood/briefship/internal/deploy"
	"github.com/gorewood/briefship/internal/errtrack"
	"github.com/gorewood/briefship/internal/history"
	"github.com/gorewood/briefship/internal/logging"
	"github.com/gorewood/briefship/internal/notify"
	"github.com/gorewood/briefship/internal/output"
)

// flushTimeout bounds how long Close waits for queued error reports.
const flushTimeout = 2 * time.Second

// CloudFactory builds the control-plane client for a config.
type CloudFactory func(ctx context.Context, cfg *config.Config) (cloud.Client, error)

// NewAWSClient is the default CloudFactory.
func NewAWSClient(ctx context.Context, cfg *config.Config) (cloud.Client, error) {
	return cloud.New(ctx, cloud.Options{Region: cfg.Region, Profile: cfg.Profile})
}

// Options configures New. Only Config is required.
type Options struct {
	Config  *config.Config
	Root    string // repository root; relative paths in Config resolve against it
	Logger  *log.Logger
	Version string

	NewCloud CloudFactory
	Git      deploy.GitOps
	Notifier notify.Notifier
	Tracker  *errtrack.Tracker
	// Sleep and Now override the deployer's clock.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Service runs deploys and answers questions about past ones.
type Service struct {
	cfg     *config.Config
	root    string
	logger  *log.Logger
	version string
	store   *history.Store

	newCloud CloudFactory
	git      deploy.GitOps
	tracker  *errtrack.Tracker
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	mu       sync.Mutex
	client   cloud.Client
	notifier notify.Notifier
}

// New returns a Service. Collaborators left nil in opts are built from the
// config on first use.
func New(opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, output.NewSystemError("ship: nil config")
	}
	s := &Service{
		cfg:      opts.Config,
		root:     opts.Root,
		logger:   opts.Logger,
		version:  opts.Version,
		newCloud: opts.NewCloud,
		git:      opts.Git,
		tracker:  opts.Tracker,
		notifier: opts.Notifier,
		sleep:    opts.Sleep,
		now:      opts.Now,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.newCloud == nil {
		s.newCloud = NewAWSClient
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.tracker == nil {
		tracker, err := errtrack.New(errtrack.Options{
			DSN:         s.cfg.SentryDSN,
			Release:     "briefship@" + s.version,
			Environment: s.cfg.InstanceID,
		})
		if err != nil {
			s.logger.Warn("error tracking disabled", "err", err)
		}
		s.tracker = tracker
	}
	s.store = history.NewStore(s.resolve(s.cfg.HistoryDir))
	return s, nil
}

// Config returns the service's configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// History returns the deploy record store.
func (s *Service) History() *history.Store { return s.store }

// Close flushes pending error reports.
func (s *Service) Close() {
	s.tracker.Flush(flushTimeout)
}

func (s *Service) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || s.root == "" {
		return path
	}
	return filepath.Join(s.root, path)
}

// Cloud returns the control-plane client, creating it on first call.
func (s *Service) Cloud(ctx context.Context) (cloud.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client, err := s.newCloud(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

func (s *Service) deployer(ctx context.Context) (*deploy.Deployer, error) {
	client, err := s.Cloud(ctx)
	if err != nil {
		return nil, err
	}
	d := deploy.New(client, s.logger)
	if s.git != nil {
		d.Git = s.git
	}
	if s.sleep != nil {
		d.Sleep = s.sleep
	}
	d.Now = s.now
	return d, nil
}

func (s *Service) requireInstance() error {
	if s.cfg.InstanceID == "" {
		return output.NewUserError("no instance configured: set instance_id in " + config.FileName + " or BRIEFSHIP_INSTANCE_ID")
	}
	return nil
}

// validate guards every operation that sends and polls a remote command.
func (s *Service) validate() error {
	if err := s.cfg.Validate(); err != nil {
		return output.NewUserErrorWithCause("invalid config: "+err.Error(), err)
	}
	return nil
}

// Status describes the target instance and the last recorded deploy.
type Status struct {
	Instance cloud.Instance  `json:"instance"`
	Latest   *history.Record `json:"latest,omitempty"`
}

// Status fetches the instance state and the latest history record.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	if err := s.requireInstance(); err != nil {
		return nil, err
	}
	client, err := s.Cloud(ctx)
	if err != nil {
		return nil, err
	}
	inst, err := client.DescribeInstance(ctx, s.cfg.InstanceID)
	if err != nil {
		return nil, err
	}

	st := &Status{Instance: inst}
	latest, err := s.store.Latest()
	switch {
	case err == nil:
		st.Latest = latest
	case !errors.Is(err, history.ErrNoRecords):
		s.logger.Warn("reading deploy history", "err", err)
	}
	return st, nil
}

// LogsRequest selects remote logs. Zero values fall back to the config.
type LogsRequest struct {
	Tail     int
	Services []string
}

// Logs fetches recent compose logs from the instance.
func (s *Service) Logs(ctx context.Context, req LogsRequest) (string, error) {
	if err := s.validate(); err != nil {
		return "", err
	}
	d, err := s.deployer(ctx)
	if err != nil {
		return "", err
	}
	tail := req.Tail
	if tail == 0 {
		tail = s.cfg.LogTail
	}
	services := req.Services
	if len(services) == 0 {
		services = s.cfg.Services
	}
	return d.Logs(ctx, deploy.LogsOptions{
		InstanceID:   s.cfg.InstanceID,
		AppDir:       s.cfg.AppDir,
		ComposeFile:  s.cfg.ComposeFile,
		Services:     services,
		Tail:         tail,
		PollInterval: s.cfg.PollInterval,
		Timeout:      s.cfg.Timeout,
	})
}

// ExecRequest is an ad-hoc remote command.
type ExecRequest struct {
	Lines []string
	// WorkDir defaults to the app directory; "-" runs in the SSM default.
	WorkDir string
}

// Exec runs lines on the instance.
func (s *Service) Exec(ctx context.Context, req ExecRequest, obs deploy.Observer) (cloud.Invocation, error) {
	if err := s.validate(); err != nil {
		return cloud.Invocation{}, err
	}
	d, err := s.deployer(ctx)
	if err != nil {
		return cloud.Invocation{}, err
	}
	workDir := req.WorkDir
	switch workDir {
	case "":
		workDir = s.cfg.AppDir
	case "-":
		workDir = ""
	}
	return d.Exec(ctx, deploy.ExecOptions{
		InstanceID:   s.cfg.InstanceID,
		Lines:        req.Lines,
		WorkDir:      workDir,
		PollInterval: s.cfg.PollInterval,
		Timeout:      s.cfg.Timeout,
	}, obs)
}

// HistoryQuery filters ListHistory.
type HistoryQuery struct {
	Last   int
	Failed bool
	Branch string
}

// ListHistory returns matching records, newest first.
func (s *Service) ListHistory(q HistoryQuery) ([]*history.Record, *history.ListStats, error) {
	recs, stats, err := s.store.ListWithStats()
	if err != nil {
		return nil, nil, err
	}
	if q.Failed {
		recs = history.FilterFailed(recs)
	}
	recs = history.FilterBranch(recs, q.Branch)
	return history.Limit(recs, q.Last), stats, nil
}

// Show returns the record with id, or the latest one when id is empty.
func (s *Service) Show(id string) (*history.Record, error) {
	if id != "" {
		return s.store.Read(id)
	}
	rec, err := s.store.Latest()
	if errors.Is(err, history.ErrNoRecords) {
		return nil, output.NewUserError("no deploys recorded yet in " + s.store.Dir())
	}
	return rec, err
}
