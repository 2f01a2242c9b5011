package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/kw/pkg/action"
	"github.com/grovetools/kw/pkg/actions"
	"github.com/grovetools/kw/pkg/index"
	"github.com/grovetools/kw/pkg/journal"
	"github.com/grovetools/kw/pkg/logging"
	"github.com/grovetools/kw/pkg/precondition"
	"github.com/grovetools/kw/pkg/provenance"
	"github.com/grovetools/kw/pkg/selection"
	"github.com/grovetools/kw/pkg/store"
	"github.com/grovetools/kw/pkg/workspace"
)

// Service owns the state of one session on one workspace.
type Service struct {
	Workspace  *workspace.Workspace
	Store      *store.Store
	Index      *index.Index
	Cache      *provenance.Cache
	Tracker    *provenance.Tracker
	Actions    *action.Registry
	Dispatcher *action.Dispatcher
	History    *selection.History
	Config     *Config

	workspaces *workspace.Registry
	log        *logrus.Entry
}

// Config holds service configuration
type Config struct {
	// DataDir holds the workspace registry and the sandbox workspace.
	DataDir string
	// Workspace is an explicit workspace directory. Empty means the
	// enclosing workspace of Cwd, or the sandbox.
	Workspace string
	Cwd       string
	NoSandbox bool
	// HistoryMax bounds the selection history.
	HistoryMax int
	// Transcriber enables the transcribe action.
	Transcriber actions.Transcriber
	Logger      *logrus.Entry
}

// New opens the workspace described by config, creating its control
// directory when missing, and loads the session state.
func New(ctx context.Context, config *Config) (*Service, error) {
	log := logging.Component(config.Logger, "service")

	ws, err := workspace.Resolve(workspace.ResolveOptions{
		Override:  config.Workspace,
		Cwd:       config.Cwd,
		DataDir:   config.DataDir,
		NoSandbox: config.NoSandbox,
	})
	if err != nil {
		return nil, err
	}
	if err := ws.Init(); err != nil {
		return nil, fmt.Errorf("init workspace: %w", err)
	}

	s := &Service{
		Workspace: ws,
		Config:    config,
		log:       log.WithField("workspace", ws.Name),
	}
	if err := s.open(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) open(ctx context.Context) error {
	var err error
	if s.Config.DataDir != "" {
		s.workspaces, err = workspace.NewRegistry(s.Config.DataDir, s.Config.Logger)
		if err != nil {
			return fmt.Errorf("open workspace registry: %w", err)
		}
		if err := s.workspaces.Add(s.Workspace); err != nil {
			return fmt.Errorf("register workspace: %w", err)
		}
	}

	s.Index, err = index.Open(s.Workspace.IndexPath())
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	j, err := journal.Open(s.Workspace.JournalPath(), journal.WithLogger(s.Config.Logger))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	s.Store, err = store.New(s.Workspace.Path, s.Index, j, store.WithLogger(s.Config.Logger))
	if err != nil {
		return err
	}
	if err := s.Store.EnsureIndexed(ctx); err != nil {
		return fmt.Errorf("index workspace: %w", err)
	}

	s.Cache = provenance.NewCache(s.Store, j, s.Config.Logger)
	if err := s.Cache.EnsureRebuilt(); err != nil {
		return fmt.Errorf("rebuild cache: %w", err)
	}
	s.Tracker = provenance.NewTracker(s.Store, s.Config.Logger)

	s.Actions = action.NewRegistry(precondition.Builtins())
	var opts []actions.Option
	if s.Config.Transcriber != nil {
		cached := actions.NewTranscriptCache(s.Workspace.MediaCacheDir(), s.Config.Transcriber, s.Config.Logger)
		opts = append(opts, actions.WithTranscriber(cached))
	}
	if err := actions.RegisterBuiltins(s.Actions, opts...); err != nil {
		return err
	}

	histOpts := []selection.Option{selection.WithLogger(s.Config.Logger)}
	if s.Config.HistoryMax > 0 {
		histOpts = append(histOpts, selection.WithMax(s.Config.HistoryMax))
	}
	s.History = selection.Load(s.Workspace.SelectionPath(), histOpts...)
	if missing := s.History.Filter(s.Store.Exists); len(missing) > 0 {
		s.log.WithField("paths", missing).Info("dropped missing paths from selection history")
	}

	s.Dispatcher = action.NewDispatcher(s.Actions, s.Store, s.Cache, s.History, action.WithLogger(s.Config.Logger))
	return nil
}

// Close persists the selection history and releases the index.
func (s *Service) Close() error {
	var errs []error
	if s.History != nil {
		errs = append(errs, s.History.Save())
	}
	if s.Index != nil {
		errs = append(errs, s.Index.Close())
	}
	if s.workspaces != nil {
		errs = append(errs, s.workspaces.Close())
	}
	return errors.Join(errs...)
}
