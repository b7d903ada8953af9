package daemon

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/kurir/internal/config"
	"github.com/harun/kurir/internal/logger"
	"github.com/harun/kurir/internal/metrics"
	"github.com/harun/kurir/internal/notify"
	"github.com/harun/kurir/internal/telegram"
	"github.com/harun/kurir/pkg/claude"
	"github.com/harun/kurir/pkg/dispatch"
	"github.com/harun/kurir/pkg/session"
	"github.com/harun/kurir/pkg/topic"
	"github.com/harun/kurir/pkg/transcribe"
)

// Daemon wires the bridge together: registry, runner, dispatcher, the
// Telegram surface, and the hook notification server.
type Daemon struct {
	logger  *logger.Logger
	metrics *metrics.Metrics

	// cfgMu guards config, which the watcher swaps on reload.
	cfgMu  sync.RWMutex
	config *config.Config

	registry   *session.Registry
	runner     *claude.Runner
	summarizer topic.Summarizer
	dispatcher *dispatch.Dispatcher

	bot      *telegram.Bot
	notifier *telegram.Notifier
	commands *telegram.Commands

	notifyServer  *notify.Server
	configPath    string
	configWatcher *config.Watcher
	sweeper       *Sweeper
	lifecycle     *LifecycleManager

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Status describes the daemon's runtime state
type Status struct {
	Running   bool
	StartTime time.Time
	Uptime    time.Duration
}

// New creates a daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	d := &Daemon{
		config:  cfg,
		logger:  log,
		metrics: metrics.NewMetrics(),
	}

	if err := d.initializeCore(); err != nil {
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}
	if err := d.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCore builds the session and turn machinery in dependency order
func (d *Daemon) initializeCore() error {
	cfg := d.Config()

	d.registry = session.NewRegistry(session.Config{
		Window: cfg.Sessions.WindowDuration(),
	}, d.logger.Component("registry"))
	d.logger.Info().
		Dur("window", cfg.Sessions.WindowDuration()).
		Msg("Session registry initialized")

	d.runner = claude.NewRunner(claude.Config{
		CLIPath:            cfg.Claude.CLIPath,
		TurnTimeout:        cfg.Claude.TurnTimeoutDuration(),
		PermissionTimeout:  cfg.Claude.PermissionTimeoutDuration(),
		TickInterval:       cfg.Claude.TickIntervalDuration(),
		AllowedTools:       cfg.Claude.AllowedTools,
		AppendSystemPrompt: cfg.Claude.AppendSystemPrompt,
		SkipPermissions:    cfg.Claude.SkipPermissions,
	}, d.logger.Component("runner"))
	d.logger.Info().Str("cli", cfg.Claude.CLIPath).Msg("Process runner initialized")

	if cfg.Titles.Enabled {
		d.summarizer = topic.NewOpenAISummarizer(topic.SummarizerConfig{
			BaseURL: cfg.Titles.BaseURL,
			APIKey:  cfg.Titles.APIKey,
			Model:   cfg.Titles.Model,
			Timeout: time.Duration(cfg.Titles.Timeout) * time.Second,
		}, d.logger.Component("titles"))
		d.logger.Info().Str("model", cfg.Titles.Model).Msg("Title summarizer initialized")
	}

	return nil
}

// initializeServices builds the Telegram surface and the outer servers
func (d *Daemon) initializeServices() error {
	cfg := d.Config()

	bot, err := telegram.New(cfg.Telegram, d.metrics, d.logger)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}
	d.bot = bot
	d.notifier = telegram.NewNotifier(bot.API(), d.metrics, d.logger.Component("notifier"))
	d.logger.Info().Msg("Telegram bot initialized")

	dispatcher, err := dispatch.NewDispatcher(dispatch.Options{
		Registry:   d.registry,
		Runner:     d.runner,
		Notifier:   d.notifier,
		Topics:     d.notifier,
		Summarizer: d.summarizer,
		Metrics:    d.metrics,
	}, d.logger.Component("dispatcher"))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	d.dispatcher = dispatcher
	d.logger.Info().Msg("Dispatcher initialized")

	d.commands = telegram.NewCommands(bot, d.notifier)
	d.commands.RegisterDefaults(telegram.CommandDeps{
		Dispatcher: d.dispatcher,
		Registry:   d.registry,
		Favorites:  func() map[string]string { return d.Config().Sessions.Favorites },
		Roots:      func() []string { return d.Config().Sessions.Roots },
	})
	bot.SetCommands(d.commands)
	bot.SetMessageHandler(telegram.NewHandler(bot, d.dispatcher))
	bot.SetActionHandler(d.dispatcher.HandleAction)

	var transcriber transcribe.Transcriber
	if cfg.Transcribe.Enabled {
		transcriber, err = transcribe.NewWhisperTranscriber(transcribe.Config{
			WhisperPath: cfg.Transcribe.WhisperPath,
			ModelPath:   cfg.Transcribe.ModelPath,
			FFmpegPath:  cfg.Transcribe.FFmpegPath,
		}, d.logger.Component("transcribe"))
		if err != nil {
			return fmt.Errorf("failed to create transcriber: %w", err)
		}
		d.logger.Info().Msg("Voice transcription initialized")
	}
	bot.SetMediaHandler(telegram.NewMedia(bot, d.dispatcher, d.notifier, transcriber, ""))

	if cfg.Notify.Enabled {
		d.notifyServer = notify.NewServer(cfg.Notify, cfg.Telegram.ChatID, d.notifier, d.dispatcher, d.metrics, d.logger.GetZerolog())
		d.logger.Info().Int("port", cfg.Notify.Port).Msg("Notify server initialized")
	}

	sweeper, err := NewSweeper(d.registry, cfg.Sessions, d.metrics, d.logger.Component("sweeper"))
	if err != nil {
		return fmt.Errorf("failed to create session sweeper: %w", err)
	}
	d.sweeper = sweeper
	d.logger.Info().Str("schedule", cfg.Sessions.SweepSchedule).Msg("Session sweeper initialized")

	return nil
}

// Start brings the daemon up
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Msg("Starting kurir daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.bot.Start(); err != nil {
		return fmt.Errorf("failed to start telegram bot: %w", err)
	}
	d.logger.Info().Msg("Telegram bot started")

	if err := d.commands.SetCommands(telegram.DefaultCommandList()); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to publish command list")
	}

	if d.notifyServer != nil {
		if err := d.notifyServer.Start(); err != nil {
			return fmt.Errorf("failed to start notify server: %w", err)
		}
		d.logger.Info().Msg("Notify server started")
	}

	d.sweeper.Start()
	d.logger.Info().Msg("Session sweeper started")

	if err := d.startConfigWatcher(); err != nil {
		d.logger.Warn().Err(err).Msg("Config hot-reload unavailable")
	}

	d.logger.Info().Msg("Daemon started successfully")
	return nil
}

// Stop shuts the daemon down gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping kurir daemon")

	if d.configWatcher != nil {
		d.configWatcher.Stop()
	}

	d.sweeper.Stop()

	if err := d.bot.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop telegram bot")
	}

	if d.notifyServer != nil {
		if err := d.notifyServer.Stop(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to stop notify server")
		}
	}

	// cancel any turns still in flight so child processes exit
	for _, sess := range d.registry.List() {
		if sess.Busy() {
			d.dispatcher.Cancel(dispatch.ChatTarget{ChatID: d.Config().Telegram.ChatID}, sess.Key)
		}
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.logger.Info().Msg("Daemon stopped successfully")
	return nil
}

// SetConfigPath points the hot-reload watcher at a non-default config
// file. Must be called before Start.
func (d *Daemon) SetConfigPath(path string) {
	d.configPath = path
}

// startConfigWatcher begins hot-reloading the config file
func (d *Daemon) startConfigWatcher() error {
	loader := config.NewLoader(d.configPath)
	watcher, err := config.NewWatcher(loader, d.applyConfig, d.logger.Component("config"))
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	d.configWatcher = watcher
	return nil
}

// applyConfig swaps in a reloaded config. Only settings read per call
// take effect without a restart: favorites and roots.
func (d *Daemon) applyConfig(cfg *config.Config) {
	d.cfgMu.Lock()
	d.config = cfg
	d.cfgMu.Unlock()
	d.logger.Info().Msg("Configuration reloaded")
}

// Config returns the current configuration
func (d *Daemon) Config() *config.Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.config
}

// Status returns the daemon's runtime state
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{Running: d.running}
	if d.running {
		status.StartTime = d.startTime
		status.Uptime = time.Since(d.startTime)
	}
	return status
}

// Wait blocks until an interrupt or termination signal arrives, then
// stops the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// Dispatcher exposes the dispatcher, used by tests and the CLI surface
func (d *Daemon) Dispatcher() *dispatch.Dispatcher {
	return d.dispatcher
}

// Registry exposes the session registry
func (d *Daemon) Registry() *session.Registry {
	return d.registry
}
