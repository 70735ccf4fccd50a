package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"diaryface/internal/battery"
	"diaryface/internal/companion"
	"diaryface/internal/config"
	"diaryface/internal/ics"
	appLog "diaryface/internal/log"
	"diaryface/internal/model"
	"diaryface/internal/proto"
	"diaryface/internal/scheduler"
	"diaryface/internal/transport"
	"diaryface/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	appLog.Info("diaryface starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := config.Validate(conf); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	level, _ := appLog.ParseLevel(conf.LogLevel)
	if flags.debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"response_format", conf.ResponseFormat,
		"horizon_days", conf.HorizonDays,
		"max_message_bytes", conf.MaxMessageBytes,
		"ics_count", len(conf.ICS),
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	app, err := newApp(conf)
	if err != nil {
		appLog.Error("failed to initialize", err)
		os.Exit(1)
	}

	if flags.once {
		if err := app.runOnce(ctx); err != nil {
			appLog.Error("single cycle failed", err)
			os.Exit(1)
		}
		return
	}

	if err := app.run(ctx); err != nil {
		appLog.Error("diaryface stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("diaryface exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/diaryface/config.yaml", "Path to config file (.yaml or .toml)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one fetch cycle, print the face and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

// app wires the device and phone halves over an in-process link.
type app struct {
	conf    *config.Config
	loc     *time.Location
	link    *transport.Link
	store   *ics.Store
	battery *battery.Cache
	comp    *companion.Companion
	sched   *scheduler.Scheduler
	view    *web.View
}

func newApp(conf *config.Config) (*app, error) {
	loc, err := conf.Location()
	if err != nil {
		return nil, err
	}

	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, s := range conf.ICS {
		sources = append(sources, ics.Source{ID: s.ID, Name: s.Name, URL: s.URL})
	}
	fetcher := ics.NewFetcher(filepath.Join(conf.StateDir, "ics-cache"))
	store := ics.NewStore(fetcher, sources, loc, conf.HorizonDays)

	batt := battery.NewCache(battery.DefaultReader(), 30*time.Second)
	link := transport.New(conf.MaxMessageBytes, conf.InboxSlots)

	comp := companion.New(companion.Config{
		Loc:      loc,
		Settings: proto.Settings{Config: conf.Settings, Clock12: conf.Clock12},
		Colors:   conf.Colors(),
	}, store, link.Phone(), batt)

	settingsStore := config.NewSettingsStore(conf.StateDir)
	persisted, ok, err := settingsStore.LoadSettings(conf.Settings)
	if err != nil {
		appLog.Warn("failed to load persisted settings; using config", "err", err)
	} else if ok {
		appLog.Debug("persisted settings loaded", "path", settingsStore.Path())
	}

	view := web.NewView()
	sched, err := scheduler.New(scheduler.Config{
		Format:        conf.Format(),
		Loc:           loc,
		TitleMax:      conf.TitleMax,
		NotifyMinutes: conf.NotifyMinutes,
		RefreshEvery:  conf.RefreshEveryMinutes,
		StaleAfter:    time.Duration(conf.StaleMinutes) * time.Minute,
		ListIndex:     int8(conf.ReminderList),
		Settings:      persisted,
		Clock12:       conf.Clock12,
	}, link.Device(), view, view, settingsStore)
	if err != nil {
		return nil, err
	}

	return &app{
		conf:    conf,
		loc:     loc,
		link:    link,
		store:   store,
		battery: batt,
		comp:    comp,
		sched:   sched,
		view:    view,
	}, nil
}

func (a *app) refresh(ctx context.Context) {
	if err := a.store.Refresh(ctx, time.Now()); err != nil {
		appLog.Error("ICS refresh failed", err)
	}
}

// run starts every loop and blocks until ctx is cancelled.
func (a *app) run(ctx context.Context) error {
	a.refresh(ctx)

	ticks := make(chan time.Time, 1)
	localBattery := make(chan model.BatteryStatus, 1)
	peerBattery := make(chan struct{}, 1)

	c := cron.New(cron.WithLocation(a.loc))
	if _, err := c.AddFunc(a.conf.TickCron, func() {
		select {
		case ticks <- time.Now():
		default:
			appLog.Warn("tick dropped; scheduler busy")
		}
	}); err != nil {
		return fmt.Errorf("tick schedule: %w", err)
	}
	if _, err := c.AddFunc(a.conf.RefreshCron, func() { a.refresh(ctx) }); err != nil {
		return fmt.Errorf("refresh schedule: %w", err)
	}
	if _, err := c.AddFunc(a.conf.BatteryCron, func() {
		if st, err := a.battery.Read(ctx); err != nil {
			appLog.Warn("battery read failed", "err", err)
		} else {
			select {
			case localBattery <- st.Model():
			default:
			}
		}
		select {
		case peerBattery <- struct{}{}:
		default:
		}
	}); err != nil {
		return fmt.Errorf("battery schedule: %w", err)
	}

	phone := a.link.Phone()
	go a.comp.Run(ctx, phone.Inbox(), phone.Reconnected())

	device := a.link.Device()
	a.link.SetConnected(true)
	go a.sched.Run(ctx, scheduler.Sources{
		Inbound:      device.Inbox(),
		SendFailed:   a.link.Failures(),
		Connectivity: a.link.Connectivity(),
		Battery:      localBattery,
		Ticks:        ticks,
		PeerBattery:  peerBattery,
	}, nil)

	c.Start()
	defer func() {
		<-c.Stop().Done()
	}()

	srv := web.NewServer(a.conf, a.view, a.store, a.battery)
	return srv.ListenAndServe(ctx)
}

// runOnce fetches, runs the startup exchange until the scheduler settles,
// then prints the face.
func (a *app) runOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a.refresh(ctx)

	phone := a.link.Phone()
	go a.comp.Run(ctx, phone.Inbox(), phone.Reconnected())

	device := a.link.Device()
	a.link.SetConnected(true)
	go a.sched.Run(ctx, scheduler.Sources{
		Inbound:      device.Inbox(),
		SendFailed:   a.link.Failures(),
		Connectivity: a.link.Connectivity(),
	}, nil)

	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for calendar: %w", ctx.Err())
		case <-poll.C:
		}
		f, ok := a.view.Frame()
		if !ok || f.State != scheduler.Idle || !f.Connected {
			continue
		}
		fmt.Println(f.Label)
		if f.Reminders != "" {
			fmt.Println("--")
			fmt.Println(f.Reminders)
		}
		fmt.Println(f.Status)
		return nil
	}
}
