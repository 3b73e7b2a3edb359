package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-manager/internal/config"
	"github.com/thatsimonsguy/battery-manager/internal/datadog"
	"github.com/thatsimonsguy/battery-manager/internal/env"
	"github.com/thatsimonsguy/battery-manager/internal/history"
	"github.com/thatsimonsguy/battery-manager/internal/logging"
	"github.com/thatsimonsguy/battery-manager/internal/model"
	"github.com/thatsimonsguy/battery-manager/internal/outlet"
	"github.com/thatsimonsguy/battery-manager/internal/profile"
	"github.com/thatsimonsguy/battery-manager/internal/report"
	"github.com/thatsimonsguy/battery-manager/internal/supervisor"
)

const discoveryWait = 5 * time.Second

func main() {
	godotenv.Load()

	cfg := config.Load()
	env.Cfg = cfg
	logging.Init(cfg.LogFile, cfg.LogLevel)

	log.Info().
		Bool("test_mode", cfg.TestMode).
		Bool("force_full_charge", cfg.ForceFullCharge).
		Float64("max_hours_to_run", cfg.MaxHoursToRun).
		Str("config_file", cfg.ConfigFile).
		Msg("Starting battery manager")

	if cfg.TestMode {
		log.Warn().Msg("TEST MODE ENABLED: outlet commands are simulated, never sent")
	}

	datadog.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kasa := outlet.NewKasa(10 * time.Second)
	found, err := kasa.Discover(ctx, discoveryWait)
	if err != nil {
		log.Warn().Err(err).Msg("Outlet discovery failed, relying on [Plugs] addresses")
	}
	for _, m := range found {
		log.Info().Str("outlet", m.Name).Str("addr", m.Addr).Bool("strip_child", m.ChildID != "").Msg("Discovered outlet")
	}

	var driver outlet.Driver = kasa
	if cfg.TestMode {
		driver = outlet.NewSimulated(driver)
	}
	driver = outlet.NewRetrier(driver, cfg.ReadRetryLimit, 2*time.Second)

	sinks := []report.Sink{report.LogSink{}}
	if cfg.MQTTBroker != "" {
		mqttSink, err := report.NewMQTTSink(cfg.MQTTBroker, "battery-manager", cfg.MQTTTopic)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT broker unreachable, events will not be published")
		} else {
			mqttSink.Start(ctx)
			sinks = append(sinks, mqttSink)
		}
	}
	recorder := report.NewRecorder(sinks...)

	var store *history.Store
	if cfg.HistoryFile != "" {
		store, err = history.Open(cfg.HistoryFile)
		if err != nil {
			log.Warn().Err(err).Msg("Session history unavailable")
			store = nil
		} else {
			defer store.Close()
		}
	}

	names := supervisor.MonitoredOutlets(kasa.Outlets(), cfg.PlugProfiles)
	if len(names) == 0 {
		log.Error().Msg("No battery outlets found: nothing in [Plugs] and no battery_ outlets discovered")
		os.Exit(1)
	}
	log.Info().Strs("outlets", names).Msg("Monitoring outlets")

	sup := supervisor.New(driver, profile.NewResolver(cfg), recorder, store, cfg)

	logging.SetQuiet(cfg.Quiet)
	results := sup.Run(ctx, names)
	logging.SetQuiet(false)

	summary := report.Summary(results, cfg.TestMode)
	fmt.Print(summary)
	log.Info().Int("sessions", len(results)).Msg("Run complete")

	if err := report.SendMail(cfg.Email, cfg.AppKey, "battery manager status", summary); err != nil {
		log.Error().Err(err).Msg("Failed to send report mail")
	}

	for _, res := range results {
		if res.State == model.StateError {
			os.Exit(1)
		}
	}
}
