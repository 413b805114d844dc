package app

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/gnss_sentinel/internal/arbiter"
	"github.com/relabs-tech/gnss_sentinel/internal/config"
	"github.com/relabs-tech/gnss_sentinel/internal/gnss"
	"github.com/relabs-tech/gnss_sentinel/internal/logging"
	"github.com/relabs-tech/gnss_sentinel/internal/publish"
)

// RunConsole subscribes to the sentinel topics and prints every fix,
// alert and mode change until interrupted.
func RunConsole(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientID + "-console")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	logging.Info().Str("broker", cfg.MQTT.Broker).Msg("console connected")

	fixToken := client.Subscribe(publish.TopicFix, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f gnss.FixSample
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			logging.Warn().Err(err).Msg("console: fix unmarshal")
			return
		}
		fmt.Printf("[FIX ]  %s  lat=%.6f lon=%.6f quality=%d\n",
			f.Time.Format(time.TimeOnly), f.Latitude, f.Longitude, f.Quality)
	})
	fixToken.Wait()
	if fixToken.Error() != nil {
		return fixToken.Error()
	}

	alertToken := client.Subscribe(publish.TopicAlert, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var a arbiter.Alert
		if err := json.Unmarshal(msg.Payload(), &a); err != nil {
			logging.Warn().Err(err).Msg("console: alert unmarshal")
			return
		}
		fmt.Printf("[ALRT]  %s  kind=%s p=%.2f  %s\n",
			a.Time.Format(time.TimeOnly), a.Kind, a.SpoofProbability,
			strings.Join(a.Causes, "; "))
	})
	alertToken.Wait()
	if alertToken.Error() != nil {
		return alertToken.Error()
	}

	modeToken := client.Subscribe(publish.TopicMode, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m struct {
			Mode string    `json:"mode"`
			Time time.Time `json:"time"`
		}
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			logging.Warn().Err(err).Msg("console: mode unmarshal")
			return
		}
		fmt.Printf("[MODE]  %s  %s\n", m.Time.Format(time.TimeOnly), m.Mode)
	})
	modeToken.Wait()
	if modeToken.Error() != nil {
		return modeToken.Error()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logging.Info().Msg("console shutting down")
	client.Disconnect(250)
	return nil
}
