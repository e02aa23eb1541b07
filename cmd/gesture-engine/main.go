// Command gesture-engine runs the recognition pipeline against a live serial
// IMU stream or a recorded CSV file, serves the monitoring HTTP interface,
// and optionally republishes accepted gestures over MQTT.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/gestures/internal/config"
	"github.com/banshee-data/gestures/internal/gesture"
	"github.com/banshee-data/gestures/internal/gesture/monitor"
	"github.com/banshee-data/gestures/internal/gesture/publish"
	"github.com/banshee-data/gestures/internal/gesture/storage/sqlite"
	"github.com/banshee-data/gestures/internal/monitoring"
	"github.com/banshee-data/gestures/internal/version"
)

var (
	listen     = flag.String("listen", ":8082", "HTTP listen address for the monitor interface")
	dbFile     = flag.String("db", "gestures.db", "Path to the SQLite database file")
	configFile = flag.String("config", "", "Path to a JSON engine config (defaults used when empty)")
	replayFile = flag.String("replay", "", "CSV file to replay instead of reading a serial port")
	replayRate = flag.Float64("replay-rate", 1.0, "Replay speed multiplier (0 = as fast as possible)")
	serialPort = flag.String("serial", "", "Serial port device to read IMU samples from")
	baudRate   = flag.Int("baud", 115200, "Serial port baud rate")
	mqttBroker = flag.String("mqtt", "", "MQTT broker URL for gesture publishing (empty = disabled)")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
)

func loadConfig() gesture.EngineConfig {
	cfg := gesture.DefaultEngineConfig()
	if *configFile == "" {
		return cfg
	}
	overrides, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg, err = overrides.Apply(cfg)
	if err != nil {
		log.Fatalf("apply config: %v", err)
	}
	return cfg
}

func main() {
	flag.Parse()
	monitoring.SetVerbose(*verbose)
	log.Printf("gesture-engine %s", version.String())

	if *replayFile == "" && *serialPort == "" {
		log.Fatal("no sample source: provide -replay or -serial")
	}
	if *replayFile != "" && *serialPort != "" {
		log.Fatal("-replay and -serial are mutually exclusive")
	}

	cfg := loadConfig()
	engine, err := gesture.NewEngine(cfg, gesture.EngineOptions{})
	if err != nil {
		log.Fatalf("create engine: %v", err)
	}

	store, err := sqlite.Open(*dbFile)
	if err != nil {
		log.Fatalf("open database %s: %v", *dbFile, err)
	}
	defer store.Close()

	// Load previously trained gestures so the engine recognises them from
	// the first sample.
	classes, err := store.LoadLibrary()
	if err != nil {
		log.Fatalf("load gesture library: %v", err)
	}
	for _, c := range classes {
		if err := engine.Library().SetClass(c); err != nil {
			log.Printf("skipping class %s: %v", c.Definition.ID, err)
		}
	}
	log.Printf("loaded %d gesture classes from %s", len(classes), *dbFile)

	// Persist every recognition outcome, accepted or rejected, for offline
	// threshold tuning.
	unsubscribeResult := engine.OnResult(func(r gesture.RecognitionResult) {
		if err := store.RecordEvent(r); err != nil {
			log.Printf("record event: %v", err)
		}
	})
	defer unsubscribeResult()
	unsubscribeGesture := engine.OnGesture(func(r gesture.RecognitionResult) {
		log.Printf("gesture: %s confidence=%.2f via %s", r.GestureID, r.Confidence, r.Classifier)
	})
	defer unsubscribeGesture()

	if err := engine.Start(); err != nil {
		log.Fatalf("start engine: %v", err)
	}
	defer engine.Dispose()

	var bridge *publish.MQTTBridge
	if *mqttBroker != "" {
		mqttCfg := publish.DefaultMQTTConfig()
		mqttCfg.BrokerURL = *mqttBroker
		bridge, err = publish.NewMQTTBridge(mqttCfg)
		if err != nil {
			log.Fatalf("mqtt bridge: %v", err)
		}
		bridge.Attach(engine)
		defer bridge.Close()
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sample source routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		if *replayFile != "" {
			err = replayCSV(ctx, engine, *replayFile, *replayRate)
		} else {
			err = readSerial(ctx, engine, *serialPort, *baudRate)
		}
		if err != nil && err != context.Canceled {
			log.Printf("sample source error: %v", err)
		}
		// A finished replay means there is nothing left to do.
		stop()
	}()

	// Monitor HTTP server routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address: *listen,
			Engine:  engine,
			Store:   store,
		})
		if err := ws.Start(ctx); err != nil {
			log.Printf("monitor server error: %v", err)
		}
	}()

	wg.Wait()
	log.Print("shutdown complete")
}
