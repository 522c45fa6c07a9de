package main

import (
	"context"
	"embed"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/airway-data/breath.report/internal/api"
	"github.com/airway-data/breath.report/internal/capture"
	"github.com/airway-data/breath.report/internal/config"
	"github.com/airway-data/breath.report/internal/db"
	"github.com/airway-data/breath.report/internal/serialmux"
)

var (
	//go:embed static/*
	staticFiles embed.FS

	devMode       = flag.Bool("dev", false, "Run in dev mode (mock serial from fixtures.txt, static from disk)")
	disableSerial = flag.Bool("disable-serial", false, "Run without a pressure board attached")
	listen        = flag.String("listen", ":8080", "Listen address")
	dbFile        = flag.String("db", "breath.db", "Path to the sqlite database")
	migrationsDir = flag.String("migrations", "internal/db/migrations", "Path to the schema migrations directory")
	configFile    = flag.String("config", "", "Path to a tuning config JSON file (optional)")
	serialPort    = flag.String("port", "", "Serial port path (overrides config)")
	captureDir    = flag.String("capture-dir", "recordings", "Directory for live capture recordings")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	var m serialmux.SerialMuxInterface
	switch {
	case *disableSerial:
		m = serialmux.NewDisabledSerialMux()
	case *devMode:
		data, err := os.ReadFile("fixtures.txt")
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		m = serialmux.NewMockSerialMux(data)
	default:
		port := *serialPort
		if port == "" {
			port = tuning.GetSerialPort()
		}
		var err error
		m, err = serialmux.NewRealSerialMux(port, serialmux.PortOptions{
			BaudRate: tuning.GetBaudRate(),
		})
		if err != nil {
			log.Fatalf("failed to open serial port %s: %v", port, err)
		}
		if err := m.Initialize(); err != nil {
			log.Printf("WARNING: failed to initialize pressure board: %v", err)
		}
	}
	defer m.Close()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	recorder := capture.NewRecorder(m, *captureDir, log.Default())

	// Wait group for the HTTP server, serial monitor, and event handler routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to board lines and route status responses; sample rows are
	// consumed by the capture recorder through its own subscription
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := m.Subscribe()
		defer m.Unsubscribe(id)
		for {
			select {
			case payload, ok := <-c:
				if !ok {
					log.Printf("subscribe routine terminated")
					return
				}
				if err := serialmux.HandleEvent(payload); err != nil {
					log.Printf("error handling event: %v", err)
				}
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		database.AttachAdminRoutes(mux)
		m.AttachAdminRoutes(mux)

		// mount the analysis API and debug charts
		apiMux := api.NewServer(database, recorder, tuning, log.Default()).ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/charts/", apiMux)

		// read static files from the embedded filesystem in production or from
		// the local ./static in dev for easier iteration without restarting the
		// server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			staticHandler = http.FileServer(http.FS(staticFiles))
		}
		mux.Handle("/", staticHandler)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// stop any in-flight capture before waiting for routines to drain
	go func() {
		<-ctx.Done()
		if recorder.Active() {
			if _, _, err := recorder.Stop(); err != nil {
				log.Printf("failed to stop capture: %v", err)
			}
		}
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
