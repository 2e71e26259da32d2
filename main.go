package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"notebook-server/collab"
	"notebook-server/core"
	"notebook-server/handlers/api/notebooks"
	"notebook-server/handlers/api/query"
	"notebook-server/handlers/auth"
	"notebook-server/handlers/websocket"
	"notebook-server/metrics"
	"notebook-server/stores"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

const devSecret = "notebook-server-dev-secret"

type roomSummary struct {
	ID    string `json:"id"`
	Users int    `json:"users"`
}

func handleRooms(registry *collab.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts := registry.Rooms()
		roomList := make([]roomSummary, 0, len(counts))
		for id, users := range counts {
			roomList = append(roomList, roomSummary{ID: id, Users: users})
		}

		sort.Slice(roomList, func(i, j int) bool {
			if roomList[i].Users == roomList[j].Users {
				return roomList[i].ID < roomList[j].ID
			}
			return roomList[i].Users > roomList[j].Users
		})

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(roomList); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
		}
	}
}

func setupRouter(store stores.Store, tokens *auth.Tokens, hub *collab.Hub, gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	corsOptions := cors.Options{
		AllowedOrigins: []string{"tauri://localhost"},
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			if origin == "" {
				return false
			}

			parsed, err := url.Parse(origin)
			if err != nil {
				return false
			}

			switch parsed.Scheme {
			case "http", "https":
				switch parsed.Hostname() {
				case "localhost", "127.0.0.1", "::1":
					return true
				}
			case "tauri":
				return parsed.Hostname() == "localhost"
			}

			return false
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	r.Use(cors.Handler(corsOptions))

	r.Post("/auth/login", auth.HandleLogin(store, tokens))

	r.Route("/notebooks", func(r chi.Router) {
		r.Get("/", notebooks.HandleList(store))
		r.Post("/", notebooks.HandleSave(store, tokens))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", notebooks.HandleGet(store))
			r.Get("/audit", notebooks.HandleAudit(store))
		})
	})

	// Query API routes - only available with SQLite store
	if runner, ok := store.(core.QueryRunner); ok {
		r.Post("/query", query.HandleQuery(runner))
		r.Post("/seed-demo-data", query.HandleSeed(runner))
		logrus.Info("Query API routes registered")
	} else {
		logrus.Warn("Query API not available - requires SQLite storage")
	}

	r.Get("/api/rooms", handleRooms(hub.Registry()))
	r.Handle("/metrics", metrics.Handler(gatherer))

	return r
}

func tokenSettings() (string, time.Duration) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logrus.Warn("JWT_SECRET is not set, using the development secret")
		secret = devSecret
	}

	ttl := auth.DefaultTTL
	if raw := os.Getenv("TOKEN_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			logrus.WithField("token_ttl", raw).Warn("Invalid TOKEN_TTL, using default")
		} else {
			ttl = parsed
		}
	}
	return secret, ttl
}

func waitForShutdown(ioo *socketio.Server) {
	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	fmt.Println("Shutting down...")
	ioo.Close(nil)
	os.Exit(0)
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file loaded")
	}

	// Define a log level flag
	logLevel := flag.String("loglevel", "info", "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", ":3002", "Set the server listen address")
	flag.Parse()

	// Set the log level
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	store := stores.GetStore()
	if err := auth.SeedDemoUser(context.Background(), store); err != nil {
		logrus.WithField("error", err).Fatal("Failed to seed demo user")
	}

	tokens := auth.NewTokens(tokenSettings())

	reg := prometheus.NewRegistry()
	collabMetrics := metrics.New(reg)

	ioo, hub := websocket.SetupSocketIO(tokens, collab.WithMetrics(collabMetrics))
	r := setupRouter(store, tokens, hub, reg)
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	logrus.WithField("addr", *listenAddr).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddr, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(ioo)
}
