package cli

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"interquest/internal/app"
	"interquest/internal/config"
	"interquest/internal/domain"
	"interquest/internal/infra/memory"
	pgloader "interquest/internal/infra/postgres"
	rediscache "interquest/internal/infra/redis"
	transport "interquest/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the rapid-fire server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	round := cfg.Game.Round
	if round == 0 {
		round = 3
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionSource(sampleQuestions(round))
	var roster app.RosterSource = memory.NewStaticRoster(sampleRoster(round))
	var results app.ResultWriter = memory.NewResultLog()
	if pool != nil {
		loader = pgloader.NewQuestionLoader(pool)
		roster = pgloader.NewRosterLoader(pool)
		results = pgloader.NewResultWriter(pool)
	}

	questionsTTL := config.TTLDuration(cfg.Game.QuestionsTTL, 10*time.Minute)
	var source app.QuestionSource
	if redisClient != nil {
		source = rediscache.NewQuestionCache(redisClient, loader, questionsTTL)
	} else {
		source = memory.NewQuestionCache(loader, questionsTTL)
	}

	timings := app.DefaultTimings()
	if cfg.Game.QuestionSeconds > 0 {
		timings.QuestionSeconds = cfg.Game.QuestionSeconds
	}
	timings.LockGrace = config.TTLDuration(cfg.Game.LockGrace, timings.LockGrace)
	timings.AdvanceDelay = config.TTLDuration(cfg.Game.AdvanceDelay, timings.AdvanceDelay)
	timings.Cooldown = config.TTLDuration(cfg.Game.Cooldown, timings.Cooldown)

	game := app.NewGame(source, roster, results, round, timings)
	wsHandler := transport.NewWSHandler(game)

	if redisClient != nil {
		channel := cfg.Redis.ControlChannel
		if channel == "" {
			channel = "rapidfire:control"
		}
		feed := rediscache.NewControlFeed(redisClient, channel, game)
		go func() {
			if err := feed.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("control feed stopped: %v", err)
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/admin/rapid-fire/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := game.Start(r.Context()); err != nil {
			status := http.StatusInternalServerError
			if app.IsConfigError(err) {
				status = http.StatusConflict
			}
			writeJSON(w, status, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": game.Status()})
	})
	mux.HandleFunc("/admin/rapid-fire/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		game.Stop()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": game.Status()})
	})
	mux.HandleFunc("/admin/rapid-fire/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, game.Status())
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting rapid-fire server on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// sampleQuestions provides a minimal demo bank; production loads from Postgres.
func sampleQuestions(round int) map[int][]domain.Question {
	return map[int][]domain.Question{
		round: {
			{
				ID:      "q1",
				Text:    "What is 2 + 2?",
				OptionA: "3",
				OptionB: "4",
				OptionC: "5",
				OptionD: "22",
				Answer:  "B",
				Points:  1,
			},
			{
				ID:      "q2",
				Text:    "Which planet is known as the Red Planet?",
				OptionA: "Venus",
				OptionB: "Jupiter",
				OptionC: "Mars",
				OptionD: "Saturn",
				Answer:  "C",
				Points:  1,
			},
		},
	}
}

func sampleRoster(round int) map[int][]domain.ApprovedParticipant {
	return map[int][]domain.ApprovedParticipant{
		round: {
			{ID: "u1", Name: "Alice Smith"},
			{ID: "u2", Name: "Bob Jones"},
		},
	}
}
