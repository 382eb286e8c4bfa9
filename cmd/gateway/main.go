package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/joho/godotenv"

	"github.com/decoylabs/scamtrap/pkg/config"
	"github.com/decoylabs/scamtrap/pkg/engine"
	"github.com/decoylabs/scamtrap/pkg/intel"
	"github.com/decoylabs/scamtrap/pkg/persona"
	"github.com/decoylabs/scamtrap/pkg/report"
	"github.com/decoylabs/scamtrap/pkg/scoring"
	"github.com/decoylabs/scamtrap/pkg/session"
	"github.com/decoylabs/scamtrap/pkg/signal"
)

const Version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		addr := ""
		if len(os.Args) > 2 {
			addr = ":" + os.Args[2]
		}
		runHTTPServer(addr)
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Usage: scamtrap scan <text>")
			os.Exit(1)
		}
		runCLIScan(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("ScamTrap v%s\n", Version)
		fmt.Println("Conversational scam-detection honeypot engine")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("ScamTrap v%s - scam-detection honeypot\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  scamtrap serve [port]   Start HTTP gateway (default: 8080)")
	fmt.Println("  scamtrap scan <text>    Score a single message")
	fmt.Println("  scamtrap version        Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  SCAMTRAP_API_KEY       API key for gateway authentication")
	fmt.Println("  SCAMTRAP_REPORT_URL    Callback URL for final scam reports")
	fmt.Println("  SCAMTRAP_REDIS_ADDR    Redis address for the distributed session store")
	fmt.Println("  SCAMTRAP_WEIGHTS_FILE  YAML signal-weight overrides")
}

// buildEngine assembles the full pipeline from configuration.
func buildEngine(cfg *config.Config) (*engine.Engine, session.Store, error) {
	weights, err := cfg.LoadWeights()
	if err != nil {
		return nil, nil, err
	}

	var store session.Store
	if cfg.RedisAddr != "" {
		rs, err := session.NewRedisStore(cfg.RedisAddr, cfg.SessionTTL)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[STARTUP] Using Redis session store at %s", cfg.RedisAddr)
		store = rs
	} else {
		store = session.NewInMemoryStore(
			session.WithMaxAge(cfg.SessionTTL),
			session.WithCleanupInterval(cfg.CleanupInterval),
		)
	}

	failures, err := report.NewFailureStore(cfg.FailedReportsDir)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	var dispatchOpts []report.DispatcherOption
	if cfg.PostgresDSN != "" {
		archive, err := report.NewArchive(context.Background(), cfg.PostgresDSN)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		log.Println("[STARTUP] Report archive enabled")
		dispatchOpts = append(dispatchOpts, report.WithArchive(archive))
	}
	dispatcher := report.NewDispatcher(cfg.ReportEndpoint, failures, cfg.MaxConcurrentDispatches, dispatchOpts...)

	var personas *persona.Generator
	if cfg.PersonaEnabled {
		personas = persona.NewGenerator(cfg.PersonaName)
	} else {
		log.Println("[STARTUP] Persona replies disabled; running detection-only")
	}

	eng := engine.New(
		store,
		signal.NewCatalog(weights),
		scoring.NewScorer(),
		intel.NewCompletionPolicy(cfg.CompletionMinTurns, cfg.EntityRepeatThreshold, cfg.CredentialTurnThreshold),
		dispatcher,
		personas,
		engine.WithExtractor(intel.NewExtractor(cfg.ExtraKeywords...)),
	)
	return eng, store, nil
}

// ============================================================================
// HTTP Server Mode
// ============================================================================

// ingestRequest is the inbound message envelope.
type ingestRequest struct {
	SessionID string `json:"sessionId"`
	Message   struct {
		Text string `json:"text"`
	} `json:"message"`
	ConversationHistory []struct {
		Sender string `json:"sender"`
		Text   string `json:"text"`
	} `json:"conversationHistory"`
}

func runHTTPServer(addr string) {
	if err := godotenv.Load(); err == nil {
		log.Println("[STARTUP] Loaded environment from .env")
	}

	cfg := config.NewDefaultConfig()
	if addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.MustValidate()

	eng, store, err := buildEngine(cfg)
	if err != nil {
		log.Fatalf("[STARTUP] FATAL: %v", err)
	}
	defer store.Close()

	app := fiber.New(fiber.Config{
		AppName: "ScamTrap",
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": Version})
	})

	// API key check for everything below. An empty configured key means
	// development mode with auth disabled.
	app.Use(func(c fiber.Ctx) error {
		if cfg.APIKey == "" {
			return c.Next()
		}
		if c.Get("x-api-key") != cfg.APIKey {
			return c.Status(401).JSON(fiber.Map{"error": "invalid or missing API key"})
		}
		return c.Next()
	})

	app.Post("/ingest-message", func(c fiber.Ctx) error {
		var req ingestRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}
		if strings.TrimSpace(req.Message.Text) == "" {
			return c.Status(400).JSON(fiber.Map{"error": "message.text is required"})
		}

		history := make([]signal.ConvTurn, 0, len(req.ConversationHistory))
		for _, t := range req.ConversationHistory {
			history = append(history, signal.ConvTurn{Sender: t.Sender, Text: t.Text})
		}

		verdict, err := eng.Process(c.Context(), engine.Message{
			SessionID: req.SessionID,
			Text:      req.Message.Text,
			History:   history,
		})
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(verdict)
	})

	app.Get("/sessions", func(c fiber.Ctx) error {
		sessions, err := eng.Sessions()
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "listing sessions failed"})
		}
		return c.JSON(fiber.Map{"sessions": sessions, "count": len(sessions)})
	})

	app.Get("/sessions/:id", func(c fiber.Ctx) error {
		status, err := eng.Session(c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "loading session failed"})
		}
		if status == nil {
			return c.Status(404).JSON(fiber.Map{"error": "session not found"})
		}
		return c.JSON(status)
	})

	log.Printf("[STARTUP] ScamTrap gateway listening on %s", cfg.ListenAddr)
	if err := app.Listen(cfg.ListenAddr); err != nil {
		log.Fatalf("[STARTUP] FATAL: server error: %v", err)
	}
}

// ============================================================================
// CLI Scan Mode
// ============================================================================

// runCLIScan scores a single message outside any session and prints the
// verdict as JSON.
func runCLIScan(text string) {
	cfg := config.NewDefaultConfig()
	weights, err := cfg.LoadWeights()
	if err != nil {
		log.Fatalf("loading weights: %v", err)
	}

	catalog := signal.NewCatalog(weights)
	scorer := scoring.NewScorer()

	signals, explanations := catalog.Extract(text)
	result := scorer.Score(signals, nil, 1)

	out, _ := json.MarshalIndent(map[string]any{
		"scamDetected": result.Detected,
		"confidence":   result.Confidence,
		"signals":      signals.IDs(),
		"explanations": explanations,
	}, "", "  ")
	fmt.Println(string(out))
}
