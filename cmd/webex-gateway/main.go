// ABOUTME: Entry point for the webex-gateway bridge
// ABOUTME: Connects a console chat frontend to Cisco Webex over webhooks

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/chatbridge/webex-gateway/internal/config"
	"github.com/chatbridge/webex-gateway/internal/conversation"
	"github.com/chatbridge/webex-gateway/internal/session"
	"github.com/chatbridge/webex-gateway/internal/store"
)

// version can be overridden at build time via -ldflags.
var version = "dev"

const banner = `
          _                                       _
__      _| |__   _____  __       __ _  __ _| |_ _____      ____ _ _   _
\ \ /\ / / '_ \ / _ \ \/ /_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 \ V  V /| |_) |  __/>  <______| (_| | (_| | ||  __/\ V  V / (_| | |_| |
  \_/\_/ |_.__/ \___/_/\_\      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: WEBEX_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/webex-gateway/gateway.yaml > ~/.config/webex-gateway/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("WEBEX_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "webex-gateway", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: webex-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve      Connect to Webex and start the console")
		fmt.Println("  init       Create a new config file interactively")
		fmt.Println("  version    Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listener: %s\n", cfg.Ingress.ListenAddr)
	green.Print("    ▶ ")
	fmt.Printf("Webhook:  %s\n", cfg.Webex.BaseURL)
	if cfg.Ledger.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Ledger:   %s\n", cfg.Ledger.Path)
	}
	fmt.Println()

	logger.Info("starting webex-gateway",
		"config", configPath,
		"listen_addr", cfg.Ingress.ListenAddr,
		"base_url", cfg.Webex.BaseURL,
	)

	// Optional message ledger
	var recorder conversation.Recorder
	if cfg.Ledger.Enabled {
		ledger, err := store.OpenLedger(cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		defer ledger.Close()
		recorder = ledger
	}

	host := newConsoleHost()
	sess := session.New(session.Params{
		Config:   cfg,
		Host:     host,
		Recorder: recorder,
		Logger:   logger,
	})

	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer sess.Shutdown(context.Background())

	return runConsole(ctx, sess, host)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("webex-gateway configuration setup")
	fmt.Println("=================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Webex configuration
	fmt.Println("\n--- Webex Configuration ---")
	accessToken := prompt(reader, "Webex access token (or ${ENV_VAR} reference)", "${WEBEX_ACCESS_TOKEN}")
	baseURL := prompt(reader, "Public base URL for webhook delivery", "")
	defaultDomain := prompt(reader, "Default email domain for bare contact names", "")
	autojoinRooms := prompt(reader, "Autojoin rooms (comma-separated name substrings)", "")
	autojoinDirects := prompt(reader, "Autojoin direct chats (comma-separated emails)", "")

	// Listener
	fmt.Println("\n--- Listener Configuration ---")
	listenAddr := prompt(reader, "Webhook listener address", config.DefaultListenAddr)

	// Ledger
	fmt.Println("\n--- Message Ledger ---")
	enableLedger := prompt(reader, "Record messages to a local SQLite ledger?", "no")
	ledgerEnabled := strings.ToLower(enableLedger) == "yes" || strings.ToLower(enableLedger) == "y"
	var ledgerPath string
	if ledgerEnabled {
		ledgerPath = prompt(reader, "Ledger database path", "ledger.db")
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# webex-gateway configuration\n")
	cfg.WriteString("# Generated by webex-gateway init\n\n")

	cfg.WriteString("webex:\n")
	cfg.WriteString(fmt.Sprintf("  access_token: \"%s\"\n", accessToken))
	cfg.WriteString(fmt.Sprintf("  base_url: \"%s\"\n", baseURL))
	if defaultDomain != "" {
		cfg.WriteString(fmt.Sprintf("  default_domain: \"%s\"\n", defaultDomain))
	}
	if autojoinRooms != "" {
		cfg.WriteString(fmt.Sprintf("  autojoin_rooms: \"%s\"\n", autojoinRooms))
	}
	if autojoinDirects != "" {
		cfg.WriteString(fmt.Sprintf("  autojoin_directs: \"%s\"\n", autojoinDirects))
	}
	cfg.WriteString("\n")

	cfg.WriteString("ingress:\n")
	cfg.WriteString(fmt.Sprintf("  listen_addr: \"%s\"\n", listenAddr))
	cfg.WriteString("  read_timeout: \"300ms\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("ledger:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", ledgerEnabled))
	if ledgerEnabled {
		cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", ledgerPath))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the bridge:")
	fmt.Printf("  webex-gateway serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
