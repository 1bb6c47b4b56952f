// ABOUTME: Entry point for the ward-gateway tool-execution server
// ABOUTME: Manages sandboxed tools and duplex client connections

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/ward-gateway/internal/config"
	"github.com/2389/ward-gateway/internal/gateway"
	"github.com/2389/ward-gateway/internal/metrics"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                        _                 _
 __      ____ _ _ __ __| |      __ _  __ _| |_ _____      ____ _ _   _
 \ \ /\ / / _' | '__/ _' |_____/ _' |/ _' | __/ _ \ \ /\ / / _' | | | |
  \ V  V / (_| | | | (_| |____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
   \_/\_/ \__,_|_|  \__,_|     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                               |___/                             |___/
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: ward-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the gateway server")
		fmt.Println("  init      Create a new config file interactively")
		fmt.Println("  health    Check gateway health")
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
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the resolved config file, falling back to defaults when
// no file is present.
func loadConfig() (*config.Config, string, error) {
	path := config.Resolve()
	if path == "" {
		return config.Default(), "(defaults)", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Sandbox:   %s\n", cfg.Tools.BaseDirectory)
	if cfg.Device.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Device:    %s:%d\n", cfg.Device.Host, cfg.Device.Port)
	}

	fmt.Println()

	logger.Info("starting ward-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"sandbox", cfg.Tools.BaseDirectory,
	)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	gw, err := gateway.New(cfg, logger, gateway.Options{Metrics: m})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	url := fmt.Sprintf("http://%s/health", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	fmt.Println(string(body))
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("ward-gateway configuration setup")
	fmt.Println("================================")
	fmt.Println()

	defaultConfigPath := "config.yaml"
	if home, err := os.UserHomeDir(); err == nil {
		defaultConfigPath = filepath.Join(home, ".config", "ward", "gateway.yaml")
	}

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", ":8080")

	fmt.Println("\n--- Sandbox Configuration ---")
	baseDir := prompt(reader, "Sandbox base directory", "./sandbox")
	extensions := prompt(reader, "Allowed write extensions (comma-separated, empty for all)", ".txt,.md,.json")
	maxSize := prompt(reader, "Max readable file size in bytes", "1048576")
	createDirs := prompt(reader, "Create missing parent directories on write?", "no")

	fmt.Println("\n--- WebSocket Configuration ---")
	maxConns := prompt(reader, "Max concurrent connections", "100")
	hbInterval := prompt(reader, "Heartbeat interval", "30s")
	hbTimeout := prompt(reader, "Heartbeat timeout", "90s")

	fmt.Println("\n--- Device Bridge Configuration ---")
	enableDevice := prompt(reader, "Enable device command forwarding?", "no")
	deviceEnabled := strings.ToLower(enableDevice) == "yes" || strings.ToLower(enableDevice) == "y"

	var deviceHost, devicePort string
	if deviceEnabled {
		deviceHost = prompt(reader, "Device agent host", "127.0.0.1")
		devicePort = prompt(reader, "Device agent port", "8765")
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# ward-gateway configuration\n")
	cfg.WriteString("# Generated by ward-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("websocket:\n")
	cfg.WriteString("  enabled: true\n")
	cfg.WriteString(fmt.Sprintf("  max_connections: %s\n", maxConns))
	cfg.WriteString(fmt.Sprintf("  heartbeat_interval: \"%s\"\n", hbInterval))
	cfg.WriteString(fmt.Sprintf("  heartbeat_timeout: \"%s\"\n", hbTimeout))
	cfg.WriteString("\n")

	cfg.WriteString("tools:\n")
	cfg.WriteString(fmt.Sprintf("  base_directory: \"%s\"\n", baseDir))
	if extensions != "" {
		cfg.WriteString("  allowed_extensions:\n")
		for _, ext := range strings.Split(extensions, ",") {
			cfg.WriteString(fmt.Sprintf("    - \"%s\"\n", strings.TrimSpace(ext)))
		}
	}
	cfg.WriteString(fmt.Sprintf("  max_file_size: %s\n", maxSize))
	cfg.WriteString(fmt.Sprintf("  create_directories: %t\n",
		strings.ToLower(createDirs) == "yes" || strings.ToLower(createDirs) == "y"))
	cfg.WriteString("\n")

	cfg.WriteString("device:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", deviceEnabled))
	if deviceEnabled {
		cfg.WriteString(fmt.Sprintf("  host: \"%s\"\n", deviceHost))
		cfg.WriteString(fmt.Sprintf("  port: %s\n", devicePort))
		cfg.WriteString("  timeout: \"10s\"\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: true\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  ward-gateway serve\n")

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
