package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/jamesprial/biteme-gateway/internal/config"
	"github.com/jamesprial/biteme-gateway/internal/container"
	"github.com/jamesprial/biteme-gateway/internal/gateway"
)

// Build-time variables (set by ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func run(configPath string) error {
	cont := container.New()

	// Defaults, then the optional YAML file, then the environment
	cont.SetConfigLoader(config.NewEnvLoader(config.NewOptionalFileLoader(configPath)))

	if err := cont.Initialize(); err != nil {
		return err
	}
	logger := cont.Logger()

	gatewayService := gateway.NewService(cont)
	if err := gatewayService.Start(); err != nil {
		_ = cont.Close()
		return err
	}

	logger.Info("BiteMe gateway started successfully", map[string]any{
		"config_path": configPath,
		"version":     Version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Shutdown signal received", map[string]any{})

	return gatewayService.Stop()
}

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("BiteMe API Gateway\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Go Version: %s\n", runtime.Version())
		return
	}

	if *showHelp {
		fmt.Println("BiteMe API Gateway - single entry point for the auth, meals and AI services")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Printf("  %s [options]\n", os.Args[0])
		fmt.Println()
		fmt.Println("Options:")
		fmt.Println("  -help         Show help information")
		fmt.Println("  -version      Show version information")
		fmt.Println()
		fmt.Println("Environment Variables:")
		fmt.Println("  CONFIG_PATH                   Path to configuration file (default: config.yaml, optional)")
		fmt.Println("  GATEWAY_PORT                  Listen port (default: 3000)")
		fmt.Println("  GATEWAY_ENV                   development or production")
		fmt.Println("  LOG_LEVEL, LOG_FORMAT         Logging level and format (text or json)")
		fmt.Println("  CLIENT_URL                    Allowed CORS origin")
		fmt.Println("  JWT_SECRET                    Shared token signing secret")
		fmt.Println("  AUTH_SERVICE_URL              Base URL of the auth service (likewise MEALS_, AI_)")
		fmt.Println("  RATE_LIMIT_<CLASS>_MAX        Requests per window for global, auth, meals, ai")
		fmt.Println("  RATE_LIMIT_<CLASS>_WINDOW_MS  Window length in milliseconds")
		fmt.Println("  REDIS_URL                     Shared rate limit store")
		fmt.Println("  CONSUL_ADDR                   Consul agent for service discovery")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Printf("  %s                    # Start the gateway\n", os.Args[0])
		fmt.Printf("  CONFIG_PATH=/etc/biteme/gateway.yaml %s\n", os.Args[0])
		return
	}

	log.Printf("BiteMe API Gateway %s (built %s)", Version, BuildTime)

	configPath := "config.yaml"
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		configPath = path
	}

	if err := run(configPath); err != nil {
		log.Fatalf("failed to run gateway: %v", err)
	}
}
