package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/storage"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/widget"
)

const (
	commandUseName                = "server"
	commandShortDescription       = "Run the chatbot widget host"
	commandLongDescription        = "Serve the embeddable chatbot widget script, its session API and the preview page"
	missingConfigurationMessage   = "missing required configuration"
	loggerCreationErrorMessage    = "logger"
	unexpectedArgumentsMessage    = "unexpected command arguments"
	commandInitializationFailure  = "failed to configure command"
	flagNotDefinedMessage         = "flag %s not defined"
	environmentConfigurationError = "failed to apply environment configuration"
	environmentFileName           = ".env"

	flagNameApplicationAddress = "app-addr"
	flagNameChatbotAPIURL      = "chatbot-api-url"
	flagNameAllowedAPIURLs     = "allowed-api-urls"
	flagNamePublicBaseURL      = "public-base-url"
	flagNameStorageDriver      = "storage-driver"
	flagNameStorageDSN         = "storage-dsn"
	flagNameSessionSecret      = "session-secret"
	flagNameReplyDelay         = "reply-delay"
	flagNameSessionIdleTTL     = "session-idle-ttl"
	flagNameSweepInterval      = "sweep-interval"
	flagNameSendRatePerSecond  = "send-rate-per-second"
	flagNameSendRateBurst      = "send-rate-burst"
	flagNameUpstreamTimeout    = "upstream-timeout"

	environmentKeyApplicationAddress = "APP_ADDR"
	environmentKeyChatbotAPIURL      = "CHATBOT_API_URL"
	environmentKeyAllowedAPIURLs     = "ALLOWED_API_URLS"
	environmentKeyPublicBaseURL      = "PUBLIC_BASE_URL"
	environmentKeyStorageDriver      = "STORAGE_DRIVER"
	environmentKeyStorageDSN         = "STORAGE_DSN"
	environmentKeySessionSecret      = "SESSION_SECRET"
	environmentKeyReplyDelay         = "REPLY_DELAY"
	environmentKeySessionIdleTTL     = "SESSION_IDLE_TTL"
	environmentKeySweepInterval      = "SWEEP_INTERVAL"
	environmentKeySendRatePerSecond  = "SEND_RATE_PER_SECOND"
	environmentKeySendRateBurst      = "SEND_RATE_BURST"
	environmentKeyUpstreamTimeout    = "UPSTREAM_TIMEOUT"

	defaultApplicationAddress = ":8080"
	defaultStorageDriver      = storage.DriverNameSQLite
	defaultSessionIdleTTL     = 30 * time.Minute
	defaultSweepInterval      = time.Minute
	defaultSendRatePerSecond  = 1.0
	defaultSendRateBurst      = 5
	defaultUpstreamTimeout    = 30 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 10 * time.Second

	logEventListening     = "listening"
	logEventShuttingDown  = "shutting_down"
	logEventServerFailure = "server"
	logEventShutdownError = "shutdown_failed"
	logFieldAddress       = "addr"
	logFieldStorage       = "storage_driver"
)

// ServerConfig captures configuration needed to run the server.
type ServerConfig struct {
	ApplicationAddress string
	ChatbotAPIURL      string
	AllowedAPIURLs     []string
	PublicBaseURL      string
	StorageDriver      string
	StorageDSN         string
	SessionSecret      string
	ReplyDelay         time.Duration
	SessionIdleTTL     time.Duration
	SweepInterval      time.Duration
	SendRatePerSecond  float64
	SendRateBurst      int
	UpstreamTimeout    time.Duration
}

// BackendOpener opens the visitor local-storage backend.
type BackendOpener func(context.Context, storage.BackendConfig) (storage.Backend, error)

// ServerApplication constructs and executes the server command.
type ServerApplication struct {
	configurationLoader *viper.Viper
	backendOpener       BackendOpener
}

// NewServerApplication creates a ServerApplication with default dependencies.
func NewServerApplication() *ServerApplication {
	return &ServerApplication{
		configurationLoader: viper.New(),
		backendOpener:       storage.OpenBackend,
	}
}

// WithBackendOpener overrides the storage backend dependency.
func (application *ServerApplication) WithBackendOpener(backendOpener BackendOpener) *ServerApplication {
	application.backendOpener = backendOpener
	return application
}

// Command builds the Cobra command for the server.
func (application *ServerApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Long:  commandLongDescription,
		RunE:  application.runCommand,
	}

	if configurationErr := application.configureCommand(rootCommand); configurationErr != nil {
		return nil, configurationErr
	}

	return rootCommand, nil
}

type flagBinding struct {
	flagName       string
	environmentKey string
}

func (application *ServerApplication) configureCommand(command *cobra.Command) error {
	application.configurationLoader.SetDefault(environmentKeyApplicationAddress, defaultApplicationAddress)
	application.configurationLoader.SetDefault(environmentKeyChatbotAPIURL, widget.DefaultAPIBaseURL)
	application.configurationLoader.SetDefault(environmentKeyStorageDriver, defaultStorageDriver)
	application.configurationLoader.SetDefault(environmentKeyReplyDelay, widget.DefaultReplyDelay)
	application.configurationLoader.SetDefault(environmentKeySessionIdleTTL, defaultSessionIdleTTL)
	application.configurationLoader.SetDefault(environmentKeySweepInterval, defaultSweepInterval)
	application.configurationLoader.SetDefault(environmentKeySendRatePerSecond, defaultSendRatePerSecond)
	application.configurationLoader.SetDefault(environmentKeySendRateBurst, defaultSendRateBurst)
	application.configurationLoader.SetDefault(environmentKeyUpstreamTimeout, defaultUpstreamTimeout)
	application.configurationLoader.AutomaticEnv()

	commandFlags := command.Flags()
	commandFlags.String(flagNameApplicationAddress, defaultApplicationAddress, "address for the HTTP server to listen on")
	commandFlags.String(flagNameChatbotAPIURL, widget.DefaultAPIBaseURL, "base URL of the chatbot REST API")
	commandFlags.String(flagNameAllowedAPIURLs, "", "comma separated chatbot API URLs embeds may name besides the default")
	commandFlags.String(flagNamePublicBaseURL, "", "public URL of this server used by the embed script")
	commandFlags.String(flagNameStorageDriver, defaultStorageDriver, "visitor storage backend: sqlite, postgres, redis, pebble or memory")
	commandFlags.String(flagNameStorageDSN, "", "visitor storage connection string or directory")
	commandFlags.String(flagNameSessionSecret, "", "secret signing the visitor cookie")
	commandFlags.Duration(flagNameReplyDelay, widget.DefaultReplyDelay, "simulated typing delay before a bot reply")
	commandFlags.Duration(flagNameSessionIdleTTL, defaultSessionIdleTTL, "inactivity after which a widget session is closed")
	commandFlags.Duration(flagNameSweepInterval, defaultSweepInterval, "interval of the idle session sweep")
	commandFlags.Float64(flagNameSendRatePerSecond, defaultSendRatePerSecond, "messages per second allowed per visitor")
	commandFlags.Int(flagNameSendRateBurst, defaultSendRateBurst, "message burst allowed per visitor")
	commandFlags.Duration(flagNameUpstreamTimeout, defaultUpstreamTimeout, "timeout of chatbot API requests")

	flagBindings := []flagBinding{
		{flagName: flagNameApplicationAddress, environmentKey: environmentKeyApplicationAddress},
		{flagName: flagNameChatbotAPIURL, environmentKey: environmentKeyChatbotAPIURL},
		{flagName: flagNameAllowedAPIURLs, environmentKey: environmentKeyAllowedAPIURLs},
		{flagName: flagNamePublicBaseURL, environmentKey: environmentKeyPublicBaseURL},
		{flagName: flagNameStorageDriver, environmentKey: environmentKeyStorageDriver},
		{flagName: flagNameStorageDSN, environmentKey: environmentKeyStorageDSN},
		{flagName: flagNameSessionSecret, environmentKey: environmentKeySessionSecret},
		{flagName: flagNameReplyDelay, environmentKey: environmentKeyReplyDelay},
		{flagName: flagNameSessionIdleTTL, environmentKey: environmentKeySessionIdleTTL},
		{flagName: flagNameSweepInterval, environmentKey: environmentKeySweepInterval},
		{flagName: flagNameSendRatePerSecond, environmentKey: environmentKeySendRatePerSecond},
		{flagName: flagNameSendRateBurst, environmentKey: environmentKeySendRateBurst},
		{flagName: flagNameUpstreamTimeout, environmentKey: environmentKeyUpstreamTimeout},
	}

	for _, binding := range flagBindings {
		if bindErr := application.bindFlag(commandFlags, binding.environmentKey, binding.flagName); bindErr != nil {
			return bindErr
		}
		if environmentErr := application.applyEnvironmentConfiguration(commandFlags, binding.environmentKey, binding.flagName); environmentErr != nil {
			return environmentErr
		}
	}

	if markErr := command.MarkFlagRequired(flagNameSessionSecret); markErr != nil {
		return markErr
	}

	return nil
}

func (application *ServerApplication) bindFlag(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}

	if bindErr := application.configurationLoader.BindPFlag(environmentKey, flag); bindErr != nil {
		return bindErr
	}

	return nil
}

func (application *ServerApplication) applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}

	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationError, setErr)
	}

	return nil
}

func (application *ServerApplication) loadServerConfig() ServerConfig {
	loader := application.configurationLoader
	return ServerConfig{
		ApplicationAddress: strings.TrimSpace(loader.GetString(environmentKeyApplicationAddress)),
		ChatbotAPIURL:      strings.TrimSpace(loader.GetString(environmentKeyChatbotAPIURL)),
		AllowedAPIURLs:     splitList(loader.GetString(environmentKeyAllowedAPIURLs)),
		PublicBaseURL:      strings.TrimSpace(loader.GetString(environmentKeyPublicBaseURL)),
		StorageDriver:      strings.ToLower(strings.TrimSpace(loader.GetString(environmentKeyStorageDriver))),
		StorageDSN:         strings.TrimSpace(loader.GetString(environmentKeyStorageDSN)),
		SessionSecret:      strings.TrimSpace(loader.GetString(environmentKeySessionSecret)),
		ReplyDelay:         loader.GetDuration(environmentKeyReplyDelay),
		SessionIdleTTL:     loader.GetDuration(environmentKeySessionIdleTTL),
		SweepInterval:      loader.GetDuration(environmentKeySweepInterval),
		SendRatePerSecond:  loader.GetFloat64(environmentKeySendRatePerSecond),
		SendRateBurst:      loader.GetInt(environmentKeySendRateBurst),
		UpstreamTimeout:    loader.GetDuration(environmentKeyUpstreamTimeout),
	}
}

func (application *ServerApplication) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	serverConfig := application.loadServerConfig()
	if validationErr := application.ensureRequiredConfiguration(serverConfig); validationErr != nil {
		return validationErr
	}
	command.SilenceUsage = true

	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}
	defer func() {
		_ = logger.Sync()
	}()

	baseContext := command.Context()
	if baseContext == nil {
		baseContext = context.Background()
	}
	signalContext, stopSignals := signal.NotifyContext(baseContext, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	return application.serve(signalContext, serverConfig, logger)
}

// serve runs the host until ctx ends, then drains in-flight requests and closes every session.
func (application *ServerApplication) serve(ctx context.Context, serverConfig ServerConfig, logger *zap.Logger) error {
	runtime, runtimeErr := buildServerRuntime(ctx, serverConfig, application.backendOpener, logger)
	if runtimeErr != nil {
		return runtimeErr
	}
	defer runtime.Close()

	runtime.sweepScheduler.Start(ctx)

	httpServer := &http.Server{
		Addr:              serverConfig.ApplicationAddress,
		Handler:           runtime.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErrors := make(chan error, 1)
	go func() {
		logger.Info(logEventListening, zap.String(logFieldAddress, serverConfig.ApplicationAddress), zap.String(logFieldStorage, serverConfig.StorageDriver))
		serveErrors <- httpServer.ListenAndServe()
	}()

	select {
	case serveErr := <-serveErrors:
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error(logEventServerFailure, zap.Error(serveErr))
			return serveErr
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(logEventShuttingDown)
	shutdownContext, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	// Event streams never end on their own; closing the sessions ends them.
	runtime.registry.Close()
	if shutdownErr := httpServer.Shutdown(shutdownContext); shutdownErr != nil {
		logger.Warn(logEventShutdownError, zap.Error(shutdownErr))
		return shutdownErr
	}
	return nil
}

func (application *ServerApplication) ensureRequiredConfiguration(configuration ServerConfig) error {
	var missingParameters []string

	if configuration.StorageDSN == "" && configuration.StorageDriver != storage.BackendNameMemory {
		missingParameters = append(missingParameters, flagNameStorageDSN)
	}

	if configuration.SessionSecret == "" {
		missingParameters = append(missingParameters, flagNameSessionSecret)
	}

	if len(missingParameters) == 0 {
		return nil
	}

	return fmt.Errorf("%s: %s", missingConfigurationMessage, strings.Join(missingParameters, ", "))
}

func splitList(rawList string) []string {
	var values []string
	for _, value := range strings.Split(rawList, ",") {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func main() {
	_ = godotenv.Load(environmentFileName)

	application := NewServerApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
