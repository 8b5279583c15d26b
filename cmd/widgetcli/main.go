package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/apiclient"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/events"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/storage"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/widget"
)

const (
	commandUseName                = "widgetcli"
	commandShortDescription       = "Chat with a chatbot from the terminal"
	commandLongDescription        = "Run one chatbot widget session in the terminal, keeping the visitor profile in a local pebble database"
	missingConfigurationMessage   = "missing required configuration"
	loggerCreationErrorMessage    = "logger"
	openProfileErrorMessage       = "open profile"
	unexpectedArgumentsMessage    = "unexpected command arguments"
	commandInitializationFailure  = "failed to configure command"
	flagNotDefinedMessage         = "flag %s not defined"
	environmentConfigurationError = "failed to apply environment configuration"
	environmentFileName           = ".env"

	flagNameChatbotID       = "chatbot-id"
	flagNameChatbotAPIURL   = "chatbot-api-url"
	flagNameProfileDir      = "profile-dir"
	flagNameReplyDelay      = "reply-delay"
	flagNameUpstreamTimeout = "upstream-timeout"

	environmentKeyChatbotID       = "CHATBOT_ID"
	environmentKeyChatbotAPIURL   = "CHATBOT_API_URL"
	environmentKeyProfileDir      = "PROFILE_DIR"
	environmentKeyReplyDelay      = "REPLY_DELAY"
	environmentKeyUpstreamTimeout = "UPSTREAM_TIMEOUT"

	defaultProfileDirName  = ".chatbotwidget"
	defaultReplyDelay      = 500 * time.Millisecond
	defaultUpstreamTimeout = 30 * time.Second

	// A terminal has a single visitor, so the profile holds one namespace.
	profileNamespace = "terminal"
)

// CLIConfig captures configuration needed to run a terminal session.
type CLIConfig struct {
	ChatbotID       string
	ChatbotAPIURL   string
	ProfileDir      string
	ReplyDelay      time.Duration
	UpstreamTimeout time.Duration
}

// ProfileOpener opens the visitor profile store kept in directory.
type ProfileOpener func(directory string) (storage.Backend, error)

// CLIApplication constructs and executes the terminal command.
type CLIApplication struct {
	configurationLoader *viper.Viper
	profileOpener       ProfileOpener
	logger              *zap.Logger
}

// NewCLIApplication creates a CLIApplication with default dependencies.
func NewCLIApplication() *CLIApplication {
	return &CLIApplication{
		configurationLoader: viper.New(),
		profileOpener: func(directory string) (storage.Backend, error) {
			return storage.OpenPebbleBackend(directory, vfs.Default)
		},
	}
}

// WithProfileOpener overrides the profile store dependency.
func (application *CLIApplication) WithProfileOpener(profileOpener ProfileOpener) *CLIApplication {
	application.profileOpener = profileOpener
	return application
}

// WithLogger overrides the warn-level stderr logger.
func (application *CLIApplication) WithLogger(logger *zap.Logger) *CLIApplication {
	application.logger = logger
	return application
}

// Command builds the Cobra command for the terminal adapter.
func (application *CLIApplication) Command() (*cobra.Command, error) {
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

func (application *CLIApplication) configureCommand(command *cobra.Command) error {
	defaultProfileDir := defaultProfileDirectory()
	application.configurationLoader.SetDefault(environmentKeyChatbotAPIURL, widget.DefaultAPIBaseURL)
	application.configurationLoader.SetDefault(environmentKeyProfileDir, defaultProfileDir)
	application.configurationLoader.SetDefault(environmentKeyReplyDelay, defaultReplyDelay)
	application.configurationLoader.SetDefault(environmentKeyUpstreamTimeout, defaultUpstreamTimeout)
	application.configurationLoader.AutomaticEnv()

	commandFlags := command.Flags()
	commandFlags.String(flagNameChatbotID, "", "identifier of the chatbot to talk to")
	commandFlags.String(flagNameChatbotAPIURL, widget.DefaultAPIBaseURL, "base URL of the chatbot REST API")
	commandFlags.String(flagNameProfileDir, defaultProfileDir, "directory of the local visitor profile")
	commandFlags.Duration(flagNameReplyDelay, defaultReplyDelay, "simulated typing delay before a bot reply")
	commandFlags.Duration(flagNameUpstreamTimeout, defaultUpstreamTimeout, "timeout of chatbot API requests")

	environmentBindings := map[string]string{
		flagNameChatbotID:       environmentKeyChatbotID,
		flagNameChatbotAPIURL:   environmentKeyChatbotAPIURL,
		flagNameProfileDir:      environmentKeyProfileDir,
		flagNameReplyDelay:      environmentKeyReplyDelay,
		flagNameUpstreamTimeout: environmentKeyUpstreamTimeout,
	}
	for flagName, environmentKey := range environmentBindings {
		if bindErr := application.bindFlag(commandFlags, environmentKey, flagName); bindErr != nil {
			return bindErr
		}
		if environmentErr := application.applyEnvironmentConfiguration(commandFlags, environmentKey, flagName); environmentErr != nil {
			return environmentErr
		}
	}

	if markErr := command.MarkFlagRequired(flagNameChatbotID); markErr != nil {
		return markErr
	}

	return nil
}

func (application *CLIApplication) bindFlag(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}
	return application.configurationLoader.BindPFlag(environmentKey, flag)
}

func (application *CLIApplication) applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}

	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationError, setErr)
	}

	return nil
}

func (application *CLIApplication) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	loader := application.configurationLoader
	cliConfig := CLIConfig{
		ChatbotID:       strings.TrimSpace(loader.GetString(environmentKeyChatbotID)),
		ChatbotAPIURL:   strings.TrimSpace(loader.GetString(environmentKeyChatbotAPIURL)),
		ProfileDir:      strings.TrimSpace(loader.GetString(environmentKeyProfileDir)),
		ReplyDelay:      loader.GetDuration(environmentKeyReplyDelay),
		UpstreamTimeout: loader.GetDuration(environmentKeyUpstreamTimeout),
	}
	var missingParameters []string
	if cliConfig.ChatbotID == "" {
		missingParameters = append(missingParameters, flagNameChatbotID)
	}
	if cliConfig.ProfileDir == "" {
		missingParameters = append(missingParameters, flagNameProfileDir)
	}
	if len(missingParameters) > 0 {
		return fmt.Errorf("%s: %s", missingConfigurationMessage, strings.Join(missingParameters, ", "))
	}
	command.SilenceUsage = true

	logger := application.logger
	if logger == nil {
		warnLogger, loggerErr := newWarnLogger()
		if loggerErr != nil {
			return fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
		}
		logger = warnLogger
		defer func() {
			_ = logger.Sync()
		}()
	}

	baseContext := command.Context()
	if baseContext == nil {
		baseContext = context.Background()
	}
	signalContext, stopSignals := signal.NotifyContext(baseContext, os.Interrupt)
	defer stopSignals()

	return application.chat(signalContext, cliConfig, logger, command)
}

func (application *CLIApplication) chat(ctx context.Context, cliConfig CLIConfig, logger *zap.Logger, command *cobra.Command) error {
	profile, profileErr := application.profileOpener(cliConfig.ProfileDir)
	if profileErr != nil {
		return fmt.Errorf("%s: %w", openProfileErrorMessage, profileErr)
	}
	defer func() {
		_ = profile.Close()
	}()
	profileStore, namespaceErr := profile.Namespace(profileNamespace)
	if namespaceErr != nil {
		return namespaceErr
	}

	notices := events.NewNoticeBus()
	defer notices.Close()
	chatbotAPI, clientErr := apiclient.New(apiclient.Config{
		BaseURL: cliConfig.ChatbotAPIURL,
		Timeout: cliConfig.UpstreamTimeout,
		Logger:  logger,
		Notices: notices,
	})
	if clientErr != nil {
		return clientErr
	}

	session, sessionErr := widget.NewSession(ctx, widget.SessionConfig{
		ChatbotID:  cliConfig.ChatbotID,
		Store:      profileStore,
		API:        chatbotAPI,
		Logger:     logger,
		ReplyDelay: cliConfig.ReplyDelay,
	})
	if sessionErr != nil {
		return sessionErr
	}
	defer session.Close()

	terminal := newConsole(session, notices, command.OutOrStdout(), cliConfig.UpstreamTimeout+cliConfig.ReplyDelay)
	return terminal.Run(ctx, command.InOrStdin())
}

func newWarnLogger() (*zap.Logger, error) {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	loggerConfig.OutputPaths = []string{"stderr"}
	return loggerConfig.Build()
}

func defaultProfileDirectory() string {
	homeDirectory, homeErr := os.UserHomeDir()
	if homeErr != nil {
		return defaultProfileDirName
	}
	return filepath.Join(homeDirectory, defaultProfileDirName)
}

func main() {
	_ = godotenv.Load(environmentFileName)

	application := NewCLIApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
