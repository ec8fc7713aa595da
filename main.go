package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scoutlabs/scout/assemblyai"
	"github.com/scoutlabs/scout/chat"
	"github.com/scoutlabs/scout/llm"
	"github.com/scoutlabs/scout/stt"
	"github.com/scoutlabs/scout/tui"
	"github.com/scoutlabs/scout/web"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().
		String("assemblyai-api-key", "", "AssemblyAI API key")
	rootCmd.PersistentFlags().
		String("openrouter-api-key", "", "OpenRouter API key")
	rootCmd.PersistentFlags().
		String("openrouter-model", llm.DefaultModel, "OpenRouter model")
	rootCmd.PersistentFlags().Int("http-port", 8080, "HTTP server port")
	rootCmd.PersistentFlags().
		Int("stt-max-sessions", 32, "Maximum concurrent relay sessions")
	rootCmd.PersistentFlags().
		Duration("stt-idle-timeout", 5*time.Minute, "Idle relay session timeout")

	viper.BindPFlag(
		"assemblyai_api_key",
		rootCmd.PersistentFlags().Lookup("assemblyai-api-key"),
	)
	viper.BindPFlag(
		"openrouter_api_key",
		rootCmd.PersistentFlags().Lookup("openrouter-api-key"),
	)
	viper.BindPFlag(
		"openrouter_model",
		rootCmd.PersistentFlags().Lookup("openrouter-model"),
	)
	viper.BindPFlag("http_port", rootCmd.PersistentFlags().Lookup("http-port"))
	viper.BindPFlag(
		"stt_max_sessions",
		rootCmd.PersistentFlags().Lookup("stt-max-sessions"),
	)
	viper.BindPFlag(
		"stt_idle_timeout",
		rootCmd.PersistentFlags().Lookup("stt-idle-timeout"),
	)

	talkCmd.Flags().
		String("server", "http://localhost:8080", "Scout server base URL")
	talkCmd.Flags().
		StringSlice("record-cmd", nil, "External recorder command producing raw PCM16LE 16kHz mono on stdout")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(talkCmd)
}

func initConfig() {
	if err := godotenv.Load(); err == nil {
		fmt.Println("Loaded .env")
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	logger = log.New(os.Stderr)
}

var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "Scout is a conversational job-matching assistant",
	Long: `Scout is a conversational job-matching assistant with a chat
endpoint backed by OpenRouter and live voice input relayed to AssemblyAI's
realtime transcription API.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Scout HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		if err := serve(); err != nil {
			logger.Fatal("server failed", "error", err)
		}
	},
}

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Open the terminal composer against a running Scout server",
	Run: func(cmd *cobra.Command, args []string) {
		server, _ := cmd.Flags().GetString("server")
		recordCmd, _ := cmd.Flags().GetStringSlice("record-cmd")
		if err := tui.Run(server, recordCmd, logger); err != nil {
			logger.Fatal("talk failed", "error", err)
		}
	},
}

func serve() error {
	assemblyKey := viper.GetString("assemblyai_api_key")
	if assemblyKey == "" {
		logger.Warn("assemblyai_api_key not set, voice input disabled")
	}

	openrouterKey := viper.GetString("openrouter_api_key")
	if openrouterKey == "" {
		logger.Warn("openrouter_api_key not set, chat runs in demo mode")
	}

	registry := stt.NewRegistry(viper.GetInt("stt_max_sessions"))
	manager := stt.NewManager(
		assemblyai.NewRealtimeTranscriber(assemblyKey, logger),
		registry,
		viper.GetDuration("stt_idle_timeout"),
		logger,
	)

	assistant := chat.NewAssistant(
		llm.NewOpenRouterModel(
			openrouterKey,
			viper.GetString("openrouter_model"),
		),
		logger,
	)

	server := web.NewServer(
		manager,
		assemblyai.NewClient(assemblyKey),
		assistant,
		assemblyKey != "",
		logger,
	)

	port := viper.GetInt("http_port")
	logger.Info("http", "url", fmt.Sprintf("http://localhost:%d", port))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), server.Routes())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
