package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/stoik/mailbridge/internal/logging"
)

var (
	levelMu  sync.Mutex
	levelVar *slog.LevelVar
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("connector.api_url", "http://localhost:8080")
	v.SetDefault("connector.timeout", 30*time.Second)
	v.SetDefault("webhook.base_url", "http://localhost:8000")
	v.SetDefault("webhook.max_skew", 5*time.Minute)
	v.SetDefault("sync.max_results", 50)
	v.SetDefault("api.page_size", 20)
	v.SetDefault("default_user_id", "default-user")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func initConfig() {
	setDefaults(viper.GetViper())

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./services/mail-service")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		viper.OnConfigChange(onConfigChange)
		viper.WatchConfig()
	}
}

// onConfigChange applies settings that can change without a restart. Only
// the log level is live; everything else is read once at startup.
func onConfigChange(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	levelMu.Lock()
	defer levelMu.Unlock()
	if levelVar == nil {
		return
	}
	level := logging.ParseLevel(viper.GetString("log.level"))
	if levelVar.Level() != level {
		levelVar.Set(level)
		slog.Info("log level changed", slog.String("level", level.String()), slog.String("file", e.Name))
	}
}

// newLogger builds the process logger from config and installs it as the
// slog default.
func newLogger() *slog.Logger {
	logger, lv := logging.New(viper.GetString("log.level"), viper.GetString("log.format"), os.Stderr)
	levelMu.Lock()
	levelVar = lv
	levelMu.Unlock()
	slog.SetDefault(logger)
	return logger
}
