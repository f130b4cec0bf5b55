package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string `yaml:"env" env:"WIDGET_ENV" env-default:"local"`
	Telegram struct {
		ApiKey  string `yaml:"api_key" env:"WIDGET_TELEGRAM_KEY" env-default:""`
		AdminId int64  `yaml:"admin_id" env-default:"0"`
		BotName string `yaml:"bot_name" env-default:"WidgetCSBot"`
		Enabled bool   `yaml:"enabled" env-default:"false"`
	} `yaml:"telegram"`
	OpenAI struct {
		ApiKey      string  `yaml:"api_key" env:"WIDGET_OPENAI_KEY" env-default:""`
		Model       string  `yaml:"model" env-default:"gpt-4o-mini"`
		Prompt      string  `yaml:"prompt" env-default:""`
		Temperature float32 `yaml:"temperature" env-default:"0.3"`
	} `yaml:"openai"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		Host     string `yaml:"host" env:"WIDGET_MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:"admin"`
		Password string `yaml:"password" env:"WIDGET_MONGO_PASSWORD" env-default:"pass"`
		Database string `yaml:"database" env-default:"widget"`
	} `yaml:"mongo"`
	Listen struct {
		BindIP string `yaml:"bind_ip" env-default:"127.0.0.1"`
		Port   string `yaml:"port" env:"WIDGET_PORT" env-default:"9100"`
	} `yaml:"listen"`
	Guided struct {
		// BotResponseDelay is in milliseconds.
		BotResponseDelay         int    `yaml:"bot_response_delay" env-default:"700"`
		DropStaleResponses       bool   `yaml:"drop_stale_responses" env-default:"true"`
		ReleaseUnansweredOptions bool   `yaml:"release_unanswered_options" env-default:"false"`
		Greeting                 string `yaml:"greeting" env-default:"Hi! How can we help you today?"`
		SessionTTLMinutes        int    `yaml:"session_ttl_minutes" env-default:"60"`
	} `yaml:"guided"`
	HumanChat struct {
		RetentionDays int `yaml:"retention_days" env-default:"30"`
		HistoryLimit  int `yaml:"history_limit" env-default:"200"`
	} `yaml:"human_chat"`
	Cleanup struct {
		Schedule string `yaml:"schedule" env-default:"*/10 * * * *"`
	} `yaml:"cleanup"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		// optional, values from the environment still win over the yaml file
		_ = godotenv.Load()

		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("%s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}
