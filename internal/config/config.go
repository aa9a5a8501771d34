package config

import (
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App struct {
		Env       string `env:"APP_ENV" env-default:"development"`
		Port      int    `env:"APP_PORT" env-default:"8080"`
		SentryDSN string `env:"SENTRY_DSN"`
	}
	API struct {
		BaseURL string        `env:"API_BASE_URL" env-default:"http://localhost:1001"`
		Timeout time.Duration `env:"API_TIMEOUT" env-default:"15s"`
	}
	Auth struct {
		// RefreshStyle selects the refresh request shape: "body" sends
		// {"refreshToken": ...}, "cookie" sends an empty body and relies
		// on the backend reading the refresh identity from a cookie.
		RefreshStyle    string        `env:"AUTH_REFRESH_STYLE" env-default:"body"`
		CheckInterval   time.Duration `env:"AUTH_CHECK_INTERVAL" env-default:"5m"`
		CredentialsPath string        `env:"AUTH_CREDENTIALS_PATH" env-default:"./credentials.bin"`
		// 32-byte hex key sealing the credential file at rest.
		CredentialsKey string `env:"AUTH_CREDENTIALS_KEY"`
	}
	Audio struct {
		CachePath       string        `env:"AUDIO_CACHE_PATH" env-default:"./story_audio.mp3"`
		DownloadTimeout time.Duration `env:"AUDIO_DOWNLOAD_TIMEOUT" env-default:"30s"`
		DownloadRetries uint64        `env:"AUDIO_DOWNLOAD_RETRIES" env-default:"2"`
	}
	Engine struct {
		// Fallback message shown when the server error text is not in
		// the user-facing language.
		DefaultErrorMessage string `env:"ENGINE_DEFAULT_ERROR_MESSAGE" env-default:"Ошибка загрузки сказки. Попробуйте позже."`
		// Per-user throttle on the "new story" button.
		TapInterval time.Duration `env:"ENGINE_TAP_INTERVAL" env-default:"2s"`
		TapBurst    int           `env:"ENGINE_TAP_BURST" env-default:"3"`
	}
}

var (
	once sync.Once
	cfg  *Config
)

func New() (*Config, error) {
	once.Do(func() {
		cfg = &Config{}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			help, _ := cleanenv.GetDescription(cfg, nil)
			log.Fatalf("Failed to read configuration: %v\n%v", err, help)
		}
	})
	return cfg, nil
}
