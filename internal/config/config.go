// Package config предоставляет структуры и функции для загрузки конфигурации биллинга.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Окружения, влияющие на формат логов и на открытость служебных эндпоинтов.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING" env-required:"true"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	RabbitMQ                RabbitMQ     `yaml:"rabbitmq"`
	Provider                Provider     `yaml:"provider"`
	Affiliate               Affiliate    `yaml:"affiliate"`
	Subscription            Subscription `yaml:"subscription"`
	Security                Security     `yaml:"security"`
	Sweep                   Sweep        `yaml:"sweep"`
	Workers                 Workers      `yaml:"workers"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:"0.0.0.0:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес отключает кеш и распределённые блокировки.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// RabbitMQ настройки брокера. Пустой URL означает, что задачи по комиссиям
// выполняются внутри процесса.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	MaxRetries int           `yaml:"max_retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
	Exchange   string        `yaml:"exchange" env-default:"billing"`
	Queue      string        `yaml:"queue" env-default:"billing.commissions"`
	RoutingKey string        `yaml:"routing_key" env-default:"commission.notify"`
	Prefetch   int           `yaml:"prefetch" env-default:"10"`
}

// Provider настройки платёжного провайдера.
type Provider struct {
	BaseURL         string        `yaml:"base_url" env:"PROVIDER_BASE_URL" env-default:"https://api.paystack.co"`
	SecretKey       string        `yaml:"secret_key" env:"PROVIDER_SECRET_KEY"`
	WebhookSecret   string        `yaml:"webhook_secret" env:"PROVIDER_WEBHOOK_SECRET"`
	SignatureHeader string        `yaml:"signature_header" env-default:"x-provider-signature"`
	Live            bool          `yaml:"live" env:"PROVIDER_LIVE"`
	Timeout         time.Duration `yaml:"timeout" env-default:"10s"`
	VerifyCacheTTL  time.Duration `yaml:"verify_cache_ttl" env-default:"10m"`
}

// SigningSecret возвращает секрет для проверки подписи вебхука.
// Провайдер подписывает тела секретным ключом, если отдельный секрет не задан.
func (p Provider) SigningSecret() string {
	if p.WebhookSecret != "" {
		return p.WebhookSecret
	}
	return p.SecretKey
}

// Affiliate настройки внешнего партнёрского сервиса.
type Affiliate struct {
	CommissionURL  string        `yaml:"commission_url" env:"AFFILIATE_API_URL"`
	TransferURL    string        `yaml:"transfer_url" env:"AFFILIATE_TRANSFER_URL"`
	Secret         string        `yaml:"secret" env:"AFFILIATE_API_SECRET"`
	Timeout        time.Duration `yaml:"timeout" env-default:"10s"`
	PayloadVersion string        `yaml:"payload_version" env:"AFFILIATE_PAYLOAD_VERSION" env-default:"plan"`
	MaxAttempts    int           `yaml:"max_attempts" env-default:"3"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env-default:"1s"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env-default:"10s"`
}

// Configured сообщает, заданы ли адрес и секрет для уведомлений о комиссиях.
func (a Affiliate) Configured() bool {
	return a.CommissionURL != "" && a.Secret != ""
}

// Plan описывает тариф: цену в минимальных единицах валюты, лимит активных
// подписчиков (0 без лимита) и сумму комиссии партнёру.
type Plan struct {
	Name             string `yaml:"name"`
	Amount           int64  `yaml:"amount"`
	MaxActive        int    `yaml:"max_active"`
	CommissionAmount int64  `yaml:"commission_amount"`
}

// Subscription настройки подписок.
type Subscription struct {
	Period       time.Duration `yaml:"period" env-default:"720h"`
	DashboardURL string        `yaml:"dashboard_url" env:"DASHBOARD_URL" env-default:"http://localhost:3000/dashboard"`
	CallbackURL  string        `yaml:"callback_url" env:"PROVIDER_CALLBACK_URL"`
	Currency     string        `yaml:"currency" env-default:"KES"`
	Plans        []Plan        `yaml:"plans"`
}

// FindPlan ищет тариф по имени.
func (s Subscription) FindPlan(name string) (Plan, bool) {
	for _, p := range s.Plans {
		if p.Name == name {
			return p, true
		}
	}
	return Plan{}, false
}

// Security секреты для служебных эндпоинтов и лимиты запросов.
type Security struct {
	CronSecret    string  `yaml:"cron_secret" env:"CRON_SECRET"`
	AdminSecret   string  `yaml:"admin_secret" env:"ADMIN_SECRET"`
	ServiceSecret string  `yaml:"service_secret" env:"SERVICE_SECRET"`
	RateLimit     float64 `yaml:"rate_limit" env-default:"5"`
	RateBurst     int     `yaml:"rate_burst" env-default:"10"`
}

// Sweep настройки повторной отправки неудачных уведомлений.
type Sweep struct {
	Interval          time.Duration `yaml:"interval" env-default:"15m"`
	ExpiryInterval    time.Duration `yaml:"expiry_interval" env-default:"1h"`
	Limit             int           `yaml:"limit" env-default:"10"`
	LockTTL           time.Duration `yaml:"lock_ttl" env-default:"5m"`
	StalePendingAfter time.Duration `yaml:"stale_pending_after" env-default:"10m"`
}

// Workers настройки пула фоновых задач.
type Workers struct {
	Size        int           `yaml:"size" env-default:"4"`
	QueueSize   int           `yaml:"queue_size" env-default:"256"`
	TaskTimeout time.Duration `yaml:"task_timeout" env-default:"1m"`
}

// DefaultPlans тарифы, используемые если в конфиге список пуст.
func DefaultPlans() []Plan {
	return []Plan{
		{Name: "Individual", Amount: 49900},
		{Name: "Professional", Amount: 99900},
	}
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load читает YAML-файл, подмешивает переменные окружения (включая
// необязательный .env) и заполняет значения по умолчанию.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(cfg.Subscription.Plans) == 0 {
		cfg.Subscription.Plans = DefaultPlans()
	}
	return &cfg, nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"RabbitMQ enabled: %t\n"+
			"Provider:\n"+
			"  BaseURL: %s\n"+
			"  Live: %t\n"+
			"Affiliate:\n"+
			"  CommissionURL: %s\n"+
			"  TransferURL: %s\n"+
			"  PayloadVersion: %s\n",
		c.Env,
		c.AddressRedis,
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.RabbitMQ.URL != "",
		c.Provider.BaseURL,
		c.Provider.Live,
		c.Affiliate.CommissionURL,
		c.Affiliate.TransferURL,
		c.Affiliate.PayloadVersion,
	)
}
