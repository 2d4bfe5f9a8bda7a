package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	ShipTrack ShipTrackConfig `yaml:"shiptrack"`
}

type DatabaseConfig struct {
	// URL имеет приоритет над отдельными полями.
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                    string   `yaml:"host"`
	Port                    int      `yaml:"port"`
	Brokers                 []string `yaml:"brokers"`
	ShipmentEventsTopicName string   `yaml:"shipment_events_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Addr string `yaml:"addr"`
}

type ShipTrackConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	NotifierHTTPAddr   string `yaml:"notifier_http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	// IANA-имя, например "America/Sao_Paulo". Пустое значение означает UTC.
	Timezone string `yaml:"timezone"`

	// TrustProxy включает разбор X-Forwarded-For / X-Real-IP. Только за своим прокси:
	// иначе клиент сам выбирает себе IP для лимита на коды.
	TrustProxy bool `yaml:"trust_proxy"`

	CORSOrigins []string `yaml:"cors_origins"`
	CORSDebug   bool     `yaml:"cors_debug"`

	CodesRateLimitPerMinute int `yaml:"codes_rate_limit_per_minute"`
	RecentShipmentsLimit    int `yaml:"recent_shipments_limit"`
}

// LoadConfig читает YAML. Пустое имя файла даёт пустой конфиг,
// всё остальное придёт из окружения.
func LoadConfig(filename string) (*Config, error) {
	var config Config
	if filename == "" {
		return &config, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

// Load: .env, .env.local, YAML, переменные окружения, затем дефолты.
func Load(filename string) (*Config, error) {
	LoadDotEnv(".env", ".env.local")

	cfg, err := LoadConfig(filename)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.ApplyDefaults()
	return cfg, nil
}

// LoadDotEnv загружает файлы по порядку, каждый следующий перекрывает предыдущий.
// Переменные, заданные в окружении до запуска, первый файл не трогает.
// Отсутствующие файлы пропускаются.
func LoadDotEnv(files ...string) {
	for i, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if i == 0 {
			_ = godotenv.Load(f)
			continue
		}
		_ = godotenv.Overload(f)
	}
}

func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := getenv("PGSSL"); v != "" {
		if strings.EqualFold(v, "false") {
			c.Database.SSLMode = "disable"
		} else {
			c.Database.SSLMode = "require"
		}
	}
	if v := getenv("PORT"); v != "" {
		c.ShipTrack.HTTPAddr = ":" + v
	}
	if v := getenv("CORS_ORIGIN"); v != "" {
		c.ShipTrack.CORSOrigins = splitList(v)
	}
	if getenv("CORS_DEBUG") == "1" {
		c.ShipTrack.CORSDebug = true
	}
	if v := getenv("TRUST_PROXY"); v != "" {
		c.ShipTrack.TrustProxy = v == "1" || strings.EqualFold(v, "true")
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("TIMEZONE"); v != "" {
		c.ShipTrack.Timezone = v
	}
	if v := getenv("CODES_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ShipTrack.CodesRateLimitPerMinute = n
		}
	}
}

func (c *Config) ApplyDefaults() {
	if c.ShipTrack.HTTPAddr == "" {
		c.ShipTrack.HTTPAddr = ":8080"
	}
	if c.ShipTrack.NotifierHTTPAddr == "" {
		c.ShipTrack.NotifierHTTPAddr = ":8082"
	}
	if c.ShipTrack.KafkaConsumerGroup == "" {
		c.ShipTrack.KafkaConsumerGroup = "ship-notifier"
	}
	if c.Kafka.ShipmentEventsTopicName == "" {
		c.Kafka.ShipmentEventsTopicName = "shipment.events"
	}
	// отрицательное значение выключает лимит
	if c.ShipTrack.CodesRateLimitPerMinute == 0 {
		c.ShipTrack.CodesRateLimitPerMinute = 30
	}
	if c.ShipTrack.RecentShipmentsLimit <= 0 {
		c.ShipTrack.RecentShipmentsLimit = 10
	}
	if len(c.ShipTrack.CORSOrigins) == 0 {
		c.ShipTrack.CORSOrigins = []string{"*"}
	}
}

// PostgresConnString возвращает false, если БД не настроена:
// тогда API работает в деградированном режиме.
func (c *Config) PostgresConnString() (string, bool) {
	db := c.Database
	if db.URL != "" {
		if db.SSLMode == "" {
			return db.URL, true
		}
		u, err := url.Parse(db.URL)
		if err != nil {
			return db.URL, true
		}
		q := u.Query()
		if q.Get("sslmode") == "" {
			q.Set("sslmode", db.SSLMode)
			u.RawQuery = q.Encode()
		}
		return u.String(), true
	}
	if db.Host == "" {
		return "", false
	}

	sslMode := db.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := db.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.Username, db.Password),
		Host:     fmt.Sprintf("%s:%d", db.Host, port),
		Path:     "/" + db.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String(), true
}

// KafkaBrokers возвращает nil, если Kafka не настроена.
func (c *Config) KafkaBrokers() []string {
	if len(c.Kafka.Brokers) > 0 {
		return c.Kafka.Brokers
	}
	if c.Kafka.Host == "" {
		return nil
	}
	port := c.Kafka.Port
	if port == 0 {
		port = 9092
	}
	return []string{fmt.Sprintf("%s:%d", c.Kafka.Host, port)}
}

// RedisAddr возвращает пустую строку, если Redis не настроен.
func (c *Config) RedisAddr() string {
	if c.Redis.Addr != "" {
		return c.Redis.Addr
	}
	if c.Redis.Host == "" {
		return ""
	}
	port := c.Redis.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, port)
}

func (c *Config) Location() (*time.Location, error) {
	if c.ShipTrack.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ShipTrack.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.ShipTrack.Timezone, err)
	}
	return loc, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
