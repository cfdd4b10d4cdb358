package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	AWS         AWSConfig
	Health      HealthConfig
	Workflow    WorkflowConfig
	Activator   ActivatorConfig
	DNS         DNSConfig
	Notify      NotifyConfig
	SLA         SLAConfig
	RemoteWrite RemoteWriteConfig
	Regions     map[string]RegionConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
}

type RedisConfig struct {
	URL string
}

type AWSConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type HealthConfig struct {
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	FailureThreshold int
	SuccessThreshold int
	WindowSize       int
}

type WorkflowConfig struct {
	Target       string
	Timeout      time.Duration
	SettleDelay  time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	TriggerRate  float64
	TriggerBurst int
}

type ActivatorConfig struct {
	GroupID        string
	TargetCapacity int
	MinCapacity    int
	ReplicaID      string
	TargetGroupARN string
	PollInterval   time.Duration
	MaxPolls       int
}

type DNSConfig struct {
	RecordName       string
	HostedZoneID     string
	Resolver         string
	CheckInterval    time.Duration
	FailureThreshold int
	WatchInterval    time.Duration
}

type NotifyConfig struct {
	TopicARN string
	Channel  string
}

type SLAConfig struct {
	RTO time.Duration
}

type RemoteWriteConfig struct {
	URL           string
	TenantHeader  string
	Tenant        string
	BatchSize     int
	FlushInterval time.Duration
	AuthToken     string
}

type RegionConfig struct {
	ComputeEndpoint string
	DatabaseHandle  string
	Role            string
}

func Load() (*Config, error) {
	// .env is optional, mostly for local runs
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("DRPILOT")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("database.maxconnections", 25)
	viper.SetDefault("database.maxidleconns", 5)
	viper.SetDefault("health.probeinterval", "30s")
	viper.SetDefault("health.probetimeout", "10s")
	viper.SetDefault("health.failurethreshold", 3)
	viper.SetDefault("health.successthreshold", 2)
	viper.SetDefault("health.windowsize", 50)
	viper.SetDefault("workflow.target", "app")
	viper.SetDefault("workflow.timeout", "30m")
	viper.SetDefault("workflow.settledelay", "2m")
	viper.SetDefault("workflow.maxattempts", 3)
	viper.SetDefault("workflow.backoffbase", "5s")
	viper.SetDefault("workflow.backoffmax", "2m")
	viper.SetDefault("workflow.triggerrate", 1)
	viper.SetDefault("workflow.triggerburst", 3)
	viper.SetDefault("activator.targetcapacity", 2)
	viper.SetDefault("activator.mincapacity", 2)
	viper.SetDefault("activator.pollinterval", "30s")
	viper.SetDefault("activator.maxpolls", 20)
	viper.SetDefault("dns.checkinterval", "30s")
	viper.SetDefault("dns.failurethreshold", 3)
	viper.SetDefault("dns.watchinterval", "15s")
	viper.SetDefault("dns.resolver", "")
	viper.SetDefault("notify.channel", "dr-events")
	viper.SetDefault("sla.rto", "30m")
	viper.SetDefault("remotewrite.tenantheader", "X-Scope-OrgID")
	viper.SetDefault("remotewrite.batchsize", 1000)
	viper.SetDefault("remotewrite.flushinterval", "10s")

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if url := os.Getenv("REMOTE_WRITE_URL"); url != "" {
		cfg.RemoteWrite.URL = url
	}
	if token := os.Getenv("REMOTE_WRITE_AUTH_TOKEN"); token != "" {
		cfg.RemoteWrite.AuthToken = token
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWS.Region = region
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Health.FailureThreshold < 1 || c.Health.SuccessThreshold < 1 {
		return fmt.Errorf("health thresholds must be >= 1")
	}
	if c.Workflow.Timeout <= 0 {
		return fmt.Errorf("workflow timeout must be positive")
	}
	if c.Activator.TargetCapacity < 1 {
		return fmt.Errorf("activator target capacity must be >= 1")
	}
	return nil
}
