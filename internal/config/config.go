package config

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
	"moff.io/wallet-pairing/internal/session"
	"moff.io/wallet-pairing/pkg/errors"
)

const DefaultPath = "config.yml"

// Configuration struct
type Configuration struct {
	WalletConnect WalletConnect `yaml:"wallet_connect"`
	HTTP          HTTP          `yaml:"http"`
	Redis         Redis         `yaml:"redis"`
	Postgres      DBCredential  `yaml:"postgres"`
	KafkaServer   string        `yaml:"kafka-server"`
	KafkaTopic    string        `yaml:"kafka-topic"`
	Aws           Aws           `yaml:"aws"`
	Report        Report        `yaml:"report"`
	LogLevel      string        `yaml:"log_level"`
	CacheDir      string        `yaml:"cache_dir"`
	QRFile        string        `yaml:"qr_file"`
}

type WalletConnect struct {
	ProjectID         string   `yaml:"project_id"`
	ProjectIDSSMParam string   `yaml:"project_id_ssm_param"`
	Namespace         string   `yaml:"namespace"`
	ChainID           string   `yaml:"chain_id"`
	WalletID          string   `yaml:"wallet_id"`
	ExcludedWalletIDs []string `yaml:"excluded_wallet_ids"`
	BridgeURL         string   `yaml:"bridge_url"`
	TestAccount       string   `yaml:"test_account"`
	KeepClientOnReset bool     `yaml:"keep_client_on_reset"`
}

type HTTP struct {
	Addr               string `yaml:"addr"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

type Redis struct {
	Address  string `yaml:"address"`
	Database int    `yaml:"database"`
}

// DBCredential struct
type DBCredential struct {
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
}

func (c *DBCredential) Dsn() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s",
		c.Address, c.Port, c.User, c.Password, c.Database)
}

func (c *DBCredential) Enabled() bool {
	return c.Address != ""
}

type Aws struct {
	Region               string `yaml:"region"`
	Bucket               string `yaml:"bucket"`
	QRKey                string `yaml:"qr_key"`
	NotificationQueueURL string `yaml:"notification_queue_url"`
}

// Enabled reports whether any aws backed feature is configured.
func (a Aws) Enabled() bool {
	return a.Region != "" && (a.Bucket != "" || a.NotificationQueueURL != "")
}

type Report struct {
	SentryDSN       string `yaml:"sentry_dsn"`
	LarkWebhook     string `yaml:"lark_webhook"`
	DingTalkWebhook string `yaml:"dingtalk_webhook"`
	DingTalkSecret  string `yaml:"dingtalk_secret"`
}

var Global *Configuration

// Read loads the configuration into Global.
func Read(path string, envFiles ...string) (*Configuration, error) {
	c, err := Load(path, envFiles...)
	if err != nil {
		return nil, err
	}
	Global = c
	return c, nil
}

// Load reads the yaml file at path and the .env files, then applies
// environment overrides. Missing files are skipped, missing values stay empty.
func Load(path string, envFiles ...string) (*Configuration, error) {
	c := &Configuration{}
	if path != "" {
		logrus.Infof("Loading configuration file from %s", path)
		dat, err := ioutil.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			logrus.Warnf("configuration file %s does not exist, using environment only", path)
		case err != nil:
			return nil, errors.Wrapf(err, "read config %v", path)
		default:
			if err := yaml.Unmarshal(dat, c); err != nil {
				return nil, errors.Wrapf(err, "decode config %v", path)
			}
		}
	}
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	c.applyEnv(os.LookupEnv)
	c.normalize()
	return c, nil
}

func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return errors.Wrap(godotenv.Load(existing...), "load env files")
}

type lookupFunc func(key string) (string, bool)

func (c *Configuration) applyEnv(lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("WC_PROJECT_ID", &c.WalletConnect.ProjectID)
	str("WC_PROJECT_ID_SSM_PARAM", &c.WalletConnect.ProjectIDSSMParam)
	str("WC_NAMESPACE", &c.WalletConnect.Namespace)
	str("WC_CHAIN_ID", &c.WalletConnect.ChainID)
	str("WC_WALLET_ID", &c.WalletConnect.WalletID)
	str("WC_BRIDGE_URL", &c.WalletConnect.BridgeURL)
	str("WC_TEST_ACCOUNT", &c.WalletConnect.TestAccount)
	str("WC_LOG_LEVEL", &c.LogLevel)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("REDIS_ADDR", &c.Redis.Address)
	str("POSTGRES_ADDRESS", &c.Postgres.Address)
	str("POSTGRES_PASSWORD", &c.Postgres.Password)
	str("KAFKA_SERVER", &c.KafkaServer)
	str("SENTRY_DSN", &c.Report.SentryDSN)
	str("LARK_WEBHOOK", &c.Report.LarkWebhook)
	str("AWS_REGION", &c.Aws.Region)
	if v, ok := lookup("WC_EXCLUDED_WALLET_IDS"); ok {
		c.WalletConnect.ExcludedWalletIDs = splitList(v)
	}
	if v, ok := lookup("WC_KEEP_CLIENT_ON_RESET"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.WalletConnect.KeepClientOnReset = b
		}
	}
}

func (c *Configuration) normalize() {
	if c.WalletConnect.Namespace == "" {
		c.WalletConnect.Namespace = session.DefaultNamespace
	}
	c.WalletConnect.ChainID = session.JoinChainID(c.WalletConnect.Namespace, c.WalletConnect.ChainID)
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Postgres.Enabled() && c.Postgres.Port == "" {
		c.Postgres.Port = "5432"
	}
	if c.CacheDir == "" {
		c.CacheDir = os.TempDir()
	}
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

// ParameterStore resolves secret parameters by name.
type ParameterStore interface {
	GetParameterValue(ctx context.Context, name string) (string, error)
}

// ResolveProjectID fills the project id from the parameter store when only
// the parameter name is configured.
func (c *Configuration) ResolveProjectID(ctx context.Context, store ParameterStore) error {
	wc := &c.WalletConnect
	if wc.ProjectID != "" || wc.ProjectIDSSMParam == "" {
		return nil
	}
	if store == nil {
		return errors.Errorf("project id parameter %v set without a parameter store", wc.ProjectIDSSMParam)
	}
	v, err := store.GetParameterValue(ctx, wc.ProjectIDSSMParam)
	if err != nil {
		return err
	}
	wc.ProjectID = v
	return nil
}
