package config

import (
	"fmt"
	"os"
	"path/filepath"

	"kis-trader/internal/types"

	"gopkg.in/yaml.v3"
)

const (
	defaultLiveBaseURL  = "https://openapi.koreainvestment.com:9443"
	defaultLiveWSURL    = "ws://ops.koreainvestment.com:21000"
	defaultPaperBaseURL = "https://openapivts.koreainvestment.com:29443"
	defaultPaperWSURL   = "ws://ops.koreainvestment.com:31000"
)

type Credentials struct {
	AppKey    string `yaml:"app_key"`
	AppSecret string `yaml:"app_secret"`
}

type Endpoints struct {
	BaseURL string `yaml:"base_url"`
	WSURL   string `yaml:"ws_url"`
}

type ModeConfig struct {
	Credentials `yaml:",inline"`
	Endpoints   `yaml:",inline"`
}

type Config struct {
	Mode        string  `yaml:"mode"` // paper | live
	AutoTrade   bool    `yaml:"auto_trade"`
	OrderBudget float64 `yaml:"order_budget"`
	TokenDir    string  `yaml:"token_dir"`

	Account struct {
		Number      string `yaml:"number"`
		ProductCode string `yaml:"product_code"`
	} `yaml:"account"`

	Paper ModeConfig `yaml:"paper"`
	Live  ModeConfig `yaml:"live"`

	Overseas struct {
		Exchange string `yaml:"exchange"` // NAS, NYS, AMS
		Currency string `yaml:"currency"`
	} `yaml:"overseas"`

	Stream struct {
		MaxReconnects  int `yaml:"max_reconnects"`
		ReconnectDelay int `yaml:"reconnect_delay_seconds"`
	} `yaml:"stream"`
}

func (c *Config) Validate() error {
	if c.Mode != string(types.ModePaper) && c.Mode != string(types.ModeLive) {
		return fmt.Errorf("invalid mode '%s': must be 'paper' or 'live'", c.Mode)
	}
	if c.Account.Number == "" {
		return fmt.Errorf("account.number cannot be empty")
	}
	if c.OrderBudget <= 0 {
		return fmt.Errorf("order_budget must be positive, got %.0f", c.OrderBudget)
	}
	key, secret := c.ActiveCredentials()
	if key == "" || secret == "" {
		return fmt.Errorf("missing app key/secret for mode '%s'", c.Mode)
	}
	return nil
}

// TradingMode returns the configured mode as a typed value.
func (c *Config) TradingMode() types.Mode {
	return types.Mode(c.Mode)
}

// ActiveCredentials returns the app key/secret pair for the configured mode.
func (c *Config) ActiveCredentials() (appKey, appSecret string) {
	if c.TradingMode() == types.ModeLive {
		return c.Live.AppKey, c.Live.AppSecret
	}
	return c.Paper.AppKey, c.Paper.AppSecret
}

// ActiveEndpoints returns the REST and WebSocket base URLs for the configured mode.
func (c *Config) ActiveEndpoints() (baseURL, wsURL string) {
	if c.TradingMode() == types.ModeLive {
		return c.Live.BaseURL, c.Live.WSURL
	}
	return c.Paper.BaseURL, c.Paper.WSURL
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Mode == "" {
		c.Mode = string(types.ModePaper)
	}
	if c.OrderBudget == 0 {
		c.OrderBudget = 100_000
	}
	if c.TokenDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.TokenDir = filepath.Join(home, ".kis-trader")
	}
	if c.Account.ProductCode == "" {
		c.Account.ProductCode = "01"
	}
	if c.Live.BaseURL == "" {
		c.Live.BaseURL = defaultLiveBaseURL
	}
	if c.Live.WSURL == "" {
		c.Live.WSURL = defaultLiveWSURL
	}
	if c.Paper.BaseURL == "" {
		c.Paper.BaseURL = defaultPaperBaseURL
	}
	if c.Paper.WSURL == "" {
		c.Paper.WSURL = defaultPaperWSURL
	}
	if c.Overseas.Exchange == "" {
		c.Overseas.Exchange = "NAS"
	}
	if c.Overseas.Currency == "" {
		c.Overseas.Currency = "USD"
	}
	if c.Stream.MaxReconnects == 0 {
		c.Stream.MaxReconnects = 5
	}
	if c.Stream.ReconnectDelay == 0 {
		c.Stream.ReconnectDelay = 5
	}

	// Keys may come from the environment instead of the YAML file.
	if c.Live.AppKey == "" {
		c.Live.AppKey = os.Getenv("KIS_APP_KEY")
	}
	if c.Live.AppSecret == "" {
		c.Live.AppSecret = os.Getenv("KIS_APP_SECRET")
	}
	if c.Paper.AppKey == "" {
		c.Paper.AppKey = os.Getenv("KIS_PAPER_APP_KEY")
	}
	if c.Paper.AppSecret == "" {
		c.Paper.AppSecret = os.Getenv("KIS_PAPER_APP_SECRET")
	}
}
