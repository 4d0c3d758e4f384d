// Package config loads the daemon's TOML configuration: node-level settings
// plus the commerce wiring (treasury, settlement asset, accepted payment
// tokens) and the product rows seeded into the factory at startup.
package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type Config struct {
	ListenAddress   string `toml:"ListenAddress"`
	DataDir         string `toml:"DataDir"`
	Ephemeral       bool   `toml:"Ephemeral"`
	Environment     string `toml:"Environment"`
	Operator        string `toml:"Operator"`
	Treasury        string `toml:"Treasury"`
	SettlementAsset string `toml:"SettlementAsset"`
	WrappedNative   string `toml:"WrappedNative"`

	PaymentTokens []PaymentToken `toml:"PaymentTokens"`
	Products      []ProductSeed  `toml:"Products"`
}

// PaymentToken configures one accepted payment asset.
type PaymentToken struct {
	Asset      string `toml:"Asset"`
	Venue      string `toml:"Venue"`
	PoolFee    uint32 `toml:"PoolFee"`
	SecondsAgo uint32 `toml:"SecondsAgo"`
}

// ProductSeed is a factory product row created at startup. Prices are decimal
// strings in settlement-asset units; percents are decimal strings in the 1e27
// fixed-point base.
type ProductSeed struct {
	Alias           string `toml:"Alias"`
	Implementation  string `toml:"Implementation"`
	CurrentPrice    string `toml:"CurrentPrice"`
	MinPrice        string `toml:"MinPrice"`
	DecreasePercent string `toml:"DecreasePercent"`
	CashbackPercent string `toml:"CashbackPercent"`
	Active          bool   `toml:"Active"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./productchain-data"
	}
	if c.PaymentTokens == nil {
		c.PaymentTokens = []PaymentToken{}
	}
	if c.Products == nil {
		c.Products = []ProductSeed{}
	}
}

// Validate checks address and number formats without resolving anything
// against state.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"Operator":        c.Operator,
		"Treasury":        c.Treasury,
		"SettlementAsset": c.SettlementAsset,
		"WrappedNative":   c.WrappedNative,
	} {
		if value != "" && !common.IsHexAddress(value) {
			return fmt.Errorf("config: %s is not a hex address: %q", name, value)
		}
	}
	if strings.TrimSpace(c.SettlementAsset) == "" {
		return fmt.Errorf("config: SettlementAsset is required")
	}
	for i, tok := range c.PaymentTokens {
		if !common.IsHexAddress(tok.Asset) {
			return fmt.Errorf("config: PaymentTokens[%d].Asset is not a hex address: %q", i, tok.Asset)
		}
		if tok.Venue != "" && !common.IsHexAddress(tok.Venue) {
			return fmt.Errorf("config: PaymentTokens[%d].Venue is not a hex address: %q", i, tok.Venue)
		}
	}
	for i, p := range c.Products {
		if strings.TrimSpace(p.Alias) == "" {
			return fmt.Errorf("config: Products[%d].Alias is required", i)
		}
		if !common.IsHexAddress(p.Implementation) {
			return fmt.Errorf("config: Products[%d].Implementation is not a hex address: %q", i, p.Implementation)
		}
		for field, value := range map[string]string{
			"CurrentPrice":    p.CurrentPrice,
			"MinPrice":        p.MinPrice,
			"DecreasePercent": p.DecreasePercent,
			"CashbackPercent": p.CashbackPercent,
		} {
			if _, err := p.amount(value); err != nil {
				return fmt.Errorf("config: Products[%d].%s: %v", i, field, err)
			}
		}
	}
	return nil
}

func (p ProductSeed) amount(value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return big.NewInt(0), nil
	}
	out, ok := new(big.Int).SetString(value, 10)
	if !ok || out.Sign() < 0 {
		return nil, fmt.Errorf("not a non-negative decimal: %q", value)
	}
	return out, nil
}

// AliasHash renders the seed's alias as the product key. Plain strings are
// hashed; 0x-prefixed 32-byte values pass through.
func (p ProductSeed) AliasHash() common.Hash {
	trimmed := strings.TrimSpace(p.Alias)
	if strings.HasPrefix(trimmed, "0x") && len(trimmed) == 2+common.HashLength*2 {
		return common.HexToHash(trimmed)
	}
	return common.BytesToHash(crypto.Keccak256([]byte(trimmed)))
}

// Amounts returns the parsed numeric columns. Call only after Validate.
func (p ProductSeed) Amounts() (currentPrice, minPrice, decreasePercent, cashbackPercent *big.Int) {
	currentPrice, _ = p.amount(p.CurrentPrice)
	minPrice, _ = p.amount(p.MinPrice)
	decreasePercent, _ = p.amount(p.DecreasePercent)
	cashbackPercent, _ = p.amount(p.CashbackPercent)
	return currentPrice, minPrice, decreasePercent, cashbackPercent
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:   ":8080",
		DataDir:         "./productchain-data",
		SettlementAsset: common.Address{}.Hex(),
		PaymentTokens:   []PaymentToken{},
		Products:        []ProductSeed{},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
