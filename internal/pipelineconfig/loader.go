package pipelineconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wonny/smartflow/pkg/config"
)

// Load reads a YAML file on top of Default().
// 빈 경로면 기본값만 사용
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, Validate(cfg)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode pipeline config %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overlays the MIN_LIQUIDITY / MIN_DELIVERY_PCT / TOP_N environment overrides
func ApplyEnv(cfg *Config, env config.PipelineConfig) error {
	if env.MinLiquidity > 0 {
		cfg.Universe.MinLiquidity = env.MinLiquidity
	}
	if env.MinDeliveryPct > 0 {
		cfg.Universe.MinDeliveryPct = env.MinDeliveryPct
	}
	if env.TopN > 0 {
		cfg.Ranking.TopN = env.TopN
	}
	return Validate(cfg)
}

// Hash generates SHA256 hash from Config (canonical JSON)
// 주의: map 대신 struct 사용으로 해시 재현성 보장
func Hash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
