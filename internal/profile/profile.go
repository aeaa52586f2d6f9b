// Package profile holds the runtime configuration of the server.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where infoagent stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// AI configuration
	AIEnabled        bool   // INFOAGENT_AI_ENABLED
	AIProvider       string // INFOAGENT_AI_PROVIDER (default: openai)
	AIAPIKey         string // INFOAGENT_AI_API_KEY
	AIBaseURL        string // INFOAGENT_AI_BASE_URL
	AILLMModel       string // INFOAGENT_AI_LLM_MODEL (default: gpt-4o-mini)
	AIEmbeddingModel string // INFOAGENT_AI_EMBEDDING_MODEL (default: text-embedding-3-small)
	AIDimensions     int    // INFOAGENT_AI_DIMENSIONS (default: 1536)

	// Ranking configuration. The RRF damping factor and the fused-score
	// floor are corpus-dependent, so they are tunable rather than
	// hardcoded.
	RankingRRFK      int     // INFOAGENT_RANKING_RRF_K (default: 60)
	RankingThreshold float64 // INFOAGENT_RANKING_THRESHOLD (default: 0.01)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if AI is enabled and an API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && p.AIAPIKey != ""
}

// GetProfile reads configuration from viper (flags and INFOAGENT_* env).
func GetProfile(version string) (*Profile, error) {
	profile := &Profile{
		Mode:             viper.GetString("mode"),
		Addr:             viper.GetString("addr"),
		Port:             viper.GetInt("port"),
		Data:             viper.GetString("data"),
		DSN:              viper.GetString("dsn"),
		Driver:           viper.GetString("driver"),
		Version:          version,
		AIEnabled:        viper.GetBool("ai-enabled"),
		AIProvider:       viper.GetString("ai-provider"),
		AIAPIKey:         viper.GetString("ai-api-key"),
		AIBaseURL:        viper.GetString("ai-base-url"),
		AILLMModel:       viper.GetString("ai-llm-model"),
		AIEmbeddingModel: viper.GetString("ai-embedding-model"),
		AIDimensions:     viper.GetInt("ai-dimensions"),
		RankingRRFK:      viper.GetInt("ranking-rrf-k"),
		RankingThreshold: viper.GetFloat64("ranking-threshold"),
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("infoagent_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for the postgres driver")
	}

	if p.AIProvider == "" {
		p.AIProvider = "openai"
	}
	if p.AILLMModel == "" {
		p.AILLMModel = "gpt-4o-mini"
	}
	if p.AIEmbeddingModel == "" {
		p.AIEmbeddingModel = "text-embedding-3-small"
	}
	if p.AIDimensions <= 0 {
		p.AIDimensions = 1536
	}

	if p.RankingRRFK <= 0 {
		p.RankingRRFK = 60
	}
	if p.RankingThreshold <= 0 {
		p.RankingThreshold = 0.01
	}

	return nil
}
