package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultDBName, cfg.Database.DBName)
	assert.Equal(t, DefaultCountry, cfg.Analysis.Country)
	assert.Equal(t, DefaultStartYear, cfg.Analysis.StartYear)
	assert.Equal(t, DefaultEndYear, cfg.Analysis.EndYear)
	assert.Equal(t, DefaultTopK, cfg.Analysis.TopK)
	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, DefaultKafkaRequestTopic, cfg.Kafka.RequestTopic)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultOutputDir, cfg.Output.Dir)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9999
	cfg.Analysis.TopK = 5
	cfg.Redis.DefaultTTL = time.Minute
	ApplyDefaults(cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Analysis.TopK)
	assert.Equal(t, time.Minute, cfg.Redis.DefaultTTL)
}

func TestApplyDefaults_LLMDependsOnBackend(t *testing.T) {
	ollama := &Config{}
	ApplyDefaults(ollama)
	assert.Equal(t, DefaultOllamaURL, ollama.LLM.BaseURL)
	assert.Equal(t, DefaultOllamaModel, ollama.LLM.Model)

	openai := &Config{LLM: LLMConfig{Backend: LLMBackendOpenAI}}
	ApplyDefaults(openai)
	assert.Equal(t, DefaultOpenAIURL, openai.LLM.BaseURL)
	assert.Equal(t, DefaultOpenAIModel, openai.LLM.Model)

	gemini := &Config{LLM: LLMConfig{Backend: LLMBackendGemini}}
	ApplyDefaults(gemini)
	assert.Empty(t, gemini.LLM.BaseURL)
	assert.Equal(t, DefaultGeminiModel, gemini.LLM.Model)
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}
