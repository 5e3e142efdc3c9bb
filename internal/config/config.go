package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey       string
	DatasetPath        string
	VectorstorePath    string
	HTTPPort           string
	LogLevel           string
	EmbeddingDimension int
	ChunkSize          int
	ChunkOverlap       int
	RetrievalK         int
	EmbedBatchSize     int
	InitTimeoutSecs    int
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		DatasetPath:        getEnv("DATASET_PATH", "data/sermons.csv"),
		VectorstorePath:    getEnv("VECTORSTORE_PATH", "data/vectorstore"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		EmbeddingDimension: getEnvAsInt("EMBEDDING_DIMENSION", 768),
		ChunkSize:          getEnvAsInt("CHUNK_SIZE", 500),
		ChunkOverlap:       getEnvAsInt("CHUNK_OVERLAP", 200),
		RetrievalK:         getEnvAsInt("RETRIEVAL_K", 5),
		EmbedBatchSize:     getEnvAsInt("EMBED_BATCH_SIZE", 100),
		InitTimeoutSecs:    getEnvAsInt("INIT_TIMEOUT_SECS", 600),
	}

	if AppConfig.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	if AppConfig.ChunkOverlap >= AppConfig.ChunkSize {
		log.Fatal("CHUNK_OVERLAP must be smaller than CHUNK_SIZE")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
