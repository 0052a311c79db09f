package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Secrets holds the API keys the STT providers need, read from the
// environment (optionally seeded by a .env file), mirroring
// cmd/agent/main.go's godotenv.Load() + os.Getenv overlay.
type Secrets struct {
	Groq       string
	OpenAI     string
	Deepgram   string
	AssemblyAI string
}

// LoadSecrets calls godotenv.Load (a missing .env file is not an error —
// system environment variables are used as-is) and reads the STT provider
// keys.
func LoadSecrets() Secrets {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using system environment variables")
	}
	return Secrets{
		Groq:       os.Getenv("GROQ_API_KEY"),
		OpenAI:     os.Getenv("OPENAI_API_KEY"),
		Deepgram:   os.Getenv("DEEPGRAM_API_KEY"),
		AssemblyAI: os.Getenv("ASSEMBLYAI_API_KEY"),
	}
}
