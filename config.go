package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	typesetClient = "client"
	typesetMathML = "mathml"
)

type Config struct {
	Port       int
	ContentDir string
	DBPath     string
	// Typeset is "client" to leave $ spans for a browser math engine or
	// "mathml" to convert them on the server.
	Typeset   string
	FontSize  int
	Cache     bool
	Numbering bool
	Macros    map[string]string
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// LoadConfig reads settings from MATIKKA_ prefixed environment variables.
// A .env file at dotEnvPath is loaded first when it exists.
func LoadConfig(dotEnvPath string) (Config, error) {
	v := viper.New()

	v.SetTypeByDefaultValue(true)
	v.SetDefault("port", 8080)
	v.SetDefault("contentDir", "content")
	v.SetDefault("dbPath", "data/notes.db")
	v.SetDefault("typeset", typesetClient)
	v.SetDefault("fontSize", 16)
	v.SetDefault("cache", true)
	v.SetDefault("numbering", false)
	v.SetDefault("macros", map[string]string{
		"R": `\mathbb{R}`,
		"N": `\mathbb{N}`,
		"Z": `\mathbb{Z}`,
		"Q": `\mathbb{Q}`,
		"C": `\mathbb{C}`,
	})

	if dotEnvPath != "" {
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				return Config{}, fmt.Errorf("config.godotenv(%s): %w", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config.os.Stat(%s): %w", dotEnvPath, err)
		}
	}

	v.SetEnvPrefix("MATIKKA")
	v.AutomaticEnv()

	c := Config{
		Port:       v.GetInt("port"),
		ContentDir: v.GetString("contentDir"),
		DBPath:     v.GetString("dbPath"),
		Typeset:    strings.ToLower(v.GetString("typeset")),
		FontSize:   v.GetInt("fontSize"),
		Cache:      v.GetBool("cache"),
		Numbering:  v.GetBool("numbering"),
		Macros:     v.GetStringMapString("macros"),
	}

	if c.Typeset != typesetClient && c.Typeset != typesetMathML {
		return Config{}, fmt.Errorf("config: unknown typeset mode %q", c.Typeset)
	}
	if c.FontSize <= 0 {
		return Config{}, fmt.Errorf("config: font size must be positive, got %d", c.FontSize)
	}
	return c, nil
}
