package main

import (
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SESSION_SECRET", "a-secret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, http://localhost:3000,")

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	req.NoError(err)

	req.Equal(8080, config.Port)
	req.Equal(24*time.Hour, config.SessionDuration)
	req.Nil(config.LimitMessages)
	req.Equal([]string{"https://app.example.com", "http://localhost:3000"}, config.AllowedOrigins())

	char, err := config.CharacterRune()
	req.NoError(err)
	req.Equal('*', char)
}

func TestConfig_Missing_Secret(t *testing.T) {
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("LOG_LEVEL", "DEBUG")

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	require.Error(t, err)
}

func TestConfig_Character_Replacement_Must_Be_One_Rune(t *testing.T) {
	req := require.New(t)

	_, err := Config{CharReplacement: "**"}.CharacterRune()
	req.Error(err)

	char, err := Config{CharReplacement: "€"}.CharacterRune()
	req.NoError(err)
	req.Equal('€', char)
}
