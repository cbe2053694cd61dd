package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv overlays process environment variables onto the config. The
// variable names follow the crawler's original environment contract so
// existing .env files keep working.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("BASE_URL"); ok {
		c.Crawl.BaseURL = v
	}
	if v, ok := envInt("MAX_PAGES"); ok {
		c.Crawl.MaxPages = v
	}
	if v, ok := envInt("DELAY"); ok {
		c.Crawl.Delay = DurationFrom(time.Duration(v) * time.Second)
	}
	if v, ok := envBool("STEALTH_MODE"); ok {
		c.Crawl.Stealth = v
	}
	if v, ok := os.LookupEnv("DATABASE_PATH"); ok {
		c.DB.Driver = "sqlite"
		c.DB.DSN = v
	}
	if v, ok := os.LookupEnv("OUTPUT_FILE"); ok {
		c.Output.ResultsFile = v
	}

	if v, ok := os.LookupEnv("AUTH_TYPE"); ok {
		c.Auth.Type = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv("AUTH_COOKIES"); ok {
		c.Auth.Cookies = ParseCookies(v)
	}
	if v, ok := os.LookupEnv("AUTH_USERNAME"); ok {
		c.Auth.Username = v
	}
	if v, ok := os.LookupEnv("AUTH_PASSWORD"); ok {
		c.Auth.Password = v
	}
	if v, ok := os.LookupEnv("AUTH_BEARER_TOKEN"); ok {
		c.Auth.BearerToken = v
		if c.Auth.Type == "" {
			c.Auth.Type = AuthHeaders
		}
	}
	if v, ok := os.LookupEnv("AUTH_LOGIN_URL"); ok {
		c.Auth.LoginURL = v
	}
	if v, ok := os.LookupEnv("AUTH_LOGIN_USERNAME_FIELD"); ok {
		c.Auth.UsernameField = v
	}
	if v, ok := os.LookupEnv("AUTH_LOGIN_PASSWORD_FIELD"); ok {
		c.Auth.PasswordField = v
	}

	if v, ok := envBool("VECTOR_STORE_ENABLED"); ok {
		c.Vector.Enabled = v
	}
	if v, ok := os.LookupEnv("VECTOR_STORE_ENDPOINT"); ok {
		c.Vector.Endpoint = v
	}
	if v, ok := os.LookupEnv("VECTOR_COLLECTION_NAME"); ok {
		c.Vector.Collection = v
	}
	if v, ok := os.LookupEnv("OPENAI_EMBEDDING_MODEL"); ok {
		c.Vector.EmbeddingModel = v
	}
	if v, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
		c.Vector.APIKey = v
	}
}

// ParseCookies parses a KEY1=VALUE1;KEY2=VALUE2 cookie string into a map.
// Malformed segments are dropped.
func ParseCookies(raw string) map[string]string {
	cookies := make(map[string]string)
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		cookies[key] = value
	}
	if len(cookies) == 0 {
		return nil
	}
	return cookies
}

func envBool(name string) (bool, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true, true
	default:
		return false, true
	}
}

func envInt(name string) (int, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return v, true
}
