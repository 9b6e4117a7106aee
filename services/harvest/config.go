package harvest

import (
	"database/sql"
	"fmt"

	"threadharvest/lib/configutil"
	"threadharvest/lib/scrapers/reddit"

	"dario.cat/mergo"
)

type DatabaseConfig struct {
	// path of a local sqlite database file
	File string `json:"file"`
	// remote libsql url, takes precedence over File when set
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (c DatabaseConfig) Open() (*sql.DB, error) {
	if c.Url != "" {
		dsn := c.Url
		if c.AuthToken != "" {
			dsn = fmt.Sprintf("%s?authToken=%s", c.Url, c.AuthToken)
		}
		return sql.Open("libsql", dsn)
	}
	file := c.File
	if file == "" {
		file = "threadharvest.db"
	}
	return sql.Open("sqlite", file)
}

type Config struct {
	Subreddits      []string          `json:"subreddits"`
	MinimumScore    int               `json:"minimum_score"`
	MinimumComments int               `json:"minimum_comments"`
	TimeFilter      string            `json:"time_filter"`
	RequestDelay    reddit.DelayRange `json:"request_delay"`
	UseOldReddit    *bool             `json:"use_old_reddit"`
	MaxRetries      int               `json:"max_retries"`
	Debug           bool              `json:"debug"`
	CookiesFile     string            `json:"cookies_file"`
	OutputDirectory string            `json:"output_directory"`
	Database        DatabaseConfig    `json:"database"`
}

func DefaultConfig() Config {
	return Config{
		Subreddits:      []string{"AskReddit", "todayilearned", "explainlikeimfive"},
		MinimumScore:    1000,
		MinimumComments: 50,
		TimeFilter:      "month",
		RequestDelay:    reddit.DelayRange{Min: 8, Max: 15},
		MaxRetries:      3,
		CookiesFile:     "session_cookies.json",
		OutputDirectory: "scraped_data",
		Database:        DatabaseConfig{File: "threadharvest.db"},
	}
}

// LegacyRendering reports whether scraping should target the
// old.reddit.com markup. Unset defaults to the legacy rendering, the
// more stable extraction target.
func (c Config) LegacyRendering() bool {
	if c.UseOldReddit == nil {
		return true
	}
	return *c.UseOldReddit
}

// LoadConfig reads the config file at path and backfills unset fields
// from the defaults. A missing file yields the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	config, err := configutil.ReadConfigOrDefault(path, DefaultConfig())
	if err != nil {
		return Config{}, err
	}
	if err := mergo.Merge(&config, DefaultConfig()); err != nil {
		return Config{}, err
	}
	return config, nil
}
