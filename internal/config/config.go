package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultBaseDir = ".trainlink"

type CaptureConfig struct {
	Dir               string        `yaml:"dir"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	Watch             bool          `yaml:"watch"`
	RequestHeaderSize int           `yaml:"request_header_size"`
	DecodeRetries     int           `yaml:"decode_retries"`
	DecodeRetryDelay  time.Duration `yaml:"decode_retry_delay"`
	RemoveRetries     int           `yaml:"remove_retries"`
	RemoveRetryDelay  time.Duration `yaml:"remove_retry_delay"`
	ReadFailures      int           `yaml:"read_failures"`
}

type SanitizeConfig struct {
	RequestKeys []string `yaml:"request_keys"`
}

type BrowserConfig struct {
	Enabled        bool          `yaml:"enabled"`
	HelperHost     string        `yaml:"helper_host"`
	GamePath       string        `yaml:"game_path"`
	ControlURL     string        `yaml:"control_url"`
	Bin            string        `yaml:"bin"`
	Headless       bool          `yaml:"headless"`
	Retries        int           `yaml:"retries"`
	Timeout        time.Duration `yaml:"timeout"`
	EventSelector  string        `yaml:"event_selector"`
	ChoiceSelector string        `yaml:"choice_selector"`
	HelperTarget   string        `yaml:"helper_target"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// TextCategories are text_data category ids in the master database.
type TextCategories struct {
	CharaName       int `yaml:"chara_name"`
	SkillName       int `yaml:"skill_name"`
	SupportCardName int `yaml:"support_card_name"`
	StoryTitle      int `yaml:"story_title"`
	RaceProgram     int `yaml:"race_program"`
	Status          int `yaml:"status"`
}

type RefDataConfig struct {
	Path       string         `yaml:"path"`
	CacheSize  int            `yaml:"cache_size"`
	Categories TextCategories `yaml:"categories"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RowConfig configures one row of the helper table.
type RowConfig struct {
	Name         string `yaml:"name"`
	Enabled      bool   `yaml:"enabled"`
	HighlightMax bool   `yaml:"highlight_max"`
	Suffix       string `yaml:"suffix"`
}

type HelperConfig struct {
	Rows []RowConfig `yaml:"rows"`
}

// FriendException lets a friend/group card keep useful bond in one scenario.
type FriendException struct {
	CardID     int64 `yaml:"card_id"`
	ScenarioID int64 `yaml:"scenario_id"`
}

// RankRequirement is the sport rank required by competitions up to a turn.
type RankRequirement struct {
	UntilTurn int64 `yaml:"until_turn"`
	Rank      int64 `yaml:"rank"`
}

type RaceLabels struct {
	Win    string `yaml:"win"`
	Placed string `yaml:"placed"`
	Lost   string `yaml:"lost"`
}

// RulesConfig holds game-balance tables. They are data, not derived.
// A passive effect id left at 0 disables its rule.
type RulesConfig struct {
	FacilityAliases       map[int64]int64   `yaml:"facility_aliases"`
	UsefulCutoff          int64             `yaml:"useful_cutoff"`
	CutoffOverrides       map[int64]int64   `yaml:"cutoff_overrides"`
	FriendExceptions      []FriendException `yaml:"friend_exceptions"`
	CharmEffectIDs        []int64           `yaml:"charm_effect_ids"`
	BlueTipPassive        int64             `yaml:"blue_tip_passive"`
	DoubleRainbowPassive  int64             `yaml:"double_rainbow_passive"`
	GroupZoneEffects      map[int64]int64   `yaml:"group_zone_effects"`
	SportRankRequirements []RankRequirement `yaml:"sport_rank_requirements"`
	AfterRaceStoryIDs     []int64           `yaml:"after_race_story_ids"`
	RaceLabels            RaceLabels        `yaml:"race_labels"`
}

type Config struct {
	Capture  CaptureConfig  `yaml:"capture"`
	Sanitize SanitizeConfig `yaml:"sanitize"`
	Browser  BrowserConfig  `yaml:"browser"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Store    StoreConfig    `yaml:"store"`
	RefData  RefDataConfig  `yaml:"refdata"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Helper   HelperConfig   `yaml:"helper"`
	Rules    RulesConfig    `yaml:"rules"`
}

// BaseDir returns ~/.trainlink.
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, defaultBaseDir), nil
}

// Default returns a config with every default applied, including the
// switches that are on unless the file turns them off.
func Default() *Config {
	cfg := &Config{}
	cfg.Capture.Watch = true
	cfg.Browser.Enabled = true
	cfg.Archive.Enabled = true
	cfg.SetDefaults()
	return cfg
}

// Load loads YAML config over the defaults, then applies env overrides.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		base, err := BaseDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(base, "config.yaml")
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.SetDefaults()
	applyEnvOverrides(cfg)
	return cfg, nil
}

func (c *Config) SetDefaults() {
	base, _ := BaseDir()

	if c.Capture.Dir == "" {
		c.Capture.Dir = filepath.Join(base, "captures")
	}
	if c.Capture.PollInterval == 0 {
		c.Capture.PollInterval = 250 * time.Millisecond
	}
	if c.Capture.RequestHeaderSize == 0 {
		c.Capture.RequestHeaderSize = 170
	}
	if c.Capture.DecodeRetries == 0 {
		c.Capture.DecodeRetries = 10
	}
	if c.Capture.DecodeRetryDelay == 0 {
		c.Capture.DecodeRetryDelay = 100 * time.Millisecond
	}
	if c.Capture.RemoveRetries == 0 {
		c.Capture.RemoveRetries = 5
	}
	if c.Capture.RemoveRetryDelay == 0 {
		c.Capture.RemoveRetryDelay = time.Second
	}
	if c.Capture.ReadFailures == 0 {
		c.Capture.ReadFailures = 5
	}
	if len(c.Sanitize.RequestKeys) == 0 {
		c.Sanitize.RequestKeys = []string{"device_id", "device_name", "graphics_device_name", "ip_address", "platform_os_version", "carrier", "keychain", "locale", "button_info", "dmm_viewer_id", "dmm_onetime_token", "viewer_id", "auth_key", "steam_id", "steam_session_ticket"}
	}
	if c.Browser.HelperHost == "" {
		c.Browser.HelperHost = "gametora.com"
	}
	if c.Browser.GamePath == "" {
		c.Browser.GamePath = "umamusume"
	}
	if c.Browser.Retries == 0 {
		c.Browser.Retries = 3
	}
	if c.Browser.Timeout == 0 {
		c.Browser.Timeout = 10 * time.Second
	}
	if c.Browser.EventSelector == "" {
		c.Browser.EventSelector = "[class^='compatibility_viewer_item_']"
	}
	if c.Browser.ChoiceSelector == "" {
		c.Browser.ChoiceSelector = "[class*='filters_viewer_image_']"
	}
	if c.Browser.HelperTarget == "" {
		c.Browser.HelperTarget = "trainlink-helper"
	}
	if c.Archive.Dir == "" {
		c.Archive.Dir = filepath.Join(base, "archives")
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(base, "trainlink.db")
	}
	if c.RefData.CacheSize == 0 {
		c.RefData.CacheSize = 4096
	}
	if c.RefData.Categories == (TextCategories{}) {
		c.RefData.Categories = TextCategories{
			CharaName:       6,
			SkillName:       47,
			SupportCardName: 75,
			StoryTitle:      181,
			RaceProgram:     28,
			Status:          142,
		}
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3150
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if len(c.Helper.Rows) == 0 {
		c.Helper.Rows = DefaultRows()
	}
	c.Rules.setDefaults()
}

// DefaultRows returns the default helper table layout.
func DefaultRows() []RowConfig {
	names := []string{
		"current_stats", "gained_stats", "total_bond", "useful_bond", "rainbow_count",
		"skill_points", "energy", "stat_per_energy", "fail_percentage", "level",
		"fragments", "tokens", "star_gauge", "aptitude_points", "sport_rank",
		"cook_points", "point_up",
	}
	rows := make([]RowConfig, 0, len(names))
	for _, n := range names {
		row := RowConfig{Name: n, Enabled: true}
		switch n {
		case "gained_stats", "useful_bond", "skill_points", "rainbow_count", "aptitude_points", "sport_rank":
			row.HighlightMax = true
		case "fail_percentage":
			row.Suffix = "%"
		}
		rows = append(rows, row)
	}
	return rows
}

func (r *RulesConfig) setDefaults() {
	if len(r.FacilityAliases) == 0 {
		r.FacilityAliases = defaultFacilityAliases()
	}
	if r.UsefulCutoff == 0 {
		r.UsefulCutoff = 80
	}
	if len(r.CharmEffectIDs) == 0 {
		r.CharmEffectIDs = []int64{8}
	}
	if len(r.SportRankRequirements) == 0 {
		r.SportRankRequirements = []RankRequirement{
			{UntilTurn: 24, Rank: 10},
			{UntilTurn: 48, Rank: 30},
			{UntilTurn: 72, Rank: 50},
		}
	}
	if r.RaceLabels == (RaceLabels{}) {
		r.RaceLabels = RaceLabels{Win: "Victory!", Placed: "Solid Showing", Lost: "Defeat"}
	}
}

// defaultFacilityAliases maps scenario variants of the five training
// commands onto 101/105/102/103/106.
func defaultFacilityAliases() map[int64]int64 {
	stable := []int64{101, 105, 102, 103, 106}
	out := make(map[int64]int64)
	for _, base := range []int64{600, 900, 1100, 2100, 2200, 2300} {
		for i, id := range stable {
			out[base+int64(i)+1] = id
		}
	}
	return out
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Capture.Dir) == "" {
		return errors.New("capture.dir cannot be empty")
	}
	if c.Capture.PollInterval < 0 {
		return errors.New("capture.poll_interval cannot be negative")
	}
	if c.Capture.RequestHeaderSize < 0 {
		return errors.New("capture.request_header_size cannot be negative")
	}
	if c.Archive.Enabled {
		if err := ensureWritableDir(c.Archive.Dir); err != nil {
			return fmt.Errorf("archive.dir not writable: %w", err)
		}
	}
	return nil
}

// ValidateRun enforces requirements of the live pipeline.
func (c *Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.RefData.Path) == "" {
		return errors.New("refdata.path cannot be empty")
	}
	if info, err := os.Stat(c.Capture.Dir); err != nil || !info.IsDir() {
		return fmt.Errorf("capture.dir %q is not a directory", c.Capture.Dir)
	}
	return nil
}

func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func applyEnvOverrides(c *Config) {
	setString(&c.Capture.Dir, "TRAINLINK_CAPTURE_DIR")
	setDuration(&c.Capture.PollInterval, "TRAINLINK_POLL_INTERVAL")
	setBool(&c.Capture.Watch, "TRAINLINK_CAPTURE_WATCH")
	setString(&c.Archive.Dir, "TRAINLINK_ARCHIVE_DIR")
	setBool(&c.Archive.Enabled, "TRAINLINK_ARCHIVE_ENABLED")
	setString(&c.Store.Path, "TRAINLINK_STORE_PATH")
	setString(&c.RefData.Path, "TRAINLINK_REFDATA_PATH")
	setBool(&c.Browser.Enabled, "TRAINLINK_BROWSER_ENABLED")
	setString(&c.Browser.ControlURL, "TRAINLINK_BROWSER_CONTROL_URL")
	setString(&c.Browser.HelperHost, "TRAINLINK_HELPER_HOST")
	setBool(&c.Server.Enabled, "TRAINLINK_SERVER_ENABLED")
	setString(&c.Server.Host, "TRAINLINK_SERVER_HOST")
	setInt(&c.Server.Port, "TRAINLINK_SERVER_PORT")
	setString(&c.Log.Level, "TRAINLINK_LOG_LEVEL")
	setString(&c.Log.Format, "TRAINLINK_LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
