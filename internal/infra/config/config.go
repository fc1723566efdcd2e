package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DiscordToken string
	DiscordGuild string
	DatabaseURL  string // opcional: sin esto no hay archivo histórico en Postgres

	ChatChannelID    string
	CommandChannelID string
	StreamingVCID    string // canal principal donde se exige cámara
	PunishmentVCID   string // canal "castigo" para la primera violación
	AltVCIDs         []string

	StateFile string

	CameraGrace  time.Duration // cuánto se tolera la cámara apagada
	DeafenGrace  time.Duration // cuánto se tolera el self-deafen
	TimeoutShort time.Duration
	TimeoutLong  time.Duration
	EvalInterval time.Duration
	BatchWindow  time.Duration // ventana de agrupado de salidas
	SaveDebounce time.Duration

	AutoStatsHourUTC   int
	AutoStatsMinuteUTC int

	StatsExcludedUsers map[string]struct{}
	AllowedUsers       map[string]struct{} // exentos de moderación (host, etc)
	AdminRoleIDs       []string

	ModerationEnabled bool
}

func Load() Config {
	get := func(k string, req bool) string {
		v := os.Getenv(k)
		if v == "" && req {
			log.Fatalf("faltante env %s", k)
		}
		return v
	}

	cfg := Config{
		DiscordToken: get("DISCORD_BOT_TOKEN", true),
		DiscordGuild: get("DISCORD_GUILD_ID", true),
		DatabaseURL:  get("DATABASE_URL", false),

		ChatChannelID:    get("CHAT_CHANNEL_ID", true),
		CommandChannelID: get("COMMAND_CHANNEL_ID", true),
		StreamingVCID:    get("STREAMING_VC_ID", true),
		PunishmentVCID:   get("PUNISHMENT_VC_ID", true),
		AltVCIDs:         splitCSV(get("ALT_VC_IDS", false)),

		StateFile: get("STATE_FILE", false),

		CameraGrace:  seconds("CAMERA_GRACE_SECONDS", 30),
		DeafenGrace:  seconds("DEAFEN_GRACE_SECONDS", 45),
		TimeoutShort: seconds("TIMEOUT_SHORT_SECONDS", 60),
		TimeoutLong:  seconds("TIMEOUT_LONG_SECONDS", 300),
		EvalInterval: seconds("EVAL_INTERVAL_SECONDS", 15),
		BatchWindow:  seconds("LEAVE_BATCH_SECONDS", 10),
		SaveDebounce: seconds("SAVE_DEBOUNCE_SECONDS", 10),

		AutoStatsHourUTC:   intEnv("AUTO_STATS_HOUR_UTC", 4),
		AutoStatsMinuteUTC: intEnv("AUTO_STATS_MINUTE_UTC", 0),

		StatsExcludedUsers: toSet(splitCSV(get("STATS_EXCLUDED_USERS", false))),
		AllowedUsers:       toSet(splitCSV(get("ALLOWED_USERS", false))),
		AdminRoleIDs:       splitCSV(get("ADMIN_ROLE_IDS", false)),

		ModerationEnabled: boolEnv("MODERATION_ENABLED", true),
	}
	if cfg.StateFile == "" {
		cfg.StateFile = "state.json"
	}
	return cfg
}

// MonitoredChannels: el principal primero, después los alternativos.
func (c Config) MonitoredChannels() []string {
	out := []string{c.StreamingVCID}
	for _, id := range c.AltVCIDs {
		if id != c.StreamingVCID {
			out = append(out, id)
		}
	}
	return out
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(tok); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func seconds(k string, def int) time.Duration {
	return time.Duration(intEnv(k, def)) * time.Second
}

func intEnv(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("env %s: %q no es un entero", k, v)
	}
	return n
}

func boolEnv(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("env %s: %q no es un booleano", k, v)
	}
	return b
}
