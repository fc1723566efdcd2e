package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"

	discordrouter "github.com/jose-valero/skipcord-bot/internal/adapters/discord"
	"github.com/jose-valero/skipcord-bot/internal/app/service"
	"github.com/jose-valero/skipcord-bot/internal/infra/config"
	"github.com/jose-valero/skipcord-bot/internal/infra/storage"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.Load()

	// Archivo histórico (opcional): sin DATABASE_URL el bot anda igual, solo
	// con el snapshot local.
	var (
		auditRepo  service.AuditLog
		reportRepo service.ReportArchive
	)
	if cfg.DatabaseURL != "" {
		db, err := storage.Open(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		if err := storage.Migrate(db); err != nil {
			log.Fatal("migrate:", err)
		}
		log.Println("✅ DB lista y migrada")
		auditRepo = storage.NewAuditRepo(db)
		reportRepo = storage.NewReportRepo(db)
	} else {
		log.Println("ℹ️  sin DATABASE_URL: archivo histórico deshabilitado")
	}

	// Snapshot local de estado
	store := storage.NewSnapshotStore(cfg.StateFile, cfg.SaveDebounce)
	snap := store.Load(cfg.ModerationEnabled)

	// Discord session
	auth := cfg.DiscordToken
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(auth)), "bot ") {
		auth = "Bot " + strings.TrimSpace(auth)
	}
	s, err := discordgo.New(auth)
	if err != nil {
		log.Fatal(err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers |
		discordgo.IntentGuildModeration |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent
	if err := s.Open(); err != nil {
		log.Fatal(err)
	}
	defer s.Close()
	log.Printf("✅ Conectado como %s (%s)", s.State.User.Username, s.State.User.ID)

	// Adapters
	exec := discordrouter.NewExecutor(s, cfg.DiscordGuild)
	notifier := discordrouter.NewNotifier(s, cfg.ChatChannelID, cfg.CommandChannelID)
	reporter := discordrouter.NewReporter(s, cfg.CommandChannelID)

	// Services
	presenceSvc := service.NewPresenceService(cfg.MonitoredChannels(), cfg.AllowedUsers)
	punishSvc := service.NewPunishmentsService(exec, notifier, auditRepo,
		cfg.DiscordGuild, cfg.PunishmentVCID, cfg.TimeoutShort, cfg.TimeoutLong)
	violationsSvc := service.NewViolationsService(presenceSvc, punishSvc, cfg.CameraGrace, cfg.DeafenGrace)
	statsSvc := service.NewStatsService(cfg.StatsExcludedUsers)

	engine := service.NewEngine(presenceSvc, violationsSvc, punishSvc, statsSvc,
		store, notifier, reporter, reportRepo,
		cfg.DiscordGuild, cfg.EvalInterval, cfg.AutoStatsHourUTC, cfg.AutoStatsMinuteUTC)
	engine.RestoreFrom(snap)
	punishSvc.SetOnMutate(engine.MarkDirty)
	engine.AttachDigests(service.NewDigestService(notifier, cfg.BatchWindow, engine.NotificationsEnabled))

	// Router
	r := discordrouter.NewRouter(s, cfg.DiscordGuild, cfg.CommandChannelID,
		cfg.AllowedUsers, cfg.AdminRoleIDs, engine, reporter)
	r.Handlers()
	log.Printf("✅ escuchando guild %s (canales monitoreados: %d)",
		cfg.DiscordGuild, len(cfg.MonitoredChannels()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-stop

	cancel()
	<-done
}
