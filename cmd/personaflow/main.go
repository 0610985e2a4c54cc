// =============================================================================
// PersonaFlow 主入口
// =============================================================================
// 命令行入口点, 加载配置与角色定义并启动交互式会话
//
// 使用方法:
//
//	personaflow chat --character characters/nova.json   # 启动交互式会话
//	personaflow chat --config config.yaml               # 指定配置文件
//	personaflow validate --character characters/nova.json # 校验角色文件
//	personaflow version                                 # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/personaflow/cache"
	"github.com/BaSui01/personaflow/config"
	"github.com/BaSui01/personaflow/database"
	"github.com/BaSui01/personaflow/database/memdb"
	"github.com/BaSui01/personaflow/database/sqlitedb"
	"github.com/BaSui01/personaflow/internal/metrics"
	"github.com/BaSui01/personaflow/runtime"
	"github.com/BaSui01/personaflow/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "chat":
		runChat(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 💬 chat 命令
// =============================================================================

func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	characterPath := fs.String("character", "", "Path to character file (overrides config)")
	userName := fs.String("user", "User", "Display name for the local user")
	fs.Parse(args)

	// 加载配置
	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	if *characterPath != "" {
		cfg.Agent.CharacterPath = *characterPath
	}
	if cfg.Agent.CharacterPath == "" {
		fmt.Fprintln(os.Stderr, "A character file is required: pass --character or set agent.character_path")
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting PersonaFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	// 加载角色
	character, err := config.LoadCharacter(cfg.Agent.CharacterPath)
	if err != nil {
		logger.Fatal("Failed to load character", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := buildRuntime(ctx, cfg, character, logger)
	if err != nil {
		logger.Fatal("Failed to build runtime", zap.Error(err))
	}

	// 监听角色文件变更, 编辑人设后无需重启会话
	watcher, err := config.NewCharacterWatcher(cfg.Agent.CharacterPath, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Fatal("Failed to create character watcher", zap.Error(err))
	}
	watcher.OnReload(func(updated *types.Character) {
		if err := rt.SetCharacter(updated); err != nil {
			logger.Warn("Character reload rejected", zap.Error(err))
		}
	})
	if err := watcher.Start(ctx); err != nil {
		logger.Fatal("Failed to start character watcher", zap.Error(err))
	}
	defer watcher.Stop()

	if err := chatLoop(ctx, rt, *userName); err != nil && ctx.Err() == nil {
		logger.Fatal("Chat session failed", zap.Error(err))
	}

	logger.Info("PersonaFlow stopped")
}

// buildRuntime 按配置组装存储、缓存、指标并构造运行时.
func buildRuntime(ctx context.Context, cfg *config.Config, character *types.Character, logger *zap.Logger) (*runtime.AgentRuntime, error) {
	// 存储后端
	var db database.Adapter
	switch cfg.Database.Driver {
	case "sqlite":
		store, err := sqlitedb.Open(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("migrate sqlite storage: %w", err)
		}
		db = store
	default:
		db = memdb.New()
	}

	// 缓存后端
	agentID := character.ID
	if agentID == (types.UUID{}) {
		agentID = types.DeterministicID("agent:" + character.Name)
	}
	var cacheAdapter cache.Adapter
	switch cfg.Cache.Backend {
	case "file":
		fa, err := cache.NewFileAdapter(cfg.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("open file cache: %w", err)
		}
		cacheAdapter = fa
	case "database":
		cacheAdapter = cache.NewDBAdapter(db, agentID)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		cacheAdapter = cache.NewRedisAdapter(client, cfg.Cache.KeyPrefix)
	default:
		cacheAdapter = cache.NewMemoryAdapter()
	}

	// 指标
	collector := metrics.Nop()
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, prometheus.DefaultRegisterer, logger)
	}

	return runtime.New(ctx, runtime.Options{
		Character:          character,
		DB:                 db,
		CacheAdapter:       cacheAdapter,
		ConversationLength: cfg.Agent.ConversationLength,
		Metrics:            collector,
		Logger:             logger,
	})
}

// =============================================================================
// ✅ validate 命令
// =============================================================================

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	characterPath := fs.String("character", "", "Path to character file")
	fs.Parse(args)

	if *characterPath == "" {
		fmt.Fprintln(os.Stderr, "--character is required")
		os.Exit(1)
	}

	character, err := config.LoadCharacter(*characterPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OK: %s (%s)\n", character.Name, character.ModelProvider)
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("PersonaFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`PersonaFlow - Character Agent Runtime

Usage:
  personaflow <command> [options]

Commands:
  chat      Start an interactive chat session
  validate  Validate a character definition file
  version   Show version information
  help      Show this help message

Options for 'chat':
  --config <path>      Path to configuration file (YAML)
  --character <path>   Path to character file (JSON or YAML)
  --user <name>        Display name for the local user

Examples:
  personaflow chat --character characters/nova.json
  personaflow chat --config /etc/personaflow/config.yaml
  personaflow validate --character characters/nova.json
  personaflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
