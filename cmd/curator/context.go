package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"curator/internal/cache"
	"curator/internal/config"
	"curator/internal/database"
	"curator/internal/dataset"
	"curator/internal/metadata"
	"curator/pkg/models"

	"github.com/sirupsen/logrus"
)

type commandContext struct {
	configFlag   *string
	envFlag      *string
	logLevelFlag *string

	configOnce sync.Once
	configPath string
	config     *config.Config
	configErr  error
	logger     *logrus.Logger
}

func newCommandContext(configFlag, envFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		envFlag:      envFlag,
		logLevelFlag: logLevelFlag,
	}
}

// ensureConfig loads the dotenv file and the configuration once, then sets
// up the logger from it.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if c.envFlag != nil && strings.TrimSpace(*c.envFlag) != "" {
			if err := config.LoadEnvFile(strings.TrimSpace(*c.envFlag)); err != nil {
				c.configErr = err
				return
			}
		}

		path := config.DefaultPath()
		if c.configFlag != nil && strings.TrimSpace(*c.configFlag) != "" {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.LoadConfig(path)
		if err != nil {
			c.configErr = fmt.Errorf("error loading configuration: %w", err)
			return
		}
		if c.logLevelFlag != nil && *c.logLevelFlag != "" {
			cfg.Logging.Level = strings.ToLower(*c.logLevelFlag)
		}

		logger, err := newLogger(cfg.Logging)
		if err != nil {
			c.configErr = err
			return
		}

		c.configPath = path
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

// newLogger builds the process logger from the [logging] section.
func newLogger(cfg config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(f)
	}

	return logger, nil
}

func (c *commandContext) newExtractor() *metadata.Extractor {
	extractor := metadata.NewExtractor(c.config.Dataset.AudioExtensions, c.logger, cache.NewDurationCache())
	extractor.SetWorkers(c.config.Dataset.ProbeWorkers)
	return extractor
}

// resolveTarget picks the dataset a command works on: the argument when
// given, otherwise the last opened dataset folder.
func (c *commandContext) resolveTarget(args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	if c.config.UI.LastDatasetDir != "" {
		return c.config.UI.LastDatasetDir, nil
	}
	return "", fmt.Errorf("no dataset given and no dataset opened before")
}

// openSession opens target as a folder or, when it is a file, as an
// explicit manifest. The dataset is remembered for later commands.
func (c *commandContext) openSession(args []string) (*dataset.Session, *metadata.Extractor, error) {
	target, err := c.resolveTarget(args)
	if err != nil {
		return nil, nil, err
	}

	extractor := c.newExtractor()
	session := dataset.NewSession(extractor, c.logger)
	session.SetBackupDir(c.config.Dataset.BackupDir)

	info, err := os.Stat(target)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	if info.IsDir() {
		err = session.OpenFolder(target)
	} else {
		err = session.OpenManifest(target)
	}
	if err != nil {
		return nil, nil, err
	}

	c.rememberDataset(session)
	return session, extractor, nil
}

// rememberDataset stores the dataset folder as the last one opened and
// updates the recent-datasets registry. Failures are logged, not returned.
func (c *commandContext) rememberDataset(session *dataset.Session) {
	if c.config.UI.LastDatasetDir != session.Folder() {
		c.config.UI.SetLastDatasetDir(session.Folder())
		err := config.Update(c.configPath, func(cfg *config.Config) {
			cfg.UI.SetLastDatasetDir(session.Folder())
		})
		if err != nil {
			c.logger.WithError(err).Warn("Failed to remember last dataset folder")
		}
	}

	err := c.withRegistry(func(db *database.Database) error {
		stats := session.Stats()
		return db.RecordOpen(models.RecentDataset{
			Path:         session.Folder(),
			ManifestPath: session.ManifestPath(),
			Name:         session.Metadata().Name,
			NumSamples:   stats.Total,
			Captioned:    stats.Captioned,
			LastOpened:   time.Now(),
		})
	})
	if err != nil {
		c.logger.WithError(err).Warn("Failed to update recent datasets")
	}
}

func (c *commandContext) openRegistry() (*database.Database, error) {
	return database.NewDatabase(c.config.Database.Path, c.logger)
}

func (c *commandContext) withRegistry(fn func(*database.Database) error) error {
	db, err := c.openRegistry()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
