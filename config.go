package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pankcuf/ferment-sub004/pkg/ferment"
)

const (
	configBaseName = "ferment"
	configFileName = configBaseName + ".yaml"
	configFolder   = "."
	envPrefix      = "FERMENT"

	configFlagName    = "config"
	crateFlagName     = "crate"
	outputFlagName    = "output"
	modNameFlagName   = "mod-name"
	externalFlagName  = "external"
	strictFlagName    = "strict"
	inventoryFlagName = "inventory"
	verboseFlagName   = "verbose"
	logFileFlagName   = "log-file"

	crateNameKey     = "crate.name"
	crateRootKey     = "crate.root"
	crateExternalKey = "crate.external"
	outputDirKey     = "output.dir"
	modNameKey       = "output.mod_name"
	languagesKey     = "output.languages"
	strictKey        = "strict"
	inventoryFileKey = "inventory.file"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultRoot          = "."
	defaultLogFilename   = ".ferment.log"
	defaultLogLevel      = "info"
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

// newViper returns a viper instance with every default set and the
// environment bound.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(configBaseName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configFolder)
	v.AutomaticEnv()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault(crateRootKey, defaultRoot)
	v.SetDefault(outputDirKey, ferment.DefaultOutputDir)
	v.SetDefault(modNameKey, "fermented")
	v.SetDefault(languagesKey, []string{ferment.DefaultLanguage})
	v.SetDefault(strictKey, false)

	v.SetDefault(logFilenameKey, defaultLogFilename)
	v.SetDefault(logLevelKey, defaultLogLevel)
	v.SetDefault(logVerboseKey, false)
	v.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	v.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	v.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	v.SetDefault(logCompressKey, defaultLogCompress)
	return v
}

// readConfig loads the config file: the one named by --config, or
// ferment.yaml in the working directory when present.
func readConfig(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// bindFlagToConfig wires a cobra flag to a viper key so config and env
// values feed the flag.
func bindFlagToConfig(v *viper.Viper, flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}
	cobra.CheckErr(v.BindPFlag(key, flag))
}

func configureRootFlags(v *viper.Viper, cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String(configFlagName, "", "config file (default ./"+configFileName+")")

	flags.String(crateFlagName, "", "crate name (default: package.name from Cargo.toml)")
	bindFlagToConfig(v, flags.Lookup(crateFlagName), crateNameKey)

	flags.StringP(outputFlagName, "o", ferment.DefaultOutputDir, "output directory, relative to the crate root")
	bindFlagToConfig(v, flags.Lookup(outputFlagName), outputDirKey)

	flags.String(modNameFlagName, "fermented", "name of the generated module")
	bindFlagToConfig(v, flags.Lookup(modNameFlagName), modNameKey)

	flags.StringArray(externalFlagName, nil, "external crate as NAME or NAME=DIR (can be repeated)")

	flags.Bool(strictFlagName, false, "fail when any name stays unresolved")
	bindFlagToConfig(v, flags.Lookup(strictFlagName), strictKey)

	flags.String(inventoryFlagName, "", "registration manifest, relative to the crate root")
	bindFlagToConfig(v, flags.Lookup(inventoryFlagName), inventoryFileKey)

	flags.BoolP(verboseFlagName, "v", false, "log at debug level")
	bindFlagToConfig(v, flags.Lookup(verboseFlagName), logVerboseKey)

	flags.String(logFileFlagName, defaultLogFilename, "log file")
	bindFlagToConfig(v, flags.Lookup(logFileFlagName), logFilenameKey)
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger points the default slog logger at a rotating log file.
// The returned closer releases the file.
func configureLogger(v *viper.Viper) io.Closer {
	logPath := strings.TrimSpace(v.GetString(logFilenameKey))
	if logPath == "" {
		logPath = defaultLogFilename
	}

	logLevel := parseSlogLevel(v.GetString(logLevelKey), slog.LevelInfo)
	if v.GetBool(logVerboseKey) {
		logLevel = slog.LevelDebug
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    v.GetInt(logMaxSizeKey),
		MaxBackups: v.GetInt(logMaxBackupsKey),
		MaxAge:     v.GetInt(logMaxAgeKey),
		Compress:   v.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})
	slog.SetDefault(slog.New(handler))
	return logWriter
}

// fermentConfig assembles the run configuration. A positional crate
// directory overrides crate.root; --external entries add to
// crate.external.
func fermentConfig(v *viper.Viper, cmd *cobra.Command, args []string) (ferment.Config, error) {
	var external []ferment.CrateRef
	if err := v.UnmarshalKey(crateExternalKey, &external); err != nil {
		return ferment.Config{}, fmt.Errorf("reading %s: %w", crateExternalKey, err)
	}
	flags, err := cmd.Flags().GetStringArray(externalFlagName)
	if err != nil {
		return ferment.Config{}, err
	}
	for _, f := range flags {
		name, root, _ := strings.Cut(f, "=")
		external = append(external, ferment.CrateRef{Name: strings.TrimSpace(name), Root: strings.TrimSpace(root)})
	}

	root := v.GetString(crateRootKey)
	if len(args) > 0 {
		root = args[0]
	}
	return ferment.Config{
		CrateName:      v.GetString(crateNameKey),
		Root:           root,
		ExternalCrates: external,
		OutputDir:      v.GetString(outputDirKey),
		ModName:        v.GetString(modNameKey),
		Languages:      v.GetStringSlice(languagesKey),
		StrictUnknown:  v.GetBool(strictKey),
		InventoryFile:  v.GetString(inventoryFileKey),
		Logger:         slog.Default(),
	}, nil
}
