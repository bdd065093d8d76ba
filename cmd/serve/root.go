package serve

import (
	"fmt"
	"strings"

	cmdUtil "github.com/ValentinKolb/shardctl/cmd/util"
	"github.com/ValentinKolb/shardctl/internal/admin"
	"github.com/ValentinKolb/shardctl/internal/config"
	"github.com/ValentinKolb/shardctl/internal/logging"
	"github.com/ValentinKolb/shardctl/lib/dfs/localfs"
	"github.com/ValentinKolb/shardctl/lib/engine/memengine"
	"github.com/ValentinKolb/shardctl/lib/eventlog/refimpl"
	"github.com/ValentinKolb/shardctl/lib/metadata"
	"github.com/ValentinKolb/shardctl/lib/objectstore"
	"github.com/ValentinKolb/shardctl/lib/registry"
	"github.com/ValentinKolb/shardctl/rpc/common"
	"github.com/ValentinKolb/shardctl/rpc/serializer"
	"github.com/ValentinKolb/shardctl/rpc/server"
	"github.com/ValentinKolb/shardctl/rpc/transport"
	"github.com/ValentinKolb/shardctl/rpc/transport/http"
	"github.com/ValentinKolb/shardctl/rpc/transport/tcp"
	"github.com/ValentinKolb/shardctl/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &config.Config{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the shardctl admin server",
		Long:    `Start the shardctl admin server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is SHARDCTL_<flag> (e.g. SHARDCTL_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the admin API will listen (e.g. localhost:8080, /tmp/shardctl.sock)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("RPC read/write deadline in seconds"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("Base directory; meta_db/, per-database directories and the ingest scratch directory all live under it"))

	key = "dfs-namenode"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Distributed-filesystem environment's name-node URI, used for logging/diagnostics"))

	key = "max-concurrent-transfers"
	ServeCmd.PersistentFlags().Int(key, 4, cmdUtil.WrapString("Upper bound on concurrent object-store upload/download operations across all databases"))

	key = "download-bandwidth-cap-mbps"
	ServeCmd.PersistentFlags().Float64(key, 0, cmdUtil.WrapString("Global object-store download rate cap in MiB/s (0 = unlimited); recorded in the configuration only, transfers do not apply it"))

	key = "scratch-direct-io"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("O_DIRECT-style staging toggle for the bulk-ingest scratch directory; recorded in the configuration only, staging does not apply it"))

	key = "allow-overlapping-keys-default"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Global default for whether addExternalFiles may ingest overlapping key ranges"))

	key = "segments-allowing-overlap"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of segments that always allow overlapping-key ingest regardless of the default"))

	key = "compact-after-ingest"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Request a full-range compaction after a successful bulk ingest by default"))

	key = "snapshot-file-suffix"
	ServeCmd.PersistentFlags().String(key, ".sst", cmdUtil.WrapString("File suffix identifying immutable pre-sorted table files under a bulk-ingest path prefix"))

	key = "metadata-checkpoint-interval"
	ServeCmd.PersistentFlags().Int(key, 1000, cmdUtil.WrapString("Number of event-log messages between metadata checkpoints"))

	key = "event-log-consumer-timeout"
	ServeCmd.PersistentFlags().Int64(key, 30, cmdUtil.WrapString("Per-poll event-log consumer timeout in seconds; recorded in the configuration only, the ingestor does not apply it"))

	key = "log-sampling-frequency"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Per-message event-log log sampling frequency (one in every N); recorded in the configuration only, no component applies it"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("Level at which logs will be output (debug, info, warn, error)"))

	key = "object-store-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("S3-compatible object-store endpoint (host:port), empty disables object-store backup/restore/ingest"))

	key = "object-store-access-key"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Object-store access key ID"))

	key = "object-store-secret-key"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Object-store secret access key"))

	key = "object-store-use-ssl"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Use TLS when connecting to the object-store endpoint"))
}

// processConfig reads the configuration from the command line flags and
// environment variables and converts them into internal/config.Config.
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.DFSNameNode = viper.GetString("dfs-namenode")
	serveCmdConfig.MaxConcurrentTransfers = viper.GetInt("max-concurrent-transfers")
	serveCmdConfig.DownloadBandwidthCapMBps = viper.GetFloat64("download-bandwidth-cap-mbps")
	serveCmdConfig.ScratchDirectIO = viper.GetBool("scratch-direct-io")
	serveCmdConfig.AllowOverlappingKeysDefault = viper.GetBool("allow-overlapping-keys-default")
	if segs := viper.GetString("segments-allowing-overlap"); segs != "" {
		serveCmdConfig.SegmentsAllowingOverlap = strings.Split(segs, ",")
	}
	serveCmdConfig.CompactAfterIngest = viper.GetBool("compact-after-ingest")
	serveCmdConfig.SnapshotFileSuffix = viper.GetString("snapshot-file-suffix")
	serveCmdConfig.MetadataCheckpointInterval = viper.GetInt("metadata-checkpoint-interval")
	serveCmdConfig.EventLogConsumerTimeoutSecond = viper.GetInt64("event-log-consumer-timeout")
	serveCmdConfig.LogSamplingFrequency = viper.GetInt("log-sampling-frequency")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	return serveCmdConfig.Validate()
}

// run boots every component the admin Handler needs and starts the RPC
// server.
func run(_ *cobra.Command, _ []string) error {
	cfg := serveCmdConfig

	if err := logging.Init(cfg.LogLevel); err != nil {
		return err
	}

	metaDir := cfg.DataDir + "/meta_db"
	meta, err := metadata.Open(metaDir)
	if err != nil {
		return fmt.Errorf("open metadata store at %s: %w", metaDir, err)
	}

	reg := registry.New()
	locks := registry.NewLockMap()
	opener := memengine.NewOpener()
	dfsEnv := localfs.New(cfg.DFSNameNode, cfg.DataDir+"/dfs")
	broker := refimpl.NewRegistry()

	var osCache *objectstore.Cache
	if endpoint := viper.GetString("object-store-endpoint"); endpoint != "" {
		factory := objectstore.NewMinioFactory(objectstore.MinioConfig{
			Endpoint:        endpoint,
			AccessKeyID:     viper.GetString("object-store-access-key"),
			SecretAccessKey: viper.GetString("object-store-secret-key"),
			UseSSL:          viper.GetBool("object-store-use-ssl"),
		})
		osCache = objectstore.NewCache(factory)
	} else {
		osCache = objectstore.NewCache(func(key objectstore.ClientKey) (objectstore.Env, error) {
			return nil, fmt.Errorf("object store not configured: set --object-store-endpoint")
		})
	}
	gate := objectstore.NewGate(cfg.MaxConcurrentTransfers)

	handler := admin.New(cfg, reg, locks, meta, osCache, gate, opener, dfsEnv, broker)

	s, err := getSerializer()
	if err != nil {
		return err
	}

	t, err := getTransport()
	if err != nil {
		return err
	}

	serverConfig := common.ServerConfig{
		TimeoutSecond: cfg.TimeoutSecond,
		Endpoint:      cfg.Endpoint,
		LogLevel:      cfg.LogLevel,
	}

	serv := server.NewRPCServer(serverConfig, t, s, handler)

	return serv.Serve()
}

func getSerializer() (serializer.IRPCSerializer, error) {
	switch viper.GetString("serializer") {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	case "binary":
		return serializer.NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

func getTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpServerTransport(), nil
	case "tcp":
		return tcp.NewTCPServerTransport(64 * 1024), nil
	case "unix":
		return unix.NewUnixServerTransport(64 * 1024), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// initConfig reads env files and ENV variables if set.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("shardctl")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
