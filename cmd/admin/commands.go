package admin

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	addDBCmd = &cobra.Command{
		Use:   "add-db [name] [segment]",
		Short: "Opens (and optionally creates) a database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, segment := args[0], args[1]
			upstreamAddr, _ := cmd.Flags().GetString("upstream-addr")
			role, _ := cmd.Flags().GetString("role")
			overwrite, _ := cmd.Flags().GetBool("overwrite")

			if err := rpcClient.AddDB(name, segment, upstreamAddr, role, overwrite); err != nil {
				return err
			}
			fmt.Println("add-db successful")
			return nil
		},
	}

	closeDBCmd = &cobra.Command{
		Use:   "close-db [name]",
		Short: "Closes a database without destroying its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.CloseDB(args[0]); err != nil {
				return err
			}
			fmt.Println("close-db successful")
			return nil
		},
	}

	clearDBCmd = &cobra.Command{
		Use:   "clear-db [name]",
		Short: "Destroys a database's on-disk data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reopen, _ := cmd.Flags().GetBool("reopen")
			if err := rpcClient.ClearDB(args[0], reopen); err != nil {
				return err
			}
			fmt.Println("clear-db successful")
			return nil
		},
	}

	changeRoleAndUpstreamCmd = &cobra.Command{
		Use:   "change-role-and-upstream [name] [role]",
		Short: "Changes a database's replication role and upstream",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, role := args[0], args[1]
			upstreamAddr, _ := cmd.Flags().GetString("upstream-addr")
			if err := rpcClient.ChangeRoleAndUpstream(name, role, upstreamAddr); err != nil {
				return err
			}
			fmt.Println("change-role-and-upstream successful")
			return nil
		},
	}

	backupDBCmd = &cobra.Command{
		Use:   "backup-db [name]",
		Short: "Takes a local checkpoint backup of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.BackupDB(args[0]); err != nil {
				return err
			}
			fmt.Println("backup-db successful")
			return nil
		},
	}

	restoreDBCmd = &cobra.Command{
		Use:   "restore-db [name] [segment]",
		Short: "Restores a database from its most recent local backup",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, segment := args[0], args[1]
			upstreamAddr, _ := cmd.Flags().GetString("upstream-addr")
			if err := rpcClient.RestoreDB(name, segment, upstreamAddr); err != nil {
				return err
			}
			fmt.Println("restore-db successful")
			return nil
		},
	}

	backupDBToObjectStoreCmd = &cobra.Command{
		Use:   "backup-db-to-object-store [name] [bucket]",
		Short: "Uploads a database backup to the object store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, bucket := args[0], args[1]
			rateLimit, _ := cmd.Flags().GetFloat64("rate-limit-mbps")
			if err := rpcClient.BackupDBToObjectStore(name, bucket, rateLimit); err != nil {
				return err
			}
			fmt.Println("backup-db-to-object-store successful")
			return nil
		},
	}

	restoreDBFromObjectStoreCmd = &cobra.Command{
		Use:   "restore-db-from-object-store [name] [segment] [bucket]",
		Short: "Downloads a database backup from the object store and opens it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, segment, bucket := args[0], args[1], args[2]
			rateLimit, _ := cmd.Flags().GetFloat64("rate-limit-mbps")
			upstreamAddr, _ := cmd.Flags().GetString("upstream-addr")
			if err := rpcClient.RestoreDBFromObjectStore(name, segment, bucket, rateLimit, upstreamAddr); err != nil {
				return err
			}
			fmt.Println("restore-db-from-object-store successful")
			return nil
		},
	}

	addObjectStoreFilesToDBCmd = &cobra.Command{
		Use:   "add-object-store-files-to-db [name] [segment] [bucket] [path]",
		Short: "Bulk-ingests pre-sorted table files from the object store into a database",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, segment, bucket, path := args[0], args[1], args[2], args[3]
			rateLimit, _ := cmd.Flags().GetFloat64("rate-limit-mbps")
			compactAfter, _ := cmd.Flags().GetBool("compact-after")
			if err := rpcClient.AddObjectStoreFilesToDB(name, segment, bucket, path, rateLimit, compactAfter); err != nil {
				return err
			}
			fmt.Println("add-object-store-files-to-db successful")
			return nil
		},
	}

	startMessageIngestionCmd = &cobra.Command{
		Use:   "start-message-ingestion [name] [topic] [broker-set-ref]",
		Short: "Starts event-log ingestion for a database",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, topic, brokerSetRef := args[0], args[1], args[2]
			replayAt, _ := cmd.Flags().GetInt64("replay-timestamp-ms")
			decodePayload, _ := cmd.Flags().GetBool("decode-payload")
			if err := rpcClient.StartMessageIngestion(name, topic, brokerSetRef, replayAt, decodePayload); err != nil {
				return err
			}
			fmt.Println("start-message-ingestion successful")
			return nil
		},
	}

	stopMessageIngestionCmd = &cobra.Command{
		Use:   "stop-message-ingestion [name]",
		Short: "Stops event-log ingestion for a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.StopMessageIngestion(args[0]); err != nil {
				return err
			}
			fmt.Println("stop-message-ingestion successful")
			return nil
		},
	}

	getSequenceNumberCmd = &cobra.Command{
		Use:   "get-sequence-number [name]",
		Short: "Reads a database's latest applied sequence number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := rpcClient.GetSequenceNumber(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("sequenceNumber=%d\n", seq)
			return nil
		},
	}

	checkDBCmd = &cobra.Command{
		Use:   "check-db [name]",
		Short: "Reports health and replication status for a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rpcClient.CheckDB(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("sequenceNumber=%d, walTTLSeconds=%d, isPrimary=%v, lastUpdateTimestampMs=%d\n",
				res.SequenceNumber, res.WALTTLSeconds, res.IsPrimary, res.LastUpdateTimestampMs)
			return nil
		},
	}

	setDBOptionsCmd = &cobra.Command{
		Use:   "set-db-options [name] [key=value]...",
		Short: "Applies runtime-tunable engine options to a database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			options := make(map[string]string, len(args)-1)
			for _, kv := range args[1:] {
				parts := strings.SplitN(kv, "=", 2)
				if len(parts) != 2 {
					return fmt.Errorf("invalid option %q (expected key=value)", kv)
				}
				options[parts[0]] = parts[1]
			}
			if err := rpcClient.SetDBOptions(name, options); err != nil {
				return err
			}
			fmt.Println("set-db-options successful")
			return nil
		},
	}

	compactDBCmd = &cobra.Command{
		Use:   "compact-db [name]",
		Short: "Requests a full-range compaction of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.CompactDB(args[0]); err != nil {
				return err
			}
			fmt.Println("compact-db successful")
			return nil
		},
	}

	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Checks connectivity to the admin server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := rpcClient.Ping()
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}

	dumpStatsCmd = &cobra.Command{
		Use:   "dump-stats",
		Short: "Dumps node-wide diagnostic statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := rpcClient.DumpStats()
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		},
	}
)

func init() {
	addDBCmd.Flags().String("upstream-addr", "", "Upstream address for a replica role; empty for primary")
	addDBCmd.Flags().String("role", "primary", "Replication role: primary, secondary or inert")
	addDBCmd.Flags().Bool("overwrite", false, "Overwrite an already-registered database of the same name")

	clearDBCmd.Flags().Bool("reopen", false, "Reopen the database (empty) after clearing")

	changeRoleAndUpstreamCmd.Flags().String("upstream-addr", "", "New upstream address for a replica role; empty for primary")

	restoreDBCmd.Flags().String("upstream-addr", "", "Upstream address to resume replication from after restore")

	backupDBToObjectStoreCmd.Flags().Float64("rate-limit-mbps", 0, "Upload bandwidth cap in MiB/s (0 = unlimited)")

	restoreDBFromObjectStoreCmd.Flags().Float64("rate-limit-mbps", 0, "Download bandwidth cap in MiB/s (0 = unlimited)")
	restoreDBFromObjectStoreCmd.Flags().String("upstream-addr", "", "Upstream address to resume replication from after restore")

	addObjectStoreFilesToDBCmd.Flags().Float64("rate-limit-mbps", 0, "Download bandwidth cap in MiB/s (0 = unlimited)")
	addObjectStoreFilesToDBCmd.Flags().Bool("compact-after", false, "Request a full-range compaction after ingest")

	startMessageIngestionCmd.Flags().Int64("replay-timestamp-ms", 0, "Replay event-log messages from this timestamp (0 = from the last checkpoint)")
	startMessageIngestionCmd.Flags().Bool("decode-payload", false, "Decode the tagged {op-code, value} payload format instead of treating every message as a Put")
}
