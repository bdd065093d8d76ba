package admin

import (
	"github.com/ValentinKolb/shardctl/cmd/util"
	"github.com/ValentinKolb/shardctl/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.AdminClient

	// AdminCommands represents the admin command group: one subcommand per
	// command-catalogue row.
	AdminCommands = &cobra.Command{
		Use:               "admin",
		Short:             "Perform admin control-plane operations against a shardctl node",
		PersistentPreRunE: setupAdminClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	util.SetupRPCClientFlags(AdminCommands)

	AdminCommands.AddCommand(addDBCmd)
	AdminCommands.AddCommand(closeDBCmd)
	AdminCommands.AddCommand(clearDBCmd)
	AdminCommands.AddCommand(changeRoleAndUpstreamCmd)
	AdminCommands.AddCommand(backupDBCmd)
	AdminCommands.AddCommand(restoreDBCmd)
	AdminCommands.AddCommand(backupDBToObjectStoreCmd)
	AdminCommands.AddCommand(restoreDBFromObjectStoreCmd)
	AdminCommands.AddCommand(addObjectStoreFilesToDBCmd)
	AdminCommands.AddCommand(startMessageIngestionCmd)
	AdminCommands.AddCommand(stopMessageIngestionCmd)
	AdminCommands.AddCommand(getSequenceNumberCmd)
	AdminCommands.AddCommand(checkDBCmd)
	AdminCommands.AddCommand(setDBOptionsCmd)
	AdminCommands.AddCommand(compactDBCmd)
	AdminCommands.AddCommand(pingCmd)
	AdminCommands.AddCommand(dumpStatsCmd)
}

// setupAdminClient initializes the RPC admin client
func setupAdminClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetClientConfig()

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	rpcClient, err = client.NewAdminClient(*config, t, s)
	return err
}
