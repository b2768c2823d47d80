package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/depot/internal/bytesize"
	"github.com/marmos91/depot/internal/cli/output"
	"github.com/marmos91/depot/pkg/config"
	"github.com/marmos91/depot/pkg/registry"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage registered users",
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users and their quota usage",
	Long: `List the accounts in the user registry file.

This reads the registry file directly, so it reflects the state persisted
by the server (the running server persists on every quota change).`,
	RunE: runUserList,
}

func init() {
	userCmd.AddCommand(userListCmd)
}

func runUserList(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	reg := registry.New(registry.Config{
		Path:       cfg.Storage.UsersFile,
		QuotaLimit: cfg.Storage.UserQuota.Uint64(),
		MaxUsers:   cfg.Storage.MaxUsers,
	})
	if err := reg.Load(); err != nil {
		return fmt.Errorf("failed to load user registry: %w", err)
	}

	accounts := reg.Accounts()
	if len(accounts) == 0 {
		fmt.Println("No users registered.")
		return nil
	}

	table := output.NewTableData("ID", "Username", "Quota Used", "Quota Limit")
	for _, acct := range accounts {
		table.AddRow(
			fmt.Sprintf("%d", acct.ID),
			acct.Username,
			bytesize.ByteSize(acct.QuotaUsed).String(),
			cfg.Storage.UserQuota.String(),
		)
	}

	return output.PrintTable(os.Stdout, table)
}
