package migrate

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/contract-calculator/internal/business"
	"github.com/openkcm/contract-calculator/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"migrate",
		"Contract Calculator migrations",
		"Applies the database migrations of the sql pairing store.",
		buildInfo,
		cmdutils.RunAsJob,
		business.MigrateMain,
	)
}
