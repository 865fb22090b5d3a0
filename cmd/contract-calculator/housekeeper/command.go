package housekeeper

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/contract-calculator/internal/business"
	"github.com/openkcm/contract-calculator/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"housekeeper",
		"Contract Calculator housekeeping job",
		"Contract Calculator housekeeping job deletes pairing requests that expired without being cleaned up.",
		buildInfo,
		cmdutils.RunAsService,
		business.HousekeeperMain,
	)
}
