package invoke

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openkcm/contract-calculator/internal/business"
	"github.com/openkcm/contract-calculator/internal/calculator"
	"github.com/openkcm/contract-calculator/internal/cmdutils"
	"github.com/openkcm/contract-calculator/internal/config"
	"github.com/openkcm/contract-calculator/internal/contract"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommandWithArgs(
		"invoke <add|multiply> <a> <b>",
		"Invoke the calculator contract",
		"Pairs a wallet, submits one add or multiply operation to the calculator contract and prints the resulting state. Put -- before negative operands.",
		buildInfo,
		cobra.ExactArgs(3),
		cmdutils.RunAsTracedJob,
		bind,
	)
}

func bind(args []string) (cmdutils.BusinessFunc, error) {
	req := calculator.OperationRequest{
		Kind:     contract.EntryPoint(args[0]),
		OperandA: args[1],
		OperandB: args[2],
	}

	if !req.Kind.Valid() {
		return nil, fmt.Errorf("unknown operation %q, expected %q or %q", args[0], contract.Add, contract.Multiply)
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return func(ctx context.Context, cfg *config.Config) error {
		return business.InvokeMain(ctx, cfg, req, os.Stdout)
	}, nil
}
