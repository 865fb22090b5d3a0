package business

import (
	"fmt"
	"io"
	"sync"

	"github.com/openkcm/contract-calculator/internal/calculator"
	"github.com/openkcm/contract-calculator/internal/wallet"
)

// viewPrinter renders orchestrator views as plain text.
type viewPrinter struct {
	out io.Writer

	mu          sync.Mutex
	lastToken   string
	lastPending calculator.PendingAction
}

func newViewPrinter(out io.Writer) *viewPrinter {
	return &viewPrinter{out: out}
}

func (p *viewPrinter) observe(v calculator.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v.Connectivity == wallet.AwaitingPairing && v.PairingToken != p.lastToken {
		p.lastToken = v.PairingToken
		_, _ = fmt.Fprintf(p.out, "Scan or paste this pairing request into your wallet:\n\n%s\n\n", v.PairingToken)
	}

	if v.PendingAction != p.lastPending {
		p.lastPending = v.PendingAction
		if v.PendingAction != calculator.NoAction {
			_, _ = fmt.Fprintf(p.out, "%s...\n", v.PendingAction)
		}
	}
}

func (p *viewPrinter) printState(v calculator.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	links := v.ExplorerLinks()

	_, _ = fmt.Fprintf(p.out, "Contract:  %s\n", links.Contract)
	if v.AccountAddress != "" {
		_, _ = fmt.Fprintf(p.out, "Account:   %s (%s)\n", v.AccountAddress, links.Account)
		_, _ = fmt.Fprintf(p.out, "Balance:   %s\n", v.FormattedBalance())
	}
	if v.StoredValue != nil {
		_, _ = fmt.Fprintf(p.out, "Stored:    %s\n", v.StoredValue)
	}
	if v.LastOperationHash != "" {
		_, _ = fmt.Fprintf(p.out, "Operation: %s\n", v.LastOperationHash)
	}
}
