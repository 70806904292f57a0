package pdf

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStatement(t *testing.T) {
	provider := New()

	for _, lines := range [][]StatementLine{
		nil,
		{
			{Date: "2026-03-01", Description: "Ticket payout", Reference: "1751", Credit: "6", Balance: "6"},
			{Date: "2026-03-04", Description: "Withdrawal", Reference: "01J0", Debit: "5", Balance: "1"},
		},
	} {
		r, err := provider.GenerateStatement(context.Background(), StatementData{
			CreativeName:   "Rina",
			CreativeEmail:  "rina@example.com",
			Period:         "2026-03-01 to 2026-04-01",
			GeneratedAt:    "2026-04-01",
			OpeningBalance: "0",
			TotalCredits:   "6",
			TotalDebits:    "5",
			ClosingBalance: "1",
			Lines:          lines,
		})
		require.NoError(t, err)

		body, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "%PDF", string(body[:4]))
	}
}
