// Package statement assembles a creative's ledger activity over a period
// and renders it as a PDF earnings statement.
package statement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dustin/go-humanize"
	"github.com/smallbiznis/tokenledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	"github.com/smallbiznis/tokenledger/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MaxPeriod bounds a single statement.
const MaxPeriod = 366 * 24 * time.Hour

var ErrPeriodTooLong = errors.New("statement_period_too_long")

type Statement struct {
	Creative ledgerdomain.Creative      `json:"creative"`
	From     time.Time                  `json:"from"`
	To       time.Time                  `json:"to"`
	Opening  int64                      `json:"opening_balance"`
	Credits  int64                      `json:"total_credits"`
	Debits   int64                      `json:"total_debits"`
	Closing  int64                      `json:"closing_balance"`
	Entries  []ledgerdomain.LedgerEntry `json:"entries"`
}

type Service interface {
	Build(ctx context.Context, creativeID snowflake.ID, from, to time.Time) (*Statement, error)
	Render(ctx context.Context, creativeID snowflake.ID, from, to time.Time) ([]byte, error)
}

type Params struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	Ledger ledgerdomain.Service
	PDF    pdf.Provider
}

type service struct {
	log    *zap.Logger
	clock  clock.Clock
	ledger ledgerdomain.Service
	pdf    pdf.Provider
}

func NewService(p Params) Service {
	return &service{
		log:    p.Log.Named("statement.service"),
		clock:  p.Clock,
		ledger: p.Ledger,
		pdf:    p.PDF,
	}
}

// Build returns entries in [from, to) oldest first. The opening balance is
// derived by unwinding every entry posted since from off the current balance,
// so it is correct even for a period with no activity.
func (s *service) Build(ctx context.Context, creativeID snowflake.ID, from, to time.Time) (*Statement, error) {
	from, to = from.UTC(), to.UTC()
	if !from.Before(to) {
		return nil, ledgerdomain.ErrInvalidPeriod
	}
	if to.Sub(from) > MaxPeriod {
		return nil, ErrPeriodTooLong
	}

	creative, err := s.ledger.FindCreative(ctx, creativeID)
	if err != nil {
		return nil, err
	}
	account := ledgerdomain.CreativeAccount(creativeID)

	current, err := s.ledger.BalanceOf(ctx, account)
	if err != nil {
		return nil, err
	}

	until := to
	if now := s.clock.Now().Add(time.Second); now.After(until) {
		until = now
	}
	since, err := s.ledger.EntriesBetween(ctx, account, from, until)
	if err != nil {
		return nil, err
	}

	stmt := &Statement{
		Creative: *creative,
		From:     from,
		To:       to,
		Opening:  current,
	}
	// since is newest first.
	for i := len(since) - 1; i >= 0; i-- {
		entry := since[i]
		stmt.Opening -= entry.SignedAmount()
		if !entry.CreatedAt.Before(to) {
			continue
		}
		stmt.Entries = append(stmt.Entries, entry)
		if entry.Direction == ledgerdomain.DirectionCredit {
			stmt.Credits += entry.Amount
		} else {
			stmt.Debits += entry.Amount
		}
	}
	stmt.Closing = stmt.Opening + stmt.Credits - stmt.Debits
	return stmt, nil
}

func (s *service) Render(ctx context.Context, creativeID snowflake.ID, from, to time.Time) ([]byte, error) {
	stmt, err := s.Build(ctx, creativeID, from, to)
	if err != nil {
		return nil, err
	}

	r, err := s.pdf.GenerateStatement(ctx, toPDFData(stmt, s.clock.Now()))
	if err != nil {
		s.log.Error("failed to render statement", zap.String("creative_id", creativeID.String()), zap.Error(err))
		return nil, err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read statement: %w", err)
	}
	return body, nil
}

const dateLayout = "2006-01-02"

func toPDFData(stmt *Statement, generatedAt time.Time) pdf.StatementData {
	data := pdf.StatementData{
		CreativeName:   stmt.Creative.Name,
		CreativeEmail:  stmt.Creative.Email,
		Period:         stmt.From.Format(dateLayout) + " to " + stmt.To.Format(dateLayout),
		GeneratedAt:    generatedAt.Format(dateLayout),
		OpeningBalance: humanize.Comma(stmt.Opening),
		TotalCredits:   humanize.Comma(stmt.Credits),
		TotalDebits:    humanize.Comma(stmt.Debits),
		ClosingBalance: humanize.Comma(stmt.Closing),
	}

	for _, entry := range stmt.Entries {
		line := pdf.StatementLine{
			Date:        entry.CreatedAt.Format(dateLayout),
			Description: describe(entry.Reason),
			Balance:     humanize.Comma(entry.BalanceAfter),
		}
		if entry.TicketID != nil {
			line.Reference = entry.TicketID.String()
		} else if ref, ok := entry.Metadata["reference"].(string); ok {
			line.Reference = ref
		}
		if entry.Direction == ledgerdomain.DirectionCredit {
			line.Credit = humanize.Comma(entry.Amount)
		} else {
			line.Debit = humanize.Comma(entry.Amount)
		}
		data.Lines = append(data.Lines, line)
	}
	return data
}

func describe(reason ledgerdomain.Reason) string {
	switch reason {
	case ledgerdomain.ReasonTicketPayout:
		return "Ticket payout"
	case ledgerdomain.ReasonWithdrawal:
		return "Withdrawal"
	case ledgerdomain.ReasonAdminAdjustment:
		return "Adjustment"
	default:
		return string(reason)
	}
}
