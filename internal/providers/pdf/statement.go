package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type StatementData struct {
	CreativeName  string
	CreativeEmail string
	Period        string
	GeneratedAt   string

	OpeningBalance string
	TotalCredits   string
	TotalDebits    string
	ClosingBalance string

	Lines []StatementLine
}

type StatementLine struct {
	Date        string
	Description string
	Reference   string
	Credit      string
	Debit       string
	Balance     string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateStatement(ctx context.Context, data StatementData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Earnings statement", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Generated "+data.GeneratedAt, props.Text{
			Size:  8,
			Align: align.Right,
		}),
	)

	m.AddRow(18,
		col.New(6).Add(
			text.New(data.CreativeName, props.Text{Style: fontstyle.Bold}),
			text.New(data.CreativeEmail, props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New("Period", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(data.Period, props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(10,
		text.NewCol(3, "Opening: "+data.OpeningBalance, props.Text{Size: 9}),
		text.NewCol(3, "Credits: "+data.TotalCredits, props.Text{Size: 9}),
		text.NewCol(3, "Debits: "+data.TotalDebits, props.Text{Size: 9}),
		text.NewCol(3, "Closing: "+data.ClosingBalance, props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(4, line.NewCol(12))

	m.AddRow(8,
		text.NewCol(2, "Date", props.Text{Style: fontstyle.Bold, Size: 8}),
		text.NewCol(3, "Description", props.Text{Style: fontstyle.Bold, Size: 8}),
		text.NewCol(2, "Reference", props.Text{Style: fontstyle.Bold, Size: 8}),
		text.NewCol(1, "In", props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right}),
		text.NewCol(2, "Out", props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right}),
		text.NewCol(2, "Balance", props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right}),
	)

	if len(data.Lines) == 0 {
		m.AddRow(10, text.NewCol(12, "No activity in this period.", props.Text{Size: 8, Style: fontstyle.Italic}))
	}
	for _, l := range data.Lines {
		m.AddRow(7,
			text.NewCol(2, l.Date, props.Text{Size: 8}),
			text.NewCol(3, l.Description, props.Text{Size: 8}),
			text.NewCol(2, l.Reference, props.Text{Size: 8}),
			text.NewCol(1, l.Credit, props.Text{Size: 8, Align: align.Right}),
			text.NewCol(2, l.Debit, props.Text{Size: 8, Align: align.Right}),
			text.NewCol(2, l.Balance, props.Text{Size: 8, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
