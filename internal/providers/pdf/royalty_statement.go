package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateRoyaltyStatement(ctx context.Context, data StatementData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	title := data.Title
	if title == "" {
		title = "Royalty statement"
	}
	m.AddRow(12,
		text.NewCol(12, title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Period: "+data.Period, props.Text{Top: 0}),
			text.New("From: "+data.PeriodStart, props.Text{Top: 5}),
			text.New("To (exclusive): "+data.PeriodEnd, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Royalty rate: "+data.RoyaltyRate, props.Text{Top: 0, Align: align.Right}),
			text.New("Currency: "+data.Currency, props.Text{Top: 5, Align: align.Right}),
			text.New(fmt.Sprintf("Tenants: %d", data.TenantCount), props.Text{Top: 10, Align: align.Right}),
		),
	)

	m.AddRow(10,
		text.NewCol(4, "Tenant", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Events", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Revenue", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Royalty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range data.Lines {
		m.AddRow(8,
			text.NewCol(4, item.TenantID, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.EventCount), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(3, item.TotalRevenue, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(3, item.RoyaltyAmount, props.Text{Size: 9, Align: align.Right}),
		)
	}
	if len(data.Lines) == 0 {
		m.AddRow(8, text.NewCol(12, "No tenant activity in this period.", props.Text{Size: 9}))
	}

	m.AddRow(2, line.NewCol(12))
	m.AddRow(8,
		col.New(6),
		text.NewCol(3, "Total revenue", props.Text{Size: 9}),
		text.NewCol(3, data.TotalRevenue, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(6),
		text.NewCol(3, "Royalty due", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, data.TotalRoyalty, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
