package providers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/bobmcallan/vire/internal/optionscan"
)

// EODHDFundamentalsProvider implements FundamentalsProvider against EODHD's
// fundamentals endpoint, plus a bulk CSV ingest path invoked out-of-band by
// a separate processor.
type EODHDFundamentalsProvider struct {
	client *Client
}

func NewEODHDFundamentalsProvider(client *Client) *EODHDFundamentalsProvider {
	return &EODHDFundamentalsProvider{client: client}
}

type fundamentalsResponse struct {
	Highlights struct {
		MarketCapitalization float64 `json:"MarketCapitalization"`
	} `json:"Highlights"`
	Financials struct {
		BalanceSheet struct {
			Quarterly map[string]struct {
				TotalAssets      flexString `json:"totalAssets"`
				TotalLiabilities flexString `json:"totalLiab"`
				TotalEquity      flexString `json:"totalStockholderEquity"`
			} `json:"quarterly"`
		} `json:"Balance_Sheet"`
		IncomeStatement struct {
			Quarterly map[string]struct {
				TotalRevenue flexString `json:"totalRevenue"`
				NetIncome    flexString `json:"netIncome"`
			} `json:"quarterly"`
		} `json:"Income_Statement"`
		CashFlow struct {
			Quarterly map[string]struct {
				OperatingCashFlow flexString `json:"totalCashFromOperatingActivities"`
			} `json:"quarterly"`
		} `json:"Cash_Flow"`
	} `json:"Financials"`
	SharesStats struct {
		SharesOutstanding float64 `json:"SharesOutstanding"`
	} `json:"SharesStats"`
}

// flexString tolerates EODHD's habit of returning "" for missing values.
type flexString float64

func (f *flexString) UnmarshalJSON(data []byte) error {
	s := string(data)
	s = trimQuotes(s)
	if s == "" || s == "null" || s == "N/A" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexString(v)
	return nil
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func (p *EODHDFundamentalsProvider) GetBySymbol(ctx context.Context, symbol optionscan.Symbol) (*optionscan.Fundamentals, error) {
	var resp fundamentalsResponse
	path := fmt.Sprintf("/fundamentals/%s", symbol)
	if err := p.client.Get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("%w: getBySymbol(%s): %v", optionscan.ErrProvider, symbol, err)
	}

	var totalAssets, totalLiabilities, totalEquity, revenue, netIncome, ocf float64
	for _, q := range resp.Financials.BalanceSheet.Quarterly {
		totalAssets = float64(q.TotalAssets)
		totalLiabilities = float64(q.TotalLiabilities)
		totalEquity = float64(q.TotalEquity)
		break
	}
	for _, q := range resp.Financials.IncomeStatement.Quarterly {
		revenue = float64(q.TotalRevenue)
		netIncome = float64(q.NetIncome)
		break
	}
	for _, q := range resp.Financials.CashFlow.Quarterly {
		ocf = float64(q.OperatingCashFlow)
		break
	}

	fscore, zscore := piotroskiAndAltman(totalAssets, totalLiabilities, totalEquity, revenue, netIncome, ocf)

	return &optionscan.Fundamentals{
		Symbol:            symbol,
		ReportDate:        time.Now(),
		PiotroskiFScore:   fscore,
		AltmanZScore:      zscore,
		MarketCapBillions: resp.Highlights.MarketCapitalization / 1e9,
		TotalAssets:       totalAssets,
		TotalLiabilities:  totalLiabilities,
		TotalEquity:       totalEquity,
		Revenue:           revenue,
		NetIncome:         netIncome,
		OperatingCashFlow: ocf,
		SharesOutstanding: int64(resp.SharesStats.SharesOutstanding),
	}, nil
}

// piotroskiAndAltman derives the two headline health scalars from the raw
// balance-sheet figures. This is a simplified, single-period approximation
// (the full 9-signal Piotroski test needs a prior-period comparison that
// the single-snapshot endpoint response does not carry): the F-score here
// counts five checks, so it ranges 0-5.
func piotroskiAndAltman(totalAssets, totalLiabilities, totalEquity, revenue, netIncome, ocf float64) (int, float64) {
	score := 0
	if netIncome > 0 {
		score++
	}
	if ocf > 0 {
		score++
	}
	if ocf > netIncome {
		score++
	}
	if totalAssets > 0 && totalLiabilities/totalAssets < 0.5 {
		score++
	}
	if totalEquity > 0 {
		score++
	}

	zscore := 0.0
	if totalAssets > 0 {
		workingCapitalRatio := (totalEquity - totalLiabilities) / totalAssets
		zscore = 1.2*workingCapitalRatio + 3.3*(netIncome/totalAssets) + 0.6*(totalEquity/maxFloat(totalLiabilities, 1)) + 1.0*(revenue/totalAssets)
	}

	return score, zscore
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// IngestCSV parses a bulk fundamentals export row by row through a
// buffered csv.Reader and returns every parsed row in one slice; it does
// not write to the store. Rows with an empty symbol are skipped.
func IngestCSV(r io.Reader) ([]optionscan.Fundamentals, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read csv header: %v", optionscan.ErrDataValidation, err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	required := []string{"symbol", "piotroski_f_score", "altman_z_score"}
	for _, r := range required {
		if _, ok := col[r]; !ok {
			return nil, fmt.Errorf("%w: csv missing column %q", optionscan.ErrDataValidation, r)
		}
	}

	var out []optionscan.Fundamentals
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read csv row: %v", optionscan.ErrDataValidation, err)
		}

		symbol := optionscan.NormalizeSymbol(record[col["symbol"]])
		if symbol == "" {
			continue
		}
		fscore, _ := strconv.Atoi(record[col["piotroski_f_score"]])
		zscore, _ := strconv.ParseFloat(record[col["altman_z_score"]], 64)

		out = append(out, optionscan.Fundamentals{
			Symbol:          symbol,
			ReportDate:      time.Now(),
			PiotroskiFScore: fscore,
			AltmanZScore:    zscore,
		})
	}
	return out, nil
}
