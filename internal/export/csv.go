package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/tidemetrics/adrecon/internal/models"
)

// Header is the exact dashboard export header. Amounts are in DH (local
// currency).
var Header = []string{
	"Produit",
	"Pays",
	"Dépenses (DH)",
	"Livraisons",
	"Revenus (DH)",
	"Profit Net (DH)",
	"CPD (DH)",
	"ROI (%)",
	"Performance",
}

// WriteCSV streams the reconciled records as a UTF-8 comma-separated
// export, numeric fields formatted to 2 decimals.
func WriteCSV(w io.Writer, records []models.ReconciledRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.Key.Product,
			r.Key.Country,
			format2(r.SpendConverted),
			fmt.Sprintf("%d", r.DeliveryCount),
			format2(r.Revenue),
			format2(r.NetProfit),
			format2(r.CPD),
			format2(r.ROI),
			string(r.Tier),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func format2(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
