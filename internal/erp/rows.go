package erp

import (
	"context"
	"database/sql"
	"fmt"
)

type ProductRow struct {
	Sku          sql.NullString
	Name         sql.NullString
	Stock        any
	Price        any
	Manufacturer sql.NullString
	Unit         sql.NullString
	Barcode      sql.NullString
}

type ClientRow struct {
	ErpID   sql.NullString
	Name    sql.NullString
	Address sql.NullString
	City    sql.NullString
	Zip     sql.NullString
	Phone   sql.NullString
	Email   sql.NullString
	TaxID   sql.NullString
}

type BranchRow struct {
	ErpID       sql.NullString
	ClientErpID sql.NullString
	Name        sql.NullString
	Address     sql.NullString
	City        sql.NullString
	Zip         sql.NullString
	Phone       sql.NullString
}

// Products reads the full stock list from table (validated by QuoteTable).
func (s *Source) Products(ctx context.Context, table string) ([]ProductRow, error) {
	qt, err := QuoteTable(table)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT Sku, Name, Stock, Price, Manufacturer, Unit, Barcode FROM %s`, qt)
	var out []ProductRow
	err = s.query(ctx, q, func(rows *sql.Rows) error {
		var r ProductRow
		if err := rows.Scan(&r.Sku, &r.Name, &r.Stock, &r.Price, &r.Manufacturer, &r.Unit, &r.Barcode); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *Source) Clients(ctx context.Context) ([]ClientRow, error) {
	qt, err := QuoteTable(s.cfg.ClientTable)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT ErpId, Name, Address, City, Zip, Phone, Email, TaxId FROM %s`, qt)
	var out []ClientRow
	err = s.query(ctx, q, func(rows *sql.Rows) error {
		var r ClientRow
		if err := rows.Scan(&r.ErpID, &r.Name, &r.Address, &r.City, &r.Zip, &r.Phone, &r.Email, &r.TaxID); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *Source) Branches(ctx context.Context) ([]BranchRow, error) {
	qt, err := QuoteTable(s.cfg.BranchTable)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT ErpId, ClientErpId, Name, Address, City, Zip, Phone FROM %s`, qt)
	var out []BranchRow
	err = s.query(ctx, q, func(rows *sql.Rows) error {
		var r BranchRow
		if err := rows.Scan(&r.ErpID, &r.ClientErpID, &r.Name, &r.Address, &r.City, &r.Zip, &r.Phone); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}
