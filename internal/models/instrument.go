package models

// AssetType classifies an instrument by venue asset class
type AssetType string

// Asset types accepted by the venue API and the market schema
const (
	AssetFxSpot          AssetType = "FxSpot"
	AssetCfdOnIndex      AssetType = "CfdOnIndex"
	AssetCfdOnFutures    AssetType = "CfdOnFutures"
	AssetCfdOnStock      AssetType = "CfdOnStock"
	AssetStock           AssetType = "Stock"
	AssetStockIndex      AssetType = "StockIndex"
	AssetContractFutures AssetType = "ContractFutures"
)

// AssetTypes returns every supported asset class
func AssetTypes() []AssetType {
	return []AssetType{
		AssetFxSpot, AssetCfdOnIndex, AssetCfdOnFutures, AssetCfdOnStock,
		AssetStock, AssetStockIndex, AssetContractFutures,
	}
}

// Valid reports whether the asset type is one of the supported classes
func (a AssetType) Valid() bool {
	for _, t := range AssetTypes() {
		if a == t {
			return true
		}
	}
	return false
}

// Quoted reports whether bars of this asset class carry ask/bid columns
func (a AssetType) Quoted() bool {
	switch a {
	case AssetFxSpot, AssetCfdOnIndex, AssetCfdOnFutures, AssetCfdOnStock,
		AssetStockIndex, AssetContractFutures:
		return true
	}
	return false
}

// Instrument represents one tradable symbol in market.instrument.
// Identity is the (uic, asset_type) pair; id is generated on first insert.
type Instrument struct {
	ID          int64     `db:"id" json:"id"`
	Description string    `db:"description" json:"description"`
	UIC         int64     `db:"uic" json:"uic" validate:"required,gt=0"`
	AssetType   AssetType `db:"asset_type" json:"asset_type" validate:"required"`
	Symbol      string    `db:"symbol" json:"symbol" validate:"required"`
	Currency    string    `db:"currency" json:"currency"`
	Exchange    string    `db:"exchange" json:"exchange"`
}

// InstrumentKey identifies an instrument by its natural key
type InstrumentKey struct {
	UIC       int64     `json:"uic"`
	AssetType AssetType `json:"asset_type"`
}

// Key returns the instrument's natural key
func (i *Instrument) Key() InstrumentKey {
	return InstrumentKey{UIC: i.UIC, AssetType: i.AssetType}
}

// Validate performs basic validation on the instrument
func (i *Instrument) Validate() error {
	if i.UIC <= 0 {
		return NewValidationError("uic", "must be a positive venue identifier")
	}
	if !i.AssetType.Valid() {
		return NewValidationError("asset_type", "unknown asset type "+string(i.AssetType))
	}
	if i.Symbol == "" {
		return NewValidationError("symbol", "must not be empty")
	}
	return nil
}
