package model

// BalanceSnapshot is a row of the indexing service's materialized balance table.
type BalanceSnapshot struct {
	OwnerAddress string `json:"owner_address"`
	AssetType    string `json:"asset_type"`
	Amount       string `json:"amount"`
}
