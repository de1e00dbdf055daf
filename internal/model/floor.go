package model

// FloorRule is one row of the price floor table: the minimum amount a
// booking of the given modality may be charged after credit.  An empty
// Modality is the default rule used when no specific one matches.
type FloorRule struct {
	Modality      string `json:"modality"`
	MinPriceMinor int64  `json:"minPriceMinor"`
}
