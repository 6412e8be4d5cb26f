package netstats

import "time"

// Message is the wire form of a Snapshot published to external sinks.
type Message struct {
	Network       string    `json:"network"`
	ChainName     string    `json:"chain_name,omitempty"`
	ChainID       int64     `json:"chain_id,omitempty"`
	Generation    uint64    `json:"generation"`
	BlockNumber   uint64    `json:"block_number"`
	GasPriceWei   string    `json:"gas_price_wei,omitempty"`
	GasPriceGwei  float64   `json:"gas_price_gwei"`
	WindowSize    int       `json:"window_size"`
	WindowSpan    uint64    `json:"window_span_seconds"`
	AvgDifficulty float64   `json:"avg_difficulty"`
	HashRate      float64   `json:"hash_rate"`
	TxRate        float64   `json:"tx_rate"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Message converts s to its wire form.
func (s Snapshot) Message() Message {
	msg := Message{
		Network:       s.Network.Label(),
		ChainName:     s.Info.Name,
		ChainID:       s.Info.ChainID,
		Generation:    s.Generation,
		BlockNumber:   s.BlockNumber,
		GasPriceGwei:  s.GasPriceGwei,
		WindowSize:    s.Window.Size,
		WindowSpan:    s.Window.Span,
		AvgDifficulty: s.Window.AvgDifficulty,
		HashRate:      s.Window.HashRate,
		TxRate:        s.Window.TxRate,
		UpdatedAt:     s.UpdatedAt,
	}

	if s.GasPriceWei != nil {
		msg.GasPriceWei = s.GasPriceWei.String()
	}

	return msg
}
