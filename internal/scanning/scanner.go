package scanning

// Item is a single validated line item extracted from a receipt.
type Item struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Result is the normalized outcome of one extraction request.
// Date is empty when the receipt carried no usable ISO date.
type Result struct {
	Date    string `json:"date,omitempty"`
	Items   []Item `json:"items"`
	Dropped int    `json:"dropped_items,omitempty"`
}

// Scanner transports a receipt image to a vision model and returns the raw
// text the model produced. Implementations do not interpret the content;
// turning the text into a Result is the normalizer's job.
type Scanner interface {
	Extract(imageData []byte, contentType string) (string, error)
	// Close closes the scanner and releases resources
	Close() error
}
