package model

// DefaultCoAPort is the RFC 3576 dynamic authorization port.
const DefaultCoAPort = 3799

// NAS is a registered access device.
type NAS struct {
	Addr       string `json:"addr"`
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	VendorID   uint32 `json:"vendor_id"`
	CoAPort    int    `json:"coa_port"`
}
