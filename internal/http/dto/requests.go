package dto

type NonceRequest struct {
	Address string `json:"address"`
}

type LoginRequest struct {
	Address   string `json:"address"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"` // 0x-prefixed personal_sign result
}

// ValueRequest carries an amount either as an ether decimal ("0.5") in
// Value or as an exact integer in Wei. Exactly one must be set.
type ValueRequest struct {
	Value string `json:"value,omitempty"`
	Wei   string `json:"wei,omitempty"`
}

type RejectPaymentsRequest struct {
	Reject bool `json:"reject"`
}
