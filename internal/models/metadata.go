package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// TransactionMetadata accumulates what creation and reconciliation learn about a
// transaction. Nil fields are unknown; Merge never clears a known field.
type TransactionMetadata struct {
	Destination         *string `json:"destination,omitempty"`
	Description         *string `json:"description,omitempty"`
	QRCopyPaste         *string `json:"qr_copy_paste,omitempty"`
	QRImageURL          *string `json:"qr_image_url,omitempty"`
	PayerName           *string `json:"payer_name,omitempty"`
	PayerTaxId          *string `json:"payer_tax_id,omitempty"`
	BlockchainTxId      *string `json:"blockchain_tx_id,omitempty"`
	ProviderStatus      *string `json:"provider_status,omitempty"`
	IsValidationPayment *bool   `json:"is_validation_payment,omitempty"`
}

// Merge copies every known field of patch over m
func (m *TransactionMetadata) Merge(patch TransactionMetadata) {
	mergeString(&m.Destination, patch.Destination)
	mergeString(&m.Description, patch.Description)
	mergeString(&m.QRCopyPaste, patch.QRCopyPaste)
	mergeString(&m.QRImageURL, patch.QRImageURL)
	mergeString(&m.PayerName, patch.PayerName)
	mergeString(&m.PayerTaxId, patch.PayerTaxId)
	mergeString(&m.BlockchainTxId, patch.BlockchainTxId)
	mergeString(&m.ProviderStatus, patch.ProviderStatus)
	if patch.IsValidationPayment != nil {
		v := *patch.IsValidationPayment
		m.IsValidationPayment = &v
	}
}

// IsEmpty reports whether no field is known
func (m TransactionMetadata) IsEmpty() bool {
	return m == TransactionMetadata{}
}

// Equal compares the known values of two metadata sets
func (m TransactionMetadata) Equal(other TransactionMetadata) bool {
	a, errA := json.Marshal(m)
	b, errB := json.Marshal(other)
	return errA == nil && errB == nil && string(a) == string(b)
}

func mergeString(dst **string, src *string) {
	if src == nil {
		return
	}
	v := *src
	*dst = &v
}

// Value stores the metadata as a JSON document
func (m TransactionMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads the JSON document written by Value
func (m *TransactionMetadata) Scan(src any) error {
	*m = TransactionMetadata{}
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported metadata column type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, m)
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning "" for nil
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
