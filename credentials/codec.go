package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
)

// record is the storage encoding shared by the persistent repos. When a sealer
// is configured the credential payload is kept only in Sealed.
type record struct {
	Row
	Sealed []byte `json:"sealed,omitempty"`
}

// Key returns the storage key for a tenant's credential.
func Key(tenantID string, integration IntegrationType) string {
	return string(integration) + "/" + tenantID
}

// EncodeRow serialises a row for storage, sealing the payload when sealer is
// not nil. The key is bound into the seal so a payload cannot be moved between
// tenants.
func EncodeRow(row *Row, sealer Sealer) ([]byte, error) {
	rec := record{Row: *row}
	if sealer != nil && len(row.Credentials) > 0 {
		sealed, err := sealer.Seal(row.Credentials, []byte(Key(row.TenantID, row.IntegrationType)))
		if err != nil {
			return nil, fmt.Errorf("[EncodeRow] %s: %w", row.TenantID, err)
		}
		rec.Credentials = nil
		rec.Sealed = sealed
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("[EncodeRow] %s: %w", row.TenantID, err)
	}
	return data, nil
}

// DecodeError reports a stored record that could not be decoded. TenantID and
// Status are set when the record's envelope was readable.
type DecodeError struct {
	TenantID string
	Status   Status
	Err      error
}

func (e *DecodeError) Error() string {
	if e.TenantID == "" {
		return fmt.Sprintf("[DecodeRow] %v", e.Err)
	}
	return fmt.Sprintf("[DecodeRow] %s: %v", e.TenantID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeRow is the inverse of EncodeRow. Failures are returned as *DecodeError.
func DecodeRow(data []byte, sealer Sealer) (*Row, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &DecodeError{Err: err}
	}
	row := rec.Row
	if len(rec.Sealed) > 0 {
		if sealer == nil {
			return nil, &DecodeError{TenantID: row.TenantID, Status: row.Status, Err: errors.New("payload is sealed but no sealer is configured")}
		}
		plain, err := sealer.Open(rec.Sealed, []byte(Key(row.TenantID, row.IntegrationType)))
		if err != nil {
			return nil, &DecodeError{TenantID: row.TenantID, Status: row.Status, Err: err}
		}
		row.Credentials = plain
	}
	return &row, nil
}
