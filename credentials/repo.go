package credentials

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Repo is the persistent credential store. Get returns an error wrapping
// errors.ErrNotFound when no row exists for the tenant and integration.
//
// List returns the rows it could decode. When some stored records could not
// be decoded it also returns a *PartialListError naming them, so one corrupt
// record never hides the others.
type Repo interface {
	Get(ctx context.Context, tenantID string, integration IntegrationType) (*Row, error)
	List(ctx context.Context, integration IntegrationType, status Status) ([]*Row, error)
	Upsert(ctx context.Context, row *Row) error
}

// PartialListError lists the tenants whose records List skipped.
type PartialListError struct {
	Integration IntegrationType
	Failed      map[string]error
}

func (e *PartialListError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("[List] %s: %d record(s) could not be decoded: %s", e.Integration, len(ids), strings.Join(ids, ", "))
}

// Record notes that tenantID's record failed to decode. A record whose status
// was readable and is not want would not have been listed, so it is ignored.
func (e *PartialListError) Record(tenantID string, want Status, err error) {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) && decodeErr.Status != "" && decodeErr.Status != want {
		return
	}
	if e.Failed == nil {
		e.Failed = make(map[string]error)
	}
	e.Failed[tenantID] = err
}

// ErrOrNil returns e when it holds failures and nil otherwise.
func (e *PartialListError) ErrOrNil() error {
	if e == nil || len(e.Failed) == 0 {
		return nil
	}
	return e
}
