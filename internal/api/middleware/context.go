package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/ideahub/pkg/models"
)

type contextKey string

const (
	keyRecordKey contextKey = "key_record"
	keySlotKey   contextKey = "key_slot"
)

// keySlot lets an outer middleware see the key resolved further down the
// chain, since Authenticate hands a new request to its successor.
type keySlot struct {
	rec *models.KeyRecord
}

func withKeySlot(ctx context.Context) (context.Context, *keySlot) {
	slot := &keySlot{}
	return context.WithValue(ctx, keySlotKey, slot), slot
}

// SetKeyRecord stores the authenticated key in ctx and in the enclosing
// request log slot, if there is one.
func SetKeyRecord(ctx context.Context, rec *models.KeyRecord) context.Context {
	if slot, ok := ctx.Value(keySlotKey).(*keySlot); ok {
		slot.rec = rec
	}
	return context.WithValue(ctx, keyRecordKey, rec)
}

// GetKeyRecord returns the key set by Authenticate, if any.
func GetKeyRecord(r *http.Request) (*models.KeyRecord, bool) {
	rec, ok := r.Context().Value(keyRecordKey).(*models.KeyRecord)
	return rec, ok && rec != nil
}
