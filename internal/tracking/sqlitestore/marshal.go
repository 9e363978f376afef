package sqlitestore

import (
	"database/sql"
	"time"
)

// Timestamps are stored as integer unix milliseconds, the convention of
// hosted tracking backends, so values round-trip without timezone or
// sub-millisecond drift.

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(ms sql.NullInt64) time.Time {
	if !ms.Valid {
		return time.Time{}
	}
	return fromMillis(ms.Int64)
}
