package storage

import "time"

// BaseRepository holds what every repository shares.
type BaseRepository struct {
	db  *DB
	now func() time.Time
}

// NewBaseRepository creates a base repository over db.
func NewBaseRepository(db *DB) BaseRepository {
	return BaseRepository{db: db, now: time.Now}
}

// DB returns the underlying connection.
func (r *BaseRepository) DB() *DB {
	return r.db
}

// Now returns the current time in UTC.
func (r *BaseRepository) Now() time.Time {
	return r.now().UTC()
}

// Unix returns Now as Unix seconds, the form timestamps are stored in.
func (r *BaseRepository) Unix() int64 {
	return r.Now().Unix()
}
