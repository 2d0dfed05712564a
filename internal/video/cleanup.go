package video

import (
	"context"
	"log/slog"
	"time"

	"github.com/nicoplay/nicoplay/internal/database"
)

// PurgeOrphanedFiles deletes media of deleted videos whose background purge
// never finished.
func PurgeOrphanedFiles(ctx context.Context, db database.DBTX, storage ObjectStorage) {
	rows, err := db.Query(ctx,
		`SELECT file_key, COALESCE(thumbnail_key, '') FROM videos
		 WHERE status = 'deleted' AND file_purged_at IS NULL
		 LIMIT 50`)
	if err != nil {
		slog.Error("cleanup: failed to query orphaned files", "error", err)
		return
	}

	type orphan struct{ fileKey, thumbKey string }
	var orphans []orphan
	for rows.Next() {
		var o orphan
		if err := rows.Scan(&o.fileKey, &o.thumbKey); err != nil {
			slog.Error("cleanup: failed to scan file key", "error", err)
			continue
		}
		orphans = append(orphans, o)
	}
	if err := rows.Err(); err != nil {
		slog.Error("cleanup: row iteration error", "error", err)
	}
	rows.Close()

	for _, o := range orphans {
		if o.thumbKey != "" {
			if err := deleteWithRetry(ctx, storage, o.thumbKey, 3); err != nil {
				slog.Error("cleanup: failed to delete thumbnail", "key", o.thumbKey, "error", err)
				continue
			}
		}
		if err := deleteWithRetry(ctx, storage, o.fileKey, 3); err != nil {
			slog.Error("cleanup: failed to delete file", "key", o.fileKey, "error", err)
			continue
		}
		if _, err := db.Exec(ctx,
			`UPDATE videos SET file_purged_at = now() WHERE file_key = $1`,
			o.fileKey,
		); err != nil {
			slog.Error("cleanup: failed to mark purged", "key", o.fileKey, "error", err)
		}
	}
}

func StartCleanupLoop(ctx context.Context, db database.DBTX, storage ObjectStorage, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("cleanup: shutting down")
				return
			case <-ticker.C:
				PurgeOrphanedFiles(ctx, db, storage)
			}
		}
	}()
}
