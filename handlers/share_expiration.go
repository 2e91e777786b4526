package handlers

import (
	"database/sql"
	"time"
)

// ShareExpirationChecker watches for share links approaching their
// expiry and notifies owners over their live connections. Expired rows
// are never deleted here; expiry is enforced at resolution time so the
// expired state stays reportable.
type ShareExpirationChecker struct {
	db  *sql.DB
	hub *EventHub
}

// NewShareExpirationChecker creates a new ShareExpirationChecker
func NewShareExpirationChecker(db *sql.DB, hub *EventHub) *ShareExpirationChecker {
	return &ShareExpirationChecker{
		db:  db,
		hub: hub,
	}
}

// StartBackgroundCheck starts the background expiration check routine.
// Checks for shares expiring within the next 24 hours.
func (c *ShareExpirationChecker) StartBackgroundCheck(checkInterval time.Duration) {
	go func() {
		c.checkExpiringShares()

		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		for range ticker.C {
			c.checkExpiringShares()
		}
	}()
	LogInfo("share expiration checker started", "interval", checkInterval.String())
}

// checkExpiringShares finds shares expiring soon and notifies their owners
func (c *ShareExpirationChecker) checkExpiringShares() {
	rows, err := c.db.Query(`
		SELECT s.id, s.link_token, s.item_type, s.item_id, s.created_by, s.expires_at
		FROM shares s
		WHERE s.expires_at > NOW()
		  AND s.expires_at <= NOW() + INTERVAL '24 hours'
		  AND (s.expiration_notified IS NULL OR s.expiration_notified = FALSE)
	`)
	if err != nil {
		LogError("failed to query expiring shares", err)
		return
	}
	defer rows.Close()

	var notified int
	for rows.Next() {
		var shareID, token, itemType, itemID, createdBy string
		var expiresAt time.Time

		if err := rows.Scan(&shareID, &token, &itemType, &itemID, &createdBy, &expiresAt); err != nil {
			LogError("failed to scan expiring share", err)
			continue
		}

		if c.hub != nil {
			c.hub.Broadcast(createdBy, Event{
				Type:     "share.expiring",
				ItemType: itemType,
				ItemID:   itemID,
			})
		}

		_, err = c.db.Exec(`
			UPDATE shares
			SET expiration_notified = TRUE, expiration_notified_at = NOW()
			WHERE id = $1
		`, shareID)
		if err != nil {
			LogError("failed to mark share as notified", err, "share_id", shareID)
			continue
		}

		notified++
		LogInfo("share expiring soon", "share_id", shareID, "user_id", createdBy,
			"expires_at", expiresAt.Format(time.RFC3339))
	}

	if notified > 0 {
		LogInfo("sent expiration notifications", "count", notified)
	}
}
