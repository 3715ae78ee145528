package jobs

import (
	"log"

	"gorm.io/gorm"
)

// ReconcileUnreadCounts recomputes every participant's unread counter
// from the message log. The counter tolerates brief staleness but a bug
// or crash between the message insert and the increment could leave
// lasting drift; this nightly pass corrects it.
func ReconcileUnreadCounts(db *gorm.DB) func() {
	return func() {
		log.Println("Running job: ReconcileUnreadCounts...")

		res := db.Exec(`
			UPDATE conversation_participants SET unread_count = (
				SELECT COUNT(*) FROM messages m
				WHERE m.conversation_id = conversation_participants.conversation_id
				  AND m.sender_id <> conversation_participants.user_id
				  AND (conversation_participants.last_read_at IS NULL
				       OR m.created_at > conversation_participants.last_read_at)
			)`)
		if res.Error != nil {
			log.Printf("Error reconciling unread counts: %v", res.Error)
			return
		}
		log.Printf("Reconciled unread counts for %d participant row(s)", res.RowsAffected)
	}
}
