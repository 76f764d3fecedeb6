package matchstore

import "strings"

const (
	keyExpireIdx    = "duo:idx:expire"
	keyLobbyIdx     = "duo:idx:lobby"
	keyCompletedIdx = "duo:idx:completed"
	keyQueue        = "duo:queue"
	keyTicketIdx    = "duo:idx:tickets"

	deletedPayload = "deleted"
)

func matchKey(id string) string        { return "duo:match:" + strings.TrimSpace(id) }
func inviteKey(code string) string     { return "duo:invite:" + strings.ToUpper(strings.TrimSpace(code)) }
func eventsChannel(id string) string   { return "duo:events:" + strings.TrimSpace(id) }
func ticketKey(playerID string) string { return "duo:ticket:" + strings.TrimSpace(playerID) }
func aiProfileKey(playerID string) string {
	return "duo:aiprofile:" + strings.TrimSpace(playerID)
}
