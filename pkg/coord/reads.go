package coord

import (
	"flowlock/pkg/types"
)

// Read pass-throughs so adapters consume one surface instead of
// reaching into the individual tables.

// AllLocks returns every live lock, purging expired entries.
func (c *Coordinator) AllLocks() []types.Lock {
	return c.locks.All()
}

// UserLocks returns the user's live locks, purging expired entries.
func (c *Coordinator) UserLocks(userID string) []types.Lock {
	return c.locks.ForUser(userID)
}

// GetUser returns the user's stored session.
func (c *Coordinator) GetUser(userID string) (types.Session, bool) {
	return c.presence.Get(userID)
}

// AllUsers returns every active session.
func (c *Coordinator) AllUsers() []types.Session {
	return c.presence.All()
}

// WorkflowUsers returns the active sessions on a workflow.
func (c *Coordinator) WorkflowUsers(workflowID string) []types.Session {
	return c.presence.ForWorkflow(workflowID)
}

// SetUserWorkflow moves the user onto a workflow.
func (c *Coordinator) SetUserWorkflow(userID, workflowID string) bool {
	return c.presence.SetWorkflow(userID, workflowID)
}

// MergeUserMetadata shallow-merges metadata into the user's session.
func (c *Coordinator) MergeUserMetadata(userID string, md map[string]any) bool {
	return c.presence.MergeMetadata(userID, md)
}

// GetRequest returns an edit request by id, whatever its state.
func (c *Coordinator) GetRequest(id string) (types.EditRequest, bool) {
	return c.requests.Get(id)
}

// RequestsForUser returns the pending requests awaiting the user's
// response.
func (c *Coordinator) RequestsForUser(userID string) []types.EditRequest {
	return c.requests.ForTarget(userID)
}

// RequestsByUser returns the requests the user created.
func (c *Coordinator) RequestsByUser(userID string) []types.EditRequest {
	return c.requests.ByRequester(userID)
}

// WorkflowRequests returns a workflow's requests.
func (c *Coordinator) WorkflowRequests(workflowID string) []types.EditRequest {
	return c.requests.ForWorkflow(workflowID)
}
