package domain

// IsOwner reports whether the actor filed the request.
func IsOwner(actor Actor, req *Request) bool {
	return actor.UserID != "" && req.CitizenID == actor.UserID
}

// IsAssignedOfficer reports whether the actor is the request's current assignee.
func IsAssignedOfficer(actor Actor, req *Request) bool {
	return actor.UserID != "" && req.IsAssignedTo(actor.UserID)
}

// HasStaffRole reports whether the actor holds any staff role.
func HasStaffRole(actor Actor) bool {
	return actor.Role.IsStaff()
}

// CanReply reports whether the actor may append a reply to the request.
func CanReply(actor Actor, req *Request) bool {
	return IsOwner(actor, req) || IsAssignedOfficer(actor, req) || HasStaffRole(actor)
}

// RepliesAsStaff reports whether a reply by actor counts as an official response.
func RepliesAsStaff(actor Actor, req *Request) bool {
	return HasStaffRole(actor) || IsAssignedOfficer(actor, req)
}

// CanManage reports whether the actor may derive or complete requests.
func CanManage(actor Actor) bool {
	return HasStaffRole(actor)
}
