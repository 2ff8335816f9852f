package escrow

// Role is the relationship of an actor to a transaction.
type Role string

const (
	RoleBuyer      Role = "buyer"
	RoleSeller     Role = "seller"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
	RoleNone       Role = "none"
)

// Actor carries the identity facts the core needs for authorization checks.
// Admin is resolved by the caller's identity layer; the core does not own
// role storage beyond the parties recorded on the transaction itself.
type Actor struct {
	ID    uint
	Admin bool
}

// RoleOf resolves an actor id against the transaction's parties. Platform
// admins are not resolvable here; callers pass that fact via Actor.Admin.
func (t *Transaction) RoleOf(actorID uint) Role {
	switch actorID {
	case 0:
		return RoleNone
	case t.BuyerID:
		return RoleBuyer
	case t.SellerID:
		return RoleSeller
	case t.SupervisorID:
		return RoleSupervisor
	}
	return RoleNone
}

// isParty reports whether the actor is the buyer or the seller.
func (t *Transaction) isParty(actorID uint) bool {
	r := t.RoleOf(actorID)
	return r == RoleBuyer || r == RoleSeller
}

// canModerate reports whether the actor may see internal messages and resolve
// disputes: the assigned supervisor, or a platform admin.
func (t *Transaction) canModerate(actor Actor) bool {
	return actor.Admin || (t.SupervisorID != 0 && actor.ID == t.SupervisorID)
}
